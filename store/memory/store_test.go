package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/edgelimit/gateway/store"
	"github.com/edgelimit/gateway/store/memory"
)

func TestMemoryStore_GetSetDel(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	// Get non-existent key
	_, err := s.Get(ctx, "missing")
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, ok := err.(*store.ErrKeyNotFound); !ok {
		t.Fatalf("expected ErrKeyNotFound, got %T", err)
	}

	// Set and Get
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatal(err)
	}
	val, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if val != "v1" {
		t.Errorf("expected v1, got %q", val)
	}

	// Del
	if err := s.Del(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	_, err = s.Get(ctx, "k1")
	if _, ok := err.(*store.ErrKeyNotFound); !ok {
		t.Error("expected ErrKeyNotFound after Del")
	}
}

func TestMemoryStore_SetWithTTL(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "ttl-key", "val", 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	val, err := s.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatal(err)
	}
	if val != "val" {
		t.Error("expected val before expiry")
	}

	time.Sleep(150 * time.Millisecond)

	_, err = s.Get(ctx, "ttl-key")
	if _, ok := err.(*store.ErrKeyNotFound); !ok {
		t.Error("expected key to be expired")
	}
}

func TestMemoryStore_Expire(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "exp-key", "val", 0)
	s.Expire(ctx, "exp-key", 100*time.Millisecond)

	time.Sleep(150 * time.Millisecond)

	_, err := s.Get(ctx, "exp-key")
	if _, ok := err.(*store.ErrKeyNotFound); !ok {
		t.Error("expected key to be expired after Expire()")
	}
}

func TestMemoryStore_SortedSet(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	// ZAdd and ZCard
	s.ZAdd(ctx, "zset", 1.0, "a")
	s.ZAdd(ctx, "zset", 2.0, "b")
	s.ZAdd(ctx, "zset", 3.0, "c")

	count, _ := s.ZCard(ctx, "zset")
	if count != 3 {
		t.Errorf("expected 3 members, got %d", count)
	}

	// ZRangeWithScores
	entries, _ := s.ZRangeWithScores(ctx, "zset", 0, 0)
	if len(entries) != 1 || entries[0].Member != "a" {
		t.Errorf("expected first entry to be 'a', got %v", entries)
	}

	entries, _ = s.ZRangeWithScores(ctx, "zset", 0, -1)
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}

	// ZRemRangeByScore
	s.ZRemRangeByScore(ctx, "zset", "0", "1.5")
	count, _ = s.ZCard(ctx, "zset")
	if count != 2 {
		t.Errorf("expected 2 members after remove, got %d", count)
	}
}

func TestMemoryStore_InterfaceCompliance(t *testing.T) {
	var _ store.Store = (*memory.Store)(nil)
}
