// Package redisstore provides a rulestore.Store backed by store.Store,
// persisting the whole ruleset as a single JSON blob under the "config"
// key (spec.md §3's persisted state layout) so any store.Store backend —
// in particular the Redis one, for a shared fleet — can serve as the Rule
// Store as well as the Counter Store.
package redisstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/edgelimit/gateway/rulestore"
	"github.com/edgelimit/gateway/ruleset"
	"github.com/edgelimit/gateway/store"
)

const configKey = "config"

// Store implements rulestore.Store on top of a store.Store. Mutations are
// serialized through an in-process mutex so a read-modify-write sequence
// (e.g. PutRule) doesn't race with another writer on this same instance;
// cross-instance races still resolve last-write-wins, matching spec.md §6's
// "no versioning/optimistic-concurrency guarantee" scope.
type Store struct {
	backend store.Store
	mu      sync.Mutex
}

// New wraps backend as a Rule Store.
func New(backend store.Store) *Store {
	return &Store{backend: backend}
}

func (s *Store) GetRuleset(ctx context.Context) (*ruleset.Ruleset, error) {
	return s.loadOrEmpty(ctx)
}

func (s *Store) PutRuleset(ctx context.Context, rs *ruleset.Ruleset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := rs.Clone()
	ruleset.Normalize(clone)
	return s.saveLocked(ctx, clone)
}

func (s *Store) GetRule(ctx context.Context, name string) (*ruleset.Rule, error) {
	rs, err := s.loadOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rs.Rules {
		if rs.Rules[i].Name == name {
			r := rs.Rules[i]
			return &r, nil
		}
	}
	return nil, rulestore.ErrNotFound
}

func (s *Store) CreateRule(ctx context.Context, rule ruleset.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.loadOrEmptyLocked(ctx)
	if err != nil {
		return err
	}
	for _, r := range rs.Rules {
		if r.Name == rule.Name {
			return rulestore.ErrAlreadyExists
		}
	}
	normalized := &ruleset.Ruleset{Rules: []ruleset.Rule{rule}}
	ruleset.Normalize(normalized)
	rs.Rules = append(rs.Rules, normalized.Rules[0])
	return s.saveLocked(ctx, rs)
}

func (s *Store) PutRule(ctx context.Context, rule ruleset.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.loadOrEmptyLocked(ctx)
	if err != nil {
		return err
	}
	for i := range rs.Rules {
		if rs.Rules[i].Name == rule.Name {
			normalized := &ruleset.Ruleset{Rules: []ruleset.Rule{rule}}
			ruleset.Normalize(normalized)
			rs.Rules[i] = normalized.Rules[0]
			return s.saveLocked(ctx, rs)
		}
	}
	return rulestore.ErrNotFound
}

func (s *Store) DeleteRule(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.loadOrEmptyLocked(ctx)
	if err != nil {
		return err
	}
	for i := range rs.Rules {
		if rs.Rules[i].Name == name {
			rs.Rules = append(rs.Rules[:i], rs.Rules[i+1:]...)
			return s.saveLocked(ctx, rs)
		}
	}
	return rulestore.ErrNotFound
}

func (s *Store) Reorder(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.loadOrEmptyLocked(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]ruleset.Rule, len(rs.Rules))
	for _, r := range rs.Rules {
		byName[r.Name] = r
	}
	if len(names) != len(rs.Rules) {
		return &ReorderMismatchError{Want: len(rs.Rules), Got: len(names)}
	}
	reordered := make([]ruleset.Rule, 0, len(names))
	for _, name := range names {
		r, ok := byName[name]
		if !ok {
			return &UnknownRuleError{Name: name}
		}
		reordered = append(reordered, r)
	}
	rs.Rules = reordered
	return s.saveLocked(ctx, rs)
}

func (s *Store) loadOrEmpty(ctx context.Context) (*ruleset.Ruleset, error) {
	raw, err := s.backend.Get(ctx, configKey)
	if _, ok := err.(*store.ErrKeyNotFound); ok {
		return &ruleset.Ruleset{Version: "0"}, nil
	}
	if err != nil {
		return nil, err
	}
	var rs ruleset.Ruleset
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (s *Store) loadOrEmptyLocked(ctx context.Context) (*ruleset.Ruleset, error) {
	return s.loadOrEmpty(ctx)
}

func (s *Store) saveLocked(ctx context.Context, rs *ruleset.Ruleset) error {
	rs.Version = nextVersion(rs.Version)
	raw, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, configKey, string(raw), 0)
}

// nextVersion bumps the ruleset's version stamp. Versions are plain
// monotonic integers (as strings) rather than a wall-clock timestamp,
// keeping the serialized Ruleset a pure function of its rule content plus
// mutation count.
func nextVersion(prev string) string {
	return bumpNumeric(prev)
}

func bumpNumeric(prev string) string {
	n := 0
	for _, c := range prev {
		if c < '0' || c > '9' {
			n = 0
			break
		}
		n = n*10 + int(c-'0')
	}
	n++
	return itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ReorderMismatchError reports Reorder called with the wrong number of names.
type ReorderMismatchError struct {
	Want int
	Got  int
}

func (e *ReorderMismatchError) Error() string {
	return "rulestore/redisstore: reorder list size mismatch"
}

// UnknownRuleError reports Reorder referencing a rule name that doesn't exist.
type UnknownRuleError struct {
	Name string
}

func (e *UnknownRuleError) Error() string {
	return "rulestore/redisstore: reorder references unknown rule " + e.Name
}
