// Package counter implements the Counter Store (spec.md §4.4): a sliding
// window log, keyed per rule/client, backed by any store.Store. Each
// checked request evicts timestamps that have aged out of its per-key
// sorted set, compares the remaining count against the rule's limit, and
// appends its own arrival timestamp only when it is under that limit.
package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/edgelimit/gateway/store"
)

// Key builds the CounterKey shapes from spec.md §3's persisted state
// layout: rate_limit:<rule>:fingerprint:<hash>, rate_limit:<rule>:ip:<addr>,
// or rate_limit:<rule>:default, depending on which identity the rule's
// fingerprint resolved to.
func Key(rule string, kind string, identity string) string {
	if kind == "default" {
		return fmt.Sprintf("rate_limit:%s:default", rule)
	}
	return fmt.Sprintf("rate_limit:%s:%s:%s", rule, kind, identity)
}

// Decision is the outcome of evaluating one request against a rule's
// sliding window.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	Period     int64         // seconds
	ResetAt    time.Time     // when the oldest counted request ages out
	RetryAfter time.Duration // only meaningful when !Allowed
}

// Counter evaluates the sliding-window-log algorithm against a store.Store,
// serializing concurrent requests for the same key through a striped lock
// table so the read-evict-check-append sequence is atomic per key without
// requiring the backend to support scripting (spec.md §9(b)).
type Counter struct {
	store  store.Store
	stripe *stripeLocks
}

// New wraps a store.Store with the sliding-window counting algorithm.
func New(s store.Store) *Counter {
	return &Counter{store: s, stripe: newStripeLocks(256)}
}

// Check records the current request against key's sliding window (limit
// requests per period seconds) and reports whether it is allowed.
//
// Algorithm (spec.md §4.4): load all timestamps, evict those with
// now-ts >= period*1000 (a timestamp survives only while strictly younger
// than the window), then: if the survivor count is already >= limit, deny
// without recording this request; otherwise append now and persist.
func (c *Counter) Check(ctx context.Context, key string, limit, period int64, now time.Time) (Decision, error) {
	unlock := c.stripe.lock(key)
	defer unlock()

	nowMS := now.UnixMilli()
	windowMS := period * 1000

	entries, err := c.store.ZRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return Decision{}, err
	}

	cutoff := nowMS - windowMS
	survivors := entries[:0]
	for _, e := range entries {
		if int64(e.Score) > cutoff {
			survivors = append(survivors, e)
		}
	}

	if err := c.store.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)); err != nil {
		return Decision{}, err
	}

	oldest := int64(0)
	if len(survivors) > 0 {
		oldest = int64(survivors[0].Score)
	}
	resetAt := time.UnixMilli(oldest + windowMS)

	if int64(len(survivors)) >= limit {
		retryAfter := time.Duration(oldest+windowMS-nowMS) * time.Millisecond
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			Period:     period,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}, nil
	}

	if err := c.store.ZAdd(ctx, key, float64(nowMS), uuid.NewString()); err != nil {
		return Decision{}, err
	}
	if err := c.store.Expire(ctx, key, time.Duration(period+1)*time.Second); err != nil {
		return Decision{}, err
	}

	remaining := limit - int64(len(survivors)) - 1
	if len(survivors) == 0 {
		resetAt = now.Add(time.Duration(windowMS) * time.Millisecond)
	}
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		Period:    period,
		ResetAt:   resetAt,
	}, nil
}

// Peek reports the Decision key's window would currently produce, without
// recording a new request against it. Used by the introspection endpoint
// (spec.md §6's RATE_LIMIT_INFO_PATH) so a caller can ask "what would
// happen to me" without consuming a slot in their real window.
func (c *Counter) Peek(ctx context.Context, key string, limit, period int64, now time.Time) (Decision, error) {
	unlock := c.stripe.lock(key)
	defer unlock()

	nowMS := now.UnixMilli()
	windowMS := period * 1000

	entries, err := c.store.ZRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return Decision{}, err
	}

	cutoff := nowMS - windowMS
	survivors := entries[:0]
	for _, e := range entries {
		if int64(e.Score) > cutoff {
			survivors = append(survivors, e)
		}
	}

	oldest := int64(0)
	if len(survivors) > 0 {
		oldest = int64(survivors[0].Score)
	}

	if int64(len(survivors)) >= limit {
		resetAt := time.UnixMilli(oldest + windowMS)
		retryAfter := time.Duration(oldest+windowMS-nowMS) * time.Millisecond
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			Period:     period,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}, nil
	}

	resetAt := now.Add(time.Duration(windowMS) * time.Millisecond)
	if len(survivors) > 0 {
		resetAt = time.UnixMilli(oldest + windowMS)
	}
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int64(len(survivors)),
		Period:    period,
		ResetAt:   resetAt,
	}, nil
}
