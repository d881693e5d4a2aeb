// Package configcache implements the Config Cache (spec.md §4.6): an
// in-process, atomically-swapped snapshot of the active Ruleset, refreshed
// on a TTL from a Resolver (the Rule Store). A refresh failure never
// surfaces to request handling — the last good snapshot keeps serving
// (fail-stale), since a config-fetch outage must never turn into a 5xx
// for every request at the edge.
package configcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgelimit/gateway/ruleset"
)

// Resolver fetches the current Ruleset from its backing store (e.g. a
// rulestore.Store). It is the only interface configcache depends on, so
// any rule-store backend can feed the cache.
type Resolver interface {
	GetRuleset(ctx context.Context) (*ruleset.Ruleset, error)
}

// Snapshot is one immutable, point-in-time view of the active ruleset.
type Snapshot struct {
	Ruleset   *ruleset.Ruleset
	FetchedAt time.Time
}

// Cache holds the current Snapshot and refreshes it from a Resolver every
// TTL. Reads never block on a refresh: Get always returns immediately from
// the last swapped-in Snapshot.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	onStale  func(error)
	onResult func(string)
	onWarn   func([]ruleset.Warning)

	current atomic.Pointer[Snapshot]

	refreshMu sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleHandler registers a callback invoked whenever a background
// refresh fails and the cache falls back to serving the previous snapshot.
// Typically wired to a logger.
func WithStaleHandler(f func(error)) Option {
	return func(c *Cache) { c.onStale = f }
}

// WithRefreshObserver registers a callback invoked after every refresh
// attempt (background or forced) with "ok" or "stale", typically wired to
// metrics.Collector.RecordConfigRefresh.
func WithRefreshObserver(f func(result string)) Option {
	return func(c *Cache) { c.onResult = f }
}

// WithValidationHandler registers a callback invoked with the Validate
// warnings produced by every successful fetch (spec.md §7's MalformedRule
// taxonomy entry). Typically wired to a logger.
func WithValidationHandler(f func([]ruleset.Warning)) Option {
	return func(c *Cache) { c.onWarn = f }
}

// New creates a Cache that refreshes from resolver every ttl. An initial
// synchronous fetch populates the first snapshot; if that fetch fails, New
// returns the error rather than starting with an empty ruleset.
func New(ctx context.Context, resolver Resolver, ttl time.Duration, opts ...Option) (*Cache, error) {
	c := &Cache{
		resolver: resolver,
		ttl:      ttl,
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	rs, err := resolver.GetRuleset(ctx)
	if err != nil {
		return nil, err
	}
	c.current.Store(&Snapshot{Ruleset: c.validated(rs), FetchedAt: time.Now()})

	go c.refreshLoop()
	return c, nil
}

// validated runs the fetched ruleset through ruleset.Validate, reporting
// any warnings, and returns a ruleset holding only the rules safe to
// evaluate. The matcher package assumes this has already happened.
func (c *Cache) validated(rs *ruleset.Ruleset) *ruleset.Ruleset {
	kept, warnings := ruleset.Validate(rs)
	if len(warnings) > 0 && c.onWarn != nil {
		c.onWarn(warnings)
	}
	version := ""
	if rs != nil {
		version = rs.Version
	}
	return &ruleset.Ruleset{Version: version, Rules: kept}
}

// Get returns the current Snapshot. It never blocks on the network and
// never returns nil once New has succeeded.
func (c *Cache) Get() *Snapshot {
	return c.current.Load()
}

// Refresh forces an immediate synchronous refresh attempt, for the rule
// store's write endpoints to call after a mutation so the next request
// sees it without waiting out the full TTL. On failure the existing
// snapshot is left in place (fail-stale) and the error is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	rs, err := c.resolver.GetRuleset(ctx)
	if err != nil {
		if c.onStale != nil {
			c.onStale(err)
		}
		if c.onResult != nil {
			c.onResult("stale")
		}
		return err
	}
	c.current.Store(&Snapshot{Ruleset: c.validated(rs), FetchedAt: time.Now()})
	if c.onResult != nil {
		c.onResult("ok")
	}
	return nil
}

func (c *Cache) refreshLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.ttl)
			_ = c.Refresh(ctx)
			cancel()
		case <-c.closeCh:
			return
		}
	}
}

// Close stops the background refresh loop.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}
