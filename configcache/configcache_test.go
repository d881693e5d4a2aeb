package configcache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelimit/gateway/configcache"
	"github.com/edgelimit/gateway/ruleset"
)

type fakeResolver struct {
	rs      atomic.Pointer[ruleset.Ruleset]
	failing atomic.Bool
}

func newFakeResolver(version string) *fakeResolver {
	r := &fakeResolver{}
	r.rs.Store(&ruleset.Ruleset{Version: version})
	return r
}

func (r *fakeResolver) GetRuleset(ctx context.Context) (*ruleset.Ruleset, error) {
	if r.failing.Load() {
		return nil, errors.New("backend unavailable")
	}
	return r.rs.Load(), nil
}

func TestCache_InitialFetch(t *testing.T) {
	r := newFakeResolver("v1")
	c, err := configcache.New(context.Background(), r, time.Hour)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "v1", c.Get().Ruleset.Version)
}

func TestCache_NewFailsIfInitialFetchFails(t *testing.T) {
	r := newFakeResolver("v1")
	r.failing.Store(true)
	_, err := configcache.New(context.Background(), r, time.Hour)
	require.Error(t, err)
}

func TestCache_RefreshPicksUpNewVersion(t *testing.T) {
	r := newFakeResolver("v1")
	c, err := configcache.New(context.Background(), r, time.Hour)
	require.NoError(t, err)
	defer c.Close()

	r.rs.Store(&ruleset.Ruleset{Version: "v2"})
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, "v2", c.Get().Ruleset.Version)
}

func TestCache_FailStaleKeepsServingLastGood(t *testing.T) {
	r := newFakeResolver("v1")
	c, err := configcache.New(context.Background(), r, time.Hour)
	require.NoError(t, err)
	defer c.Close()

	var staleErrSeen error
	c2, err := configcache.New(context.Background(), r, time.Hour, configcache.WithStaleHandler(func(e error) {
		staleErrSeen = e
	}))
	require.NoError(t, err)
	defer c2.Close()

	r.failing.Store(true)
	err = c2.Refresh(context.Background())
	require.Error(t, err)
	require.Error(t, staleErrSeen)

	// Snapshot must be unchanged: still serving v1, not an empty ruleset.
	assert.Equal(t, "v1", c.Get().Ruleset.Version)
	assert.Equal(t, "v1", c2.Get().Ruleset.Version)
}

func TestCache_ValidatesAndReportsWarnings(t *testing.T) {
	r := newFakeResolver("v1")
	r.rs.Store(&ruleset.Ruleset{
		Version: "v1",
		Rules: []ruleset.Rule{
			{Name: "ok", RateLimit: ruleset.RateLimit{Limit: 1, Period: 1}},
			{Name: "", RateLimit: ruleset.RateLimit{Limit: 1, Period: 1}},
		},
	})

	var warnings []ruleset.Warning
	c, err := configcache.New(context.Background(), r, time.Hour, configcache.WithValidationHandler(func(w []ruleset.Warning) {
		warnings = w
	}))
	require.NoError(t, err)
	defer c.Close()

	require.Len(t, c.Get().Ruleset.Rules, 1)
	assert.Equal(t, "ok", c.Get().Ruleset.Rules[0].Name)
	require.Len(t, warnings, 1)
}
