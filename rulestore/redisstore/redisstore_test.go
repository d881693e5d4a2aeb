package redisstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelimit/gateway/rulestore"
	"github.com/edgelimit/gateway/rulestore/redisstore"
	"github.com/edgelimit/gateway/ruleset"
	"github.com/edgelimit/gateway/store/memory"
)

func sampleRule(name string) ruleset.Rule {
	return ruleset.Rule{
		Name:      name,
		RateLimit: ruleset.RateLimit{Limit: 5, Period: 30},
		InitialMatch: ruleset.MatchBlock{
			Logic:      "and",
			Conditions: []ruleset.Condition{{Field: "method", Operator: "eq", Value: "GET"}},
			Action:     ruleset.Action{Type: ruleset.ActionLog},
		},
	}
}

func TestRedisStore_EmptyInitially(t *testing.T) {
	ctx := context.Background()
	s := redisstore.New(memory.New())
	rs, err := s.GetRuleset(ctx)
	require.NoError(t, err)
	assert.Empty(t, rs.Rules)
}

func TestRedisStore_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	s := redisstore.New(memory.New())

	require.NoError(t, s.CreateRule(ctx, sampleRule("r1")))
	r, err := s.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.Name)

	require.NoError(t, s.DeleteRule(ctx, "r1"))
	_, err = s.GetRule(ctx, "r1")
	assert.ErrorIs(t, err, rulestore.ErrNotFound)
}

func TestRedisStore_PersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s1 := redisstore.New(backend)
	require.NoError(t, s1.CreateRule(ctx, sampleRule("persisted")))

	s2 := redisstore.New(backend)
	r, err := s2.GetRule(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", r.Name)
}

func TestRedisStore_PutRuleRequiresExisting(t *testing.T) {
	ctx := context.Background()
	s := redisstore.New(memory.New())
	err := s.PutRule(ctx, sampleRule("ghost"))
	assert.ErrorIs(t, err, rulestore.ErrNotFound)
}
