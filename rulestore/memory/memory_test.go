package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelimit/gateway/rulestore"
	"github.com/edgelimit/gateway/rulestore/memory"
	"github.com/edgelimit/gateway/ruleset"
)

func sampleRule(name string) ruleset.Rule {
	return ruleset.Rule{
		Name:      name,
		RateLimit: ruleset.RateLimit{Limit: 10, Period: 60},
		InitialMatch: ruleset.MatchBlock{
			Logic:      "and",
			Conditions: []ruleset.Condition{{Field: "method", Operator: "eq", Value: "GET"}},
			Action:     ruleset.Action{Type: ruleset.ActionLog},
		},
	}
}

func TestMemory_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.CreateRule(ctx, sampleRule("r1")))
	_, err := s.GetRule(ctx, "missing")
	assert.ErrorIs(t, err, rulestore.ErrNotFound)

	r, err := s.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.Name)

	require.NoError(t, s.DeleteRule(ctx, "r1"))
	_, err = s.GetRule(ctx, "r1")
	assert.ErrorIs(t, err, rulestore.ErrNotFound)
}

func TestMemory_CreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateRule(ctx, sampleRule("r1")))
	err := s.CreateRule(ctx, sampleRule("r1"))
	assert.ErrorIs(t, err, rulestore.ErrAlreadyExists)
}

func TestMemory_PutRequiresExisting(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	err := s.PutRule(ctx, sampleRule("ghost"))
	assert.ErrorIs(t, err, rulestore.ErrNotFound)
}

func TestMemory_ReorderAndVersionBumps(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateRule(ctx, sampleRule("a")))
	require.NoError(t, s.CreateRule(ctx, sampleRule("b")))

	rs1, _ := s.GetRuleset(ctx)
	require.NoError(t, s.Reorder(ctx, []string{"b", "a"}))
	rs2, _ := s.GetRuleset(ctx)

	assert.Equal(t, []string{"a", "b"}, namesOf(rs1.Rules))
	assert.Equal(t, []string{"b", "a"}, namesOf(rs2.Rules))
	assert.NotEqual(t, rs1.Version, rs2.Version)
}

func namesOf(rules []ruleset.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}
