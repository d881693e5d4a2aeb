package matcher_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelimit/gateway/fields"
	"github.com/edgelimit/gateway/matcher"
	"github.com/edgelimit/gateway/ruleset"
)

func reqCtx(t *testing.T, rawURL string) *fields.RequestContext {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &fields.RequestContext{Method: "GET", URL: u, Header: http.Header{}, CF: map[string]any{}}
}

func apiPathRule(name string, action ruleset.Action) ruleset.Rule {
	return ruleset.Rule{
		Name:      name,
		RateLimit: ruleset.RateLimit{Limit: 10, Period: 60},
		InitialMatch: ruleset.MatchBlock{
			Logic: "and",
			Conditions: []ruleset.Condition{
				{Field: "url.pathname", Operator: "starts_with", Value: "/api"},
			},
			Action: action,
		},
	}
}

func TestMatch_ObservationalThenTerminal(t *testing.T) {
	// Scenario 3 from spec.md §8: an observational "log" rule and a
	// terminal "block" rule both matching /api/x — outcome is a block,
	// and the log rule's match is reported via observed so nothing
	// downstream loses track of it.
	rules := []ruleset.Rule{
		apiPathRule("obs", ruleset.Action{Type: ruleset.ActionLog}),
		apiPathRule("enf", ruleset.Action{Type: ruleset.ActionBlock}),
	}

	res, observed, _ := matcher.Match(rules, reqCtx(t, "http://host/api/x"))
	require.True(t, res.Matched)
	assert.True(t, res.Terminal)
	assert.Equal(t, ruleset.ActionBlock, res.Action.Type)
	assert.Equal(t, "enf", res.Rule.Name)

	require.Len(t, observed, 1)
	assert.Equal(t, "obs", observed[0].Rule.Name)
	assert.Equal(t, ruleset.ActionLog, observed[0].Action.Type)
}

func TestMatch_NonTerminalFallsThroughWhenNoTerminalFollows(t *testing.T) {
	rules := []ruleset.Rule{
		apiPathRule("obs1", ruleset.Action{Type: ruleset.ActionLog}),
		apiPathRule("obs2", ruleset.Action{Type: ruleset.ActionSimulate}),
	}
	res, observed, _ := matcher.Match(rules, reqCtx(t, "http://host/api/x"))
	require.True(t, res.Matched)
	assert.False(t, res.Terminal)
	assert.Equal(t, "obs2", res.Rule.Name, "last non-terminal result should win")
	assert.Len(t, observed, 2, "both obs1 and obs2 accumulate")
}

func TestMatch_NoMatchPassesThrough(t *testing.T) {
	rules := []ruleset.Rule{apiPathRule("enf", ruleset.Action{Type: ruleset.ActionBlock})}
	res, _, _ := matcher.Match(rules, reqCtx(t, "http://host/other"))
	assert.False(t, res.Matched)
}

func TestMatch_ElseIfRequiresElseAction(t *testing.T) {
	// ruleset.Validate is responsible for dropping a rule whose
	// elseIfActions lacks elseAction; the matcher itself doesn't enforce
	// that invariant, so this test only exercises the elseAction fallback
	// path when it IS present.
	rule := ruleset.Rule{
		Name:      "tiered",
		RateLimit: ruleset.RateLimit{Limit: 1, Period: 1},
		InitialMatch: ruleset.MatchBlock{
			Logic:      "and",
			Conditions: []ruleset.Condition{{Field: "method", Operator: "eq", Value: "POST"}},
			Action:     ruleset.Action{Type: ruleset.ActionLog},
		},
		ElseIfActions: []ruleset.MatchBlock{
			{
				Logic:      "and",
				Conditions: []ruleset.Condition{{Field: "method", Operator: "eq", Value: "PUT"}},
				Action:     ruleset.Action{Type: ruleset.ActionLog},
			},
		},
		ElseAction: &ruleset.Action{Type: ruleset.ActionBlock},
	}

	res, _, _ := matcher.Match([]ruleset.Rule{rule}, reqCtx(t, "http://host/x"))
	require.True(t, res.Matched)
	assert.True(t, res.Terminal)
	assert.Equal(t, ruleset.ActionBlock, res.Action.Type)
}

func TestMatch_InitialMatchSkipsElseIfAndElse(t *testing.T) {
	rule := ruleset.Rule{
		Name:      "r",
		RateLimit: ruleset.RateLimit{Limit: 1, Period: 1},
		InitialMatch: ruleset.MatchBlock{
			Logic:      "and",
			Conditions: []ruleset.Condition{{Field: "method", Operator: "eq", Value: "GET"}},
			Action:     ruleset.Action{Type: ruleset.ActionAllow},
		},
		ElseAction: &ruleset.Action{Type: ruleset.ActionBlock},
	}
	res, _, _ := matcher.Match([]ruleset.Rule{rule}, reqCtx(t, "http://host/x"))
	require.True(t, res.Matched)
	assert.Equal(t, ruleset.ActionAllow, res.Action.Type)
}
