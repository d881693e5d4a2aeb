// Package matcher walks an ordered ruleset and picks the action a request
// should dispatch to, implementing the first-match-wins-with-accumulation
// semantics of spec.md §4.3.
package matcher

import (
	"github.com/edgelimit/gateway/condition"
	"github.com/edgelimit/gateway/fields"
	"github.com/edgelimit/gateway/ruleset"
)

// Result is the outcome of walking a ruleset against a request.
type Result struct {
	// Matched is false when no rule produced any action at all — the
	// request passes through untouched.
	Matched bool

	// Rule and Action are the terminal match, or (if no terminal match
	// was found) the best non-terminal fallback per step 5 of §4.3:
	// the last elseAction fallback beats the last log/simulate result.
	Rule   ruleset.Rule
	Action ruleset.Action

	// Terminal is true when Action stopped evaluation outright (and thus
	// Rule/Action above are a terminal match, not a fallback).
	Terminal bool
}

// Warning aggregates condition-evaluation warnings with the rule they came
// from, for the pipeline to log.
type Warning struct {
	Rule string
	condition.Warning
}

// Match walks rules in order. For each rule: initialMatch is tried first;
// if it matches (terminal or not) the rule's elseIfActions/elseAction are
// skipped entirely, matching "if/else if/else" semantics. If initialMatch
// doesn't match, elseIfActions are tried in order; if none of those match
// either, elseAction (if present) is the rule's fallback. A terminal
// action returns immediately, but every non-terminal (log/simulate) match
// seen along the way — even one superseded by a later terminal rule — is
// reported in observed, so overlapping observational rules accumulate
// instead of being discarded (spec.md §4.3, §8 scenario 3). elseAction
// fallbacks are remembered separately and evaluation continues to the
// next rule; after the walk, the last elseAction fallback wins over the
// last non-terminal result as the primary Result, and "no match" passes
// the request through.
func Match(rules []ruleset.Rule, ctx *fields.RequestContext) (Result, []Result, []Warning) {
	var (
		lastElse     *Result
		lastObserved *Result
		observed     []Result
		warnings     []Warning
	)

	for _, rule := range rules {
		res, matched := evalMatchBlock(rule, rule.InitialMatch, ctx, &warnings)
		if matched {
			if res.Terminal {
				return res, observed, warnings
			}
			r := res
			lastObserved = &r
			observed = append(observed, r)
			continue
		}

		branchMatched := false
		for _, block := range rule.ElseIfActions {
			res, matched := evalMatchBlock(rule, block, ctx, &warnings)
			if !matched {
				continue
			}
			branchMatched = true
			if res.Terminal {
				return res, observed, warnings
			}
			r := res
			lastObserved = &r
			observed = append(observed, r)
			break
		}

		if !branchMatched && rule.ElseAction != nil {
			res := Result{Matched: true, Rule: rule, Action: *rule.ElseAction, Terminal: rule.ElseAction.Type.Terminal()}
			if res.Terminal {
				return res, observed, warnings
			}
			lastElse = &res
		}
	}

	if lastElse != nil {
		return *lastElse, observed, warnings
	}
	if lastObserved != nil {
		return *lastObserved, observed, warnings
	}
	return Result{}, observed, warnings
}

// evalMatchBlock evaluates one {conditions, logic, action} block and, if it
// matches, returns the resulting Result with matched=true.
func evalMatchBlock(rule ruleset.Rule, block ruleset.MatchBlock, ctx *fields.RequestContext, warnings *[]Warning) (Result, bool) {
	ok, condWarnings := condition.Evaluate(block.AsGroup(), ctx)
	for _, w := range condWarnings {
		*warnings = append(*warnings, Warning{Rule: rule.Name, Warning: w})
	}
	if !ok {
		return Result{}, false
	}
	return Result{Matched: true, Rule: rule, Action: block.Action, Terminal: block.Action.Type.Terminal()}, true
}
