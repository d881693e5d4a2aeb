package ruleset

import "fmt"

// Warning describes a rule skipped or coerced during validation. The
// pipeline logs these at Warn and continues (spec.md §7's MalformedRule
// taxonomy entry).
type Warning struct {
	Rule   string
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("rule %q: %s", w.Rule, w.Detail)
}

// Validate checks structural invariants and returns the subset of rules
// that are safe to evaluate, plus a Warning for each rule it skipped.
// Order is preserved among the surviving rules.
//
// A whole rule is skipped when it has no name, repeats an earlier rule's
// name, has a non-positive rateLimit.limit or rateLimit.period, or has
// elseIfActions without an elseAction. Everything else (unknown fields,
// operators, malformed conditions) is a per-leaf concern the evaluator
// fails closed on (spec.md §4.2) rather than a rule-level rejection.
func Validate(rs *Ruleset) ([]Rule, []Warning) {
	if rs == nil {
		return nil, nil
	}

	var (
		kept     = make([]Rule, 0, len(rs.Rules))
		warnings []Warning
		seen     = make(map[string]bool, len(rs.Rules))
	)

	for _, rule := range rs.Rules {
		if rule.Name == "" {
			warnings = append(warnings, Warning{Rule: "(unnamed)", Detail: "rule has no name, skipped"})
			continue
		}
		if seen[rule.Name] {
			warnings = append(warnings, Warning{Rule: rule.Name, Detail: "duplicate rule name, skipped"})
			continue
		}
		if rule.RateLimit.Limit <= 0 || rule.RateLimit.Period <= 0 {
			warnings = append(warnings, Warning{Rule: rule.Name, Detail: "rateLimit.limit and rateLimit.period must be positive, skipped"})
			continue
		}
		if len(rule.ElseIfActions) > 0 && rule.ElseAction == nil {
			warnings = append(warnings, Warning{Rule: rule.Name, Detail: "elseIfActions present without elseAction, skipped"})
			continue
		}
		seen[rule.Name] = true
		kept = append(kept, rule)
	}

	return kept, warnings
}

// Normalize coerces numeric fields that the wire format may have delivered
// as strings (spec.md §6: "server normalizes numeric fields (rateLimit.limit,
// rateLimit.period, action.statusCode coerced to numbers)"). Decoding
// through encoding/json already gives us numbers for well-formed JSON (a
// string-encoded number is a decode error, not coerced), so Normalize's
// job is narrower in Go than in the original: it clamps negative
// rateLimit.limit/period values to 0 and defaults a customResponse
// statusCode outside 100-599 to 200, reporting each change as a warning.
func Normalize(rs *Ruleset) []Warning {
	if rs == nil {
		return nil
	}
	var warnings []Warning
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		if rule.RateLimit.Limit < 0 {
			warnings = append(warnings, Warning{Rule: rule.Name, Detail: "negative rateLimit.limit coerced to 0"})
			rule.RateLimit.Limit = 0
		}
		if rule.RateLimit.Period < 0 {
			warnings = append(warnings, Warning{Rule: rule.Name, Detail: "negative rateLimit.period coerced to 0"})
			rule.RateLimit.Period = 0
		}
		normalizeAction(&rule.InitialMatch.Action, rule.Name, &warnings)
		for j := range rule.ElseIfActions {
			normalizeAction(&rule.ElseIfActions[j].Action, rule.Name, &warnings)
		}
		if rule.ElseAction != nil {
			normalizeAction(rule.ElseAction, rule.Name, &warnings)
		}
	}
	return warnings
}

func normalizeAction(a *Action, ruleName string, warnings *[]Warning) {
	if a.Type != ActionCustomResponse {
		return
	}
	if a.StatusCode < 100 || a.StatusCode > 599 {
		*warnings = append(*warnings, Warning{Rule: ruleName, Detail: "customResponse statusCode out of range, defaulted to 200"})
		a.StatusCode = 200
	}
}
