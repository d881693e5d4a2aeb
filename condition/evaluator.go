// Package condition evaluates a rule's condition tree against a request.
// Evaluation is pure and never fails loudly: structural errors (unknown
// field, unknown operator, bad regex) make the offending leaf evaluate to
// false and surface a Warning, so a misconfigured rule degrades to
// "does not match" instead of crashing the pipeline (spec.md §4.2).
package condition

import (
	"strings"

	"github.com/edgelimit/gateway/fields"
	"github.com/edgelimit/gateway/ruleset"
)

// Warning is emitted for unknown fields/operators and invalid operands
// encountered while walking a condition tree.
type Warning struct {
	Field    string
	Operator string
	Detail   string
}

// Evaluate walks cond against ctx and returns the boolean result plus any
// warnings collected along the way. Groups short-circuit: "and" stops at
// the first false child, "or" stops at the first true child.
func Evaluate(cond ruleset.Condition, ctx *fields.RequestContext) (bool, []Warning) {
	var warnings []Warning
	result := evalNode(cond, ctx, &warnings)
	return result, warnings
}

func evalNode(cond ruleset.Condition, ctx *fields.RequestContext, warnings *[]Warning) bool {
	if cond.IsGroup() {
		return evalGroup(cond, ctx, warnings)
	}
	return evalLeaf(cond, ctx, warnings)
}

func evalGroup(cond ruleset.Condition, ctx *fields.RequestContext, warnings *[]Warning) bool {
	logic := strings.ToLower(cond.Logic)
	if len(cond.Conditions) == 0 {
		// An empty group is vacuously true under "and" (no constraint
		// fails) and vacuously false under "or" (nothing to satisfy it).
		return logic != "or"
	}

	switch logic {
	case "or":
		for _, child := range cond.Conditions {
			if evalNode(child, ctx, warnings) {
				return true
			}
		}
		return false
	default: // "and" is the default for an unrecognized/empty logic value
		for _, child := range cond.Conditions {
			if !evalNode(child, ctx, warnings) {
				return false
			}
		}
		return true
	}
}

func evalLeaf(cond ruleset.Condition, ctx *fields.RequestContext, warnings *[]Warning) bool {
	value, ok := fields.Resolve(cond.Field, ctx)
	if !ok {
		*warnings = append(*warnings, Warning{Field: cond.Field, Operator: cond.Operator, Detail: "unknown field"})
		return false
	}

	result, warn := applyOperator(cond.Field, cond.Operator, value, cond.Value)
	if warn != "" {
		*warnings = append(*warnings, Warning{Field: cond.Field, Operator: cond.Operator, Detail: warn})
	}
	return result
}
