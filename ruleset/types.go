// Package ruleset defines the gateway's policy data model: rules, the
// condition tree they match on, and the actions they dispatch to. Values in
// this package are pure data — no evaluation logic lives here (see packages
// condition and matcher).
package ruleset

import (
	"encoding/json"
	"fmt"
)

// ActionType is the tagged variant discriminator for Action.
type ActionType string

const (
	ActionAllow          ActionType = "allow"
	ActionLog            ActionType = "log"
	ActionSimulate       ActionType = "simulate"
	ActionBlock          ActionType = "block"
	ActionRateLimit      ActionType = "rateLimit"
	ActionCustomResponse ActionType = "customResponse"
)

// Terminal reports whether this action type stops rule evaluation when
// matched (spec.md §4.3): block, rateLimit, customResponse, and allow are
// terminal; log and simulate are observational and let evaluation continue.
func (t ActionType) Terminal() bool {
	switch t {
	case ActionBlock, ActionRateLimit, ActionCustomResponse, ActionAllow:
		return true
	default:
		return false
	}
}

// BodyType selects the Content-Type for a customResponse action.
type BodyType string

const (
	BodyTypeJSON BodyType = "json"
	BodyTypeHTML BodyType = "html"
	BodyTypeText BodyType = "text"
)

// Action is the tagged variant a matched condition dispatches to.
// StatusCode, Body, and BodyType are only meaningful when Type is
// "customResponse".
type Action struct {
	Type       ActionType `json:"type"`
	StatusCode int        `json:"statusCode,omitempty"`
	Body       string     `json:"body,omitempty"`
	BodyType   BodyType   `json:"bodyType,omitempty"`
}

// Condition is either a leaf (field/operator/value) or a group (logic over
// nested conditions), discriminated by Type == "group". Value is decoded
// leniently: a JSON number, string, or bool all normalize to their string
// form so operators can re-parse whichever type they need (numeric
// comparisons re-parse as decimal, string operators use it as-is).
type Condition struct {
	Type       string      `json:"type,omitempty"`
	Logic      string      `json:"logic,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`

	Field       string `json:"field,omitempty"`
	Operator    string `json:"operator,omitempty"`
	Value       string `json:"value,omitempty"`
	HeaderName  string `json:"headerName,omitempty"`
	HeaderValue string `json:"headerValue,omitempty"`
	CookieName  string `json:"cookieName,omitempty"`
}

// IsGroup reports whether this condition is a group node.
func (c Condition) IsGroup() bool {
	return c.Type == "group"
}

// conditionWire mirrors Condition but leaves Value as raw JSON so
// UnmarshalJSON can accept numbers/bools/strings for it.
type conditionWire struct {
	Type        string          `json:"type,omitempty"`
	Logic       string          `json:"logic,omitempty"`
	Conditions  []Condition     `json:"conditions,omitempty"`
	Field       string          `json:"field,omitempty"`
	Operator    string          `json:"operator,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	HeaderName  string          `json:"headerName,omitempty"`
	HeaderValue string          `json:"headerValue,omitempty"`
	CookieName  string          `json:"cookieName,omitempty"`
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Condition{
		Type:        w.Type,
		Logic:       w.Logic,
		Conditions:  w.Conditions,
		Field:       w.Field,
		Operator:    w.Operator,
		HeaderName:  w.HeaderName,
		HeaderValue: w.HeaderValue,
		CookieName:  w.CookieName,
	}
	if len(w.Value) == 0 {
		return nil
	}
	var raw any
	if err := json.Unmarshal(w.Value, &raw); err != nil {
		return fmt.Errorf("ruleset: condition value: %w", err)
	}
	c.Value = stringifyValue(raw)
	return nil
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// RateLimit is a rule's counting policy: at most Limit requests per Period
// seconds.
type RateLimit struct {
	Limit  int64 `json:"limit"`
	Period int64 `json:"period"`
}

// FingerprintSpec names, in order, the parameters that make up a rule's
// client fingerprint (spec.md §4.1).
type FingerprintSpec struct {
	Parameters []string `json:"parameters"`
}

// MatchBlock pairs a condition list (combined under Logic) with the Action
// to take when it matches. It is the shape shared by Rule.InitialMatch and
// each entry of Rule.ElseIfActions.
type MatchBlock struct {
	Conditions []Condition `json:"conditions"`
	Logic      string      `json:"logic"`
	Action     Action      `json:"action"`
}

// AsGroup views a MatchBlock as the equivalent top-level condition group,
// so the evaluator only needs to know about one recursive shape.
func (m MatchBlock) AsGroup() Condition {
	return Condition{Type: "group", Logic: m.Logic, Conditions: m.Conditions}
}

// Rule is one named unit of policy.
type Rule struct {
	Name          string           `json:"name"`
	RateLimit     RateLimit        `json:"rateLimit"`
	Fingerprint   *FingerprintSpec `json:"fingerprint,omitempty"`
	InitialMatch  MatchBlock       `json:"initialMatch"`
	ElseIfActions []MatchBlock     `json:"elseIfActions,omitempty"`
	ElseAction    *Action          `json:"elseAction,omitempty"`
}

// Ruleset is the ordered, versioned policy document served by the rule
// store (spec.md §3/§6).
type Ruleset struct {
	Version string `json:"version"`
	Rules   []Rule `json:"rules"`
}

// Clone returns a deep-enough copy for safe concurrent reads: callers
// never mutate a Ruleset once published to the config cache, but Clone
// exists for the rule-store reference implementations, which hand out
// a Ruleset and then keep mutating their own copy.
func (r *Ruleset) Clone() *Ruleset {
	if r == nil {
		return nil
	}
	out := &Ruleset{Version: r.Version, Rules: make([]Rule, len(r.Rules))}
	copy(out.Rules, r.Rules)
	return out
}
