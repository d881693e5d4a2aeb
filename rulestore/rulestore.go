// Package rulestore defines the Rule Store contract (spec.md §6): the
// source of truth for the active Ruleset, mutated through a small CRUD
// surface and read as a whole by the Config Cache. Two backends are
// provided: package memory, an in-process slice for single-process
// deployments and tests, and package redisstore for a shared fleet, built
// on store.Store so the same persistence layer backs the Counter Store too.
package rulestore

import (
	"context"
	"errors"

	"github.com/edgelimit/gateway/ruleset"
)

// ErrNotFound is returned when a named rule doesn't exist.
var ErrNotFound = errors.New("rulestore: rule not found")

// ErrAlreadyExists is returned by Create when a rule with that name
// already exists.
var ErrAlreadyExists = errors.New("rulestore: rule already exists")

// Store is the Rule Store's domain interface: a named, ordered collection
// of rules plus a ruleset-wide version stamp. GetRuleset satisfies
// configcache.Resolver directly.
type Store interface {
	// GetRuleset returns the complete active ruleset, in evaluation order.
	GetRuleset(ctx context.Context) (*ruleset.Ruleset, error)

	// PutRuleset replaces the entire active ruleset atomically. Rules are
	// normalized (spec.md §6's numeric-coercion contract) before being
	// persisted.
	PutRuleset(ctx context.Context, rs *ruleset.Ruleset) error

	// GetRule returns a single rule by name, or ErrNotFound.
	GetRule(ctx context.Context, name string) (*ruleset.Rule, error)

	// CreateRule appends a new rule at the end of evaluation order. It
	// returns ErrAlreadyExists if name is already in use.
	CreateRule(ctx context.Context, rule ruleset.Rule) error

	// PutRule replaces an existing rule's definition in place, preserving
	// its position in evaluation order. It returns ErrNotFound if no rule
	// with that name exists.
	PutRule(ctx context.Context, rule ruleset.Rule) error

	// DeleteRule removes a rule by name. It returns ErrNotFound if no rule
	// with that name exists.
	DeleteRule(ctx context.Context, name string) error

	// Reorder replaces the evaluation order with names, which must be a
	// permutation of the existing rule names.
	Reorder(ctx context.Context, names []string) error
}
