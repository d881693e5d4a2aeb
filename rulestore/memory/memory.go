// Package memory provides an in-memory rulestore.Store, for single-process
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgelimit/gateway/rulestore"
	"github.com/edgelimit/gateway/ruleset"
)

// Store implements rulestore.Store with an in-memory, mutex-guarded
// ruleset. All operations are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	version int
	rules   []ruleset.Rule
}

// New creates an empty Store. version starts at 0 and increments on every
// mutation, becoming the Ruleset.Version stamp the Config Cache observes.
func New() *Store {
	return &Store{}
}

func (s *Store) GetRuleset(_ context.Context) (*ruleset.Ruleset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *Store) PutRuleset(_ context.Context, rs *ruleset.Ruleset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := append([]ruleset.Rule(nil), rs.Rules...)
	ruleset.Normalize(&ruleset.Ruleset{Rules: rules})
	s.rules = rules
	s.version++
	return nil
}

func (s *Store) GetRule(_ context.Context, name string) (*ruleset.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].Name == name {
			r := s.rules[i]
			return &r, nil
		}
	}
	return nil, rulestore.ErrNotFound
}

func (s *Store) CreateRule(_ context.Context, rule ruleset.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.Name == rule.Name {
			return rulestore.ErrAlreadyExists
		}
	}
	normalized := &ruleset.Ruleset{Rules: []ruleset.Rule{rule}}
	ruleset.Normalize(normalized)
	s.rules = append(s.rules, normalized.Rules[0])
	s.version++
	return nil
}

func (s *Store) PutRule(_ context.Context, rule ruleset.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].Name == rule.Name {
			normalized := &ruleset.Ruleset{Rules: []ruleset.Rule{rule}}
			ruleset.Normalize(normalized)
			s.rules[i] = normalized.Rules[0]
			s.version++
			return nil
		}
	}
	return rulestore.ErrNotFound
}

func (s *Store) DeleteRule(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].Name == name {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			s.version++
			return nil
		}
	}
	return rulestore.ErrNotFound
}

func (s *Store) Reorder(_ context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName := make(map[string]ruleset.Rule, len(s.rules))
	for _, r := range s.rules {
		byName[r.Name] = r
	}
	if len(names) != len(s.rules) {
		return fmt.Errorf("rulestore: reorder list has %d names, store has %d rules", len(names), len(s.rules))
	}
	reordered := make([]ruleset.Rule, 0, len(names))
	for _, name := range names {
		r, ok := byName[name]
		if !ok {
			return fmt.Errorf("rulestore: reorder references unknown rule %q", name)
		}
		reordered = append(reordered, r)
	}
	s.rules = reordered
	s.version++
	return nil
}

func (s *Store) snapshotLocked() *ruleset.Ruleset {
	rules := append([]ruleset.Rule(nil), s.rules...)
	return &ruleset.Ruleset{Version: fmt.Sprintf("%d", s.version), Rules: rules}
}
