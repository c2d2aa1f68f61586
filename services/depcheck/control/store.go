// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package control

// Store is the control-dependence mapping from a control node (tail) to
// the set of nodes whose execution it governs.
//
// The store is populated monotonically during propagation — insertions
// only, set-union semantics — and frozen before Analyze returns. Any
// mutation after freezing is a programmer error and panics. Enumeration
// order is unspecified but construction-stable: two walks over the same
// store yield the same order, because insertion order is recorded.
//
// Thread Safety: Safe for concurrent use after Analyze returns.
type Store struct {
	// deps holds the dependent set per tail for O(1) membership.
	deps map[string]map[string]struct{}

	// order holds dependents per tail in first-insertion order.
	order map[string][]string

	// tails lists tails in first-insertion order.
	tails []string

	// frozen blocks further insertion once the propagator finishes.
	frozen bool
}

func newStore() *Store {
	return &Store{
		deps:  make(map[string]map[string]struct{}),
		order: make(map[string][]string),
	}
}

// insert adds node to tail's dependent set. Idempotent: repeated insertion
// of the same pair, from the same or a different qualifying edge, is a
// no-op.
func (s *Store) insert(tail, node string) {
	if s.frozen {
		panic("control: insert into frozen store")
	}

	set, ok := s.deps[tail]
	if !ok {
		set = make(map[string]struct{})
		s.deps[tail] = set
		s.tails = append(s.tails, tail)
	}
	if _, dup := set[node]; dup {
		return
	}
	set[node] = struct{}{}
	s.order[tail] = append(s.order[tail], node)
}

// freeze makes the store immutable.
func (s *Store) freeze() {
	s.frozen = true
}

// Dependents returns the nodes control-dependent on tail, in
// construction-stable order.
//
// Returns an empty slice — never nil, never an error — for tails with no
// dependents. The returned slice is freshly allocated.
func (s *Store) Dependents(tail string) []string {
	deps := s.order[tail]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// DependentSet returns tail's dependent set for O(1) membership tests.
//
// The returned map is owned by the store and must not be modified.
// Returns nil for tails with no dependents.
func (s *Store) DependentSet(tail string) map[string]struct{} {
	return s.deps[tail]
}

// IsController returns true if tail governs the execution of at least one
// node.
func (s *Store) IsController(tail string) bool {
	return len(s.deps[tail]) > 0
}

// Tails returns every tail with a non-empty dependent set, in
// construction-stable order.
func (s *Store) Tails() []string {
	out := make([]string, len(s.tails))
	copy(out, s.tails)
	return out
}

// Each calls fn for every (tail, dependents) pair in construction-stable
// order. The dependents slice is owned by the store and must not be
// modified.
func (s *Store) Each(fn func(tail string, dependents []string)) {
	for _, tail := range s.tails {
		fn(tail, s.order[tail])
	}
}

// Len returns the number of tails with a non-empty dependent set.
func (s *Store) Len() int {
	return len(s.tails)
}

// EdgeCount returns the total number of (tail, dependent) pairs.
func (s *Store) EdgeCount() int {
	n := 0
	for _, deps := range s.order {
		n += len(deps)
	}
	return n
}
