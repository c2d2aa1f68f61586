// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package control

import "sync"

// Result is the outcome of one control-dependence construction.
//
// The Store answers "what does this node control"; the inverse mapping,
// built lazily, answers "what controls this node". Counters and
// diagnostics describe the construction itself.
//
// Thread Safety: Safe for concurrent use after Analyze returns.
type Result struct {
	// AnalysisID uniquely identifies this construction run, for
	// correlating diagnostics and log lines.
	AnalysisID string

	// Store is the frozen control-dependence mapping.
	Store *Store

	// NodeCount and EdgeCount describe the analyzed CFG.
	NodeCount int
	EdgeCount int

	// Candidates is the size of the classified edge set S.
	Candidates int

	// Skipped counts candidate edges that contributed nothing because
	// an endpoint was missing from the post-dominator tree.
	Skipped int

	// Diagnostics records one entry per skipped edge.
	Diagnostics []*MissingAncestorError

	// NodesWithDependents is the count of controllers (non-empty sets).
	NodesWithDependents int

	// MaxDependents is the largest dependent set any controller has.
	MaxDependents int

	// dependencies maps node → its controllers. Lazily built inverse of
	// the store.
	dependencies map[string][]string

	// dependenciesOnce ensures the inverse is built exactly once.
	dependenciesOnce sync.Once
}

// Dependents returns the nodes whose execution tail governs.
//
// Empty slice, never an error, for non-controllers.
func (r *Result) Dependents(tail string) []string {
	return r.Store.Dependents(tail)
}

// IsController returns true if tail governs at least one node.
func (r *Result) IsController(tail string) bool {
	return r.Store.IsController(tail)
}

// Dependencies returns the controllers of node: the branch points whose
// decisions determine whether node executes.
//
// Description:
//
//	Inverse of the store's tail → dependents mapping. Built lazily on
//	first call and cached; order follows the store's construction-stable
//	enumeration.
//
// Outputs:
//
//   - []string: Controlling nodes, or nil if node has none.
//
// Thread Safety: Safe for concurrent use; the inverse is built atomically.
func (r *Result) Dependencies(node string) []string {
	r.ensureDependenciesBuilt()
	return r.dependencies[node]
}

// ensureDependenciesBuilt builds the inverse mapping lazily using
// sync.Once.
func (r *Result) ensureDependenciesBuilt() {
	r.dependenciesOnce.Do(func() {
		r.dependencies = make(map[string][]string)
		r.Store.Each(func(tail string, dependents []string) {
			for _, dep := range dependents {
				r.dependencies[dep] = append(r.dependencies[dep], tail)
			}
		})
	})
}

// DependencyChain returns the transitive chain of controllers of node.
//
// Description:
//
//	Starting from node, walks up the control-dependence relation
//	collecting all controllers level by level (BFS, closest first).
//	Stops at maxDepth levels or when no more controllers exist. Cycles —
//	a loop header is control-dependent on itself — are handled by
//	tracking visited nodes.
//
// Inputs:
//
//   - node: The starting node.
//   - maxDepth: Maximum levels to traverse. Must be > 0.
//
// Outputs:
//
//   - []string: Controllers in BFS order. Does not include node itself.
//     Nil if maxDepth <= 0 or no controllers exist.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(edges traversed), bounded by maxDepth.
func (r *Result) DependencyChain(node string, maxDepth int) []string {
	if maxDepth <= 0 {
		return nil
	}
	r.ensureDependenciesBuilt()

	var chain []string
	visited := make(map[string]bool)
	queue := []string{node}

	for depth := 0; len(queue) > 0 && depth < maxDepth; depth++ {
		next := make([]string, 0)
		for _, current := range queue {
			if visited[current] {
				continue
			}
			visited[current] = true

			for _, ctrl := range r.dependencies[current] {
				if !visited[ctrl] {
					chain = append(chain, ctrl)
					next = append(next, ctrl)
				}
			}
		}
		queue = next
	}

	return chain
}
