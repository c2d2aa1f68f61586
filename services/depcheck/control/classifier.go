// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package control

import (
	"github.com/depscope/depscope/services/depcheck/cfg"
	"github.com/depscope/depscope/services/depcheck/postdom"
)

// CandidateEdge is a CFG edge (Tail → Head) whose head does not properly
// post-dominate its tail, making it a candidate control-dependence edge.
type CandidateEdge struct {
	Tail string
	Head string
}

// Classify scans the CFG and returns the set S of candidate
// control-dependence edges.
//
// Description:
//
//	An edge (A,B) qualifies iff B does not properly post-dominate A.
//	B properly post-dominates A iff B != A and every path from A to the
//	procedure's exit passes through B.
//
//	Exit blocks contribute no edges (no successors). A self-loop (A,A)
//	always qualifies, because no node properly post-dominates itself;
//	this is the mechanism that later captures loop-carried control
//	dependence. A single unconditional successor that post-dominates its
//	predecessor contributes nothing — pure sequential flow carries no
//	dependence.
//
// Inputs:
//
//   - g: Frozen CFG. Must not be nil.
//   - tree: Post-dominator tree over the same node set. Must not be nil.
//
// Outputs:
//
//   - []CandidateEdge: S, in CFG node-insertion × successor order.
//     Construction-stable across calls.
//
// Limitations:
//
//   - Edges touching nodes absent from the tree (no path to any exit)
//     qualify trivially; the propagator later skips them with a
//     missing-ancestor diagnostic.
//
// Thread Safety: Safe for concurrent use (read-only on both inputs).
//
// Complexity: O(E × depth) where depth is the tree depth.
func Classify(g *cfg.CFG, tree *postdom.Tree) []CandidateEdge {
	edges := make([]CandidateEdge, 0)

	for _, node := range g.Nodes() {
		for _, succ := range g.Successors(node.ID) {
			if tree.ProperlyPostDominates(succ, node.ID) {
				continue
			}
			edges = append(edges, CandidateEdge{Tail: node.ID, Head: succ})
		}
	}

	return edges
}
