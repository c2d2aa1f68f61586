// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package postdom

import (
	"fmt"
	"sort"
)

// Tree represents an immutable post-dominator tree (or forest, for
// procedures with multiple exits).
//
// Every member node except the roots has exactly one immediate
// post-dominator, its parent. Roots have no parent: they post-dominate the
// entire procedure. Internally roots are self-mapped, following the
// convention that the entry of a dominator tree points at itself; Parent
// hides this and reports absence instead.
//
// Thread Safety: Safe for concurrent use after construction.
type Tree struct {
	// root is the primary root: the procedure's exit block, or the first
	// real exit for multi-exit procedures.
	root string

	// roots lists every tree root in construction order. A single-exit
	// procedure has exactly one.
	roots []string

	// parent maps node ID → immediate post-dominator ID. Roots map to
	// themselves.
	parent map[string]string

	// depth maps node ID → distance from its root. Roots have depth 0.
	depth map[string]int
}

// FromParents constructs a Tree from caller-supplied immediate
// post-dominators.
//
// Description:
//
//	This is the injection point for callers that computed post-dominance
//	elsewhere. The mapping gives, for each node, its immediate
//	post-dominator. A root may be expressed either by mapping a node to
//	itself or by referencing a node that has no entry of its own; such a
//	node is added as a root member.
//
// Inputs:
//
//   - parents: node ID → immediate post-dominator ID. Must describe a
//     forest: acyclic, with every parent reference resolvable.
//
// Outputs:
//
//   - *Tree: The immutable tree. Nil on error.
//   - error: ErrUnknownParent is never returned for references that can be
//     promoted to roots; ErrCyclicParents if the mapping is not a forest.
//
// Example:
//
//	tree, err := postdom.FromParents(map[string]string{
//	    "entry":  "merge",
//	    "then":   "merge",
//	    "merge":  "exit",
//	    "exit":   "exit", // root
//	})
func FromParents(parents map[string]string) (*Tree, error) {
	t := &Tree{
		parent: make(map[string]string, len(parents)),
		depth:  make(map[string]int, len(parents)),
	}

	for node, p := range parents {
		if node == "" || p == "" {
			return nil, fmt.Errorf("%w: empty node ID", ErrUnknownParent)
		}
		t.parent[node] = p
	}

	// Promote parent references without entries of their own to roots.
	for _, p := range parents {
		if _, ok := t.parent[p]; !ok {
			t.parent[p] = p
		}
	}

	// Compute depths, detecting cycles. The chain from any node to its
	// root is at most len(parent) long; a longer walk means a cycle.
	maxChain := len(t.parent) + 1
	for node := range t.parent {
		chain := make([]string, 0, 4)
		cur := node
		steps := 0
		for {
			if _, done := t.depth[cur]; done {
				break
			}
			if t.parent[cur] == cur {
				t.depth[cur] = 0
				break
			}
			if steps >= maxChain {
				return nil, fmt.Errorf("%w: at %s", ErrCyclicParents, node)
			}
			chain = append(chain, cur)
			cur = t.parent[cur]
			steps++
		}
		base := t.depth[cur]
		for i := len(chain) - 1; i >= 0; i-- {
			base++
			t.depth[chain[i]] = base
		}
	}

	// Map iteration order is not stable; sort roots so enumeration and the
	// primary-root pick are deterministic across constructions.
	for node, p := range t.parent {
		if node == p {
			t.roots = append(t.roots, node)
		}
	}
	sort.Strings(t.roots)
	if len(t.roots) > 0 {
		t.root = t.roots[0]
	}

	return t, nil
}

// Root returns the primary tree root (the procedure's exit block).
//
// For multi-exit procedures built without a unique exit, this is one of
// several roots; see Roots.
func (t *Tree) Root() string {
	return t.root
}

// Roots returns every tree root. Single-exit procedures have exactly one.
func (t *Tree) Roots() []string {
	out := make([]string, len(t.roots))
	copy(out, t.roots)
	return out
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.parent)
}

// Contains returns true if the node is a member of the tree.
//
// Nodes with no path to any exit are not members.
func (t *Tree) Contains(x string) bool {
	_, ok := t.parent[x]
	return ok
}

// Parent returns the immediate post-dominator of x.
//
// Description:
//
//	The second return value is false when x has no immediate
//	post-dominator: either x is a tree root (it post-dominates the whole
//	procedure) or x is not a member of the tree at all. Use Contains to
//	distinguish the two.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(1) map lookup.
func (t *Tree) Parent(x string) (string, bool) {
	p, ok := t.parent[x]
	if !ok || p == x {
		return "", false
	}
	return p, true
}

// Depth returns the depth of x in the tree, or -1 if x is not a member.
//
// Roots have depth 0.
func (t *Tree) Depth(x string) int {
	d, ok := t.depth[x]
	if !ok {
		return -1
	}
	return d
}

// ProperlyPostDominates returns true if y properly post-dominates x.
//
// Description:
//
//	y properly post-dominates x iff y != x and every path from x to the
//	procedure's exit passes through y, i.e. y is a proper ancestor of x
//	in the post-dominator tree. No node properly post-dominates itself;
//	this is what makes every self-loop edge a candidate control-dependence
//	edge.
//
// Inputs:
//
//   - y, x: Node IDs. Non-members never properly post-dominate and are
//     never properly post-dominated.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(depth of x).
func (t *Tree) ProperlyPostDominates(y, x string) bool {
	if y == x {
		return false
	}
	if !t.Contains(x) || !t.Contains(y) {
		return false
	}

	// Walk the parent chain from x; guard against corrupted mappings.
	maxIterations := len(t.parent) + 1
	cur := x
	for i := 0; i < maxIterations; i++ {
		p := t.parent[cur]
		if p == cur {
			return false // reached a root without meeting y
		}
		if p == y {
			return true
		}
		cur = p
	}
	return false
}

// CommonAncestor returns the least common ancestor of x and y in the tree.
//
// Description:
//
//	The least (nearest) common ancestor is the common ancestor of x and y
//	farthest from the root. A node is an ancestor of itself, so
//	CommonAncestor(x, x) == x for members.
//
//	The second return value is false when no common ancestor exists:
//	either node is not a tree member, or the two nodes live under
//	different roots of a multi-exit forest. Callers must treat absence
//	as a recoverable condition, not an error.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(depth) per query.
func (t *Tree) CommonAncestor(x, y string) (string, bool) {
	if !t.Contains(x) || !t.Contains(y) {
		return "", false
	}
	if x == y {
		return x, true
	}

	maxIterations := len(t.parent) + 1

	// Equalize depths: lift the deeper node.
	dx, dy := t.depth[x], t.depth[y]
	for i := 0; dx > dy && i < maxIterations; i++ {
		x = t.parent[x]
		dx--
	}
	for i := 0; dy > dx && i < maxIterations; i++ {
		y = t.parent[y]
		dy--
	}

	// Walk both up in lockstep until they meet or both hit roots.
	for i := 0; x != y && i < maxIterations; i++ {
		px, py := t.parent[x], t.parent[y]
		if px == x && py == y {
			// Distinct roots: disconnected forest.
			return "", false
		}
		if px != x {
			x = px
		}
		if py != y {
			y = py
		}
	}

	if x != y {
		return "", false
	}
	return x, true
}
