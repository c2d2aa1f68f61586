// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package postdom provides the post-dominance oracle for control-dependence
// analysis.
//
// A Tree answers proper-post-dominance tests, least-common-ancestor
// queries, and immediate-post-dominator (parent) lookups over a fixed
// post-dominator tree. The tree is immutable after construction and is
// borrowed read-only by the control package.
//
// Trees can be supplied directly by the caller from precomputed immediate
// post-dominators (FromParents) or computed from a CFG (Build), which runs
// the Cooper-Harvey-Kennedy dominance algorithm on the reversed graph.
//
// # Multiple exits
//
// A procedure with several exit blocks has no single post-dominance root.
// Build normalizes such CFGs through a virtual exit node by default, so
// every block that reaches some exit gets a tree entry; the virtual node is
// filtered from the result and each real exit becomes a tree root. Nodes
// that reach no exit at all (unreachable code, infinite loops) have no tree
// entry, which downstream analyses must treat as a missing-ancestor
// condition rather than an error.
package postdom

import "errors"

// Sentinel errors for tree construction.
var (
	// ErrNilCFG is returned when Build is called with a nil CFG.
	ErrNilCFG = errors.New("cfg must not be nil")

	// ErrNoExit is returned when the CFG has no exit blocks (every node
	// has at least one successor), so post-dominance is undefined.
	ErrNoExit = errors.New("no exit nodes found")

	// ErrMultipleExits is returned when the CFG has more than one exit
	// block and virtual-exit normalization has been disabled.
	ErrMultipleExits = errors.New("multiple exit nodes without virtual exit")

	// ErrExitNotFound is returned when an explicitly requested exit node
	// does not exist in the CFG.
	ErrExitNotFound = errors.New("exit node not found")

	// ErrUnknownParent is returned by FromParents when a parent reference
	// points at a node that appears nowhere in the supplied mapping.
	ErrUnknownParent = errors.New("parent references unknown node")

	// ErrCyclicParents is returned by FromParents when the supplied parent
	// mapping contains a cycle and therefore is not a tree.
	ErrCyclicParents = errors.New("parent mapping contains a cycle")
)
