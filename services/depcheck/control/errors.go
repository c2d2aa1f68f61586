// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package control computes the control-dependence graph of a procedure.
//
// The construction follows Ferrante, Ottenstein, and Warren ("The Program
// Dependence Graph and Its Use in Optimization"): let S consist of all CFG
// edges (A,B) such that B does not properly post-dominate A. For each such
// edge, every node on the post-dominator-tree path from B up to (but not
// including) the parent of A is control-dependent on A. The two documented
// cases — L = parent(A), covering B through A's sibling subtree, and L = A,
// the loop-dependence case covering A through B inclusive — fall out of a
// single backward walk that terminates at A's parent.
//
// # Collaborators
//
// The post-dominator tree is an external collaborator supplied by the
// caller (see the postdom package); this package only queries it. The CFG
// is borrowed read-only. The result is handed to the caller as an
// immutable Store; nothing is retained between calls.
//
// # Thread Safety
//
// Analyze is sequential within one call and safe to invoke concurrently
// for independent procedures. Results are safe for concurrent readers.
package control

import (
	"errors"
	"fmt"
)

// Sentinel errors for control-dependence analysis.
var (
	// ErrNilCFG is returned when Analyze is called with a nil CFG.
	ErrNilCFG = errors.New("cfg must not be nil")

	// ErrNilTree is returned when Analyze is called with a nil
	// post-dominator tree.
	ErrNilTree = errors.New("post-dominator tree must not be nil")
)

// MissingAncestorError reports a candidate edge whose least common
// ancestor query found no common ancestor in the post-dominator tree.
//
// This arises for disconnected post-dominance structure: unreachable
// code, blocks that never reach an exit, or multi-exit forests. It is
// recoverable — the edge contributes nothing and analysis continues — and
// is surfaced on Result.Diagnostics rather than aborting construction.
type MissingAncestorError struct {
	// Tail and Head identify the skipped CFG edge (Tail → Head).
	Tail string
	Head string
}

func (e *MissingAncestorError) Error() string {
	return fmt.Sprintf("no common ancestor in post-dominator tree for edge %s -> %s", e.Tail, e.Head)
}
