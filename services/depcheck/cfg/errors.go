// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cfg provides the control-flow-graph input type for dependence
// analysis.
//
// A CFG is a directed graph of basic blocks for a single procedure. Nodes
// are identified by caller-chosen string IDs that must remain stable for
// the lifetime of one analysis call. Edges denote possible transfers of
// control between blocks.
//
// # Ownership Model
//
// The CFG stores only node IDs and labels:
//   - Node identity is the ID string; labels are opaque display text
//   - The analysis packages borrow the CFG read-only and never mutate it
//
// # Thread Safety
//
// CFG is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during build phase (AddNode, AddEdge calls)
//   - Read-only access after Freeze() is called
//
// After Freeze(), the CFG can be safely read from multiple goroutines.
//
// # Lifecycle
//
// A typical CFG lifecycle:
//  1. Create with New()
//  2. Build with AddNode() and AddEdge() calls
//  3. Call Freeze() to finalize
//  4. Hand to postdom.Build and control.Analyze
package cfg

import "errors"

// Sentinel errors for CFG operations.
var (
	// ErrFrozen is returned when attempting to modify a frozen CFG.
	// Once Freeze() is called, the CFG becomes read-only and no further
	// nodes or edges can be added.
	ErrFrozen = errors.New("cfg is frozen and cannot be modified")

	// ErrNodeNotFound is returned when an edge references a non-existent
	// node. Both tail and head must exist before an edge can be created.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the CFG.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrInvalidNode is returned when attempting to add a node with an
	// empty ID.
	ErrInvalidNode = errors.New("invalid node")

	// ErrMaxNodesExceeded is returned when the CFG has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the CFG has reached its
	// configured maximum edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")
)
