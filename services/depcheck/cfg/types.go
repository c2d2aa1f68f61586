// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cfg

import "fmt"

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of basic blocks a
	// CFG can hold. Single-procedure CFGs are small; the limit exists to
	// catch callers feeding a whole-program graph by mistake.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges is the default maximum number of edges a CFG can hold.
	DefaultMaxEdges = 10_000_000
)

// State represents the lifecycle state of the CFG.
type State int

const (
	// StateBuilding indicates the CFG is accepting AddNode/AddEdge calls.
	StateBuilding State = iota

	// StateReadOnly indicates the CFG is frozen and read-only.
	StateReadOnly
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// Node represents a basic block in the control-flow graph.
//
// The ID is the stable identity used by every analysis map; the Label is
// opaque display text (typically a rendering of the block's contents) used
// only by exporters.
type Node struct {
	// ID is the unique, caller-stable identifier for the block.
	ID string

	// Label is an optional human-readable rendering of the block.
	Label string
}

// Options configures CFG behavior and limits.
type Options struct {
	// MaxNodes is the maximum number of nodes the CFG can hold.
	// Default: 1,000,000
	MaxNodes int

	// MaxEdges is the maximum number of edges the CFG can hold.
	// Default: 10,000,000
	MaxEdges int
}

// DefaultOptions returns sensible defaults for CFG configuration.
func DefaultOptions() Options {
	return Options{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// Option is a functional option for configuring a CFG.
type Option func(*Options)

// WithMaxNodes sets the maximum number of nodes the CFG can hold.
func WithMaxNodes(n int) Option {
	return func(o *Options) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the CFG can hold.
func WithMaxEdges(n int) Option {
	return func(o *Options) {
		o.MaxEdges = n
	}
}

// CFG represents the control-flow graph of a single procedure.
//
// Thread Safety:
//
//	CFG is NOT safe for concurrent use during building. It is designed
//	for single-writer access during build, then read-only after Freeze().
//	After Freeze() is called, the CFG can be safely read from multiple
//	goroutines, but no further modifications are allowed.
//
// Lifecycle:
//
//  1. Create with New()
//  2. Build with AddNode() and AddEdge() calls
//  3. Call Freeze() to finalize
//  4. Query with Nodes(), Successors(), etc.
type CFG struct {
	// nodes maps node ID to Node. Unexported to prevent direct access.
	nodes map[string]*Node

	// order preserves node insertion order for construction-stable
	// iteration.
	order []string

	// succs maps node ID to its ordered successor IDs. The successor
	// relation is a set: parallel edges between the same pair collapse
	// into one entry. Self-loops are preserved.
	succs map[string][]string

	// preds maps node ID to its ordered predecessor IDs.
	preds map[string][]string

	// edgeCount is the number of distinct (tail, head) pairs.
	edgeCount int

	// state is the current lifecycle state.
	state State

	// options contains configuration.
	options Options
}

// New creates a new empty CFG.
//
// Description:
//
//	Creates a CFG in the Building state, ready to accept AddNode and
//	AddEdge calls. The CFG must be frozen with Freeze() before being
//	handed to any analysis.
//
// Example:
//
//	// Default options
//	g := cfg.New()
//
//	// Custom limits
//	g := cfg.New(cfg.WithMaxNodes(10_000))
func New(opts ...Option) *CFG {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &CFG{
		nodes:   make(map[string]*Node),
		succs:   make(map[string][]string),
		preds:   make(map[string][]string),
		state:   StateBuilding,
		options: options,
	}
}

// State returns the current lifecycle state of the CFG.
func (g *CFG) State() State {
	return g.state
}

// IsFrozen returns true if the CFG is in read-only mode.
func (g *CFG) IsFrozen() bool {
	return g.state == StateReadOnly
}

// Freeze transitions the CFG to read-only mode.
//
// After calling Freeze(), AddNode and AddEdge will return ErrFrozen.
// This operation is irreversible.
//
// Thread Safety: after Freeze() returns, the CFG can be safely read from
// multiple goroutines concurrently.
func (g *CFG) Freeze() {
	g.state = StateReadOnly
}

// AddNode adds a basic block to the CFG.
//
// Description:
//
//	Registers a node under its ID. A node must be added before any edge
//	referencing it.
//
// Inputs:
//
//   - id: Unique block identifier. Must be non-empty.
//   - label: Optional display text for exporters. May be empty.
//
// Outputs:
//
//   - error: ErrFrozen, ErrInvalidNode, ErrDuplicateNode, or
//     ErrMaxNodesExceeded. Nil on success.
func (g *CFG) AddNode(id, label string) error {
	if g.state == StateReadOnly {
		return ErrFrozen
	}
	if id == "" {
		return fmt.Errorf("%w: empty ID", ErrInvalidNode)
	}
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	if len(g.nodes) >= g.options.MaxNodes {
		return ErrMaxNodesExceeded
	}

	g.nodes[id] = &Node{ID: id, Label: label}
	g.order = append(g.order, id)
	return nil
}

// AddEdge adds a directed control-flow edge tail→head.
//
// Description:
//
//	Records that control may transfer from tail to head. Both nodes must
//	already exist. Adding the same edge twice is a no-op: the successor
//	relation is a set. Self-loop edges (tail == head) are legal and
//	preserved; they are what later captures loop-carried control
//	dependence.
//
// Inputs:
//
//   - tail, head: IDs of existing nodes.
//
// Outputs:
//
//   - error: ErrFrozen, ErrNodeNotFound, or ErrMaxEdgesExceeded.
//     Nil on success (including the duplicate no-op case).
func (g *CFG) AddEdge(tail, head string) error {
	if g.state == StateReadOnly {
		return ErrFrozen
	}
	if _, ok := g.nodes[tail]; !ok {
		return fmt.Errorf("%w: tail %s", ErrNodeNotFound, tail)
	}
	if _, ok := g.nodes[head]; !ok {
		return fmt.Errorf("%w: head %s", ErrNodeNotFound, head)
	}

	// Collapse parallel edges.
	for _, s := range g.succs[tail] {
		if s == head {
			return nil
		}
	}

	if g.edgeCount >= g.options.MaxEdges {
		return ErrMaxEdgesExceeded
	}

	g.succs[tail] = append(g.succs[tail], head)
	g.preds[head] = append(g.preds[head], tail)
	g.edgeCount++
	return nil
}

// Nodes returns all nodes in insertion order.
//
// The returned slice is freshly allocated; callers may not rely on
// mutating it to affect the CFG.
func (g *CFG) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// GetNode returns the node with the given ID, if present.
func (g *CFG) GetNode(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode returns true if a node with the given ID exists.
func (g *CFG) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Successors returns the ordered successor IDs of a node.
//
// Returns nil for exit blocks and for unknown IDs. The returned slice is
// owned by the CFG and must not be modified.
func (g *CFG) Successors(id string) []string {
	return g.succs[id]
}

// Predecessors returns the ordered predecessor IDs of a node.
//
// The returned slice is owned by the CFG and must not be modified.
func (g *CFG) Predecessors(id string) []string {
	return g.preds[id]
}

// ExitNodes returns the IDs of nodes with no successors, in insertion
// order. These are the procedure's natural exit blocks.
func (g *CFG) ExitNodes() []string {
	exits := make([]string, 0)
	for _, id := range g.order {
		if len(g.succs[id]) == 0 {
			exits = append(exits, id)
		}
	}
	return exits
}

// NodeCount returns the number of nodes in the CFG.
func (g *CFG) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges in the CFG.
func (g *CFG) EdgeCount() int {
	return g.edgeCount
}
