// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package postdom

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/depscope/depscope/services/depcheck/cfg"
	"github.com/depscope/depscope/services/depcheck/telemetry"
)

var builderTracer = otel.Tracer("depcheck.postdom")

// VirtualExitID is the sentinel ID for the virtual exit node used when
// normalizing CFGs with multiple exits. It never appears in a built Tree.
const VirtualExitID = "__virtual_exit__"

// DefaultMaxIterations caps convergence iterations of the fixed-point
// dominance computation.
const DefaultMaxIterations = 100

// BuildOptions configures tree construction.
type BuildOptions struct {
	// Exit pins the exit block explicitly. Empty means auto-detect
	// (nodes with no successors).
	Exit string

	// VirtualExit controls multi-exit normalization. When true (default),
	// CFGs with several exits are analyzed through a virtual exit node
	// that is filtered from the result. When false, multi-exit CFGs are
	// rejected with ErrMultipleExits.
	VirtualExit bool
}

// DefaultBuildOptions returns the defaults used by Build.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{VirtualExit: true}
}

// BuildOption is a functional option for Build.
type BuildOption func(*BuildOptions)

// WithExit pins the exit block instead of auto-detecting it.
func WithExit(id string) BuildOption {
	return func(o *BuildOptions) {
		o.Exit = id
	}
}

// WithVirtualExit enables or disables multi-exit normalization.
func WithVirtualExit(enabled bool) BuildOption {
	return func(o *BuildOptions) {
		o.VirtualExit = enabled
	}
}

// Build computes the post-dominator tree of a CFG.
//
// Description:
//
//	Runs the iterative data-flow approach from "A Simple, Fast Dominance
//	Algorithm" by Cooper, Harvey, and Kennedy (2001) on the reversed
//	graph. A node Y post-dominates X if every path from X to the
//	procedure's exit passes through Y.
//
//	With no explicit exit, exit blocks are auto-detected (no outgoing
//	edges). Multiple exits are normalized through a virtual exit node by
//	default; the virtual node is filtered from the result and each real
//	exit becomes a tree root, making the result a forest.
//
// Inputs:
//
//   - ctx: Context for cancellation. Checked every iteration.
//   - g: Frozen CFG. Must not be nil.
//   - opts: Optional configuration.
//
// Outputs:
//
//   - *Tree: The immutable post-dominator tree. Nil on error.
//   - error: ErrNilCFG, ErrNoExit, ErrExitNotFound, ErrMultipleExits,
//     or ctx.Err().
//
// Example:
//
//	tree, err := postdom.Build(ctx, g)
//	if err != nil {
//	    return fmt.Errorf("post-dominators: %w", err)
//	}
//	parent, ok := tree.Parent("header")
//
// Limitations:
//
//   - Nodes that cannot reach any exit are absent from the tree.
//
// Assumptions:
//
//   - The CFG is frozen and not mutated for the duration of the call.
//
// Thread Safety: Safe for concurrent use (read-only on g).
//
// Complexity: O(E) typical, O(V²) worst case for irreducible graphs.
func Build(ctx context.Context, g *cfg.CFG, opts ...BuildOption) (*Tree, error) {
	if g == nil {
		return nil, ErrNilCFG
	}

	options := DefaultBuildOptions()
	for _, opt := range opts {
		opt(&options)
	}

	startTime := time.Now()

	ctx, span := builderTracer.Start(ctx, "postdom.Build",
		trace.WithAttributes(
			attribute.String("exit", options.Exit),
			attribute.Int("node_count", g.NodeCount()),
			attribute.Int("edge_count", g.EdgeCount()),
		),
	)
	defer span.End()

	if ctx.Err() != nil {
		span.AddEvent("context_cancelled_early")
		return nil, ctx.Err()
	}

	// Resolve the exit set.
	var exits []string
	if options.Exit != "" {
		if !g.HasNode(options.Exit) {
			span.AddEvent("exit_not_found")
			return nil, fmt.Errorf("%w: %s", ErrExitNotFound, options.Exit)
		}
		exits = []string{options.Exit}
	} else {
		exits = g.ExitNodes()
		span.AddEvent("exit_detection", trace.WithAttributes(
			attribute.Int("exits_found", len(exits)),
		))
		if len(exits) == 0 {
			telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("postdom: no exit nodes (all nodes have successors)")
			return nil, ErrNoExit
		}
	}

	root := exits[0]
	usedVirtualExit := false
	if len(exits) > 1 {
		if !options.VirtualExit {
			telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("postdom: multiple exits rejected",
				slog.Int("exits", len(exits)),
			)
			return nil, fmt.Errorf("%w: %d exits", ErrMultipleExits, len(exits))
		}
		root = VirtualExitID
		usedVirtualExit = true
		span.AddEvent("virtual_exit_created", trace.WithAttributes(
			attribute.Int("real_exits", len(exits)),
		))
	}

	// Postorder over the reversed graph: from a node, the reversed
	// successors are its CFG predecessors; the virtual exit's reversed
	// successors are the real exits.
	postOrder := reversedPostorder(g, root, exits, usedVirtualExit)
	if len(postOrder) == 0 {
		span.AddEvent("no_reachable_nodes")
		return FromParents(nil)
	}

	postOrderIndex := make(map[string]int, len(postOrder))
	for i, id := range postOrder {
		postOrderIndex[id] = i
	}

	span.AddEvent("postorder_complete", trace.WithAttributes(
		attribute.Int("reachable_nodes", len(postOrder)),
	))

	// Predecessors in the reversed graph are CFG successors; real exits
	// additionally follow the virtual exit.
	reachable := make(map[string]bool, len(postOrder))
	for _, id := range postOrder {
		reachable[id] = true
	}
	predecessors := make(map[string][]string, len(postOrder))
	for _, id := range postOrder {
		if id == VirtualExitID {
			continue
		}
		for _, s := range g.Successors(id) {
			if reachable[s] {
				predecessors[id] = append(predecessors[id], s)
			}
		}
	}
	if usedVirtualExit {
		for _, e := range exits {
			predecessors[e] = append(predecessors[e], VirtualExitID)
		}
	}

	idom := make(map[string]string, len(postOrder))
	idom[root] = root

	intersect := func(b1, b2 string) string {
		for b1 != b2 {
			for postOrderIndex[b1] < postOrderIndex[b2] {
				b1 = idom[b1]
			}
			for postOrderIndex[b2] < postOrderIndex[b1] {
				b2 = idom[b2]
			}
		}
		return b1
	}

	// Iterative fixed-point algorithm.
	changed := true
	iterations := 0
	for changed && iterations < DefaultMaxIterations {
		if ctx.Err() != nil {
			span.AddEvent("context_cancelled", trace.WithAttributes(
				attribute.Int("iteration", iterations),
			))
			return nil, ctx.Err()
		}

		changed = false
		iterations++

		// Process in reverse postorder, skipping the root.
		for i := len(postOrder) - 1; i >= 0; i-- {
			nodeID := postOrder[i]
			if nodeID == root {
				continue
			}

			preds := predecessors[nodeID]
			if len(preds) == 0 {
				continue
			}

			var newIdom string
			for _, pred := range preds {
				if _, ok := idom[pred]; ok {
					newIdom = pred
					break
				}
			}
			if newIdom == "" {
				continue
			}

			for _, pred := range preds {
				if pred == newIdom {
					continue
				}
				if _, ok := idom[pred]; ok {
					newIdom = intersect(pred, newIdom)
				}
			}

			if old, ok := idom[nodeID]; !ok || old != newIdom {
				idom[nodeID] = newIdom
				changed = true
			}
		}

		telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("postdom: iteration complete",
			slog.Int("iteration", iterations),
			slog.Bool("changed", changed),
		)
	}

	if changed {
		telemetry.LoggerWithTrace(ctx, slog.Default()).Warn("postdom: did not converge",
			slog.Int("iterations", iterations),
			slog.Int("max_iterations", DefaultMaxIterations),
		)
	}

	// Filter the virtual exit. Real exits become tree roots, and so does
	// any interior node whose paths diverge to distinct real exits (its
	// only post-dominator was the virtual node).
	if usedVirtualExit {
		delete(idom, VirtualExitID)
		for node, p := range idom {
			if p == VirtualExitID {
				idom[node] = node
			}
		}
	}

	tree, err := FromParents(idom)
	if err != nil {
		return nil, fmt.Errorf("assemble tree: %w", err)
	}

	// Deterministic root order: prefer CFG exit order over the
	// lexicographic order FromParents picks.
	if len(tree.roots) > 0 {
		ordered := make([]string, 0, len(tree.roots))
		seen := make(map[string]bool, len(tree.roots))
		for _, e := range exits {
			if tree.Contains(e) && tree.parent[e] == e && !seen[e] {
				ordered = append(ordered, e)
				seen[e] = true
			}
		}
		for _, r := range tree.roots {
			if !seen[r] {
				ordered = append(ordered, r)
				seen[r] = true
			}
		}
		tree.roots = ordered
		tree.root = ordered[0]
	}

	span.AddEvent("algorithm_complete", trace.WithAttributes(
		attribute.Int("iterations", iterations),
		attribute.Bool("converged", !changed),
		attribute.Int("reachable_nodes", tree.Len()),
		attribute.Bool("used_virtual_exit", usedVirtualExit),
	))

	telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("postdom: analysis complete",
		slog.String("root", tree.Root()),
		slog.Int("iterations", iterations),
		slog.Int("reachable_nodes", tree.Len()),
		slog.Bool("virtual_exit", usedVirtualExit),
		slog.Duration("duration", time.Since(startTime)),
	)

	return tree, nil
}

// reversedPostorder computes postorder over the reversed graph via
// iterative DFS from the root (exit or virtual exit).
func reversedPostorder(g *cfg.CFG, root string, exits []string, virtual bool) []string {
	succs := func(id string) []string {
		if virtual && id == VirtualExitID {
			return exits
		}
		return g.Predecessors(id)
	}

	visited := make(map[string]bool, g.NodeCount()+1)
	postOrder := make([]string, 0, g.NodeCount()+1)

	type frame struct {
		nodeID   string
		childIdx int
	}

	stack := []frame{{nodeID: root}}
	visited[root] = true

	for len(stack) > 0 {
		current := &stack[len(stack)-1]

		children := succs(current.nodeID)
		advanced := false
		for current.childIdx < len(children) {
			child := children[current.childIdx]
			current.childIdx++
			if !visited[child] {
				visited[child] = true
				stack = append(stack, frame{nodeID: child})
				advanced = true
				break
			}
		}

		if !advanced {
			postOrder = append(postOrder, current.nodeID)
			stack = stack[:len(stack)-1]
		}
	}

	return postOrder
}
