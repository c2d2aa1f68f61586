// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/depscope/depscope/services/depcheck/cfg"
	"github.com/depscope/depscope/services/depcheck/postdom"
	"github.com/depscope/depscope/services/depcheck/telemetry"
)

var analyzeTracer = otel.Tracer("depcheck.control")

// propagateContextCheckInterval is how often the edge loop checks for
// context cancellation.
const propagateContextCheckInterval = 100

// Analyze builds the control-dependence graph for one procedure.
//
// Description:
//
//	Classifies the CFG's edges against the post-dominance oracle, then,
//	for each candidate edge (A,B), walks backward from B in the
//	post-dominator tree until reaching A's parent, marking every visited
//	node as control-dependent on A. When A has no parent (it
//	post-dominates the whole procedure) the walk runs past the tree root
//	instead. The walk realizes both Ferrante-Ottenstein-Warren cases
//	without branching: L = parent(A) covers B up to (excluding) the
//	parent, and L = A — the loop case — covers A through B inclusive,
//	because the ascent from B passes A before reaching A's parent.
//
//	Candidate edges with an endpoint missing from the post-dominator
//	tree (unreachable from every exit) have no common ancestor to bound
//	the walk; they are skipped with a diagnostic. Partial failure never
//	aborts the construction.
//
// Inputs:
//
//   - ctx: Context for cancellation. Checked periodically during the
//     edge loop.
//   - g: Frozen CFG. Must not be nil and must remain valid for the call.
//   - tree: Post-dominator tree over the same nodes. Borrowed read-only;
//     must not be nil.
//
// Outputs:
//
//   - *Result: The control-dependence graph with construction counters
//     and diagnostics. Never nil, even on cancellation (partial result).
//   - error: ErrNilCFG, ErrNilTree, or ctx.Err().
//
// Example:
//
//	tree, err := postdom.Build(ctx, g)
//	if err != nil {
//	    return err
//	}
//	result, err := control.Analyze(ctx, g, tree)
//	if err != nil {
//	    return err
//	}
//	// What does the loop header govern?
//	governed := result.Dependents("header")
//	// What governs the body?
//	controllers := result.Dependencies("body")
//
// Limitations:
//
//   - Processing order of candidate edges never affects the final
//     mapping; each edge's contribution is an independent set union.
//   - Memory: O(D) where D is the number of (tail, dependent) pairs.
//
// Assumptions:
//
//   - Node IDs are stable and comparable for the duration of the call.
//   - The tree was computed over this CFG snapshot.
//
// Thread Safety: Safe for concurrent use across procedures; within one
// call the only mutable state is the result being built.
//
// Complexity: O(|S| × depth), |S| bounded by the CFG edge count.
func Analyze(ctx context.Context, g *cfg.CFG, tree *postdom.Tree, opts ...Option) (*Result, error) {
	result := &Result{
		AnalysisID: uuid.NewString(),
		Store:      newStore(),
	}

	if g == nil {
		result.Store.freeze()
		return result, ErrNilCFG
	}
	if tree == nil {
		result.Store.freeze()
		return result, ErrNilTree
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	startTime := time.Now()

	ctx, span := analyzeTracer.Start(ctx, "control.Analyze",
		trace.WithAttributes(
			attribute.String("analysis_id", result.AnalysisID),
			attribute.Int("node_count", g.NodeCount()),
			attribute.Int("edge_count", g.EdgeCount()),
		),
	)
	defer span.End()

	result.NodeCount = g.NodeCount()
	result.EdgeCount = g.EdgeCount()

	if ctx.Err() != nil {
		span.AddEvent("context_cancelled_early")
		result.Store.freeze()
		return result, ctx.Err()
	}

	// Classifier: build S.
	edges := Classify(g, tree)
	result.Candidates = len(edges)

	span.AddEvent("classification_complete", trace.WithAttributes(
		attribute.Int("candidate_edges", len(edges)),
	))
	telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("control: edges classified",
		slog.String("analysis_id", result.AnalysisID),
		slog.Int("candidates", len(edges)),
	)

	// Propagator: one LCA-bounded backward walk per candidate edge.
	maxChainLength := options.MaxWalkLength
	if maxChainLength <= 0 {
		maxChainLength = tree.Len() + 1
	}
	for i, edge := range edges {
		if (i+1)%propagateContextCheckInterval == 0 {
			if ctx.Err() != nil {
				span.AddEvent("context_cancelled", trace.WithAttributes(
					attribute.Int("edges_processed", i),
				))
				telemetry.LoggerWithTrace(ctx, slog.Default()).Info("control: context cancelled",
					slog.String("analysis_id", result.AnalysisID),
					slog.Int("edges_processed", i),
				)
				finalize(ctx, result, span, startTime, false)
				return result, ctx.Err()
			}
		}

		// An endpoint outside the tree cannot reach any exit; there is
		// no ancestor to bound the walk. Multi-exit forests are fine:
		// distinct components share the implicit virtual exit, and the
		// walk below simply runs to the component root.
		if !tree.Contains(edge.Tail) || !tree.Contains(edge.Head) {
			diag := &MissingAncestorError{Tail: edge.Tail, Head: edge.Head}
			result.Diagnostics = append(result.Diagnostics, diag)
			result.Skipped++
			telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("control: skipping edge without common ancestor",
				slog.String("analysis_id", result.AnalysisID),
				slog.String("tail", edge.Tail),
				slog.String("head", edge.Head),
			)
			continue
		}

		parent, hasParent := tree.Parent(edge.Tail)

		// Walk from the head up the tree to the tail's parent. With no
		// parent the walk runs through the root and stops once it steps
		// past it.
		cur := edge.Head
		walking := true
		for chainLength := 0; walking; chainLength++ {
			if chainLength >= maxChainLength {
				telemetry.LoggerWithTrace(ctx, slog.Default()).Warn("control: tree walk exceeded max length",
					slog.String("analysis_id", result.AnalysisID),
					slog.String("tail", edge.Tail),
					slog.String("head", edge.Head),
					slog.Int("chain_length", chainLength),
				)
				break
			}

			result.Store.insert(edge.Tail, cur)

			next, ok := tree.Parent(cur)
			switch {
			case ok && hasParent && next == parent:
				walking = false
			case ok:
				cur = next
			case hasParent:
				// The tail has a parent the walk never met; the oracle
				// and CFG disagree. Stop rather than loop.
				telemetry.LoggerWithTrace(ctx, slog.Default()).Warn("control: walk passed the root before the tail's parent",
					slog.String("analysis_id", result.AnalysisID),
					slog.String("tail", edge.Tail),
					slog.String("head", edge.Head),
				)
				walking = false
			default:
				// cur is the root and the tail has no parent: the root
				// has been recorded, the walk is complete.
				walking = false
			}
		}
	}

	result.Store.freeze()
	finalize(ctx, result, span, startTime, true)
	return result, nil
}

// finalize computes result statistics and emits the closing telemetry.
func finalize(ctx context.Context, result *Result, span trace.Span, startTime time.Time, success bool) {
	if !result.Store.frozen {
		result.Store.freeze()
	}

	result.NodesWithDependents = result.Store.Len()
	for _, tail := range result.Store.tails {
		if n := len(result.Store.order[tail]); n > result.MaxDependents {
			result.MaxDependents = n
		}
	}

	duration := time.Since(startTime)
	recordAnalyzeMetrics(ctx, duration, result.Candidates, result.Skipped, success)

	span.AddEvent("construction_complete", trace.WithAttributes(
		attribute.Int("dependence_pairs", result.Store.EdgeCount()),
		attribute.Int("controllers", result.NodesWithDependents),
		attribute.Int("skipped_edges", result.Skipped),
		attribute.Int("max_dependents", result.MaxDependents),
	))

	telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("control: construction complete",
		slog.String("analysis_id", result.AnalysisID),
		slog.Int("candidates", result.Candidates),
		slog.Int("controllers", result.NodesWithDependents),
		slog.Int("skipped", result.Skipped),
		slog.Duration("duration", duration),
	)
}

// Options configures Analyze.
type Options struct {
	// MaxWalkLength bounds a single backward tree walk. Zero means the
	// tree size plus one, which any well-formed tree stays under.
	MaxWalkLength int
}

func defaultOptions() Options {
	return Options{}
}

// Option is a functional option for Analyze.
type Option func(*Options)

// WithMaxWalkLength overrides the per-edge walk bound. Useful for
// capping pathological inputs; walks that hit the bound log a warning
// and stop.
func WithMaxWalkLength(n int) Option {
	return func(o *Options) {
		o.MaxWalkLength = n
	}
}
