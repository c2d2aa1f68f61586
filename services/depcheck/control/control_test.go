// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package control

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/depscope/depscope/services/depcheck/cfg"
	"github.com/depscope/depscope/services/depcheck/postdom"
)

// buildGraph creates a frozen CFG from node IDs and edges.
func buildGraph(t *testing.T, nodeIDs []string, edges [][2]string) *cfg.CFG {
	t.Helper()

	g := cfg.New()
	for _, id := range nodeIDs {
		if err := g.AddNode(id, id); err != nil {
			t.Fatalf("failed to add node %s: %v", id, err)
		}
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			t.Fatalf("failed to add edge %s -> %s: %v", edge[0], edge[1], err)
		}
	}
	g.Freeze()
	return g
}

// analyze builds the post-dominator tree and the control-dependence
// graph, failing the test on any error.
func analyze(t *testing.T, g *cfg.CFG, opts ...postdom.BuildOption) *Result {
	t.Helper()

	ctx := context.Background()
	tree, err := postdom.Build(ctx, g, opts...)
	if err != nil {
		t.Fatalf("failed to build post-dominator tree: %v", err)
	}
	result, err := Analyze(ctx, g, tree)
	if err != nil {
		t.Fatalf("failed to analyze control dependence: %v", err)
	}
	return result
}

func containsStr(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}

// =============================================================================
// Analyze Algorithm Tests
// =============================================================================

func TestAnalyze_IfThenElse(t *testing.T) {
	// Classic if-then-else pattern:
	//       cond
	//      /    \
	//   then    else
	//      \    /
	//       merge
	//
	// then and else are control-dependent on cond; merge is not (it
	// always executes).
	g := buildGraph(t,
		[]string{"cond", "then", "else", "merge"},
		[][2]string{
			{"cond", "then"},
			{"cond", "else"},
			{"then", "merge"},
			{"else", "merge"},
		},
	)

	result := analyze(t, g)

	deps := result.Dependents("cond")
	if !containsStr(deps, "then") || !containsStr(deps, "else") {
		t.Errorf("expected 'cond' to control 'then' and 'else', got %v", deps)
	}
	if containsStr(deps, "merge") {
		t.Errorf("expected 'merge' independent of 'cond', got %v", deps)
	}
	if containsStr(deps, "cond") {
		t.Errorf("expected 'cond' not self-dependent in acyclic code, got %v", deps)
	}

	if !result.IsController("cond") {
		t.Error("expected 'cond' to be a controller")
	}
	if result.IsController("merge") {
		t.Error("expected 'merge' not to be a controller")
	}

	// Inverse view.
	if thenDeps := result.Dependencies("then"); !containsStr(thenDeps, "cond") {
		t.Errorf("expected 'then' dependent on 'cond', got %v", thenDeps)
	}
	if mergeDeps := result.Dependencies("merge"); len(mergeDeps) != 0 {
		t.Errorf("expected 'merge' to have no controllers, got %v", mergeDeps)
	}
}

func TestAnalyze_IfWithoutElse(t *testing.T) {
	//   cond -> then -> merge
	//   cond ----------> merge
	g := buildGraph(t,
		[]string{"cond", "then", "merge"},
		[][2]string{
			{"cond", "then"},
			{"then", "merge"},
			{"cond", "merge"},
		},
	)

	result := analyze(t, g)

	deps := result.Dependents("cond")
	if len(deps) != 1 || deps[0] != "then" {
		t.Errorf("expected exactly ['then'] dependent on 'cond', got %v", deps)
	}
}

func TestAnalyze_Linear(t *testing.T) {
	// Linear code has no control dependencies.
	g := buildGraph(t,
		[]string{"A", "B", "C", "D"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}},
	)

	result := analyze(t, g)

	if result.Store.EdgeCount() != 0 {
		t.Errorf("expected 0 control dependencies in linear code, got %d",
			result.Store.EdgeCount())
	}
	if result.Candidates != 0 {
		t.Errorf("expected 0 candidate edges, got %d", result.Candidates)
	}
}

func TestAnalyze_WhileLoop_SelfDependence(t *testing.T) {
	// Entry -> Header; Header -> Body -> Header; Header -> Exit.
	// The header governs the body AND its own re-execution: the back
	// edge makes the header control-dependent on itself.
	g := buildGraph(t,
		[]string{"Entry", "Header", "Body", "Exit"},
		[][2]string{
			{"Entry", "Header"},
			{"Header", "Body"},
			{"Body", "Header"},
			{"Header", "Exit"},
		},
	)

	result := analyze(t, g)

	deps := result.Dependents("Header")
	if !containsStr(deps, "Body") {
		t.Errorf("expected 'Body' dependent on 'Header', got %v", deps)
	}
	if !containsStr(deps, "Header") {
		t.Errorf("expected loop header control-dependent on itself, got %v", deps)
	}
	if containsStr(deps, "Exit") {
		t.Errorf("expected 'Exit' independent of 'Header', got %v", deps)
	}
}

func TestAnalyze_SingleBlockSelfLoop(t *testing.T) {
	// entry -> loop; loop -> loop; loop -> exit. The degenerate
	// one-block loop: the edge (loop, loop) qualifies because loop
	// never properly post-dominates itself, and the walk from its head
	// must still record loop as its own dependent.
	g := buildGraph(t,
		[]string{"entry", "loop", "exit"},
		[][2]string{
			{"entry", "loop"},
			{"loop", "loop"},
			{"loop", "exit"},
		},
	)

	tree, err := postdom.Build(context.Background(), g)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	edges := Classify(g, tree)
	selfEdge := false
	for _, e := range edges {
		if e.Tail == "loop" && e.Head == "loop" {
			selfEdge = true
		}
	}
	if !selfEdge {
		t.Errorf("expected candidate edge (loop, loop), got %v", edges)
	}

	result := analyze(t, g)

	deps := result.Dependents("loop")
	if !containsStr(deps, "loop") {
		t.Errorf("expected 'loop' control-dependent on itself, got %v", deps)
	}
	if containsStr(deps, "exit") {
		t.Errorf("expected 'exit' independent of 'loop', got %v", deps)
	}
}

func TestAnalyze_NestedIf(t *testing.T) {
	//   outer
	//   /    \
	// inner   oelse
	//  /  \     |
	// ithen iel  |
	//  \  /     |
	//  imerge   |
	//     \    /
	//      exit
	g := buildGraph(t,
		[]string{"outer", "inner", "oelse", "ithen", "ielse", "imerge", "exit"},
		[][2]string{
			{"outer", "inner"},
			{"outer", "oelse"},
			{"inner", "ithen"},
			{"inner", "ielse"},
			{"ithen", "imerge"},
			{"ielse", "imerge"},
			{"imerge", "exit"},
			{"oelse", "exit"},
		},
	)

	result := analyze(t, g)

	outer := result.Dependents("outer")
	for _, want := range []string{"inner", "oelse", "imerge"} {
		if !containsStr(outer, want) {
			t.Errorf("expected %q dependent on 'outer', got %v", want, outer)
		}
	}
	if containsStr(outer, "ithen") {
		t.Errorf("inner branch must depend on 'inner', not 'outer': %v", outer)
	}

	inner := result.Dependents("inner")
	if !containsStr(inner, "ithen") || !containsStr(inner, "ielse") {
		t.Errorf("expected inner branches dependent on 'inner', got %v", inner)
	}
	if containsStr(inner, "imerge") {
		t.Errorf("'imerge' always follows 'inner', got %v", inner)
	}
}

func TestAnalyze_SingleSuccessorNeverController(t *testing.T) {
	// A node with one successor makes no decision; it can never be the
	// tail of a candidate edge after unreachable code is excluded.
	g := buildGraph(t,
		[]string{"entry", "cond", "then", "else", "merge", "exit"},
		[][2]string{
			{"entry", "cond"},
			{"cond", "then"},
			{"cond", "else"},
			{"then", "merge"},
			{"else", "merge"},
			{"merge", "exit"},
		},
	)

	result := analyze(t, g)

	for _, tail := range result.Store.Tails() {
		if len(g.Successors(tail)) < 2 {
			t.Errorf("single-successor node %q must not be a controller", tail)
		}
	}
}

func TestAnalyze_MultiExit(t *testing.T) {
	// Early return: check picks between returning immediately and
	// running the body first. Both paths are governed by check.
	g := buildGraph(t,
		[]string{"entry", "check", "ret1", "body", "ret2"},
		[][2]string{
			{"entry", "check"},
			{"check", "ret1"},
			{"check", "body"},
			{"body", "ret2"},
		},
	)

	result := analyze(t, g)

	deps := result.Dependents("check")
	if !containsStr(deps, "ret1") || !containsStr(deps, "body") {
		t.Errorf("expected 'check' to control both paths, got %v", deps)
	}
}

func TestAnalyze_UnreachableBlockDiagnostic(t *testing.T) {
	// "island" never reaches the exit, so the post-dominator tree does
	// not contain it. Its outgoing candidate edge is skipped with a
	// diagnostic instead of failing the analysis.
	g := buildGraph(t,
		[]string{"A", "B", "island", "isle2"},
		[][2]string{{"A", "B"}, {"island", "isle2"}, {"isle2", "island"}},
	)

	ctx := context.Background()
	tree, err := postdom.Build(ctx, g, postdom.WithExit("B"))
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	result, err := Analyze(ctx, g, tree)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if result.Skipped == 0 {
		t.Fatal("expected skipped edges for the unreachable island")
	}
	if len(result.Diagnostics) != result.Skipped {
		t.Errorf("expected %d diagnostics, got %d", result.Skipped, len(result.Diagnostics))
	}
	diag := result.Diagnostics[0]
	if diag.Tail == "" || diag.Head == "" {
		t.Errorf("expected diagnostic to name the edge, got %+v", diag)
	}
	if diag.Error() == "" {
		t.Error("expected non-empty diagnostic message")
	}

	// The reachable part is unaffected.
	if result.IsController("island") || result.IsController("isle2") {
		t.Error("unreachable nodes must not appear as controllers")
	}
}

func TestAnalyze_NilInputs(t *testing.T) {
	g := buildGraph(t, []string{"A"}, nil)
	tree, err := postdom.Build(context.Background(), g)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	if _, err := Analyze(context.Background(), nil, tree); !errors.Is(err, ErrNilCFG) {
		t.Errorf("expected ErrNilCFG, got %v", err)
	}
	if _, err := Analyze(context.Background(), g, nil); !errors.Is(err, ErrNilTree) {
		t.Errorf("expected ErrNilTree, got %v", err)
	}
}

func TestAnalyze_CancelledContext(t *testing.T) {
	g := buildGraph(t, []string{"A", "B"}, [][2]string{{"A", "B"}})
	tree, err := postdom.Build(context.Background(), g)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Analyze(ctx, g, tree)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if result == nil {
		t.Fatal("expected partial result even on cancellation")
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	// Two runs over the same graph produce identical dependent lists.
	build := func() *Result {
		g := buildGraph(t,
			[]string{"cond", "then", "else", "merge"},
			[][2]string{
				{"cond", "then"},
				{"cond", "else"},
				{"then", "merge"},
				{"else", "merge"},
			},
		)
		return analyze(t, g)
	}

	a, b := build(), build()
	aTails, bTails := a.Store.Tails(), b.Store.Tails()
	sort.Strings(aTails)
	sort.Strings(bTails)
	if len(aTails) != len(bTails) {
		t.Fatalf("tail counts differ: %v vs %v", aTails, bTails)
	}
	for i := range aTails {
		if aTails[i] != bTails[i] {
			t.Fatalf("tails differ: %v vs %v", aTails, bTails)
		}
		aDeps := a.Store.Dependents(aTails[i])
		bDeps := b.Store.Dependents(bTails[i])
		sort.Strings(aDeps)
		sort.Strings(bDeps)
		if len(aDeps) != len(bDeps) {
			t.Fatalf("dependents differ for %s: %v vs %v", aTails[i], aDeps, bDeps)
		}
		for j := range aDeps {
			if aDeps[j] != bDeps[j] {
				t.Fatalf("dependents differ for %s: %v vs %v", aTails[i], aDeps, bDeps)
			}
		}
	}
}

// =============================================================================
// Classify Tests
// =============================================================================

func TestClassify_Diamond(t *testing.T) {
	g := buildGraph(t,
		[]string{"cond", "then", "else", "merge"},
		[][2]string{
			{"cond", "then"},
			{"cond", "else"},
			{"then", "merge"},
			{"else", "merge"},
		},
	)
	tree, err := postdom.Build(context.Background(), g)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	edges := Classify(g, tree)

	// Only the two branch edges qualify; the merge edges do not, since
	// merge post-dominates both branches.
	if len(edges) != 2 {
		t.Fatalf("expected 2 candidate edges, got %v", edges)
	}
	for _, e := range edges {
		if e.Tail != "cond" {
			t.Errorf("expected candidate tails at 'cond', got %v", e)
		}
	}
}

// =============================================================================
// Store Tests
// =============================================================================

func TestStore_InsertAfterFreezePanics(t *testing.T) {
	s := newStore()
	s.insert("a", "b")
	s.freeze()

	defer func() {
		if recover() == nil {
			t.Error("expected panic inserting into frozen store")
		}
	}()
	s.insert("a", "c")
}

func TestStore_InsertIdempotent(t *testing.T) {
	s := newStore()
	s.insert("a", "b")
	s.insert("a", "b")
	s.insert("a", "c")
	s.freeze()

	deps := s.Dependents("a")
	if len(deps) != 2 {
		t.Errorf("expected deduplicated dependents, got %v", deps)
	}
	if s.EdgeCount() != 2 {
		t.Errorf("expected 2 pairs, got %d", s.EdgeCount())
	}
}

func TestStore_DependentsCopy(t *testing.T) {
	s := newStore()
	s.insert("a", "b")
	s.freeze()

	deps := s.Dependents("a")
	deps[0] = "mutated"
	if again := s.Dependents("a"); again[0] != "b" {
		t.Error("Dependents must return a fresh copy")
	}
}

func TestStore_UnknownTail(t *testing.T) {
	s := newStore()
	s.freeze()
	deps := s.Dependents("missing")
	if deps == nil || len(deps) != 0 {
		t.Errorf("expected empty non-nil slice for unknown tail, got %#v", deps)
	}
	if s.IsController("missing") {
		t.Error("unknown tail must not be a controller")
	}
}

// =============================================================================
// Result Tests
// =============================================================================

func TestResult_DependencyChain(t *testing.T) {
	// outer governs inner; inner governs leaf. The chain from leaf
	// surfaces inner before outer (closest-first).
	g := buildGraph(t,
		[]string{"outer", "inner", "leaf", "imerge", "exit"},
		[][2]string{
			{"outer", "inner"},
			{"outer", "exit"},
			{"inner", "leaf"},
			{"inner", "imerge"},
			{"leaf", "imerge"},
			{"imerge", "exit"},
		},
	)

	result := analyze(t, g)

	chain := result.DependencyChain("leaf", 10)
	if len(chain) < 2 {
		t.Fatalf("expected chain through inner to outer, got %v", chain)
	}
	if chain[0] != "inner" {
		t.Errorf("expected closest controller first, got %v", chain)
	}
	if !containsStr(chain, "outer") {
		t.Errorf("expected transitive controller in chain, got %v", chain)
	}
}

func TestResult_DependencyChain_DepthLimit(t *testing.T) {
	g := buildGraph(t,
		[]string{"outer", "inner", "leaf", "imerge", "exit"},
		[][2]string{
			{"outer", "inner"},
			{"outer", "exit"},
			{"inner", "leaf"},
			{"inner", "imerge"},
			{"leaf", "imerge"},
			{"imerge", "exit"},
		},
	)

	result := analyze(t, g)

	chain := result.DependencyChain("leaf", 1)
	if len(chain) != 1 || chain[0] != "inner" {
		t.Errorf("expected depth-1 chain [inner], got %v", chain)
	}
}

func TestResult_Stats(t *testing.T) {
	g := buildGraph(t,
		[]string{"cond", "then", "else", "merge"},
		[][2]string{
			{"cond", "then"},
			{"cond", "else"},
			{"then", "merge"},
			{"else", "merge"},
		},
	)

	result := analyze(t, g)

	if result.AnalysisID == "" {
		t.Error("expected non-empty analysis ID")
	}
	if result.NodeCount != 4 || result.EdgeCount != 4 {
		t.Errorf("expected counts 4/4, got %d/%d", result.NodeCount, result.EdgeCount)
	}
	if result.NodesWithDependents != 1 {
		t.Errorf("expected 1 controller, got %d", result.NodesWithDependents)
	}
	if result.MaxDependents != 2 {
		t.Errorf("expected max 2 dependents, got %d", result.MaxDependents)
	}
}
