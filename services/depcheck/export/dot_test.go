// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/depscope/depscope/services/depcheck/cfg"
	"github.com/depscope/depscope/services/depcheck/control"
	"github.com/depscope/depscope/services/depcheck/postdom"
)

// buildStore runs the full pipeline over a small diamond CFG and
// returns the frozen dependence store.
func buildStore(t *testing.T) *control.Store {
	t.Helper()

	g := cfg.New()
	for _, id := range []string{"cond", "then", "else", "merge"} {
		if err := g.AddNode(id, id); err != nil {
			t.Fatalf("add node %s: %v", id, err)
		}
	}
	for _, e := range [][2]string{
		{"cond", "then"},
		{"cond", "else"},
		{"then", "merge"},
		{"else", "merge"},
	} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}
	g.Freeze()

	ctx := context.Background()
	tree, err := postdom.Build(ctx, g)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	result, err := control.Analyze(ctx, g, tree)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return result.Store
}

func TestWriteDOT_Diamond(t *testing.T) {
	store := buildStore(t)

	var sb strings.Builder
	if err := WriteDOT(&sb, "branch_deps", store, nil); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	out := sb.String()

	if !strings.HasPrefix(out, "digraph \"branch_deps\" {") {
		t.Errorf("expected digraph header, got %q", out[:40])
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Error("expected closing brace")
	}

	// One declaration per referenced node.
	for _, id := range []string{"cond", "then", "else"} {
		decl := "\"" + id + "\" [label=\"" + id + "\"];"
		if strings.Count(out, decl) != 1 {
			t.Errorf("expected exactly one declaration of %s, got output:\n%s", id, out)
		}
	}
	// merge is never referenced by the dependence graph.
	if strings.Contains(out, "merge") {
		t.Errorf("unexpected unreferenced node in output:\n%s", out)
	}

	// One edge per dependence pair.
	for _, edge := range []string{
		"\"cond\" -> \"then\";",
		"\"cond\" -> \"else\";",
	} {
		if strings.Count(out, edge) != 1 {
			t.Errorf("expected edge %s exactly once, got output:\n%s", edge, out)
		}
	}
}

func TestWriteDOT_Deterministic(t *testing.T) {
	store := buildStore(t)

	var a, b strings.Builder
	if err := WriteDOT(&a, "g", store, nil); err != nil {
		t.Fatalf("first render: %v", err)
	}
	if err := WriteDOT(&b, "g", store, nil); err != nil {
		t.Fatalf("second render: %v", err)
	}
	if a.String() != b.String() {
		t.Error("expected byte-identical output across renders")
	}
}

func TestWriteDOT_LabelCallback(t *testing.T) {
	store := buildStore(t)

	opts := DefaultOptions()
	opts.Labels = func(id string) string {
		return "bb:" + id
	}

	var sb strings.Builder
	if err := WriteDOT(&sb, "g", store, &opts); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	if !strings.Contains(sb.String(), "[label=\"bb:cond\"]") {
		t.Errorf("expected callback label, got:\n%s", sb.String())
	}
}

func TestWriteDOT_Escaping(t *testing.T) {
	store := buildStore(t)

	opts := DefaultOptions()
	opts.Labels = func(id string) string {
		return "line1\nsays \"" + id + "\""
	}

	var sb strings.Builder
	if err := WriteDOT(&sb, "quoted \"name\"", store, &opts); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	out := sb.String()

	if !strings.Contains(out, "digraph \"quoted \\\"name\\\"\"") {
		t.Errorf("expected escaped digraph name, got:\n%s", out)
	}
	if !strings.Contains(out, "line1\\nsays \\\"cond\\\"") {
		t.Errorf("expected escaped label, got:\n%s", out)
	}
}

func TestWriteDOT_NilStore(t *testing.T) {
	var sb strings.Builder
	if err := WriteDOT(&sb, "g", nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

// failWriter fails every write.
type failWriter struct{}

var errSink = errors.New("sink closed")

func (failWriter) Write(p []byte) (int, error) {
	return 0, errSink
}

func TestWriteDOT_WriteError(t *testing.T) {
	store := buildStore(t)

	err := WriteDOT(failWriter{}, "g", store, nil)
	if !errors.Is(err, errSink) {
		t.Errorf("expected write error surfaced, got %v", err)
	}
}

func TestWriteDOT_MaxNodes(t *testing.T) {
	store := buildStore(t)

	opts := DefaultOptions()
	opts.MaxNodes = 1

	var sb strings.Builder
	if err := WriteDOT(&sb, "g", store, &opts); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	out := sb.String()

	if !strings.Contains(out, "__overflow__ [label=\"+2 more\"") {
		t.Errorf("expected truncation marker, got:\n%s", out)
	}
	// Edges to undeclared nodes are suppressed.
	if strings.Contains(out, "->") {
		t.Errorf("expected no edges when endpoints undeclared, got:\n%s", out)
	}
}

func TestWriteDOT_TruncationMarkerDistinctFromNodeIDs(t *testing.T) {
	// A block may legitimately be named "overflow". DOT treats quoted
	// and unquoted spellings of an identifier as the same node, so the
	// truncation marker must use a name no sanitized block ID can take.
	g := cfg.New()
	for _, id := range []string{"cond", "overflow", "x1", "merge"} {
		if err := g.AddNode(id, id); err != nil {
			t.Fatalf("add node %s: %v", id, err)
		}
	}
	for _, e := range [][2]string{
		{"cond", "overflow"},
		{"cond", "x1"},
		{"overflow", "merge"},
		{"x1", "merge"},
	} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}
	g.Freeze()

	ctx := context.Background()
	tree, err := postdom.Build(ctx, g)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	result, err := control.Analyze(ctx, g, tree)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	// Referenced nodes sort as cond, overflow, x1; a cap of 2 declares
	// the real "overflow" node and truncates x1 behind the marker.
	opts := DefaultOptions()
	opts.MaxNodes = 2

	var sb strings.Builder
	if err := WriteDOT(&sb, "g", result.Store, &opts); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	out := sb.String()

	if strings.Count(out, "\"overflow\" [label=\"overflow\"];") != 1 {
		t.Errorf("expected the real overflow node declared once, got:\n%s", out)
	}
	if strings.Count(out, "__overflow__ [label=\"+1 more\"") != 1 {
		t.Errorf("expected a distinct truncation marker, got:\n%s", out)
	}
	if !strings.Contains(out, "\"cond\" -> \"overflow\";") {
		t.Errorf("expected edge to the real overflow node, got:\n%s", out)
	}
}
