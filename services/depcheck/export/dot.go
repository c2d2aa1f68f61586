// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export renders control-dependence graphs to Graphviz DOT.
//
// Rendering is a read-only view over a frozen control.Store; export
// failure never affects the computed graph. Output is deterministic:
// nodes and edges are emitted in sorted order regardless of map
// iteration.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/depscope/depscope/services/depcheck/control"
)

// Options configures DOT rendering.
type Options struct {
	// Direction is the graph direction (TB, LR, BT, RL).
	// Default: "TB"
	Direction string

	// MaxNodes limits the number of declared nodes in the output.
	// Default: 1000
	MaxNodes int

	// Labels maps a node ID to its display label. Nil means the ID is
	// the label.
	Labels func(id string) string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Direction: "TB",
		MaxNodes:  1000,
	}
}

// WriteDOT renders the control-dependence graph as a Graphviz digraph.
//
// Description:
//
//	Emits one node declaration per distinct node referenced by the
//	store (as a tail or as a dependent) and one edge per
//	(tail, dependent) pair, tail first. Node declarations and edges
//	are sorted lexicographically, so equal stores render byte-equal
//	output. Labels come from opts.Labels when set, otherwise the node
//	ID; quotes and newlines are escaped.
//
// Inputs:
//
//   - w: Destination writer. Write errors abort rendering and are
//     returned as-is.
//   - name: The digraph name. Escaped like a label.
//   - store: The frozen dependence store. Must not be nil.
//   - opts: Rendering options; nil means DefaultOptions.
//
// Outputs:
//
//   - error: The first write error, or nil.
//
// Thread Safety: Safe for concurrent use with distinct writers.
func WriteDOT(w io.Writer, name string, store *control.Store, opts *Options) error {
	if store == nil {
		return fmt.Errorf("export: store is required")
	}

	options := DefaultOptions()
	if opts != nil {
		options = *opts
		if options.Direction == "" {
			options.Direction = "TB"
		}
		if options.MaxNodes <= 0 {
			options.MaxNodes = DefaultOptions().MaxNodes
		}
	}

	label := options.Labels
	if label == nil {
		label = func(id string) string { return id }
	}

	// Collect every referenced node once.
	seen := make(map[string]struct{})
	var nodes []string
	type edge struct{ tail, head string }
	var edges []edge

	store.Each(func(tail string, dependents []string) {
		if _, ok := seen[tail]; !ok {
			seen[tail] = struct{}{}
			nodes = append(nodes, tail)
		}
		for _, dep := range dependents {
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				nodes = append(nodes, dep)
			}
			edges = append(edges, edge{tail: tail, head: dep})
		}
	})

	sort.Strings(nodes)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].tail != edges[j].tail {
			return edges[i].tail < edges[j].tail
		}
		return edges[i].head < edges[j].head
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("digraph \"%s\" {\n", escapeDOTLabel(name)))
	sb.WriteString(fmt.Sprintf("    rankdir=%s;\n", options.Direction))
	sb.WriteString("    node [shape=box, style=filled, fillcolor=\"#74b9ff\"];\n")
	sb.WriteString("\n")

	for i, id := range nodes {
		if i >= options.MaxNodes {
			// The marker name must not collide with any declared node;
			// DOT treats the quoted and unquoted spellings of an
			// identifier as the same node.
			sb.WriteString(fmt.Sprintf("    __overflow__ [label=\"+%d more\", shape=plaintext];\n", len(nodes)-i))
			break
		}
		sb.WriteString(fmt.Sprintf("    %s [label=\"%s\"];\n",
			sanitizeDOTID(id), escapeDOTLabel(label(id))))
	}

	sb.WriteString("\n")

	declared := len(nodes)
	if declared > options.MaxNodes {
		declared = options.MaxNodes
	}
	declaredSet := make(map[string]struct{}, declared)
	for _, id := range nodes[:declared] {
		declaredSet[id] = struct{}{}
	}

	for _, e := range edges {
		if _, ok := declaredSet[e.tail]; !ok {
			continue
		}
		if _, ok := declaredSet[e.head]; !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s -> %s;\n",
			sanitizeDOTID(e.tail), sanitizeDOTID(e.head)))
	}

	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func sanitizeDOTID(s string) string {
	// DOT IDs can be quoted
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(s, "\"", "\\\""))
}

func escapeDOTLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "\\\"",
		"\n", "\\n",
	)
	return replacer.Replace(s)
}
