// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the depcheck analysis pipeline over HTTP.
//
// The API is stateless: each analyze request carries a complete CFG,
// and the response carries the complete control-dependence graph. No
// graph survives between requests.
package api

// NodeSpec describes one basic block in an analyze request.
type NodeSpec struct {
	// ID is the stable block identifier. Required, unique.
	ID string `json:"id" binding:"required"`

	// Label is an optional display label. Defaults to the ID.
	Label string `json:"label,omitempty"`
}

// EdgeSpec describes one control-flow edge in an analyze request.
type EdgeSpec struct {
	// From is the tail block ID.
	From string `json:"from" binding:"required"`

	// To is the head block ID.
	To string `json:"to" binding:"required"`
}

// AnalyzeRequest is the request body for POST /v1/depcheck/analyze.
type AnalyzeRequest struct {
	// Name identifies the procedure being analyzed. Used in DOT output
	// and logs.
	Name string `json:"name,omitempty"`

	// Nodes lists the basic blocks.
	Nodes []NodeSpec `json:"nodes" binding:"required"`

	// Edges lists the control-flow edges.
	Edges []EdgeSpec `json:"edges,omitempty"`

	// Exit optionally names the exit block. When empty, exits are
	// auto-detected from the graph.
	Exit string `json:"exit,omitempty"`

	// DisableVirtualExit fails multi-exit graphs instead of
	// normalizing them through a synthetic exit.
	DisableVirtualExit bool `json:"disable_virtual_exit,omitempty"`

	// IncludeDOT adds a Graphviz rendering of the result.
	IncludeDOT bool `json:"include_dot,omitempty"`
}

// DiagnosticSpec reports one candidate edge skipped during analysis.
type DiagnosticSpec struct {
	// Tail is the branch side of the skipped edge.
	Tail string `json:"tail"`

	// Head is the target side of the skipped edge.
	Head string `json:"head"`

	// Message is the human-readable cause.
	Message string `json:"message"`
}

// AnalyzeStats summarizes the analysis.
type AnalyzeStats struct {
	// NodeCount is the number of blocks in the input CFG.
	NodeCount int `json:"node_count"`

	// EdgeCount is the number of CFG edges.
	EdgeCount int `json:"edge_count"`

	// CandidateEdges is the number of edges whose head does not
	// post-dominate its tail.
	CandidateEdges int `json:"candidate_edges"`

	// SkippedEdges is the number of candidate edges skipped with a
	// diagnostic.
	SkippedEdges int `json:"skipped_edges"`

	// Controllers is the number of blocks with at least one dependent.
	Controllers int `json:"controllers"`

	// MaxDependents is the largest dependent set of any controller.
	MaxDependents int `json:"max_dependents"`
}

// AnalyzeResponse is the response body for POST /v1/depcheck/analyze.
type AnalyzeResponse struct {
	// AnalysisID correlates this response with traces and logs.
	AnalysisID string `json:"analysis_id"`

	// Dependence maps each controller to the blocks whose execution it
	// governs.
	Dependence map[string][]string `json:"dependence"`

	// Stats summarizes the analysis.
	Stats AnalyzeStats `json:"stats"`

	// Diagnostics lists the skipped edges, if any.
	Diagnostics []DiagnosticSpec `json:"diagnostics,omitempty"`

	// DOT is the Graphviz rendering, present when requested.
	DOT string `json:"dot,omitempty"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// HealthResponse is the response body for GET /v1/depcheck/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
