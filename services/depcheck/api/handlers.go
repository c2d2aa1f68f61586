// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/depscope/depscope/services/depcheck/cfg"
	"github.com/depscope/depscope/services/depcheck/control"
	"github.com/depscope/depscope/services/depcheck/export"
	"github.com/depscope/depscope/services/depcheck/postdom"
)

// Handlers contains the HTTP handlers for the depcheck API.
//
// Thread Safety: Handlers is safe for concurrent use; every request is
// self-contained.
type Handlers struct {
	// MaxNodes caps the accepted CFG size per request.
	MaxNodes int

	// MaxEdges caps the accepted edge count per request.
	MaxEdges int
}

// DefaultMaxRequestNodes caps analyze requests at a size the in-memory
// pipeline handles comfortably.
const (
	DefaultMaxRequestNodes = 100000
	DefaultMaxRequestEdges = 500000
)

// NewHandlers creates handlers with default request limits.
func NewHandlers() *Handlers {
	return &Handlers{
		MaxNodes: DefaultMaxRequestNodes,
		MaxEdges: DefaultMaxRequestEdges,
	}
}

// HandleAnalyze handles POST /v1/depcheck/analyze.
//
// Description:
//
//	Builds a CFG from the request, computes its post-dominator tree and
//	control-dependence graph, and returns the dependence mapping.
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: malformed body, duplicate nodes, unknown edge
//	  endpoints, missing or ambiguous exits
//	413 Request Entity Too Large: CFG over the configured limits
//	500 Internal Server Error: unexpected analysis failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalyze")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if len(req.Nodes) == 0 {
		logger.Warn("Empty node list")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "At least one node is required",
			Code:  "EMPTY_GRAPH",
		})
		return
	}
	if len(req.Nodes) > h.MaxNodes || len(req.Edges) > h.MaxEdges {
		logger.Warn("Request over size limits",
			"nodes", len(req.Nodes), "edges", len(req.Edges))
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "Graph exceeds the configured size limits",
			Code:  "GRAPH_TOO_LARGE",
		})
		return
	}

	g, err := buildCFG(&req)
	if err != nil {
		logger.Warn("Rejected CFG", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid control-flow graph",
			Code:    "INVALID_GRAPH",
			Details: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	buildOpts := []postdom.BuildOption{
		postdom.WithVirtualExit(!req.DisableVirtualExit),
	}
	if req.Exit != "" {
		buildOpts = append(buildOpts, postdom.WithExit(req.Exit))
	}

	tree, err := postdom.Build(ctx, g, buildOpts...)
	if err != nil {
		status, code := http.StatusBadRequest, "INVALID_GRAPH"
		switch {
		case errors.Is(err, postdom.ErrNoExit):
			code = "NO_EXIT"
		case errors.Is(err, postdom.ErrMultipleExits):
			code = "MULTIPLE_EXITS"
		case errors.Is(err, postdom.ErrExitNotFound):
			code = "EXIT_NOT_FOUND"
		default:
			status, code = http.StatusInternalServerError, "ANALYSIS_FAILED"
		}
		logger.Warn("Post-dominator build failed", "error", err)
		c.JSON(status, ErrorResponse{
			Error: "Post-dominator construction failed",
			Code:  code, Details: err.Error(),
		})
		return
	}

	result, err := control.Analyze(ctx, g, tree)
	if err != nil {
		logger.Error("Analysis failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Control-dependence analysis failed",
			Code:    "ANALYSIS_FAILED",
			Details: err.Error(),
		})
		return
	}

	resp := AnalyzeResponse{
		AnalysisID: result.AnalysisID,
		Dependence: make(map[string][]string, result.Store.Len()),
		Stats: AnalyzeStats{
			NodeCount:      result.NodeCount,
			EdgeCount:      result.EdgeCount,
			CandidateEdges: result.Candidates,
			SkippedEdges:   result.Skipped,
			Controllers:    result.NodesWithDependents,
			MaxDependents:  result.MaxDependents,
		},
	}
	result.Store.Each(func(tail string, dependents []string) {
		resp.Dependence[tail] = dependents
	})
	for _, diag := range result.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, DiagnosticSpec{
			Tail:    diag.Tail,
			Head:    diag.Head,
			Message: diag.Error(),
		})
	}

	if req.IncludeDOT {
		name := req.Name
		if name == "" {
			name = "control_dependence"
		}
		opts := export.DefaultOptions()
		opts.Labels = func(id string) string {
			if n, ok := g.GetNode(id); ok && n.Label != "" {
				return n.Label
			}
			return id
		}
		var sb strings.Builder
		if err := export.WriteDOT(&sb, name, result.Store, &opts); err != nil {
			// The dependence result is already computed; report it
			// without the rendering.
			logger.Warn("DOT rendering failed", "error", err)
		} else {
			resp.DOT = sb.String()
		}
	}

	logger.Info("Analysis complete",
		"analysis_id", result.AnalysisID,
		"nodes", result.NodeCount,
		"controllers", result.NodesWithDependents,
		"skipped", result.Skipped)
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/depcheck/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "depcheck",
	})
}

// HandleReady handles GET /v1/depcheck/ready.
//
// The service holds no warm state, so readiness equals liveness.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ready",
		Service: "depcheck",
	})
}

// buildCFG assembles and freezes a CFG from the request.
func buildCFG(req *AnalyzeRequest) (*cfg.CFG, error) {
	g := cfg.New()
	for _, n := range req.Nodes {
		if err := g.AddNode(n.ID, n.Label); err != nil {
			return nil, err
		}
	}
	for _, e := range req.Edges {
		if err := g.AddEdge(e.From, e.To); err != nil {
			return nil, err
		}
	}
	g.Freeze()
	return g, nil
}

// getOrCreateRequestID returns the X-Request-ID header, minting one
// when the caller did not send it.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Header("X-Request-ID", id)
	return id
}
