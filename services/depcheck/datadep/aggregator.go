// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datadep

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/depscope/depscope/services/depcheck/telemetry"
)

var aggregateTracer = otel.Tracer("depcheck.datadep")

// DepKind classifies a function-local data-dependence answer.
type DepKind int

const (
	// DepInvalid is an answer the oracle could not produce.
	DepInvalid DepKind = iota

	// DepClobber means the dependee may overwrite the queried location.
	DepClobber

	// DepDef means the dependee defines the queried location.
	DepDef

	// DepNonFuncLocal means the dependence leaves the function body
	// (call boundary) and cannot be attributed to one instruction.
	DepNonFuncLocal

	// DepNonLocal means the dependence is pointer-mediated; the
	// aggregator follows up with a non-local pointer query.
	DepNonLocal

	// DepUnknown means the oracle could not decide between the other
	// kinds.
	DepUnknown
)

// String returns the kind's wire name.
func (k DepKind) String() string {
	switch k {
	case DepClobber:
		return "clobber"
	case DepDef:
		return "def"
	case DepNonFuncLocal:
		return "non_func_local"
	case DepNonLocal:
		return "non_local"
	case DepUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// AccessKind classifies the memory operation of an Access.
type AccessKind int

const (
	// AccessLoad reads memory.
	AccessLoad AccessKind = iota

	// AccessStore writes memory.
	AccessStore

	// AccessVarArg touches a va_list.
	AccessVarArg
)

// String returns the kind's wire name.
func (k AccessKind) String() string {
	switch k {
	case AccessLoad:
		return "load"
	case AccessStore:
		return "store"
	default:
		return "va_arg"
	}
}

// Access describes one memory-touching instruction handed to Aggregate.
type Access struct {
	// InstID identifies the instruction. Must be unique within one
	// Aggregate call.
	InstID string

	// Kind is the memory operation.
	Kind AccessKind

	// Ordered is false for atomic or volatile loads and stores; those
	// are skipped on the non-local query path with a diagnostic.
	// va_arg accesses are never atomic and the flag is ignored for
	// them.
	Ordered bool
}

// LocalDep is a function-local answer from the oracle.
type LocalDep struct {
	// Kind classifies the dependence.
	Kind DepKind

	// DepInstID is the dependee instruction for DepClobber and DepDef.
	// Empty for the other kinds.
	DepInstID string
}

// AddrDep is one address-attributed answer from the non-local query.
type AddrDep struct {
	// Address identifies the pointer value the dependence flows
	// through.
	Address string

	// DepInstID is the instruction the access depends on via Address.
	DepInstID string
}

// Oracle answers data-dependence queries for single instructions.
//
// Implementations wrap an underlying memory-dependence analysis. The
// aggregator never caches across calls; the oracle may.
type Oracle interface {
	// Query returns the function-local dependence for the instruction,
	// or false when the instruction does not touch memory.
	Query(instID string) (LocalDep, bool)

	// NonLocalPointerDeps enumerates the address-attributed
	// dependences for an access whose local answer was DepNonLocal.
	// Called for ordered loads and stores and for va_arg accesses.
	NonLocalPointerDeps(access Access) []AddrDep
}

// DepMap is the aggregation result. Read-only after Aggregate returns.
type DepMap struct {
	local       map[string]LocalDep
	nonLocal    map[string][]AddrDep
	diagnostics []*UnsupportedAccessError
}

// LocalDep returns the function-local answer recorded for the
// instruction, if any.
func (m *DepMap) LocalDep(instID string) (LocalDep, bool) {
	dep, ok := m.local[instID]
	return dep, ok
}

// NonLocalDeps returns the address-attributed answers recorded for the
// instruction. Nil when the instruction had no non-local dependence.
// The returned slice is owned by the DepMap; callers must not modify
// it.
func (m *DepMap) NonLocalDeps(instID string) []AddrDep {
	return m.nonLocal[instID]
}

// Diagnostics returns the instructions skipped during aggregation. The
// returned slice is owned by the DepMap; callers must not modify it.
func (m *DepMap) Diagnostics() []*UnsupportedAccessError {
	return m.diagnostics
}

// Len returns the number of instructions with a recorded dependence.
func (m *DepMap) Len() int {
	return len(m.local) + len(m.nonLocal)
}

// Aggregate records the oracle's answer for every access.
//
// Description:
//
//	Queries the oracle once per access. Clobber, def, non-func-local and
//	unknown answers are recorded as-is under the instruction ID.
//	Non-local answers trigger the follow-up pointer query for ordered
//	loads, ordered stores, and va_arg accesses; atomic or volatile
//	loads and stores on that path are skipped with an
//	UnsupportedAccessError diagnostic, as are invalid oracle answers.
//	A skipped instruction never aborts the aggregation.
//
// Inputs:
//
//   - ctx: Context for cancellation, checked between accesses.
//   - accesses: Instructions to classify. Order does not affect the
//     result.
//   - oracle: The dependence oracle. Must not be nil.
//
// Outputs:
//
//   - *DepMap: The recorded answers and diagnostics. Never nil, even on
//     cancellation (partial result).
//   - error: ErrNilOracle or ctx.Err().
//
// Thread Safety: Safe for concurrent calls with distinct oracles; the
// oracle itself must tolerate the call pattern.
//
// Complexity: O(n) oracle queries for n accesses.
func Aggregate(ctx context.Context, accesses []Access, oracle Oracle) (*DepMap, error) {
	result := &DepMap{
		local:    make(map[string]LocalDep),
		nonLocal: make(map[string][]AddrDep),
	}

	if oracle == nil {
		return result, ErrNilOracle
	}

	startTime := time.Now()

	ctx, span := aggregateTracer.Start(ctx, "datadep.Aggregate",
		trace.WithAttributes(
			attribute.Int("access_count", len(accesses)),
		),
	)
	defer span.End()

	for i, access := range accesses {
		if ctx.Err() != nil {
			span.AddEvent("context_cancelled", trace.WithAttributes(
				attribute.Int("accesses_processed", i),
			))
			return result, ctx.Err()
		}

		dep, ok := oracle.Query(access.InstID)
		if !ok {
			continue
		}

		switch dep.Kind {
		case DepClobber, DepDef, DepNonFuncLocal, DepUnknown:
			result.local[access.InstID] = dep

		case DepNonLocal:
			if (access.Kind == AccessLoad || access.Kind == AccessStore) && !access.Ordered {
				result.skip(access.InstID, "atomic or volatile access on non-local path")
				continue
			}
			result.nonLocal[access.InstID] = oracle.NonLocalPointerDeps(access)

		default:
			result.skip(access.InstID, "invalid oracle answer")
		}
	}

	span.AddEvent("aggregation_complete", trace.WithAttributes(
		attribute.Int("local_deps", len(result.local)),
		attribute.Int("non_local_deps", len(result.nonLocal)),
		attribute.Int("skipped", len(result.diagnostics)),
	))

	telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("datadep: aggregation complete",
		slog.Int("accesses", len(accesses)),
		slog.Int("local", len(result.local)),
		slog.Int("non_local", len(result.nonLocal)),
		slog.Int("skipped", len(result.diagnostics)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return result, nil
}

func (m *DepMap) skip(instID, reason string) {
	m.diagnostics = append(m.diagnostics, &UnsupportedAccessError{
		InstID: instID,
		Reason: reason,
	})
}
