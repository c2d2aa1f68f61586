// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datadep aggregates per-instruction data-dependence answers
// from an external oracle into a read-only map.
//
// The package does not perform alias or memory-dependence analysis
// itself; it records what the oracle reports. Function-local answers
// land in one map, non-local (pointer-mediated) answers in another,
// keyed by instruction ID. Instructions the oracle cannot answer for —
// atomic or volatile accesses on the non-local path, or invalid oracle
// results — are skipped with a diagnostic at instruction granularity
// rather than failing the whole aggregation.
//
// Thread Safety: Aggregate is safe to call concurrently with distinct
// inputs. The returned DepMap is immutable and safe for concurrent
// reads.
package datadep

import (
	"errors"
	"fmt"
)

// ErrNilOracle is returned when Aggregate is called without an oracle.
var ErrNilOracle = errors.New("datadep: oracle is nil")

// UnsupportedAccessError records an instruction the aggregator skipped
// because the oracle cannot classify it. It is a diagnostic carried on
// the DepMap, not a returned error.
type UnsupportedAccessError struct {
	// InstID identifies the skipped instruction.
	InstID string

	// Reason is a short human-readable cause.
	Reason string
}

// Error implements the error interface.
func (e *UnsupportedAccessError) Error() string {
	return fmt.Sprintf("datadep: unsupported access %s: %s", e.InstID, e.Reason)
}
