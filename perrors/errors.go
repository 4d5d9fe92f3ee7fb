// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package perrors collects the sentinel error kinds the pre-indexing core
// distinguishes on. Callers compare with errors.Is; wrapping with %w is
// expected throughout the module so a caller-facing error can carry both a
// sentinel and local context.
package perrors

import (
	"errors"
	"fmt"
)

// Sentinels. Each participates in errors.Is via direct comparison or
// wrapping with fmt.Errorf("...: %w", Sentinel).
var (
	// InvariantViolation marks a broken internal invariant (LSB regression,
	// delta-apply mismatch). Fatal: the caller should abort the process.
	InvariantViolation = errors.New("invariant violation")

	// Conflict marks store.Set being asked to persist a different hash at a
	// block number that already has triggers recorded. Indicates an
	// undetected reorg upstream.
	Conflict = errors.New("conflicting block already persisted")

	// InvalidArgument marks a synchronous precondition failure (workers == 0,
	// malformed chunk bounds).
	InvalidArgument = errors.New("invalid argument")

	// Unreachable marks a wiring bug: an event variant reached a transition
	// the pipeline never expects to take for this chain kind.
	Unreachable = errors.New("unreachable state reached")

	// BackgroundWriteFailed classifies a durable call-cache write-back
	// failure for logging. It is never returned to a BufferedCallCache
	// caller; it exists only so log call sites can tag these failures
	// distinctly from other transient I/O errors.
	BackgroundWriteFailed = errors.New("background write failed")
)

// Invariantf wraps InvariantViolation with formatted context.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, InvariantViolation)...)
}

// Conflictf wraps Conflict with formatted context.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, Conflict)...)
}

// InvalidArgumentf wraps InvalidArgument with formatted context.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, InvalidArgument)...)
}

// Unreachablef wraps Unreachable with formatted context.
func Unreachablef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, Unreachable)...)
}
