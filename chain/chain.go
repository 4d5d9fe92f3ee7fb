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

// Package chain declares the narrow, external block-source contract the
// pipeline and worker consume: a stream of block events and a chain-head
// lookup. The transport behind it (firehose-style byte stream, local chain
// db, whatever) is out of scope here — this package only fixes the shape a
// caller can rely on.
package chain

import (
	"context"
	"io"

	"github.com/chainindex/preindex/block"
)

// Cursor is an opaque resume token emitted by the block source.
type Cursor string

// Tracker is the per-segment cursor state: immutable except FirehoseCursor,
// which only ever advances forward as events are consumed.
type Tracker struct {
	Schema         string
	StartBlock     int32
	StopBlock      *int32 // nil means unbounded
	FirehoseCursor Cursor
}

// Advanced returns a copy of t with FirehoseCursor set to c. StartBlock,
// StopBlock and Schema never change after construction.
func (t Tracker) Advanced(c Cursor) Tracker {
	t.FirehoseCursor = c
	return t
}

// EventKind tags a StreamEvent variant.
type EventKind int

const (
	// ProcessWasmBlock carries an opaque data buffer for a sandboxed
	// handler keyed by HandlerRef.
	ProcessWasmBlock EventKind = iota
	// ProcessBlock is reserved for a non-WASM/dataset transform path. The
	// pipeline's current contract never expects to receive it.
	ProcessBlock
	// Revert signals a reorg: every block after BlockPtr must be undone;
	// BlockPtr itself is kept.
	Revert
)

// StreamEvent is one item yielded by a BlockStream.
type StreamEvent struct {
	Kind       EventKind
	BlockPtr   block.Ptr
	BlockTime  int64 // unix seconds, only meaningful for ProcessWasmBlock/ProcessBlock
	Data       []byte
	HandlerRef string
	Cursor     Cursor
}

// BlockStream yields a sequence of events in order. Next returns io.EOF when
// the stream is exhausted; any other error terminates the stream.
type BlockStream interface {
	Next(ctx context.Context) (StreamEvent, error)
	Close() error
}

// ErrStreamEnd is an alias for io.EOF, exported so callers outside this
// package don't need to import io just to compare.
var ErrStreamEnd = io.EOF

// Blockchain is the capability boundary a pipeline/worker depends on: open a
// stream for a segment, and resolve the current chain head.
type Blockchain interface {
	NewBlockStream(ctx context.Context, deployment string, tracker Tracker, startBlocks []block.Ptr, filter any, apiVersion string) (BlockStream, error)
	ChainHeadPtr(ctx context.Context) (block.Ptr, bool, error)
}
