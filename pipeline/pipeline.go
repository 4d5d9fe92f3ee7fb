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

// Package pipeline implements process_stream: the per-segment state machine
// that drives a chain.BlockStream through a transform.BlockTransform and
// into a store.Store.
package pipeline

import (
	"context"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/chain"
	"github.com/chainindex/preindex/perrors"
	"github.com/chainindex/preindex/state"
	"github.com/chainindex/preindex/store"
	"github.com/chainindex/preindex/transform"
	"github.com/chainindex/preindex/xlog"
	"github.com/chainindex/preindex/xmath"
)

// Status is the terminal outcome of a Pipeline run.
type Status int

const (
	// Running is never observed by a caller of Run; it is the internal
	// state between events.
	Running Status = iota
	TerminatedOk
	TerminatedErr
)

// Result is returned by Run once the stream ends, a stop block is
// reached, or an error forces termination.
type Result struct {
	Status     Status
	LastCursor chain.Cursor
	Err        error
}

// Pipeline drives one segment: a stream of events against one accumulating
// state.State, persisted through one store.Store. A Pipeline is used once;
// build a fresh one per segment.
type Pipeline struct {
	Deployment []byte
	StopBlock  *int32

	Stream    chain.BlockStream
	Transform transform.BlockTransform
	Store     *store.Store
	Logger    xlog.Logger

	state      *state.State
	lastCursor chain.Cursor
	lastNumber int32
	hasWritten bool
}

// New builds a Pipeline ready to Run. state starts empty.
func New(deployment []byte, stopBlock *int32, stream chain.BlockStream, tf transform.BlockTransform, st *store.Store, logger xlog.Logger) *Pipeline {
	return &Pipeline{
		Deployment: deployment,
		StopBlock:  stopBlock,
		Stream:     stream,
		Transform:  tf,
		Store:      st,
		Logger:     logger,
		state:      state.New(),
	}
}

// Run consumes events from p.Stream until stream-end, a configured stop
// block, or an unrecoverable error, and returns the terminal Result. Within
// one run, store.Set calls happen in strictly ascending block-number order.
func (p *Pipeline) Run(ctx context.Context) Result {
	for {
		ev, err := p.Stream.Next(ctx)
		if err == chain.ErrStreamEnd {
			return Result{Status: TerminatedOk, LastCursor: p.lastCursor}
		}
		if err != nil {
			return Result{Status: TerminatedErr, LastCursor: p.lastCursor, Err: err}
		}

		switch ev.Kind {
		case chain.ProcessWasmBlock:
			res, done := p.handleProcessWasmBlock(ctx, ev)
			if done {
				return res
			}
		case chain.ProcessBlock:
			return Result{
				Status:     TerminatedErr,
				LastCursor: p.lastCursor,
				Err:        perrors.Unreachablef("pipeline: ProcessBlock event on a dataset chain"),
			}
		case chain.Revert:
			if err := p.handleRevert(ctx, ev); err != nil {
				return Result{Status: TerminatedErr, LastCursor: p.lastCursor, Err: err}
			}
			p.lastCursor = ev.Cursor
		default:
			return Result{
				Status:     TerminatedErr,
				LastCursor: p.lastCursor,
				Err:        perrors.Unreachablef("pipeline: unknown stream event kind %d", ev.Kind),
			}
		}
	}
}

func (p *Pipeline) handleProcessWasmBlock(ctx context.Context, ev chain.StreamEvent) (Result, bool) {
	if p.StopBlock != nil && ev.BlockPtr.Number >= *p.StopBlock {
		return Result{Status: TerminatedOk, LastCursor: p.lastCursor}, true
	}

	newState, triggers, err := p.Transform.Transform(block.Encoded(ev.Data), p.state)
	if err != nil {
		return Result{Status: TerminatedErr, LastCursor: p.lastCursor, Err: err}, true
	}
	p.state = newState

	if err := p.Store.Set(ctx, p.Deployment, ev.BlockPtr, p.state, triggers); err != nil {
		return Result{Status: TerminatedErr, LastCursor: p.lastCursor, Err: err}, true
	}

	p.lastCursor = ev.Cursor
	p.lastNumber = ev.BlockPtr.Number
	p.hasWritten = true
	return Result{}, false
}

// handleRevert rewinds state and persisted triggers back to targetPtr:
// every delta strictly after targetPtr.Number is loaded from the delta log,
// inverted, and applied in descending block order, and the corresponding
// persisted triggers are deleted.
func (p *Pipeline) handleRevert(ctx context.Context, ev chain.StreamEvent) error {
	if !p.hasWritten {
		return nil
	}
	target := ev.BlockPtr.Number
	if target >= p.lastNumber {
		return nil
	}

	// Replay deltas from the store newest-first, inverting each into the
	// live in-memory state, then drop the persisted rows.
	for n := int64(p.lastNumber); n > int64(target); n-- {
		delta, err := p.Store.DeltaAt(ctx, p.Deployment, n)
		if err != nil {
			return err
		}
		if delta != nil {
			if err := p.state.Apply(delta.Invert()); err != nil {
				return err
			}
			p.state.Reset()
		}
	}

	if err := p.Store.DeleteFrom(ctx, p.Deployment, int64(target)+1); err != nil {
		return err
	}

	depth := xmath.AbsoluteDifference(uint64(p.lastNumber), uint64(target))
	p.lastNumber = target
	p.Logger.Info("pipeline: reverted", "deployment", string(p.Deployment), "target", target, "depth", depth)
	return nil
}
