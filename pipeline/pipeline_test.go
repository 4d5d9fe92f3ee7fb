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

package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/chain"
	"github.com/chainindex/preindex/kv"
	"github.com/chainindex/preindex/kv/kvmem"
	"github.com/chainindex/preindex/perrors"
	"github.com/chainindex/preindex/pipeline"
	"github.com/chainindex/preindex/state"
	"github.com/chainindex/preindex/store"
	"github.com/chainindex/preindex/transform"
	"github.com/chainindex/preindex/xlog"
)

// fakeStream replays a fixed slice of events, then reports stream-end.
type fakeStream struct {
	events []chain.StreamEvent
	pos    int
}

func (s *fakeStream) Next(ctx context.Context) (chain.StreamEvent, error) {
	if s.pos >= len(s.events) {
		return chain.StreamEvent{}, chain.ErrStreamEnd
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *fakeStream) Close() error { return nil }

func wasmEvent(n int32, cursor string) chain.StreamEvent {
	return chain.StreamEvent{
		Kind:     chain.ProcessWasmBlock,
		BlockPtr: block.Ptr{Hash: []byte{byte(n)}, Number: n},
		Data:     []byte{byte(n)},
		Cursor:   chain.Cursor(cursor),
	}
}

// identityTransform writes one item keyed by the block number and emits the
// block's own data as triggers, so each step is trivially verifiable.
var identityTransform = transform.Func(func(blk block.Encoded, stateIn *state.State) (*state.State, block.EncodedTriggers, error) {
	stateIn.Set(block.Key{ID: blk, Tag: "Seen"}, blk)
	return stateIn, block.EncodedTriggers(blk), nil
})

func newTestStore() *store.Store {
	return store.New(kvmem.New(kv.Tables), xlog.Default(), store.Never{})
}

func TestPipelineRunProcessesUntilStreamEnd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dep := []byte("dep")

	stream := &fakeStream{events: []chain.StreamEvent{
		wasmEvent(1, "c1"),
		wasmEvent(2, "c2"),
		wasmEvent(3, "c3"),
	}}

	p := pipeline.New(dep, nil, stream, identityTransform, s, xlog.Default())
	res := p.Run(ctx)

	require.Equal(t, pipeline.TerminatedOk, res.Status)
	require.Equal(t, chain.Cursor("c3"), res.LastCursor)

	for n := int64(1); n <= 3; n++ {
		_, _, found, err := s.Get(ctx, dep, n)
		require.NoError(t, err)
		require.True(t, found)
	}
}

func TestPipelineStopBlockIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dep := []byte("dep")

	stop := int32(3)
	stream := &fakeStream{events: []chain.StreamEvent{
		wasmEvent(1, "c1"),
		wasmEvent(2, "c2"),
		wasmEvent(3, "c3"),
		wasmEvent(4, "c4"),
	}}

	p := pipeline.New(dep, &stop, stream, identityTransform, s, xlog.Default())
	res := p.Run(ctx)

	require.Equal(t, pipeline.TerminatedOk, res.Status)
	require.Equal(t, chain.Cursor("c2"), res.LastCursor)

	_, _, found, err := s.Get(ctx, dep, 3)
	require.NoError(t, err)
	require.False(t, found, "stop block is exclusive: block 3 must not be processed")
}

func TestPipelineProcessBlockIsUnreachable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dep := []byte("dep")

	stream := &fakeStream{events: []chain.StreamEvent{
		{Kind: chain.ProcessBlock, BlockPtr: block.Ptr{Number: 1}},
	}}

	p := pipeline.New(dep, nil, stream, identityTransform, s, xlog.Default())
	res := p.Run(ctx)

	require.Equal(t, pipeline.TerminatedErr, res.Status)
	require.True(t, errors.Is(res.Err, perrors.Unreachable))
}

func TestPipelineSetFailureTerminatesWithErr(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dep := []byte("dep")

	// Persist a conflicting hash at block 1 first so the pipeline's own
	// Set call collides.
	require.NoError(t, s.Set(ctx, dep, block.Ptr{Hash: []byte{0xff}, Number: 1}, state.New(), nil))

	stream := &fakeStream{events: []chain.StreamEvent{wasmEvent(1, "c1")}}
	p := pipeline.New(dep, nil, stream, identityTransform, s, xlog.Default())
	res := p.Run(ctx)

	require.Equal(t, pipeline.TerminatedErr, res.Status)
	require.True(t, errors.Is(res.Err, perrors.Conflict))
}

func TestPipelineRevertRewindsStateAndDeletesTriggers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dep := []byte("dep")

	stream := &fakeStream{events: []chain.StreamEvent{
		wasmEvent(1, "c1"),
		wasmEvent(2, "c2"),
		wasmEvent(3, "c3"),
		{Kind: chain.Revert, BlockPtr: block.Ptr{Number: 1}, Cursor: "revert-cursor"},
	}}

	p := pipeline.New(dep, nil, stream, identityTransform, s, xlog.Default())
	res := p.Run(ctx)

	require.Equal(t, pipeline.TerminatedOk, res.Status)
	require.Equal(t, chain.Cursor("revert-cursor"), res.LastCursor)

	_, _, found, err := s.Get(ctx, dep, 1)
	require.NoError(t, err)
	require.True(t, found, "block 1 is the revert target and must survive")

	for _, n := range []int64{2, 3} {
		_, _, found, err := s.Get(ctx, dep, n)
		require.NoError(t, err)
		require.False(t, found, "block %d must be deleted by the revert", n)
	}
}
