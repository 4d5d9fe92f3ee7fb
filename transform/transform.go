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

// Package transform declares the pluggable BlockTransform contract. The
// concrete implementation (typically a sandboxed mapping engine) lives
// outside this module; callers pass in whatever satisfies this interface.
package transform

import (
	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/state"
)

// BlockTransform is a pure, cloneable, thread-safe function from a block and
// the state going in, to the state and triggers coming out. Implementations
// must be deterministic: identical (block, stateIn) must always produce
// byte-identical (stateOut, triggers). Implementations must not perform I/O
// against an external call cache directly; that belongs behind the call
// cache abstraction passed to the implementation at construction time, not
// through this call.
type BlockTransform interface {
	Transform(blk block.Encoded, stateIn *state.State) (stateOut *state.State, triggers block.EncodedTriggers, err error)
}

// Func adapts a plain function to the BlockTransform interface.
type Func func(blk block.Encoded, stateIn *state.State) (*state.State, block.EncodedTriggers, error)

func (f Func) Transform(blk block.Encoded, stateIn *state.State) (*state.State, block.EncodedTriggers, error) {
	return f(blk, stateIn)
}
