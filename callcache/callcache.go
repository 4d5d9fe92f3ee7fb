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

// Package callcache declares the CallCache contract a BlockTransform uses to
// memoize expensive external calls (contract reads, RPC lookups) per block,
// and BufferedCallCache, the single-block write-through layer in front of a
// durable implementation.
package callcache

import (
	"context"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/xlog"
)

// Source reports where a Get result came from.
type Source int

const (
	SourceMemory Source = iota
	SourceUnderlying
)

// CallCache memoizes the result of a call keyed by an opaque request and the
// block it was made at. Implementations must be safe for concurrent use.
type CallCache interface {
	GetCall(ctx context.Context, req []byte, blk block.Ptr) (value []byte, src Source, found bool, err error)
	SetCall(ctx context.Context, logger xlog.Logger, req []byte, blk block.Ptr, ret []byte) error
	GetCallsInBlock(ctx context.Context, blk block.Ptr) ([]block.Item, error)
}
