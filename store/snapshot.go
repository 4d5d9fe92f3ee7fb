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

package store

import (
	"github.com/klauspost/compress/zstd"

	ikv "github.com/chainindex/preindex/kv"
	"github.com/chainindex/preindex/state"
)

// SnapshotPolicy decides, on every durable Set, whether the just-written
// state deserves a full materialized snapshot. Replaying the delta log back
// to genesis on every GetState call would be unbounded; a snapshot caps the
// amount of replay to the distance since the last one.
type SnapshotPolicy interface {
	maybeSnapshot(tx ikv.RwTx, deployment []byte, blockNumber int32, st *state.State) error
}

// EveryNBlocks snapshots once every N blocks (N == 1 snapshots on every
// block). A zero value never snapshots.
type EveryNBlocks uint32

func (p EveryNBlocks) maybeSnapshot(tx ikv.RwTx, deployment []byte, blockNumber int32, st *state.State) error {
	if p == 0 {
		return nil
	}
	if blockNumber >= 0 && uint32(blockNumber)%uint32(p) != 0 {
		return nil
	}
	return writeSnapshot(tx, deployment, blockNumber, st)
}

// Never disables snapshotting; GetState always replays from genesis.
type Never struct{}

func (Never) maybeSnapshot(ikv.RwTx, []byte, int32, *state.State) error { return nil }

var snapshotEncoder *zstd.Encoder

func init() {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	snapshotEncoder = enc
}

func writeSnapshot(tx ikv.RwTx, deployment []byte, blockNumber int32, st *state.State) error {
	raw := state.EncodeState(st)
	compressed := snapshotEncoder.EncodeAll(raw, nil)
	return tx.Put(ikv.Snapshot, blockKey(deployment, int64(blockNumber)), compressed)
}

func decodeSnapshot(compressed []byte) (*state.State, error) {
	raw, err := snapshotDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}
	return state.DecodeState(raw)
}

var snapshotDecoder *zstd.Decoder

func init() {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	snapshotDecoder = dec
}
