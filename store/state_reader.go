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
	"bytes"
	"context"
	"encoding/binary"

	ikv "github.com/chainindex/preindex/kv"
	"github.com/chainindex/preindex/state"
)

// GetState reconstructs the materialized State as of block number n for
// deployment: it finds the nearest snapshot at or before n, decodes it, then
// replays the delta log forward over the gap. Callers that only need the
// triggers for a single block should prefer Get; GetState is for resuming
// workers that need the live key/value set.
func (s *Store) GetState(ctx context.Context, deployment []byte, n int64) (*state.State, error) {
	var st *state.State
	var from int64 = -1

	err := s.db.View(ctx, func(tx ikv.Tx) error {
		cur, err := tx.Cursor(ikv.Snapshot)
		if err != nil {
			return err
		}
		defer cur.Close()

		upto := blockKey(deployment, n)
		var bestKey, bestVal []byte
		for k, v, err := cur.Seek(deployment); k != nil; k, v, err = cur.Next() {
			if err != nil {
				return err
			}
			if len(k) < len(deployment) || !bytes.Equal(k[:len(deployment)], deployment) {
				break
			}
			if bytes.Compare(k, upto) > 0 {
				break
			}
			bestKey, bestVal = k, v
		}
		if bestKey != nil {
			decoded, err := decodeSnapshot(bestVal)
			if err != nil {
				return err
			}
			st = decoded
			from = blockNumberFromKey(deployment, bestKey)
		} else {
			st = state.New()
			from = -1
		}

		dcur, err := tx.Cursor(ikv.DeltaLog)
		if err != nil {
			return err
		}
		defer dcur.Close()

		start := blockKey(deployment, from+1)
		for k, v, err := dcur.Seek(start); k != nil; k, v, err = dcur.Next() {
			if err != nil {
				return err
			}
			if len(k) < len(deployment) || !bytes.Equal(k[:len(deployment)], deployment) {
				break
			}
			if bytes.Compare(k, upto) > 0 {
				break
			}
			delta, err := state.DecodeDelta(v)
			if err != nil {
				return err
			}
			if err := st.Apply(delta); err != nil {
				return err
			}
			st.Reset()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func blockNumberFromKey(deployment, key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(deployment):]))
}
