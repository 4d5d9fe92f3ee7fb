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

// Package state implements the accumulating per-deployment State a pipeline
// mutates as it walks a segment: a flat item map, tag indexes over that map,
// and a replayable delta log. A State belongs to exactly one pipeline for
// the lifetime of one segment; it is never shared across segments.
package state

import (
	"fmt"
	"sort"

	roaring "github.com/RoaringBitmap/roaring/v2"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/perrors"
)

// Op tags a StateOperation variant.
type Op byte

const (
	OpSet   Op = 1
	OpUnset Op = 2
)

// StateOperation records one mutation. For OpSet, Value is the newly written
// value; HadPrior/PriorValue capture whatever occupied the key immediately
// before, so the operation can be inverted without consulting the state it
// was recorded against. For OpUnset, Value is the value being removed —
// §4.1's apply() asserts the live value matches it before deleting.
type StateOperation struct {
	Op         Op
	Key        block.Key
	Value      []byte
	HadPrior   bool
	PriorValue []byte
}

// Invert returns the operation that undoes op.
func (op StateOperation) Invert() StateOperation {
	switch op.Op {
	case OpSet:
		if op.HadPrior {
			return StateOperation{Op: OpSet, Key: op.Key, Value: op.PriorValue, HadPrior: true, PriorValue: op.Value}
		}
		return StateOperation{Op: OpUnset, Key: op.Key, Value: op.Value}
	case OpUnset:
		return StateOperation{Op: OpSet, Key: op.Key, Value: op.Value, HadPrior: false}
	default:
		panic(fmt.Sprintf("state: unknown operation tag %d", op.Op))
	}
}

// Delta is a flat ordered sequence of operations. Applying it to a state S
// yields S'; applying Invert() to S' yields S back.
type Delta []StateOperation

// Invert returns the delta that undoes d, in reverse application order.
func (d Delta) Invert() Delta {
	inv := make(Delta, len(d))
	for i, op := range d {
		inv[len(d)-1-i] = op.Invert()
	}
	return inv
}

type itemKey string

func encodeItemKey(k block.Key) itemKey {
	return itemKey(k.Tag + "\x1f" + string(k.ID))
}

// State is the accumulating per-deployment key/value store with tag
// indexes and a delta log. It is not safe for concurrent use — ownership
// is exclusive to one pipeline for the duration of one segment.
type State struct {
	items map[itemKey][]byte
	keys  map[itemKey]block.Key

	intern   map[string]uint32
	internID [][]byte
	tags     map[string]*roaring.Bitmap

	deltas Delta
}

// New returns an empty State.
func New() *State {
	return &State{
		items:  make(map[itemKey][]byte),
		keys:   make(map[itemKey]block.Key),
		intern: make(map[string]uint32),
		tags:   make(map[string]*roaring.Bitmap),
	}
}

func (s *State) internID_(id []byte) uint32 {
	k := string(id)
	if n, ok := s.intern[k]; ok {
		return n
	}
	n := uint32(len(s.internID))
	s.internID = append(s.internID, append([]byte(nil), id...))
	s.intern[k] = n
	return n
}

// Set inserts or overwrites items[key], records the mutation in the delta
// log, and (if key carries a tag) adds key.ID to that tag's index.
func (s *State) Set(key block.Key, value []byte) {
	ik := encodeItemKey(key)
	prior, hadPrior := s.items[ik]

	cp := append([]byte(nil), value...)
	s.items[ik] = cp
	s.keys[ik] = key

	if key.Tagged() {
		bm, ok := s.tags[key.Tag]
		if !ok {
			bm = roaring.New()
			s.tags[key.Tag] = bm
		}
		bm.Add(s.internID_(key.ID))
	}

	op := StateOperation{Op: OpSet, Key: key, Value: cp, HadPrior: hadPrior}
	if hadPrior {
		op.PriorValue = append([]byte(nil), prior...)
	}
	s.deltas = append(s.deltas, op)
}

// SetEncode serializes v with the module's stable binary encoding and sets
// it under key.
func (s *State) SetEncode(key block.Key, v any) error {
	enc, err := EncodeValue(v)
	if err != nil {
		return fmt.Errorf("state: encode value for key %x/%s: %w", key.ID, key.Tag, err)
	}
	s.Set(key, enc)
	return nil
}

// Get returns the value stored under key, and whether it is present.
func (s *State) Get(key block.Key) ([]byte, bool) {
	v, ok := s.items[encodeItemKey(key)]
	return v, ok
}

// GetKeys enumerates every key registered under tag. Order is deterministic
// within a State instance (ascending interned id) but otherwise unspecified.
func (s *State) GetKeys(tag string) []block.Key {
	bm, ok := s.tags[tag]
	if !ok {
		return nil
	}
	ids := bm.ToArray()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]block.Key, 0, len(ids))
	for _, id := range ids {
		out = append(out, block.Key{ID: s.internID[id], Tag: tag})
	}
	return out
}

// Delta returns a snapshot (copy) of the operations recorded since the last
// Reset.
func (s *State) Delta() Delta {
	out := make(Delta, len(s.deltas))
	copy(out, s.deltas)
	return out
}

// Reset clears the delta log without touching items/tags, establishing a
// new baseline for the next Delta() snapshot.
func (s *State) Reset() {
	s.deltas = s.deltas[:0]
}

// Apply replays each operation of d in order against s. Set overwrites;
// Unset removes after asserting the live value matches the operation's
// recorded value — a mismatch is an invariant violation, not a soft error.
func (s *State) Apply(d Delta) error {
	for _, op := range d {
		ik := encodeItemKey(op.Key)
		switch op.Op {
		case OpSet:
			s.items[ik] = append([]byte(nil), op.Value...)
			s.keys[ik] = op.Key
			if op.Key.Tagged() {
				bm, ok := s.tags[op.Key.Tag]
				if !ok {
					bm = roaring.New()
					s.tags[op.Key.Tag] = bm
				}
				bm.Add(s.internID_(op.Key.ID))
			}
		case OpUnset:
			live, ok := s.items[ik]
			if !ok || string(live) != string(op.Value) {
				return perrors.Invariantf("state: apply Unset(%x/%s) value mismatch", op.Key.ID, op.Key.Tag)
			}
			delete(s.items, ik)
			delete(s.keys, ik)
			if op.Key.Tagged() {
				if bm, ok := s.tags[op.Key.Tag]; ok {
					bm.Remove(s.internID_(op.Key.ID))
				}
			}
		default:
			return perrors.Invariantf("state: apply unknown op tag %d", op.Op)
		}
		s.deltas = append(s.deltas, op)
	}
	return nil
}

// Len reports the number of live items, for tests and diagnostics.
func (s *State) Len() int { return len(s.items) }

// AllKeys returns every live key, tagged and untagged, in no particular
// order. Used by tests asserting the items/tags consistency invariant.
func (s *State) AllKeys() []block.Key {
	out := make([]block.Key, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	return out
}
