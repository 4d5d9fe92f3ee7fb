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

package state

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/chainindex/preindex/block"
)

func snapshotItems(s *State) map[string]string {
	out := make(map[string]string, len(s.items))
	for k, v := range s.items {
		out[string(k)] = string(v)
	}
	return out
}

// S6 — delta round trip.
func TestDeltaRoundTrip(t *testing.T) {
	s := New()
	k1 := block.Key{ID: []byte("k1"), Tag: "t"}
	k2 := block.Key{ID: []byte("k2")}

	s.Set(k1, []byte("v1"))
	s.Set(k2, []byte("v2"))
	s.Set(k1, []byte("v1-prime"))

	d := s.Delta()
	inv := d.Invert()
	require.NoError(t, s.Apply(inv))

	require.Equal(t, 0, s.Len())
}

// Property 6: delta invertibility, quantified over random mutation sequences.
func TestDeltaInvertibilityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s0 := New()
		// seed a handful of pre-existing keys so Unset-after-Set paths exercise
		// the HadPrior branch too.
		seedKeys := rapid.SliceOfN(rapid.StringMatching(`[a-c]`), 0, 4).Draw(t, "seed")
		for _, id := range seedKeys {
			s0.Set(block.Key{ID: []byte(id)}, []byte("seed-"+id))
		}
		s0.Reset()

		before := snapshotItems(s0)

		n := rapid.IntRange(0, 12).Draw(t, "numOps")
		for i := 0; i < n; i++ {
			id := rapid.StringMatching(`[a-d]`).Draw(t, "id")
			tag := rapid.SampledFrom([]string{"", "", "x", "y"}).Draw(t, "tag")
			val := rapid.StringMatching(`[a-z]{0,4}`).Draw(t, "val")
			s0.Set(block.Key{ID: []byte(id), Tag: tag}, []byte(val))
		}

		d := s0.Delta()
		inv := d.Invert()
		require.NoError(t, s0.Apply(inv))

		after := snapshotItems(s0)
		require.Equal(t, before, after)
	})
}

func TestGetKeysByTag(t *testing.T) {
	s := New()
	s.Set(block.Key{ID: []byte("a"), Tag: "color"}, []byte("red"))
	s.Set(block.Key{ID: []byte("b"), Tag: "color"}, []byte("blue"))
	s.Set(block.Key{ID: []byte("c")}, []byte("untagged"))

	keys := s.GetKeys("color")
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, string(k.ID))
	}
	sort.Strings(ids)
	require.Equal(t, []string{"a", "b"}, ids)

	require.Empty(t, s.GetKeys("nonexistent"))
}

func TestCodecRoundTrip(t *testing.T) {
	s := New()
	s.Set(block.Key{ID: []byte("k1"), Tag: "t"}, []byte("v1"))
	s.Set(block.Key{ID: []byte("k2")}, []byte("v2"))

	d := s.Delta()
	enc := EncodeDelta(d)
	dec, err := DecodeDelta(enc)
	require.NoError(t, err)
	require.Equal(t, d, dec)
}

func TestApplyUnsetMismatchIsInvariantViolation(t *testing.T) {
	s := New()
	k := block.Key{ID: []byte("k")}
	s.Set(k, []byte("v"))

	bad := Delta{{Op: OpUnset, Key: k, Value: []byte("not-the-live-value")}}
	err := s.Apply(bad)
	require.Error(t, err)
}
