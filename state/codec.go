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
	"encoding/binary"
	"fmt"

	"github.com/chainindex/preindex/block"
)

// The wire format follows the same discipline erigon's own storage layer
// uses for its table values: fixed-width little-endian integers,
// length-prefixed byte/UTF-8 strings, and a single discriminator byte ahead
// of variant payloads. No reflection, no schema evolution — the layout is
// part of the durable contract between writer and reader.

func putUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("state codec: short buffer reading uint32")
	}
	return binary.LittleEndian.Uint32(b), b[4:], nil
}

func readBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, fmt.Errorf("state codec: short buffer reading %d bytes", n)
	}
	return rest[:n], rest[n:], nil
}

// EncodeKey writes k in the module's stable binary format.
func EncodeKey(k block.Key) []byte {
	buf := make([]byte, 0, 9+len(k.ID)+len(k.Tag))
	buf = putBytes(buf, k.ID)
	if k.Tagged() {
		buf = append(buf, 1)
		buf = putBytes(buf, []byte(k.Tag))
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeKey parses a key written by EncodeKey, returning the remaining
// bytes.
func DecodeKey(b []byte) (block.Key, []byte, error) {
	id, rest, err := readBytes(b)
	if err != nil {
		return block.Key{}, nil, err
	}
	if len(rest) < 1 {
		return block.Key{}, nil, fmt.Errorf("state codec: short buffer reading tag presence")
	}
	present := rest[0]
	rest = rest[1:]
	var tag string
	if present == 1 {
		tb, r2, err := readBytes(rest)
		if err != nil {
			return block.Key{}, nil, err
		}
		tag = string(tb)
		rest = r2
	}
	return block.Key{ID: append([]byte(nil), id...), Tag: tag}, rest, nil
}

// EncodeOperation writes a single StateOperation in the stable binary
// format: a 1-byte discriminator, the key, then the variant payload.
func EncodeOperation(op StateOperation) []byte {
	buf := make([]byte, 0, 32+len(op.Value)+len(op.PriorValue))
	buf = append(buf, byte(op.Op))
	buf = append(buf, EncodeKey(op.Key)...)
	switch op.Op {
	case OpSet:
		buf = putBytes(buf, op.Value)
		if op.HadPrior {
			buf = append(buf, 1)
			buf = putBytes(buf, op.PriorValue)
		} else {
			buf = append(buf, 0)
		}
	case OpUnset:
		buf = putBytes(buf, op.Value)
	}
	return buf
}

// DecodeOperation parses a single operation written by EncodeOperation,
// returning the remaining bytes.
func DecodeOperation(b []byte) (StateOperation, []byte, error) {
	if len(b) < 1 {
		return StateOperation{}, nil, fmt.Errorf("state codec: empty operation buffer")
	}
	tag := Op(b[0])
	rest := b[1:]
	key, rest, err := DecodeKey(rest)
	if err != nil {
		return StateOperation{}, nil, err
	}
	op := StateOperation{Op: tag, Key: key}
	switch tag {
	case OpSet:
		val, r2, err := readBytes(rest)
		if err != nil {
			return StateOperation{}, nil, err
		}
		op.Value = val
		rest = r2
		if len(rest) < 1 {
			return StateOperation{}, nil, fmt.Errorf("state codec: short buffer reading prior-presence")
		}
		hadPrior := rest[0]
		rest = rest[1:]
		if hadPrior == 1 {
			pv, r3, err := readBytes(rest)
			if err != nil {
				return StateOperation{}, nil, err
			}
			op.HadPrior = true
			op.PriorValue = pv
			rest = r3
		}
	case OpUnset:
		val, r2, err := readBytes(rest)
		if err != nil {
			return StateOperation{}, nil, err
		}
		op.Value = val
		rest = r2
	default:
		return StateOperation{}, nil, fmt.Errorf("state codec: unknown operation tag %d", tag)
	}
	return op, rest, nil
}

// EncodeDelta serializes an ordered operation sequence: a 4-byte count
// followed by each operation in turn.
func EncodeDelta(d Delta) []byte {
	buf := putUint32(nil, uint32(len(d)))
	for _, op := range d {
		buf = append(buf, EncodeOperation(op)...)
	}
	return buf
}

// DecodeDelta parses a delta written by EncodeDelta.
func DecodeDelta(b []byte) (Delta, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	d := make(Delta, 0, n)
	for i := uint32(0); i < n; i++ {
		var op StateOperation
		op, rest, err = DecodeOperation(rest)
		if err != nil {
			return nil, fmt.Errorf("state codec: operation %d: %w", i, err)
		}
		d = append(d, op)
	}
	return d, nil
}

// EncodeState serializes the full live item set of s (not the delta log):
// a 4-byte count followed by each (key, value) pair. Used to materialize
// State snapshots.
func EncodeState(s *State) []byte {
	buf := putUint32(nil, uint32(len(s.items)))
	for ik, v := range s.items {
		k := s.keys[ik]
		buf = append(buf, EncodeKey(k)...)
		buf = putBytes(buf, v)
	}
	return buf
}

// DecodeState parses a buffer written by EncodeState into a fresh State
// with an empty delta log (the state as it existed at snapshot time, before
// any further mutation).
func DecodeState(b []byte) (*State, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	st := New()
	for i := uint32(0); i < n; i++ {
		key, r2, err := DecodeKey(rest)
		if err != nil {
			return nil, fmt.Errorf("state codec: item %d key: %w", i, err)
		}
		val, r3, err := readBytes(r2)
		if err != nil {
			return nil, fmt.Errorf("state codec: item %d value: %w", i, err)
		}
		st.Set(key, val)
		rest = r3
	}
	st.Reset()
	return st, nil
}

// EncodeValue serializes common scalar Go values with the same stable
// encoding used for keys and deltas, for SetEncode callers that do not want
// to hand-roll their byte layout.
func EncodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return append([]byte(nil), x...), nil
	case string:
		return []byte(x), nil
	case bool:
		if x {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case uint64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], x)
		return tmp[:], nil
	case int64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(x))
		return tmp[:], nil
	case uint32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], x)
		return tmp[:], nil
	case int32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(x))
		return tmp[:], nil
	default:
		return nil, fmt.Errorf("state: EncodeValue: unsupported type %T", v)
	}
}
