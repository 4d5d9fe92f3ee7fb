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

// Package block holds the primitive identifiers the pre-indexing core
// passes between its components: block pointers, opaque block/trigger
// buffers, and the tagged state key.
package block

import "bytes"

// Ptr identifies a block by hash and number. Hash defines identity; number
// defines ordering. Two distinct hashes at the same number indicate a fork.
type Ptr struct {
	Hash   []byte
	Number int32
}

// Equal reports whether two pointers share the same hash and number.
func (p Ptr) Equal(o Ptr) bool {
	return p.Number == o.Number && bytes.Equal(p.Hash, o.Hash)
}

// Encoded is an opaque, immutable block buffer. The core never inspects its
// contents.
type Encoded []byte

// EncodedTriggers is an opaque, immutable trigger buffer produced by a
// transform and persisted by the store.
type EncodedTriggers []byte

// Key identifies a state item: an opaque id plus an optional UTF-8 tag.
// Two keys are equal iff both id and tag are equal. An empty Tag means
// untagged.
type Key struct {
	ID  []byte
	Tag string
}

// Equal reports whether two keys share the same id and tag.
func (k Key) Equal(o Key) bool {
	return k.Tag == o.Tag && bytes.Equal(k.ID, o.ID)
}

// Tagged reports whether the key carries a tag.
func (k Key) Tagged() bool {
	return k.Tag != ""
}

// Item is a materialized (key, value) pair, returned by enumeration calls
// that need the value alongside the key (e.g. CallCache.GetCallsInBlock).
type Item struct {
	Key   Key
	Value []byte
}
