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

// Package kv declares the narrow transactional key-value capability the
// store and call cache are built on, mirroring erigon-lib/kv's shape
// trimmed to the handful of operations this module actually needs. Backends
// (mdbxkv, an in-memory fake for tests) implement this contract; callers
// never import a concrete backend directly outside of wiring code.
package kv

import "context"

// Getter is the read surface of a transaction.
type Getter interface {
	Has(table string, key []byte) (bool, error)
	GetOne(table string, key []byte) (val []byte, err error)
	ForEach(table string, fromPrefix []byte, walker func(k, v []byte) error) error
	Cursor(table string) (Cursor, error)
}

// Putter is the write surface of a transaction.
type Putter interface {
	Put(table string, k, v []byte) error
	Delete(table string, k []byte) error
}

// Tx is a read-only transaction. A Tx is not safe for concurrent use.
type Tx interface {
	Getter
	Rollback()
}

// RwTx is a read-write transaction.
type RwTx interface {
	Tx
	Putter
	RwCursor(table string) (RwCursor, error)
	Commit() error
}

// Cursor walks a table in key order.
type Cursor interface {
	First() ([]byte, []byte, error)
	Seek(seek []byte) ([]byte, []byte, error)
	SeekExact(key []byte) ([]byte, []byte, error)
	Next() ([]byte, []byte, error)
	Last() ([]byte, []byte, error)
	Close()
}

// RwCursor additionally allows mutating the table it walks.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k []byte) error
}

// RoDB is a read-only handle to a KV store.
type RoDB interface {
	View(ctx context.Context, f func(tx Tx) error) error
	BeginRo(ctx context.Context) (Tx, error)
	Close()
}

// RwDB is a read-write handle to a KV store.
type RwDB interface {
	RoDB
	Update(ctx context.Context, f func(tx RwTx) error) error
	BeginRw(ctx context.Context) (RwTx, error)
}
