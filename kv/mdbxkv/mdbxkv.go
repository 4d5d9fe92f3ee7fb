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

// Package mdbxkv adapts erigon-lib's MDBX-backed kv.RwDB onto this module's
// narrower preindex/kv contract. It is the only package in this module that
// imports erigon-lib/kv/mdbx directly; everything else (store, callcache)
// depends on preindex/kv's interfaces so a future backend only has to land
// here.
package mdbxkv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	emdbx "github.com/erigontech/erigon-lib/kv/mdbx"
	"github.com/gofrs/flock"

	"github.com/chainindex/preindex/kv"
	ekv "github.com/erigontech/erigon-lib/kv"
	log "github.com/erigontech/erigon-lib/log/v3"
)

// DefaultMapSize bounds how large the MDBX memory map is allowed to grow;
// triggers/state snapshots for a single deployment are small relative to
// erigon's own chaindata, so this module uses a much smaller default.
const DefaultMapSize = 8 * datasize.GB

// Open creates (or reopens) an MDBX environment at path with the named
// tables pre-registered, and returns it behind preindex/kv.RwDB. Open
// acquires an exclusive process lock on path/LOCK first: MDBX tolerates
// multiple reader processes but only one writer, and the same datadir is
// never meant to back two IndexWorker instances at once.
func Open(ctx context.Context, path string, tables []string, logger log.Logger) (kv.RwDB, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("mdbxkv: create %s: %w", path, err)
	}

	lock := flock.New(filepath.Join(path, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("mdbxkv: %s is already locked by another process", path)
	}

	tableCfg := ekv.TableCfg{}
	for _, t := range tables {
		tableCfg[t] = ekv.TableCfgItem{}
	}
	db, err := emdbx.NewMDBX(logger).
		Path(path).
		MapSize(DefaultMapSize).
		GrowthStep(16 * datasize.MB).
		WithTableCfg(func(ekv.TableCfg) ekv.TableCfg { return tableCfg }).
		Open(ctx)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	return &rwDB{db: db, lock: lock}, nil
}

type rwDB struct {
	db   ekv.RwDB
	lock *flock.Flock
}

func (d *rwDB) View(ctx context.Context, f func(tx kv.Tx) error) error {
	return d.db.View(ctx, func(t ekv.Tx) error { return f(&tx{t}) })
}

func (d *rwDB) Update(ctx context.Context, f func(tx kv.RwTx) error) error {
	return d.db.Update(ctx, func(t ekv.RwTx) error { return f(&rwTx{tx{t}, t}) })
}

func (d *rwDB) BeginRo(ctx context.Context) (kv.Tx, error) {
	t, err := d.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	return &tx{t}, nil
}

func (d *rwDB) BeginRw(ctx context.Context) (kv.RwTx, error) {
	t, err := d.db.BeginRw(ctx)
	if err != nil {
		return nil, err
	}
	return &rwTx{tx{t}, t}, nil
}

func (d *rwDB) Close() {
	d.db.Close()
	d.lock.Unlock()
}

type tx struct{ t ekv.Tx }

func (x *tx) Has(table string, key []byte) (bool, error) { return x.t.Has(table, key) }
func (x *tx) GetOne(table string, key []byte) ([]byte, error) {
	return x.t.GetOne(table, key)
}
func (x *tx) ForEach(table string, fromPrefix []byte, walker func(k, v []byte) error) error {
	return x.t.ForEach(table, fromPrefix, walker)
}
func (x *tx) Cursor(table string) (kv.Cursor, error) {
	c, err := x.t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return &cursor{c}, nil
}
func (x *tx) Rollback() { x.t.Rollback() }

type rwTx struct {
	tx
	t ekv.RwTx
}

func (x *rwTx) Put(table string, k, v []byte) error { return x.t.Put(table, k, v) }
func (x *rwTx) Delete(table string, k []byte) error { return x.t.Delete(table, k) }
func (x *rwTx) Commit() error                       { return x.t.Commit() }
func (x *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	c, err := x.t.RwCursor(table)
	if err != nil {
		return nil, err
	}
	return &rwCursor{cursor{c}, c}, nil
}

type cursor struct{ c ekv.Cursor }

func (c *cursor) First() ([]byte, []byte, error)         { return c.c.First() }
func (c *cursor) Seek(seek []byte) ([]byte, []byte, error) { return c.c.Seek(seek) }
func (c *cursor) SeekExact(key []byte) ([]byte, []byte, error) {
	return c.c.SeekExact(key)
}
func (c *cursor) Next() ([]byte, []byte, error) { return c.c.Next() }
func (c *cursor) Last() ([]byte, []byte, error) { return c.c.Last() }
func (c *cursor) Close()                        { c.c.Close() }

type rwCursor struct {
	cursor
	c ekv.RwCursor
}

func (c *rwCursor) Put(k, v []byte) error { return c.c.Put(k, v) }
func (c *rwCursor) Delete(k []byte) error { return c.c.Delete(k) }
