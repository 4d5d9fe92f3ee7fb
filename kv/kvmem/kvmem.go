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

// Package kvmem is a pure in-memory preindex/kv.RwDB, used by this module's
// own tests in place of standing up a real MDBX environment per test case.
package kvmem

import (
	"context"
	"sort"
	"sync"

	"github.com/chainindex/preindex/kv"
)

// New returns an empty in-memory store with the given tables pre-created.
func New(tables []string) kv.RwDB {
	db := &memDB{tables: make(map[string]map[string][]byte)}
	for _, t := range tables {
		db.tables[t] = make(map[string][]byte)
	}
	return db
}

type memDB struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

func (d *memDB) View(ctx context.Context, f func(tx kv.Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return f(&memTx{db: d})
}

func (d *memDB) Update(ctx context.Context, f func(tx kv.RwTx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return f(&memRwTx{memTx{db: d}})
}

func (d *memDB) BeginRo(ctx context.Context) (kv.Tx, error) {
	d.mu.RLock()
	return &memTx{db: d, unlock: d.mu.RUnlock}, nil
}

func (d *memDB) BeginRw(ctx context.Context) (kv.RwTx, error) {
	d.mu.Lock()
	return &memRwTx{memTx{db: d, unlock: d.mu.Unlock}}, nil
}

func (d *memDB) Close() {}

type memTx struct {
	db     *memDB
	unlock func()
}

func (x *memTx) table(name string) map[string][]byte {
	t, ok := x.db.tables[name]
	if !ok {
		t = make(map[string][]byte)
		x.db.tables[name] = t
	}
	return t
}

func (x *memTx) Has(table string, key []byte) (bool, error) {
	_, ok := x.table(table)[string(key)]
	return ok, nil
}

func (x *memTx) GetOne(table string, key []byte) ([]byte, error) {
	v, ok := x.table(table)[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (x *memTx) ForEach(table string, fromPrefix []byte, walker func(k, v []byte) error) error {
	for _, k := range x.sortedKeys(table) {
		if len(k) < len(fromPrefix) || string(k[:len(fromPrefix)]) != string(fromPrefix) {
			continue
		}
		if err := walker([]byte(k), x.table(table)[k]); err != nil {
			return err
		}
	}
	return nil
}

func (x *memTx) sortedKeys(table string) []string {
	t := x.table(table)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (x *memTx) Cursor(table string) (kv.Cursor, error) {
	return &memCursor{tx: x, table: table}, nil
}

func (x *memTx) Rollback() {
	if x.unlock != nil {
		x.unlock()
	}
}

type memRwTx struct{ memTx }

func (x *memRwTx) Put(table string, k, v []byte) error {
	x.table(table)[string(k)] = append([]byte(nil), v...)
	return nil
}

func (x *memRwTx) Delete(table string, k []byte) error {
	delete(x.table(table), string(k))
	return nil
}

func (x *memRwTx) Commit() error {
	if x.unlock != nil {
		x.unlock()
	}
	return nil
}

func (x *memRwTx) RwCursor(table string) (kv.RwCursor, error) {
	return &memRwCursor{memCursor{tx: &x.memTx, table: table}}, nil
}

type memCursor struct {
	tx    *memTx
	table string
	keys  []string
	pos   int
}

func (c *memCursor) load() {
	if c.keys == nil {
		c.keys = c.tx.sortedKeys(c.table)
	}
}

func (c *memCursor) First() ([]byte, []byte, error) {
	c.load()
	c.pos = 0
	return c.current()
}

func (c *memCursor) current() ([]byte, []byte, error) {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil, nil
	}
	k := c.keys[c.pos]
	return []byte(k), c.tx.table(c.table)[k], nil
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte, error) {
	c.load()
	c.pos = sort.SearchStrings(c.keys, string(seek))
	return c.current()
}

func (c *memCursor) SeekExact(key []byte) ([]byte, []byte, error) {
	c.load()
	i := sort.SearchStrings(c.keys, string(key))
	if i >= len(c.keys) || c.keys[i] != string(key) {
		c.pos = len(c.keys)
		return nil, nil, nil
	}
	c.pos = i
	return c.current()
}

func (c *memCursor) Next() ([]byte, []byte, error) {
	c.load()
	c.pos++
	return c.current()
}

func (c *memCursor) Last() ([]byte, []byte, error) {
	c.load()
	c.pos = len(c.keys) - 1
	return c.current()
}

func (c *memCursor) Close() {}

type memRwCursor struct{ memCursor }

func (c *memRwCursor) Put(k, v []byte) error {
	c.tx.table(c.table)[string(k)] = append([]byte(nil), v...)
	c.keys = nil
	return nil
}

// Delete removes k. If k is the cursor's current key, pos is adjusted so a
// following Next() lands on the key that shifted into its place, matching
// the delete-while-walking idiom DeleteFrom relies on.
func (c *memRwCursor) Delete(k []byte) error {
	delete(c.tx.table(c.table), string(k))
	if c.keys == nil {
		return nil
	}
	for i, kk := range c.keys {
		if kk == string(k) {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			if i <= c.pos {
				c.pos--
			}
			break
		}
	}
	return nil
}
