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

// Package durablecache is the mdbxkv-backed CallCache BufferedCallCache
// wraps: one table keyed by blockNumber||req, with an optional in-memory
// LRU in front of it for contract calls that repeat across nearby blocks.
package durablecache

import (
	"context"
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/callcache"
	ikv "github.com/chainindex/preindex/kv"
	"github.com/chainindex/preindex/xlog"
)

// Table is the table name this cache stores into. A backend opened for
// durablecache must register it alongside preindex/kv's own Tables; use
// AllTables to build that combined list.
const Table = "CallCache"

// AllTables returns preindex/kv.Tables plus Table, for a host process that
// opens one backend shared by both the store and the durable call cache.
func AllTables() []string {
	return append(append([]string{}, ikv.Tables...), Table)
}

// Cache is the durable, mdbxkv-backed CallCache implementation.
type Cache struct {
	db  ikv.RwDB
	hot *lru.Cache[string, []byte]
}

// New wraps db. hotSize is the capacity of the optional in-memory read
// cache in front of the durable table; 0 disables it.
func New(db ikv.RwDB, hotSize int) (*Cache, error) {
	c := &Cache{db: db}
	if hotSize > 0 {
		hot, err := lru.New[string, []byte](hotSize)
		if err != nil {
			return nil, err
		}
		c.hot = hot
	}
	return c, nil
}

func callKey(blk block.Ptr, req []byte) []byte {
	key := make([]byte, 0, 4+len(req))
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(blk.Number))
	key = append(key, b[:]...)
	return append(key, req...)
}

func (c *Cache) GetCall(ctx context.Context, req []byte, blk block.Ptr) ([]byte, callcache.Source, bool, error) {
	key := callKey(blk, req)
	if c.hot != nil {
		if v, ok := c.hot.Get(string(key)); ok {
			return v, callcache.SourceUnderlying, true, nil
		}
	}

	var v []byte
	var found bool
	err := c.db.View(ctx, func(tx ikv.Tx) error {
		val, err := tx.GetOne(Table, key)
		if err != nil || val == nil {
			return err
		}
		found = true
		v = append([]byte(nil), val...)
		return nil
	})
	if err != nil || !found {
		return nil, callcache.SourceUnderlying, false, err
	}
	if c.hot != nil {
		c.hot.Add(string(key), v)
	}
	return v, callcache.SourceUnderlying, true, nil
}

func (c *Cache) SetCall(ctx context.Context, logger xlog.Logger, req []byte, blk block.Ptr, ret []byte) error {
	key := callKey(blk, req)
	err := c.db.Update(ctx, func(tx ikv.RwTx) error {
		return tx.Put(Table, key, ret)
	})
	if err != nil {
		return err
	}
	if c.hot != nil {
		c.hot.Add(string(key), append([]byte(nil), ret...))
	}
	return nil
}

func (c *Cache) GetCallsInBlock(ctx context.Context, blk block.Ptr) ([]block.Item, error) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(blk.Number))

	var items []block.Item
	err := c.db.View(ctx, func(tx ikv.Tx) error {
		return tx.ForEach(Table, prefix[:], func(k, v []byte) error {
			req := append([]byte(nil), k[4:]...)
			items = append(items, block.Item{Key: block.Key{ID: req}, Value: append([]byte(nil), v...)})
			return nil
		})
	})
	return items, err
}
