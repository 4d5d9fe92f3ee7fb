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

// Package store implements the durable, segment-aware IndexerStore: trigger
// persistence, cursor tracking, the LSB watermark, and (in state_reader.go
// and snapshot.go) state reconstruction and snapshot materialization.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/chain"
	ikv "github.com/chainindex/preindex/kv"
	"github.com/chainindex/preindex/perrors"
	"github.com/chainindex/preindex/state"
	"github.com/chainindex/preindex/xlog"
)

// Item is one entry yielded by StreamFrom.
type Item struct {
	BlockPtr block.Ptr
	Triggers block.EncodedTriggers
}

// Store is the durable IndexerStore. The zero value is not usable; build
// one with New.
type Store struct {
	db     ikv.RwDB
	logger xlog.Logger
	policy SnapshotPolicy

	mu      sync.Mutex
	recent  *btree.BTreeG[recentEntry]
	waiters map[string][]chan struct{}
}

type recentEntry struct {
	key      string // deployment + big-endian block number
	ptr      block.Ptr
	triggers block.EncodedTriggers
}

func recentLess(a, b recentEntry) bool { return a.key < b.key }

// New wraps db (opened with kv.Tables already registered) into a Store.
func New(db ikv.RwDB, logger xlog.Logger, policy SnapshotPolicy) *Store {
	return &Store{
		db:      db,
		logger:  logger,
		policy:  policy,
		recent:  btree.NewG(32, recentLess),
		waiters: make(map[string][]chan struct{}),
	}
}

func blockKey(deployment []byte, n int64) []byte {
	key := make([]byte, 0, len(deployment)+8)
	key = append(key, deployment...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return append(key, b[:]...)
}

// encodeTriggerValue prefixes triggers with the block hash so a later Set
// can detect a conflicting write at the same number.
func encodeTriggerValue(hash []byte, triggers block.EncodedTriggers) []byte {
	buf := make([]byte, 0, 4+len(hash)+len(triggers))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(hash)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, hash...)
	buf = append(buf, triggers...)
	return buf
}

func decodeTriggerValue(v []byte) (hash []byte, triggers block.EncodedTriggers, err error) {
	if len(v) < 4 {
		return nil, nil, fmt.Errorf("store: short trigger value")
	}
	n := binary.LittleEndian.Uint32(v)
	v = v[4:]
	if uint32(len(v)) < n {
		return nil, nil, fmt.Errorf("store: short trigger value hash")
	}
	return v[:n], block.EncodedTriggers(v[n:]), nil
}

// GetLastStableBlock returns the LSB watermark for deployment, if any.
func (s *Store) GetLastStableBlock(ctx context.Context, deployment []byte) (int64, bool, error) {
	var n int64
	var found bool
	err := s.db.View(ctx, func(tx ikv.Tx) error {
		v, err := tx.GetOne(ikv.LSB, deployment)
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		found = true
		n = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return n, found, err
}

// SetLastStableBlock atomically raises the LSB watermark to n. A decrease
// is an invariant violation.
func (s *Store) SetLastStableBlock(ctx context.Context, deployment []byte, n int64) error {
	return s.db.Update(ctx, func(tx ikv.RwTx) error {
		cur, err := tx.GetOne(ikv.LSB, deployment)
		if err != nil {
			return err
		}
		if cur != nil {
			curN := int64(binary.BigEndian.Uint64(cur))
			if n < curN {
				return perrors.Invariantf("store: lsb regression %d -> %d", curN, n)
			}
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(n))
		return tx.Put(ikv.LSB, deployment, b[:])
	})
}

// Get returns the persisted block pointer (hash included) and triggers for
// block n, if present.
func (s *Store) Get(ctx context.Context, deployment []byte, n int64) (block.Ptr, block.EncodedTriggers, bool, error) {
	key := string(blockKey(deployment, n))
	s.mu.Lock()
	if e, ok := s.recent.Get(recentEntry{key: key}); ok {
		s.mu.Unlock()
		return e.ptr, e.triggers, true, nil
	}
	s.mu.Unlock()

	var ptr block.Ptr
	var triggers block.EncodedTriggers
	var found bool
	err := s.db.View(ctx, func(tx ikv.Tx) error {
		v, err := tx.GetOne(ikv.Triggers, []byte(key))
		if err != nil || v == nil {
			return err
		}
		hash, t, err := decodeTriggerValue(v)
		if err != nil {
			return err
		}
		found = true
		ptr = block.Ptr{Hash: hash, Number: int32(n)}
		triggers = t
		return nil
	})
	return ptr, triggers, found, err
}

// Set persists the triggers for blockPtr.Number and the delta state
// accumulated since the previous Set, failing with Conflict if a different
// hash was already written at that number. On success, the delta log on st
// is reset.
func (s *Store) Set(ctx context.Context, deployment []byte, ptr block.Ptr, st *state.State, triggers block.EncodedTriggers) error {
	key := blockKey(deployment, int64(ptr.Number))
	delta := st.Delta()
	encDelta := state.EncodeDelta(delta)

	err := s.db.Update(ctx, func(tx ikv.RwTx) error {
		existing, err := tx.GetOne(ikv.Triggers, key)
		if err != nil {
			return err
		}
		if existing != nil {
			existingHash, _, err := decodeTriggerValue(existing)
			if err != nil {
				return err
			}
			if !bytes.Equal(existingHash, ptr.Hash) {
				return perrors.Conflictf("store: conflicting hash at block %d", ptr.Number)
			}
		}
		if err := tx.Put(ikv.Triggers, key, encodeTriggerValue(ptr.Hash, triggers)); err != nil {
			return err
		}
		if err := tx.Put(ikv.DeltaLog, key, encDelta); err != nil {
			return err
		}
		return s.policy.maybeSnapshot(tx, deployment, ptr.Number, st)
	})
	if err != nil {
		return err
	}
	st.Reset()

	s.mu.Lock()
	s.recent.ReplaceOrInsert(recentEntry{key: string(key), ptr: ptr, triggers: triggers})
	s.notifyLocked(string(deployment))
	s.mu.Unlock()
	return nil
}

// SetCursor persists the resumable cursor for a deployment segment.
func (s *Store) SetCursor(ctx context.Context, deployment []byte, c chain.Cursor) error {
	return s.db.Update(ctx, func(tx ikv.RwTx) error {
		return tx.Put(ikv.CursorTable, deployment, []byte(c))
	})
}

// GetCursor returns the last persisted cursor for a deployment, if any.
func (s *Store) GetCursor(ctx context.Context, deployment []byte) (chain.Cursor, bool, error) {
	var c chain.Cursor
	var found bool
	err := s.db.View(ctx, func(tx ikv.Tx) error {
		v, err := tx.GetOne(ikv.CursorTable, deployment)
		if err != nil || v == nil {
			return err
		}
		found = true
		c = chain.Cursor(v)
		return nil
	})
	return c, found, err
}

// DeleteFrom removes persisted triggers and delta-log entries for every
// block number >= n within deployment. Used by the pipeline's Revert
// handling.
func (s *Store) DeleteFrom(ctx context.Context, deployment []byte, n int64) error {
	err := s.db.Update(ctx, func(tx ikv.RwTx) error {
		for _, table := range []string{ikv.Triggers, ikv.DeltaLog, ikv.Snapshot} {
			cur, err := tx.RwCursor(table)
			if err != nil {
				return err
			}
			from := blockKey(deployment, n)
			for k, _, err := cur.Seek(from); k != nil; k, _, err = cur.Next() {
				if err != nil {
					cur.Close()
					return err
				}
				if len(k) < len(deployment) || !bytes.Equal(k[:len(deployment)], deployment) {
					break
				}
				if err := cur.Delete(k); err != nil {
					cur.Close()
					return err
				}
			}
			cur.Close()
		}
		return nil
	})
	if err != nil {
		return err
	}

	prefix := string(deployment)
	from := string(blockKey(deployment, n))
	s.mu.Lock()
	var stale []recentEntry
	s.recent.AscendGreaterOrEqual(recentEntry{key: from}, func(e recentEntry) bool {
		if len(e.key) < len(prefix) || e.key[:len(prefix)] != prefix {
			return false
		}
		stale = append(stale, e)
		return true
	})
	for _, e := range stale {
		s.recent.Delete(e)
	}
	s.mu.Unlock()
	return nil
}

// DeltaAt returns the persisted StateDelta for block number n within
// deployment, or nil if none is recorded there.
func (s *Store) DeltaAt(ctx context.Context, deployment []byte, n int64) (state.Delta, error) {
	var delta state.Delta
	err := s.db.View(ctx, func(tx ikv.Tx) error {
		v, err := tx.GetOne(ikv.DeltaLog, blockKey(deployment, n))
		if err != nil || v == nil {
			return err
		}
		d, err := state.DecodeDelta(v)
		if err != nil {
			return err
		}
		delta = d
		return nil
	})
	return delta, err
}

func (s *Store) notifyLocked(deployment string) {
	for _, ch := range s.waiters[deployment] {
		close(ch)
	}
	delete(s.waiters, deployment)
}

func (s *Store) subscribe(deployment string) chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.waiters[deployment] = append(s.waiters[deployment], ch)
	s.mu.Unlock()
	return ch
}

// StreamFrom pushes persisted items with consecutive numbers starting at
// from in ascending order into out, then continues pushing newly-durable
// items as they arrive until ctx is cancelled. It waits at the first number
// that has no persisted item; items beyond that gap are not pushed until
// the gap is filled. The Go idiom here replaces "until the
// sender is closed": callers stop the stream by cancelling ctx, since Go
// has no portable way to observe a receiver closing a send-only channel.
func (s *Store) StreamFrom(ctx context.Context, deployment []byte, from int64, out chan<- Item) error {
	n := from
	for {
		ptr, triggers, found, err := s.Get(ctx, deployment, n)
		if err != nil {
			return err
		}
		if found {
			select {
			case out <- Item{BlockPtr: ptr, Triggers: triggers}:
			case <-ctx.Done():
				return ctx.Err()
			}
			n++
			continue
		}
		wait := s.subscribe(string(deployment))
		// Re-check after subscribing: a Set that landed between the Get
		// above and subscribe has already notified, and would not wake us.
		_, _, found, err = s.Get(ctx, deployment, n)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
