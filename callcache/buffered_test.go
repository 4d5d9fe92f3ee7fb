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

package callcache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/callcache"
	"github.com/chainindex/preindex/xlog"
)

// memCallCache is a trivial in-memory CallCache stand-in for the durable
// layer, used so these tests exercise BufferedCallCache's own invalidation
// logic in isolation.
type memCallCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemCallCache() *memCallCache {
	return &memCallCache{items: make(map[string][]byte)}
}

func memKey(req []byte, blk block.Ptr) string {
	return string(req) + "\x00" + string(rune(blk.Number))
}

func (c *memCallCache) GetCall(ctx context.Context, req []byte, blk block.Ptr) ([]byte, callcache.Source, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[memKey(req, blk)]
	return v, callcache.SourceUnderlying, ok, nil
}

func (c *memCallCache) SetCall(ctx context.Context, logger xlog.Logger, req []byte, blk block.Ptr, ret []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[memKey(req, blk)] = append([]byte(nil), ret...)
	return nil
}

func (c *memCallCache) GetCallsInBlock(ctx context.Context, blk block.Ptr) ([]block.Item, error) {
	return nil, nil
}

func TestBufferedCallCacheReadYourWritesSameBlock(t *testing.T) {
	ctx := context.Background()
	under := newMemCallCache()
	c := callcache.New(under, xlog.Default())
	defer c.Close()

	blk := block.Ptr{Number: 1}
	req := []byte("req-A")

	require.NoError(t, c.SetCall(ctx, xlog.Default(), req, blk, []byte("v1")))

	v, src, found, err := c.GetCall(ctx, req, blk)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, callcache.SourceMemory, src)
	require.Equal(t, []byte("v1"), v)
}

func TestBufferedCallCacheBlockBoundaryInvalidation(t *testing.T) {
	ctx := context.Background()
	under := newMemCallCache()
	c := callcache.New(under, xlog.Default())

	req := []byte("req-A")
	b1 := block.Ptr{Number: 1}
	b2 := block.Ptr{Number: 2}

	require.NoError(t, c.SetCall(ctx, xlog.Default(), req, b1, []byte("v1")))

	v, src, found, err := c.GetCall(ctx, req, b1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, callcache.SourceMemory, src)
	require.Equal(t, []byte("v1"), v)

	// Crossing into b2 must not see b1's buffered write, since the
	// underlying cache never received the durable write for b2.
	_, _, found, err = c.GetCall(ctx, req, b2)
	require.NoError(t, err)
	require.False(t, found)

	// Drain the background write-back so the durable layer now holds v1
	// for b1, then prove the cross-block miss really cleared the buffer:
	// a fresh BufferedCallCache over the same underlying cache must find
	// b1's value via the underlying layer, not the (now-gone) buffer.
	require.NoError(t, c.Close())

	c2 := callcache.New(under, xlog.Default())
	defer c2.Close()
	v2, src2, found2, err := c2.GetCall(ctx, req, b1)
	require.NoError(t, err)
	require.True(t, found2)
	require.Equal(t, callcache.SourceUnderlying, src2)
	require.Equal(t, []byte("v1"), v2)
}

func TestBufferedCallCacheFallsBackToUnderlyingOnMiss(t *testing.T) {
	ctx := context.Background()
	under := newMemCallCache()
	blk := block.Ptr{Number: 5}
	req := []byte("req-B")
	require.NoError(t, under.SetCall(ctx, xlog.Default(), req, blk, []byte("from-underlying")))

	c := callcache.New(under, xlog.Default())
	defer c.Close()

	v, src, found, err := c.GetCall(ctx, req, blk)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, callcache.SourceUnderlying, src)
	require.Equal(t, []byte("from-underlying"), v)

	// A second read for the same request/block now comes from the buffer.
	_, src2, found2, err := c.GetCall(ctx, req, blk)
	require.NoError(t, err)
	require.True(t, found2)
	require.Equal(t, callcache.SourceMemory, src2)
}

// blockingCallCache's SetCall stalls until released, so tests can saturate
// BufferedCallCache's write-back queue deterministically.
type blockingCallCache struct {
	*memCallCache
	release chan struct{}
}

func newBlockingCallCache() *blockingCallCache {
	return &blockingCallCache{memCallCache: newMemCallCache(), release: make(chan struct{})}
}

func (c *blockingCallCache) SetCall(ctx context.Context, logger xlog.Logger, req []byte, blk block.Ptr, ret []byte) error {
	<-c.release
	return c.memCallCache.SetCall(ctx, logger, req, blk, ret)
}

func TestBufferedCallCacheSetCallNeverBlocksWhenQueueSaturated(t *testing.T) {
	ctx := context.Background()
	under := newBlockingCallCache()
	c := callcache.New(under, xlog.Default())

	// Flood well past the fixed worker count plus queue depth so every
	// worker is parked waiting on under.release and the queue is full.
	const calls = 64
	done := make(chan struct{})
	go func() {
		for i := 0; i < calls; i++ {
			blk := block.Ptr{Number: int32(i)}
			require.NoError(t, c.SetCall(ctx, xlog.Default(), []byte("req"), blk, []byte("v")))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SetCall blocked the caller instead of dropping excess write-backs")
	}

	close(under.release)
	require.NoError(t, c.Close())
}

func TestBufferedCallCacheIsolationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		under := newMemCallCache()
		c := callcache.New(under, xlog.Default())
		defer c.Close()

		ctx := context.Background()
		req := []byte("req")
		b1 := block.Ptr{Number: rapid.Int32Range(0, 100).Draw(rt, "b1")}
		delta := rapid.IntRange(1, 50).Draw(rt, "delta")
		b2 := block.Ptr{Number: b1.Number + int32(delta)}

		require.NoError(t, c.SetCall(ctx, xlog.Default(), req, b1, []byte("v1")))

		v, src, found, err := c.GetCall(ctx, req, b2)
		require.NoError(t, err)
		if found {
			require.NotEqual(t, callcache.SourceMemory, src, "a cross-block read must never be served from the buffer")
			require.NotEqual(t, []byte("v1"), v)
		}
	})
}
