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

package callcache

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/perrors"
	"github.com/chainindex/preindex/xlog"
)

// backgroundWriteConcurrency is the fixed number of workers draining the
// write-back queue.
const backgroundWriteConcurrency = 8

// backgroundQueueDepth bounds how many pending write-backs may queue behind
// the fixed worker pool before SetCall starts dropping them. Admission
// (SetCall) and execution (the workers) are decoupled by this channel so a
// saturated queue never blocks the caller.
const backgroundQueueDepth = 4 * backgroundWriteConcurrency

type writeJob struct {
	logger xlog.Logger
	req    []byte
	blk    block.Ptr
	ret    []byte
}

// BufferedCallCache adds a single-block write-through buffer in front of an
// underlying durable CallCache. A handler's own writes within the current
// block are visible to its own reads immediately; the durable write happens
// on a fixed-size background worker pool and never blocks the caller: if
// the pool's queue is saturated, SetCall drops the write-back and logs it
// rather than waiting for room, matching BackgroundWriteFailed's
// logged-only policy.
type BufferedCallCache struct {
	underlying CallCache
	logger     xlog.Logger

	mu           sync.Mutex
	currentBlock block.Ptr
	hasBlock     bool
	buffer       map[string][]byte

	jobs chan writeJob
	wg   sync.WaitGroup
}

// New wraps underlying behind a single-block buffer and starts
// backgroundWriteConcurrency write-back workers. Call Close to stop them
// and wait for in-flight writes to drain.
func New(underlying CallCache, logger xlog.Logger) *BufferedCallCache {
	c := &BufferedCallCache{
		underlying: underlying,
		logger:     logger,
		buffer:     make(map[string][]byte),
		jobs:       make(chan writeJob, backgroundQueueDepth),
	}
	for i := 0; i < backgroundWriteConcurrency; i++ {
		c.wg.Add(1)
		go c.writeBackWorker()
	}
	return c
}

func (c *BufferedCallCache) writeBackWorker() {
	defer c.wg.Done()
	for job := range c.jobs {
		c.writeBackWithRetry(context.Background(), job.logger, job.req, job.blk, job.ret)
	}
}

// invalidateLocked clears the buffer if blk is not the block the buffer
// currently belongs to. Caller must hold c.mu.
func (c *BufferedCallCache) invalidateLocked(blk block.Ptr) {
	if c.hasBlock && c.currentBlock.Equal(blk) {
		return
	}
	c.buffer = make(map[string][]byte)
	c.currentBlock = blk
	c.hasBlock = true
}

// GetCall applies block-boundary invalidation, then serves from the
// in-memory buffer if present, falling back to the underlying cache and
// populating the buffer on a hit.
func (c *BufferedCallCache) GetCall(ctx context.Context, req []byte, blk block.Ptr) ([]byte, Source, bool, error) {
	c.mu.Lock()
	c.invalidateLocked(blk)
	if v, ok := c.buffer[string(req)]; ok {
		c.mu.Unlock()
		return v, SourceMemory, true, nil
	}
	c.mu.Unlock()

	v, src, found, err := c.underlying.GetCall(ctx, req, blk)
	if err != nil || !found {
		return nil, src, found, err
	}

	c.mu.Lock()
	c.invalidateLocked(blk)
	c.buffer[string(req)] = v
	c.mu.Unlock()

	return v, src, true, nil
}

// SetCall applies block-boundary invalidation, writes the buffer
// synchronously, and schedules the durable write on the background pool.
// Durable write failures are logged only and never surfaced to the caller.
func (c *BufferedCallCache) SetCall(ctx context.Context, logger xlog.Logger, req []byte, blk block.Ptr, ret []byte) error {
	c.mu.Lock()
	c.invalidateLocked(blk)
	c.buffer[string(req)] = append([]byte(nil), ret...)
	c.mu.Unlock()

	job := writeJob{
		logger: logger,
		req:    append([]byte(nil), req...),
		blk:    blk,
		ret:    append([]byte(nil), ret...),
	}
	select {
	case c.jobs <- job:
	default:
		logger.Warn(xlog.WithPrefix("callcache", "write-back queue saturated, dropping"),
			"block", blk.Number, "err", perrors.BackgroundWriteFailed)
	}
	return nil
}

// writeBackWithRetry retries a handful of short backoffs before giving up
// and logging; spec.md's policy is "logged only, never surfaced," backoff
// only reduces how often a transient blip becomes a visible log line.
func (c *BufferedCallCache) writeBackWithRetry(ctx context.Context, logger xlog.Logger, req []byte, blk block.Ptr, ret []byte) {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err := backoff.Retry(func() error {
		return c.underlying.SetCall(ctx, logger, req, blk, ret)
	}, bo)
	if err != nil {
		logger.Warn(xlog.WithPrefix("callcache", "background write-back failed"),
			"block", blk.Number, "err", perrors.BackgroundWriteFailed, "cause", err)
	}
}

// GetCallsInBlock delegates directly to the underlying cache; the buffer
// never serves this call.
func (c *BufferedCallCache) GetCallsInBlock(ctx context.Context, blk block.Ptr) ([]block.Item, error) {
	return c.underlying.GetCallsInBlock(ctx, blk)
}

// Close stops accepting new write-backs and waits for queued and in-flight
// ones to finish.
func (c *BufferedCallCache) Close() error {
	close(c.jobs)
	c.wg.Wait()
	return nil
}
