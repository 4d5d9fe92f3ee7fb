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

// Package worker implements IndexWorker: partitioning one block range into
// per-segment pipelines, running them concurrently, and advancing the LSB
// watermark once every segment has joined successfully.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chainindex/preindex/block"
	"github.com/chainindex/preindex/chain"
	"github.com/chainindex/preindex/perrors"
	"github.com/chainindex/preindex/pipeline"
	"github.com/chainindex/preindex/store"
	"github.com/chainindex/preindex/transform"
	"github.com/chainindex/preindex/xlog"
)

// Chunk is a contiguous, closed block range [First, Last].
type Chunk struct {
	First int32
	Last  int32 // inclusive
}

// IndexWorker partitions, fans out, and joins pipeline segments for one
// deployment.
type IndexWorker struct {
	Deployment     []byte
	Schema         string
	Blockchain     chain.Blockchain
	Transform      transform.BlockTransform
	Store          *store.Store
	Logger         xlog.Logger
	ReorgThreshold int32
}

// RunMany implements run_many: partitions [startBlock, stop) into workers
// contiguous chunks, runs one pipeline per chunk concurrently, and advances
// the LSB watermark to stop only if every chunk's pipeline terminates Ok.
func (w *IndexWorker) RunMany(ctx context.Context, startBlock int32, stopBlock *int32, filter any, apiVersion string, workers int) error {
	if workers == 0 {
		return perrors.InvalidArgumentf("worker: workers must be > 0")
	}

	head, found, err := w.Blockchain.ChainHeadPtr(ctx)
	if err != nil {
		return err
	}
	if !found {
		return perrors.InvalidArgumentf("worker: chain head unavailable")
	}

	effectiveHead := head.Number - w.ReorgThreshold
	stop := effectiveHead
	if stopBlock != nil && *stopBlock < stop {
		stop = *stopBlock
	}

	if startBlock == stop {
		return w.Store.SetLastStableBlock(ctx, w.Deployment, int64(stop))
	}

	chunks := Partition(startBlock, stop, workers)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks {
		c := c
		g.Go(func() error {
			return w.runChunk(gctx, c, filter, apiVersion)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return w.Store.SetLastStableBlock(ctx, w.Deployment, int64(stop))
}

func (w *IndexWorker) runChunk(ctx context.Context, c Chunk, filter any, apiVersion string) error {
	stop := c.Last + 1
	tracker := chain.Tracker{
		Schema:     w.Schema,
		StartBlock: c.First,
		StopBlock:  &stop,
	}

	stream, err := w.Blockchain.NewBlockStream(ctx, string(w.Deployment), tracker, []block.Ptr{{Number: c.First}}, filter, apiVersion)
	if err != nil {
		return err
	}
	defer stream.Close()

	p := pipeline.New(w.Deployment, &stop, stream, w.Transform, w.Store, w.Logger)
	res := p.Run(ctx)
	if res.Status == pipeline.TerminatedErr {
		return res.Err
	}
	return nil
}

// Partition splits [start, stop) into exactly workers contiguous,
// non-overlapping chunks by even division; the remainder is absorbed into
// the last chunk. If the range is smaller than workers, one worker of size
// one is launched per block instead.
func Partition(start, stop int32, workers int) []Chunk {
	total := int(stop - start)
	if total <= 0 {
		return nil
	}
	if total < workers {
		workers = total
	}

	size := total / workers
	remainder := total % workers

	chunks := make([]Chunk, 0, workers)
	cur := start
	for i := 0; i < workers; i++ {
		n := size
		if i == workers-1 {
			n += remainder
		}
		chunks = append(chunks, Chunk{First: cur, Last: cur + int32(n) - 1})
		cur += int32(n)
	}
	return chunks
}
