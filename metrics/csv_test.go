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

package metrics_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/preindex/metrics"
)

type capturingUploader struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (u *capturingUploader) Put(ctx context.Context, key string, body []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.puts == nil {
		u.puts = make(map[string][]byte)
	}
	u.puts[key] = append([]byte(nil), body...)
	return nil
}

func TestFlushWritesAllFourFilesAndClearsCounters(t *testing.T) {
	ctx := context.Background()
	r := metrics.New()
	r.TrackGas("handleTransfer", 21000)
	r.TrackOp("handleTransfer")
	r.TrackReadBytes("Account", "0xabc", 128)
	r.TrackWriteBytes("Account", "0xabc", 64)

	up := &capturingUploader{}
	require.NoError(t, r.Flush(ctx, up, "subgraph-1", 100))

	require.Contains(t, up.puts, "subgraph-1/100/gas.csv")
	require.Contains(t, up.puts, "subgraph-1/100/op.csv")
	require.Contains(t, up.puts, "subgraph-1/100/read_bytes.csv")
	require.Contains(t, up.puts, "subgraph-1/100/write_bytes.csv")

	require.Contains(t, string(up.puts["subgraph-1/100/gas.csv"]), "method,gas")
	require.Contains(t, string(up.puts["subgraph-1/100/gas.csv"]), "handleTransfer,21000")
	require.Contains(t, string(up.puts["subgraph-1/100/read_bytes.csv"]), "entity,id,bytes")
	require.Contains(t, string(up.puts["subgraph-1/100/read_bytes.csv"]), "Account,0xabc,128")

	// A second, immediate flush must see empty counters: the first flush
	// cleared them atomically.
	up2 := &capturingUploader{}
	require.NoError(t, r.Flush(ctx, up2, "subgraph-1", 101))
	require.Equal(t, "method,gas\n", string(up2.puts["subgraph-1/101/gas.csv"]))
}
