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

package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
)

// Uploader is the capability Flush dispatches the four CSVs through; it is
// preindex/objectstore.Store's Put method.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Flush serializes the current snapshot of all four counters to CSV and
// uploads each under {subgraphID}/{blockNumber}/{filename}.csv, clearing
// the counters atomically once the snapshot is taken (not after upload
// succeeds: a flush that fails mid-upload does not double-count on retry,
// it drops the tail, matching the BackgroundWriteFailed-style tradeoff
// elsewhere in this module).
func (r *Registry) Flush(ctx context.Context, up Uploader, subgraphID string, blockNumber int64) error {
	gas, ops, readB, writeB := r.snapshot()

	files := map[string][]byte{
		"gas.csv":         gasCSV(gas),
		"op.csv":          opCSV(ops),
		"read_bytes.csv":  byteCSV(readB),
		"write_bytes.csv": byteCSV(writeB),
	}

	for name, body := range files {
		key := fmt.Sprintf("%s/%d/%s", subgraphID, blockNumber, name)
		if err := up.Put(ctx, key, body); err != nil {
			return fmt.Errorf("metrics: flush %s: %w", name, err)
		}
	}
	return nil
}

func gasCSV(gas map[string]float64) []byte {
	methods := make([]string, 0, len(gas))
	for m := range gas {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"method", "gas"})
	for _, m := range methods {
		w.Write([]string{m, strconv.FormatFloat(gas[m], 'f', -1, 64)})
	}
	w.Flush()
	return buf.Bytes()
}

func opCSV(ops map[string]uint64) []byte {
	methods := make([]string, 0, len(ops))
	for m := range ops {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"method", "count"})
	for _, m := range methods {
		w.Write([]string{m, strconv.FormatUint(ops[m], 10)})
	}
	w.Flush()
	return buf.Bytes()
}

func byteCSV(m map[entityKey]uint64) []byte {
	keys := make([]entityKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityType != keys[j].entityType {
			return keys[i].entityType < keys[j].entityType
		}
		return keys[i].entityID < keys[j].entityID
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"entity", "id", "bytes"})
	for _, k := range keys {
		w.Write([]string{k.entityType, k.entityID, strconv.FormatUint(m[k], 10)})
	}
	w.Flush()
	return buf.Bytes()
}
