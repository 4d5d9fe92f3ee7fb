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

// Package metrics tracks gas/op/byte counters for the pre-indexing core,
// exposing them live via prometheus/client_golang and periodically via a
// CSV flush to object storage.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gasCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preindex",
		Name:      "gas_total",
		Help:      "Cumulative gas consumed per handler method.",
	}, []string{"method"})

	opCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preindex",
		Name:      "op_total",
		Help:      "Cumulative operation count per handler method.",
	}, []string{"method"})

	readBytesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preindex",
		Name:      "read_bytes_total",
		Help:      "Cumulative bytes read per entity.",
	}, []string{"entity_type", "entity_id"})

	writeBytesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preindex",
		Name:      "write_bytes_total",
		Help:      "Cumulative bytes written per entity.",
	}, []string{"entity_type", "entity_id"})
)

func init() {
	prometheus.MustRegister(gasCounter, opCounter, readBytesCounter, writeBytesCounter)
}

// Registry accumulates the flush-able form of the four counters in
// parallel with the live prometheus series, since a CSV flush needs to
// read-then-clear a snapshot atomically and prometheus counters cannot be
// reset selectively.
type Registry struct {
	mu         sync.RWMutex
	gas        map[string]float64
	ops        map[string]uint64
	readBytes  map[entityKey]uint64
	writeBytes map[entityKey]uint64
}

type entityKey struct {
	entityType string
	entityID   string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		gas:        make(map[string]float64),
		ops:        make(map[string]uint64),
		readBytes:  make(map[entityKey]uint64),
		writeBytes: make(map[entityKey]uint64),
	}
}

// TrackGas adds gas to method's running total.
func (r *Registry) TrackGas(method string, gas float64) {
	gasCounter.WithLabelValues(method).Add(gas)

	r.mu.Lock()
	r.gas[method] += gas
	r.mu.Unlock()
}

// TrackOp increments method's op count by one.
func (r *Registry) TrackOp(method string) {
	opCounter.WithLabelValues(method).Inc()

	r.mu.Lock()
	r.ops[method]++
	r.mu.Unlock()
}

// TrackReadBytes adds n to (entityType, entityID)'s read total.
func (r *Registry) TrackReadBytes(entityType, entityID string, n uint64) {
	readBytesCounter.WithLabelValues(entityType, entityID).Add(float64(n))

	r.mu.Lock()
	r.readBytes[entityKey{entityType, entityID}] += n
	r.mu.Unlock()
}

// TrackWriteBytes adds n to (entityType, entityID)'s write total.
func (r *Registry) TrackWriteBytes(entityType, entityID string, n uint64) {
	writeBytesCounter.WithLabelValues(entityType, entityID).Add(float64(n))

	r.mu.Lock()
	r.writeBytes[entityKey{entityType, entityID}] += n
	r.mu.Unlock()
}

// snapshot captures and clears all four counters atomically, for Flush.
func (r *Registry) snapshot() (gas map[string]float64, ops map[string]uint64, readB, writeB map[entityKey]uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gas, r.gas = r.gas, make(map[string]float64)
	ops, r.ops = r.ops, make(map[string]uint64)
	readB, r.readBytes = r.readBytes, make(map[entityKey]uint64)
	writeB, r.writeBytes = r.writeBytes, make(map[entityKey]uint64)
	return
}
