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

// Package config holds the runtime configuration values IndexWorker and
// BufferedCallCache need: the reorg threshold, worker fan-out, snapshot
// frequency, and object-store destination. This is not a CLI surface
// (spec.md names CLI/API surfaces as a non-goal); it is a plain struct a
// host process loads once at startup.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level runtime configuration.
type Config struct {
	// ReorgThreshold is subtracted from the chain head to derive the
	// effective head IndexWorker.RunMany stops at.
	ReorgThreshold int32 `toml:"reorg_threshold"`

	// Workers is the default fan-out for IndexWorker.RunMany.
	Workers int `toml:"workers"`

	// SnapshotEveryNBlocks configures store.EveryNBlocks; 0 disables
	// snapshotting (store.Never).
	SnapshotEveryNBlocks uint32 `toml:"snapshot_every_n_blocks"`

	// CallCacheHotEntries bounds the optional in-memory LRU in front of
	// the durable call cache. 0 disables it.
	CallCacheHotEntries int `toml:"call_cache_hot_entries"`

	// MDBXMapSize is the configured MDBX memory-map size. mdbxkv.Open does
	// not take it: Open always uses mdbxkv.DefaultMapSize.
	MDBXMapSize datasize.ByteSize `toml:"mdbx_map_size"`

	// ObjectStoreURL is the base URL the metrics CSV flush PUTs under.
	ObjectStoreURL string `toml:"object_store_url"`
}

// Default returns the configuration this module ships with absent an
// override file.
func Default() Config {
	return Config{
		ReorgThreshold:       200,
		Workers:              4,
		SnapshotEveryNBlocks: 1000,
		CallCacheHotEntries:  4096,
		MDBXMapSize:          8 * datasize.GB,
	}
}

// Load reads and parses a TOML configuration file at path, keeping
// Default's value for any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
