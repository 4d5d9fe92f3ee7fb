// Copyright 2021 The Erigon Authors
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

package kv

// DBSchemaVersion tracks on-disk layout changes for the tables below.
// 1.0 - initial layout: triggers/cursor/lsb/snapshot/deltalog, keyed by
//
//	deploymentHash||blockNumber.
var DBSchemaVersion = struct{ Major, Minor, Patch uint32 }{Major: 1, Minor: 0, Patch: 0}

const (
	// Triggers holds persisted trigger output per block.
	// key   - deploymentHash + block_num_u64 (big-endian)
	// value - EncodedTriggers
	Triggers = "Triggers"

	// CursorTable holds the latest resumable cursor per deployment segment.
	// key   - deploymentHash
	// value - opaque cursor bytes
	CursorTable = "Cursor"

	// LSB holds the last-stable-block watermark per deployment.
	// key   - deploymentHash
	// value - block_num_u64 (big-endian)
	LSB = "LSB"

	// Snapshot holds fully-materialized State snapshots, compressed, taken
	// according to the configured snapshot policy.
	// key   - deploymentHash + block_num_u64 (big-endian)
	// value - zstd-compressed encoded State
	Snapshot = "Snapshot"

	// DeltaLog holds the per-block StateDelta, used to replay forward from
	// the nearest snapshot when reconstructing state as of an arbitrary
	// block number.
	// key   - deploymentHash + block_num_u64 (big-endian)
	// value - encoded StateDelta (see state.EncodeDelta)
	DeltaLog = "DeltaLog"
)

// Tables lists every named table this module opens; a backend should create
// exactly these and no others.
var Tables = []string{Triggers, CursorTable, LSB, Snapshot, DeltaLog}
