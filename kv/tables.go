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

package kv

import "sort"

// Column tags. Each 3-byte tag below names its own table in the backend,
// and records in that table are keyed by the sub_key alone; the tag is not
// prepended to the key. See each constant's doc for the sub_key shape and
// which logical DB (hot/cold/blob) the column lives in.
const (
	// BeaconBlock: sub_key = 32-byte block root; value = serialized blinded
	// block. Hot DB.
	BeaconBlock = "bb1"

	// BeaconBlockFrozen: sub_key = be_u64(slot); value = compressed
	// serialized blinded block. Cold DB.
	BeaconBlockFrozen = "bb2"

	// BeaconBlockRoots: sub_key = be_u64(slot); value = 32-byte block root.
	// Cold DB; canonical chain index.
	BeaconBlockRoots = "bbr"

	// ColdStateRoots: sub_key = be_u64(slot); value = 32-byte state root.
	// Cold DB; the companion slot->state_root index,
	// used by cold reconstruction and the forwards state-roots iterator.
	ColdStateRoots = "csr"

	// ExecPayload: sub_key = 32-byte block root; value = serialized
	// execution payload. Hot DB, pruned after finalization.
	ExecPayload = "exp"

	// BeaconBlob: sub_key = 32-byte block root; value = serialized blob
	// sidecar list. Blob DB.
	BeaconBlob = "bbl"

	// BeaconState: sub_key = 32-byte state root; value = serialized full
	// state. Hot or cold DB.
	BeaconState = "bs1"

	// BeaconStateSnapshot: sub_key = be_u64(slot); value = compressed
	// serialized full state. Cold DB.
	BeaconStateSnapshot = "bs2"

	// BeaconStateDiff: sub_key = 32-byte state root (hot) or be_u64(slot)
	// (cold); value = serialized HDiff.
	BeaconStateDiff = "bsd"

	// BeaconStateSummary: sub_key = 32-byte state root; value = hot or
	// cold state summary.
	BeaconStateSummary = "bss"

	// BeaconStateTemporary: sub_key = 32-byte state root; value = empty
	// flag marking a state as mid-write (used to detect torn writes on
	// restart).
	BeaconStateTemporary = "bst"

	// BeaconMeta holds singletons under fixed keys: schema version,
	// config, split, anchor info, blob info, compaction timestamp.
	BeaconMeta = "bm1"
)

// Chunked-vector field tags, one per fixed-length per-slot/per-epoch vector
// field; sub_key = be_u64(chunk_index).
const (
	ChunkBlockRoots      = "cv1"
	ChunkStateRoots      = "cv2"
	ChunkRandaoMixes     = "cv3"
	ChunkHistoricalRoots = "cv4"
	ChunkActiveIndexRoot = "cv5"
)

// Fixed keys within BeaconMeta.
var (
	MetaKeySchemaVersion = []byte("schema_version")
	MetaKeyConfig        = []byte("config")
	MetaKeySplit         = []byte("split")
	MetaKeyAnchorInfo    = []byte("anchor_info")
	MetaKeyBlobInfo      = []byte("blob_info")
	MetaKeyCompactedAt   = []byte("compacted_at")
)

// HotTables lists every column present in the hot DB.
var HotTables = []string{
	BeaconBlock,
	ExecPayload,
	BeaconBlob,
	BeaconState,
	BeaconStateDiff,
	BeaconStateSummary,
	BeaconStateTemporary,
	BeaconMeta,
	ChunkBlockRoots,
	ChunkStateRoots,
	ChunkRandaoMixes,
	ChunkHistoricalRoots,
	ChunkActiveIndexRoot,
}

// ColdTables lists every column present in the cold (freezer) DB.
var ColdTables = []string{
	BeaconBlockFrozen,
	BeaconBlockRoots,
	ColdStateRoots,
	BeaconBlob,
	BeaconState,
	BeaconStateSnapshot,
	BeaconStateDiff,
	BeaconStateSummary,
	BeaconMeta,
}

type TableFlags uint

const (
	Default    TableFlags = 0x00
	DupSort    TableFlags = 0x04
	IntegerKey TableFlags = 0x08
)

type TableCfgItem struct {
	Flags TableFlags
}

type TableCfg map[string]TableCfgItem

// HotTablesCfg and ColdTablesCfg follow the same "every named table gets a
// default entry" pattern as erigon-lib's ChaindataTablesCfg; slot-keyed
// tables get IntegerKey so the backend can use native integer comparison.
var (
	HotTablesCfg  = TableCfg{}
	ColdTablesCfg = TableCfg{
		BeaconBlockFrozen:   {Flags: IntegerKey},
		BeaconBlockRoots:    {Flags: IntegerKey},
		ColdStateRoots:      {Flags: IntegerKey},
		BeaconStateSnapshot: {Flags: IntegerKey},
	}
)

func init() {
	reinit()
}

func reinit() {
	sort.Strings(HotTables)
	sort.Strings(ColdTables)
	for _, name := range HotTables {
		if _, ok := HotTablesCfg[name]; !ok {
			HotTablesCfg[name] = TableCfgItem{}
		}
	}
	for _, name := range ColdTables {
		if _, ok := ColdTablesCfg[name]; !ok {
			ColdTablesCfg[name] = TableCfgItem{}
		}
	}
}
