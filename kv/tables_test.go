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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHotTablesCfgHasEntryForEveryTable(t *testing.T) {
	for _, name := range HotTables {
		_, ok := HotTablesCfg[name]
		assert.True(t, ok, "missing HotTablesCfg entry for %s", name)
	}
}

func TestColdTablesCfgHasEntryForEveryTable(t *testing.T) {
	for _, name := range ColdTables {
		_, ok := ColdTablesCfg[name]
		assert.True(t, ok, "missing ColdTablesCfg entry for %s", name)
	}
}

func TestColdSlotKeyedTablesUseIntegerKey(t *testing.T) {
	for _, name := range []string{BeaconBlockFrozen, BeaconBlockRoots, ColdStateRoots, BeaconStateSnapshot} {
		item := ColdTablesCfg[name]
		assert.NotZero(t, item.Flags&IntegerKey, "%s should carry IntegerKey", name)
	}
}

func TestColumnTagsAreDistinctAndThreeBytes(t *testing.T) {
	seen := map[string]bool{}
	for _, tag := range []string{
		BeaconBlock, BeaconBlockFrozen, BeaconBlockRoots, ColdStateRoots, ExecPayload,
		BeaconBlob, BeaconState, BeaconStateSnapshot, BeaconStateDiff, BeaconStateSummary,
		BeaconStateTemporary, BeaconMeta,
		ChunkBlockRoots, ChunkStateRoots, ChunkRandaoMixes, ChunkHistoricalRoots, ChunkActiveIndexRoot,
	} {
		assert.Len(t, tag, 3, "tag %q must be 3 bytes", tag)
		assert.False(t, seen[tag], "duplicate tag %q", tag)
		seen[tag] = true
	}
}
