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

package store

import "github.com/erigontech/caplin-store/types"

// Split is the singleton slot boundary separating hot from cold data.
// Mutated only by finalization migration.
type Split struct {
	Slot      types.Slot
	StateRoot types.Root
	BlockRoot types.Root
}

// AnchorInfo describes the slot from which a checkpoint-synced node's
// history begins. Absent (nil) for genesis-synced nodes.
type AnchorInfo struct {
	AnchorSlot        types.Slot
	OldestBlockSlot   types.Slot
	OldestBlockParent types.Root
	StateUpperLimit   types.Slot
	StateLowerLimit   types.Slot
}

// BlobInfo tracks the earliest retained blob sidecar.
type BlobInfo struct {
	OldestBlobSlot types.Slot
	BlobsDBFlag    bool
}

// HotStateSummary is one per known hot state root; the graph of summaries
// is the substrate of hot state assembly.
type HotStateSummary struct {
	Slot              types.Slot
	LatestBlockRoot   types.Root
	DiffBaseStateRoot types.Root
	DiffBaseSlot      types.Slot
	HasDiffBase       bool
	PrevStateRoot     types.Root
}

// ColdStateSummary is one per cold state root; forms the reverse index
// slot->state_root together with a companion slot->root column.
type ColdStateSummary struct {
	Slot types.Slot
}
