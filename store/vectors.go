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

import (
	"context"
	"fmt"

	"github.com/erigontech/caplin-store/chunkedvector"
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// vectorChunkSize is the chunk_size shared by all five fields below.
const vectorChunkSize = 8

func ringValue(roots []types.Root, slot types.Slot) types.Root {
	if len(roots) == 0 {
		return types.Root{}
	}
	return roots[uint64(slot)%uint64(len(roots))]
}

// vectorFields is the concrete set of five chunked vectors:
// block roots and state roots (updated every slot) plus randao mixes,
// historical roots, and active index roots (updated once per epoch).
// Each lives under its own column so the hot-write path can append a
// single new value without rewriting the whole per-state ring buffer.
var vectorFields = []chunkedvector.Field{
	{
		Column:    kv.ChunkBlockRoots,
		Pattern:   chunkedvector.OncePerSlot,
		ChunkSize: vectorChunkSize,
		GetValue:  func(s *types.BeaconState) types.Root { return ringValue(s.BlockRoots, s.Slot) },
	},
	{
		Column:    kv.ChunkStateRoots,
		Pattern:   chunkedvector.OncePerSlot,
		ChunkSize: vectorChunkSize,
		GetValue:  func(s *types.BeaconState) types.Root { return ringValue(s.StateRoots, s.Slot) },
	},
	{
		Column:    kv.ChunkRandaoMixes,
		Pattern:   chunkedvector.OncePerEpoch,
		ChunkSize: vectorChunkSize,
		GetValue:  func(s *types.BeaconState) types.Root { return ringValue(s.RandaoMixes, s.Slot) },
	},
	{
		Column:    kv.ChunkHistoricalRoots,
		Pattern:   chunkedvector.OncePerEpoch,
		ChunkSize: vectorChunkSize,
		GetValue: func(s *types.BeaconState) types.Root {
			if len(s.HistoricalRoots) == 0 {
				return types.Root{}
			}
			return s.HistoricalRoots[len(s.HistoricalRoots)-1]
		},
	},
	{
		Column:    kv.ChunkActiveIndexRoot,
		Pattern:   chunkedvector.OncePerEpoch,
		ChunkSize: vectorChunkSize,
		GetValue:  func(s *types.BeaconState) types.Root { return ringValue(s.ActiveIndexRoots, s.Slot) },
	},
}

// updateVectors appends this state's tail entry to each of the five
// chunked vector columns, keyed off the same prevStateRoot continuity
// chain the hot state summary graph uses: a chunk only accepts a new
// value when its id matches the state being written's predecessor, or
// the write lands on a chunk-size boundary.
//
// Writes that would fail with ErrMissingParentChunk are tolerated here
// rather than propagated: a predecessor vector entry legitimately may
// never have been recorded (checkpoint-synced anchors, pre-split states
// replayed without ever calling storeHotState), and the chunked vectors
// are a read-acceleration index, not load-bearing for state
// reconstruction itself.
func updateVectors(tx kv.RwTx, state *types.BeaconState, stateRoot, prevStateRoot types.Root, slotsPerEpoch uint64) error {
	for _, f := range vectorFields {
		err := chunkedvector.StoreUpdatedVectorEntry(tx, f, state, stateRoot, prevStateRoot, slotsPerEpoch)
		if err != nil && err != chunkedvector.ErrMissingParentChunk {
			return fmt.Errorf("store: update chunked vector %s: %w", f.Column, err)
		}
	}
	return nil
}

// loadVectorEntry reads back the chunked value a state root wrote for one
// of the fields above, by chunk_index plus a per-chunk scan for id ==
// stateRoot. Returns (zero, false) if no chunk holds this id.
func loadVectorEntry(tx kv.Getter, f chunkedvector.Field, stateRoot types.Root, index uint64) (types.Root, bool, error) {
	chunks, err := chunkedvector.Load(tx, f.Column, index)
	if err != nil {
		return types.Root{}, false, err
	}
	if chunks == nil {
		return types.Root{}, false, nil
	}
	c := chunks.FindByID(stateRoot)
	if c == nil || len(c.Values) == 0 {
		return types.Root{}, false, nil
	}
	return c.Values[len(c.Values)-1], true, nil
}

// BlockRootsVectorEntry returns the block root recorded in the chunked
// block-roots vector for stateRoot, an O(1)-by-index alternative to
// materializing the whole state just to read its latest ring-buffer slot.
func (db *HotColdDB) BlockRootsVectorEntry(ctx context.Context, stateRoot types.Root, slot types.Slot) (types.Root, bool, error) {
	index := uint64(slot) / vectorChunkSize
	var out types.Root
	var ok bool
	err := db.hot.View(ctx, func(tx kv.Tx) error {
		r, found, err := loadVectorEntry(tx, vectorFields[0], stateRoot, index)
		out, ok = r, found
		return err
	})
	return out, ok, err
}
