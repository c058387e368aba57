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

// Package chunkedvector encodes fixed-length per-slot or per-epoch state
// vectors (block roots, state roots, randao mixes) as chunks keyed by
// (field_tag, chunk_index), so a single new entry can be appended without
// rewriting the whole vector.
package chunkedvector

import (
	"errors"

	"github.com/erigontech/caplin-store/types"
)

// ErrMissingParentChunk is returned when no predecessor chunk can be found
// for a write that isn't itself a chunk boundary.
var ErrMissingParentChunk = errors.New("chunkedvector: missing parent chunk")

// UpdatePattern says whether a field changes once per slot or once per
// epoch.
type UpdatePattern int

const (
	OncePerSlot UpdatePattern = iota
	OncePerEpoch
)

// Field describes one chunked vector column: its update cadence, chunk
// size, storage column, and how to read its current value out of a state.
type Field struct {
	Column    string
	Pattern   UpdatePattern
	ChunkSize uint64
	GetValue  func(s *types.BeaconState) types.Root
}

// TableIndex returns the chunk_index for a state under this field.
func (f Field) TableIndex(s *types.BeaconState, slotsPerEpoch uint64) uint64 {
	switch f.Pattern {
	case OncePerSlot:
		return uint64(s.Slot) / f.ChunkSize
	default:
		return s.Slot.Epoch(slotsPerEpoch) / f.ChunkSize
	}
}

// ShouldStore reports whether this state's slot is one this field updates
// at all (OncePerEpoch fields only update on epoch boundaries).
func (f Field) ShouldStore(s *types.BeaconState, slotsPerEpoch uint64) bool {
	return f.Pattern != OncePerEpoch || uint64(s.Slot)%slotsPerEpoch == 0
}
