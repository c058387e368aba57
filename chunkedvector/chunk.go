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

package chunkedvector

import (
	"encoding/binary"
	"fmt"

	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// Chunk is a run of up to chunk_size values sourced from states
// descending from a common ancestor identified by ID.
type Chunk struct {
	ID     types.Root
	Values []types.Root
}

// Chunks is the decoded contents of one (field, chunk_index) record.
type Chunks struct {
	List []Chunk
}

// FindByID returns a pointer to the chunk with the given id, if any.
func (c *Chunks) FindByID(id types.Root) *Chunk {
	for i := range c.List {
		if c.List[i].ID == id {
			return &c.List[i]
		}
	}
	return nil
}

// Encode lays out chunks back-to-back as id(32) || len(1) || values(32*len).
func (c *Chunks) Encode() []byte {
	var out []byte
	for _, ch := range c.List {
		out = append(out, ch.ID[:]...)
		out = append(out, byte(len(ch.Values)))
		for _, v := range ch.Values {
			out = append(out, v[:]...)
		}
	}
	return out
}

// Decode is the inverse of Encode.
func Decode(b []byte) (*Chunks, error) {
	out := &Chunks{}
	off := 0
	for off < len(b) {
		if off+33 > len(b) {
			return nil, fmt.Errorf("chunkedvector: truncated chunk header at offset %d", off)
		}
		var id types.Root
		copy(id[:], b[off:off+32])
		off += 32
		n := int(b[off])
		off++
		if off+32*n > len(b) {
			return nil, fmt.Errorf("chunkedvector: truncated chunk values at offset %d", off)
		}
		var values []types.Root
		if n > 0 {
			values = make([]types.Root, n)
		}
		for i := 0; i < n; i++ {
			copy(values[i][:], b[off:off+32])
			off += 32
		}
		out.List = append(out.List, Chunk{ID: id, Values: values})
	}
	return out, nil
}

func chunkKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

// Load fetches and decodes the chunk record at the given index, returning
// (nil, nil) if absent.
func Load(tx kv.Getter, column string, index uint64) (*Chunks, error) {
	b, err := tx.GetOne(column, chunkKey(index))
	if err != nil {
		return nil, fmt.Errorf("chunkedvector: load %s[%d]: %w", column, index, err)
	}
	if b == nil {
		return nil, nil
	}
	return Decode(b)
}

// Store persists a chunk record at the given index.
func Store(tx kv.Putter, column string, index uint64, chunks *Chunks) error {
	if err := tx.Put(column, chunkKey(index), chunks.Encode()); err != nil {
		return fmt.Errorf("chunkedvector: store %s[%d]: %w", column, index, err)
	}
	return nil
}

// StoreUpdatedVectorEntry implements the per-state chunked-vector write:
// find the chunk stored for the state's predecessor, append to it if
// found, or start a new chunk on a chunk-size boundary, failing with
// ErrMissingParentChunk otherwise.
func StoreUpdatedVectorEntry(tx kv.RwTx, f Field, state *types.BeaconState, stateRoot types.Root, prevChunkID types.Root, slotsPerEpoch uint64) error {
	if !f.ShouldStore(state, slotsPerEpoch) {
		return nil
	}

	index := f.TableIndex(state, slotsPerEpoch)
	chunks, err := Load(tx, f.Column, index)
	if err != nil {
		return err
	}
	if chunks == nil {
		chunks = &Chunks{}
	}

	value := f.GetValue(state)

	if existing := chunks.FindByID(prevChunkID); existing != nil {
		existing.ID = stateRoot
		existing.Values = append(existing.Values, value)
	} else if isChunkBoundary(state, f, slotsPerEpoch) {
		chunks.List = append(chunks.List, Chunk{ID: stateRoot, Values: []types.Root{value}})
	} else {
		return ErrMissingParentChunk
	}

	return Store(tx, f.Column, index, chunks)
}

func isChunkBoundary(state *types.BeaconState, f Field, slotsPerEpoch uint64) bool {
	switch f.Pattern {
	case OncePerSlot:
		return uint64(state.Slot)%f.ChunkSize == 0
	default:
		return state.Slot.Epoch(slotsPerEpoch)%f.ChunkSize == 0
	}
}
