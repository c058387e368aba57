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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erigontech/caplin-store/types"
)

func TestFieldTableIndexOncePerSlot(t *testing.T) {
	f := Field{Pattern: OncePerSlot, ChunkSize: 8}
	assert.Equal(t, uint64(0), f.TableIndex(&types.BeaconState{Slot: 7}, 32))
	assert.Equal(t, uint64(1), f.TableIndex(&types.BeaconState{Slot: 8}, 32))
	assert.Equal(t, uint64(2), f.TableIndex(&types.BeaconState{Slot: 20}, 32))
}

func TestFieldTableIndexOncePerEpoch(t *testing.T) {
	f := Field{Pattern: OncePerEpoch, ChunkSize: 8}
	// slots_per_epoch=32: slot 64 is epoch 2, slot 256 is epoch 8.
	assert.Equal(t, uint64(0), f.TableIndex(&types.BeaconState{Slot: 64}, 32))
	assert.Equal(t, uint64(1), f.TableIndex(&types.BeaconState{Slot: 256}, 32))
}

func TestFieldShouldStore(t *testing.T) {
	slotField := Field{Pattern: OncePerSlot, ChunkSize: 8}
	assert.True(t, slotField.ShouldStore(&types.BeaconState{Slot: 1}, 32))
	assert.True(t, slotField.ShouldStore(&types.BeaconState{Slot: 5}, 32))

	epochField := Field{Pattern: OncePerEpoch, ChunkSize: 8}
	assert.True(t, epochField.ShouldStore(&types.BeaconState{Slot: 0}, 32))
	assert.True(t, epochField.ShouldStore(&types.BeaconState{Slot: 32}, 32))
	assert.False(t, epochField.ShouldStore(&types.BeaconState{Slot: 33}, 32))
}
