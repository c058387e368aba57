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

package hdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/caplin-store/types"
)

func sampleState() *types.BeaconState {
	return &types.BeaconState{
		Slot: 128,
		LatestBlockHeader: types.BeaconBlockHeader{
			Slot:          128,
			ProposerIndex: 7,
			ParentRoot:    types.Root{1},
			BodyRoot:      types.Root{2},
		},
		BlockRoots:       []types.Root{{3}, {4}, {5}},
		StateRoots:       []types.Root{{6}, {7}, {8}},
		RandaoMixes:      []types.Root{{9}},
		HistoricalRoots:  []types.Root{{10}, {11}},
		ActiveIndexRoots: []types.Root{{12}},
		Balances:         []uint64{32_000_000_000, 31_999_999_999, 31_500_000_123},
		Extra:            []byte("fork-specific opaque payload"),
	}
}

func TestBufferFromIntoStateRoundTrip(t *testing.T) {
	s := sampleState()
	buf := FromState(s)
	assert.Len(t, buf.Balances, 8*len(s.Balances))

	got, err := IntoState(buf)
	require.NoError(t, err)

	assert.Equal(t, s.Slot, got.Slot)
	assert.Equal(t, s.LatestBlockHeader, got.LatestBlockHeader)
	assert.Equal(t, s.BlockRoots, got.BlockRoots)
	assert.Equal(t, s.StateRoots, got.StateRoots)
	assert.Equal(t, s.RandaoMixes, got.RandaoMixes)
	assert.Equal(t, s.HistoricalRoots, got.HistoricalRoots)
	assert.Equal(t, s.ActiveIndexRoots, got.ActiveIndexRoots)
	assert.Equal(t, s.Balances, got.Balances)
	assert.Equal(t, s.Extra, got.Extra)
}

func TestBufferFromStateEmptyBalances(t *testing.T) {
	s := sampleState()
	s.Balances = nil
	buf := FromState(s)
	assert.Empty(t, buf.Balances)

	got, err := IntoState(buf)
	require.NoError(t, err)
	assert.Empty(t, got.Balances)
}
