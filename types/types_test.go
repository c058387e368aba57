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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotEpoch(t *testing.T) {
	assert.Equal(t, uint64(0), Slot(0).Epoch(32))
	assert.Equal(t, uint64(0), Slot(31).Epoch(32))
	assert.Equal(t, uint64(1), Slot(32).Epoch(32))
	assert.Equal(t, uint64(4), Slot(140).Epoch(32))
}

func TestLatestBlockRootFillsZeroStateRoot(t *testing.T) {
	s := sampleBeaconState()
	s.LatestBlockHeader.StateRoot = ZeroRoot

	stateRoot := Root{0xde, 0xad}
	got := s.LatestBlockRoot(stateRoot)

	want := s.LatestBlockHeader
	want.StateRoot = stateRoot
	assert.Equal(t, HashTreeRoot(&want), got)
}

func TestLatestBlockRootPreservesExplicitStateRoot(t *testing.T) {
	s := sampleBeaconState()
	s.LatestBlockHeader.StateRoot = Root{0x01}

	got := s.LatestBlockRoot(Root{0xff})
	assert.Equal(t, HashTreeRoot(&s.LatestBlockHeader), got)
}

func TestCloneIsIndependent(t *testing.T) {
	s := sampleBeaconState()
	clone := s.Clone()

	clone.BlockRoots[0] = Root{0xff}
	clone.Balances[0] = 999999
	clone.Extra[0] = 'X'

	assert.NotEqual(t, s.BlockRoots[0], clone.BlockRoots[0])
	assert.NotEqual(t, s.Balances[0], clone.Balances[0])
	assert.NotEqual(t, s.Extra[0], clone.Extra[0])
}

func TestRebaseOnSharesIdenticalSlices(t *testing.T) {
	prior := sampleBeaconState()
	cur := prior.Clone()

	out := cur.RebaseOn(prior)

	assert.Same(t, &prior.BlockRoots[0], &out.BlockRoots[0])
	assert.Same(t, &prior.StateRoots[0], &out.StateRoots[0])
	assert.Same(t, &prior.RandaoMixes[0], &out.RandaoMixes[0])
}

func TestRebaseOnKeepsDivergentSlices(t *testing.T) {
	prior := sampleBeaconState()
	cur := prior.Clone()
	cur.BlockRoots[0] = Root{0x77}

	out := cur.RebaseOn(prior)

	assert.Equal(t, cur.BlockRoots, out.BlockRoots)
	assert.NotEqual(t, prior.BlockRoots, out.BlockRoots)
}

func TestRebaseOnNilPriorReturnsSelf(t *testing.T) {
	s := sampleBeaconState()
	out := s.RebaseOn(nil)
	assert.Same(t, s, out)
}

func TestBlockSlotAndRoot(t *testing.T) {
	b := &SignedBeaconBlock{Header: BeaconBlockHeader{Slot: 55, BodyRoot: Root{3}}}
	assert.Equal(t, Slot(55), b.Slot())
	assert.Equal(t, HashTreeRoot(&b.Header), b.Root())
}
