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
	"github.com/stretchr/testify/require"
)

func sampleBeaconState() *BeaconState {
	return &BeaconState{
		Slot: 4096,
		LatestBlockHeader: BeaconBlockHeader{
			Slot:          4096,
			ProposerIndex: 12,
			ParentRoot:    Root{0xaa},
			StateRoot:     Root{},
			BodyRoot:      Root{0xbb},
		},
		BlockRoots:       []Root{{1}, {2}, {3}, {4}},
		StateRoots:       []Root{{5}, {6}, {7}, {8}},
		RandaoMixes:      []Root{{9}, {10}},
		HistoricalRoots:  []Root{{11}},
		ActiveIndexRoots: []Root{{12}, {13}},
		Balances:         []uint64{1, 2, 3, 4, 5},
		Extra:            []byte("opaque fork-specific fields"),
	}
}

func TestSerializeDeserializeStateRoundTrip(t *testing.T) {
	s := sampleBeaconState()
	s.Balances = nil // SerializeState excludes balances

	raw := SerializeState(s)
	got, err := DeserializeState(raw)
	require.NoError(t, err)

	assert.Equal(t, s.Slot, got.Slot)
	assert.Equal(t, s.LatestBlockHeader, got.LatestBlockHeader)
	assert.Equal(t, s.BlockRoots, got.BlockRoots)
	assert.Equal(t, s.StateRoots, got.StateRoots)
	assert.Equal(t, s.RandaoMixes, got.RandaoMixes)
	assert.Equal(t, s.HistoricalRoots, got.HistoricalRoots)
	assert.Equal(t, s.ActiveIndexRoots, got.ActiveIndexRoots)
	assert.Equal(t, s.Extra, got.Extra)
	assert.Empty(t, got.Balances)
}

func TestSerializeDeserializeFullStateRoundTrip(t *testing.T) {
	s := sampleBeaconState()
	raw := SerializeFullState(s)
	got, err := DeserializeFullState(raw)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDeserializeFullStateTruncated(t *testing.T) {
	_, err := DeserializeFullState([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDeserializeStateTruncatedReturnsError(t *testing.T) {
	s := sampleBeaconState()
	s.Balances = nil
	raw := SerializeState(s)
	_, err := DeserializeState(raw[:len(raw)-4])
	assert.Error(t, err)
}

func TestSerializeDeserializeBlockRoundTrip(t *testing.T) {
	b := &SignedBeaconBlock{
		Header: BeaconBlockHeader{
			Slot:          77,
			ProposerIndex: 3,
			ParentRoot:    Root{9},
			StateRoot:     Root{8},
			BodyRoot:      Root{7},
		},
		Body:            []byte("attestations and friends"),
		ExecutionPayload: []byte("opaque payload bytes"),
	}
	copy(b.Signature[:], []byte("a-fake-96-byte-bls-signature-padded-out-to-the-full-length-xxxxxxxxxxxxxxxxxxxx"))

	raw := SerializeBlock(b)
	got, err := DeserializeBlock(raw)
	require.NoError(t, err)

	assert.Equal(t, b.Header, got.Header)
	assert.Equal(t, b.Signature, got.Signature)
	assert.Equal(t, b.Body, got.Body)
	assert.Equal(t, b.ExecutionPayload, got.ExecutionPayload)
}

func TestSerializeDeserializeBlindedBlockRoundTrip(t *testing.T) {
	b := &SignedBeaconBlock{
		Header: BeaconBlockHeader{Slot: 5},
		Body:   []byte("body"),
	}
	blinded := b.Blinded()
	assert.Nil(t, blinded.ExecutionPayload)

	raw := SerializeBlock(blinded)
	got, err := DeserializeBlock(raw)
	require.NoError(t, err)
	assert.Empty(t, got.ExecutionPayload)
}

func TestHashTreeRootDeterministic(t *testing.T) {
	s := sampleBeaconState()
	r1 := HashTreeRoot(s)
	r2 := HashTreeRoot(s)
	assert.Equal(t, r1, r2)
}

func TestHashTreeRootDiffersOnMutation(t *testing.T) {
	s := sampleBeaconState()
	r1 := HashTreeRoot(s)
	s.Slot++
	r2 := HashTreeRoot(s)
	assert.NotEqual(t, r1, r2)
}

func TestHashTreeRootHeaderMatchesTopLevel(t *testing.T) {
	h := &BeaconBlockHeader{Slot: 9, ProposerIndex: 1, ParentRoot: Root{1}, StateRoot: Root{2}, BodyRoot: Root{3}}
	assert.Equal(t, Root(HashTreeRootHeader(h)), HashTreeRoot(h))
}

func TestHashTreeRootPanicsOnUnsupportedType(t *testing.T) {
	assert.Panics(t, func() { HashTreeRoot(42) })
}
