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

// Package types holds the chain-spec-aware state and block types. The
// store treats these as opaque byte-encodable values with a Slot()
// accessor; this package supplies one concrete fork (Phase0-shaped) rather
// than the full fork-versioned matrix, since the store's algorithms never
// branch on fork beyond reading the fields below.
package types

import "encoding/binary"

// Root is a 32-byte Merkle root or block/state root.
type Root [32]byte

var ZeroRoot Root

// Slot is a beacon-chain slot number.
type Slot uint64

// Epoch returns the epoch containing s under the given slots-per-epoch.
func (s Slot) Epoch(slotsPerEpoch uint64) uint64 {
	return uint64(s) / slotsPerEpoch
}

// BeaconBlockHeader is the minimal header every block carries, used to
// derive LatestBlockRoot without materializing the full block body.
type BeaconBlockHeader struct {
	Slot          Slot
	ProposerIndex uint64
	ParentRoot    Root
	StateRoot     Root
	BodyRoot      Root
}

// BeaconState is the opaque state value the store moves around. Balances
// are kept as a distinct slice (rather than folded into Extra) because the
// hierarchical diff engine's whole reason for existing is to diff them
// separately from the rest of the state.
type BeaconState struct {
	Slot               Slot
	LatestBlockHeader  BeaconBlockHeader
	BlockRoots        []Root // ring buffer, length SlotsPerHistoricalRoot
	StateRoots        []Root // ring buffer, length SlotsPerHistoricalRoot
	RandaoMixes       []Root // ring buffer, length EpochsPerHistoricalVector
	HistoricalRoots   []Root // append-only
	ActiveIndexRoots  []Root // ring buffer, length EpochsPerHistoricalVector
	Balances          []uint64
	Extra             []byte // remaining fork-specific fields, opaque
}

// SignedBeaconBlock is the opaque block value. ExecutionPayload is nil for
// a blinded block (the cold-tier and freezer representation); the payload
// is stored separately and only in the hot DB.
type SignedBeaconBlock struct {
	Header          BeaconBlockHeader
	Signature       [96]byte
	Body            []byte // opaque blinded body bytes (attestations etc.)
	ExecutionPayload []byte // nil when blinded
}

func (b *SignedBeaconBlock) Slot() Slot { return b.Header.Slot }

// Root computes the block root, the tree-hash root of the block's header.
func (b *SignedBeaconBlock) Root() Root { return HashTreeRoot(&b.Header) }

// Blinded returns a copy with the execution payload stripped, the
// canonical cold-tier form.
func (b *SignedBeaconBlock) Blinded() *SignedBeaconBlock {
	cp := *b
	cp.ExecutionPayload = nil
	return &cp
}

// LatestBlockRoot derives the block root committed to by the state's
// latest block header, filling in the header's own state root (which is
// zeroed at the point the header was recorded, per the beacon-chain spec's
// "latest block header" convention) with the supplied stateRoot.
func (s *BeaconState) LatestBlockRoot(stateRoot Root) Root {
	h := s.LatestBlockHeader
	if h.StateRoot == ZeroRoot {
		h.StateRoot = stateRoot
	}
	return HashTreeRoot(&h)
}

// RebaseOn returns a copy of s whose BlockRoots, StateRoots and RandaoMixes
// slices alias prior's backing arrays wherever the bytes are identical (the
// other slices are not shared), so that holding
// many states derived from a common ancestor in the state cache doesn't
// multiply memory use. This is a best-effort structural-sharing pass, not
// a requirement for correctness.
func (s *BeaconState) RebaseOn(prior *BeaconState) *BeaconState {
	if prior == nil {
		return s
	}
	out := *s
	out.BlockRoots = rebaseRoots(s.BlockRoots, prior.BlockRoots)
	out.StateRoots = rebaseRoots(s.StateRoots, prior.StateRoots)
	out.RandaoMixes = rebaseRoots(s.RandaoMixes, prior.RandaoMixes)
	return &out
}

func rebaseRoots(cur, prior []Root) []Root {
	if len(cur) != len(prior) {
		return cur
	}
	for i := range cur {
		if cur[i] != prior[i] {
			return cur
		}
	}
	return prior
}

// Clone deep-copies a state so callers can mutate it without racing
// concurrent readers of a cached original.
func (s *BeaconState) Clone() *BeaconState {
	out := *s
	out.BlockRoots = append([]Root(nil), s.BlockRoots...)
	out.StateRoots = append([]Root(nil), s.StateRoots...)
	out.RandaoMixes = append([]Root(nil), s.RandaoMixes...)
	out.HistoricalRoots = append([]Root(nil), s.HistoricalRoots...)
	out.ActiveIndexRoots = append([]Root(nil), s.ActiveIndexRoots...)
	out.Balances = append([]uint64(nil), s.Balances...)
	out.Extra = append([]byte(nil), s.Extra...)
	return &out
}

func putUint64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

func getUint64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}
