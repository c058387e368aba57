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
	"encoding/binary"
	"fmt"

	"github.com/prysmaticlabs/gohashtree"
)

// HashTreeRoot computes the SSZ-style Merkle root of any of this package's
// types by hashing the container's field chunks pairwise with gohashtree,
// the same batched-sha256 implementation the wider Ethereum consensus
// client ecosystem uses for Merkleization.
func HashTreeRoot(v interface{}) Root {
	switch t := v.(type) {
	case *BeaconBlockHeader:
		return merkleize([][32]byte{
			leafUint64(uint64(t.Slot)),
			leafUint64(t.ProposerIndex),
			[32]byte(t.ParentRoot),
			[32]byte(t.StateRoot),
			[32]byte(t.BodyRoot),
		})
	case *BeaconState:
		return merkleize([][32]byte{
			leafUint64(uint64(t.Slot)),
			HashTreeRootHeader(&t.LatestBlockHeader),
			merkleizeRoots(t.BlockRoots),
			merkleizeRoots(t.StateRoots),
			merkleizeRoots(t.RandaoMixes),
			merkleizeRoots(t.HistoricalRoots),
			merkleizeRoots(t.ActiveIndexRoots),
			merkleizeBalances(t.Balances),
			leafBytes(t.Extra),
		})
	default:
		panic(fmt.Sprintf("types: HashTreeRoot: unsupported type %T", v))
	}
}

func HashTreeRootHeader(h *BeaconBlockHeader) [32]byte {
	return [32]byte(HashTreeRoot(h))
}

func leafUint64(v uint64) [32]byte {
	var out [32]byte
	binary.LittleEndian.PutUint64(out[:8], v)
	return out
}

func leafBytes(b []byte) [32]byte {
	var chunks [][32]byte
	for i := 0; i < len(b); i += 32 {
		var c [32]byte
		copy(c[:], b[i:min(i+32, len(b))])
		chunks = append(chunks, c)
	}
	if len(chunks) == 0 {
		chunks = [][32]byte{{}}
	}
	return merkleize(chunks)
}

func merkleizeRoots(roots []Root) [32]byte {
	chunks := make([][32]byte, len(roots))
	for i, r := range roots {
		chunks[i] = [32]byte(r)
	}
	if len(chunks) == 0 {
		chunks = [][32]byte{{}}
	}
	return merkleize(chunks)
}

func merkleizeBalances(balances []uint64) [32]byte {
	// Four balances (8 bytes each) pack into one 32-byte chunk, matching
	// the SSZ List[uint64, N] packing rule.
	var chunks [][32]byte
	for i := 0; i < len(balances); i += 4 {
		var c [32]byte
		for j := 0; j < 4 && i+j < len(balances); j++ {
			binary.LittleEndian.PutUint64(c[j*8:j*8+8], balances[i+j])
		}
		chunks = append(chunks, c)
	}
	if len(chunks) == 0 {
		chunks = [][32]byte{{}}
	}
	return merkleize(chunks)
}

// merkleize pads chunks to a power of two and folds them pairwise via
// gohashtree.Hash until a single root remains.
func merkleize(chunks [][32]byte) [32]byte {
	n := 1
	for n < len(chunks) {
		n *= 2
	}
	padded := make([][32]byte, n)
	copy(padded, chunks)

	for len(padded) > 1 {
		out := make([][32]byte, len(padded)/2)
		if err := gohashtree.Hash(out, padded); err != nil {
			panic(fmt.Sprintf("types: gohashtree.Hash: %v", err))
		}
		padded = out
	}
	return padded[0]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SerializeState encodes a BeaconState deterministically: a fixed header
// followed by length-prefixed variable sections, in field declaration
// order. This is the byte representation the hdiff engine's BytesDiff
// operates over; balances are not part of it and are diffed separately by
// XorDiff.
func SerializeState(s *BeaconState) []byte {
	buf := make([]byte, 0, 64+len(s.Extra)+32*(len(s.BlockRoots)+len(s.StateRoots)+len(s.RandaoMixes)+len(s.HistoricalRoots)+len(s.ActiveIndexRoots)))
	var tmp [8]byte

	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	putRoots := func(rs []Root) {
		putU64(uint64(len(rs)))
		for _, r := range rs {
			buf = append(buf, r[:]...)
		}
	}

	putU64(uint64(s.Slot))
	putU64(uint64(s.LatestBlockHeader.Slot))
	putU64(s.LatestBlockHeader.ProposerIndex)
	buf = append(buf, s.LatestBlockHeader.ParentRoot[:]...)
	buf = append(buf, s.LatestBlockHeader.StateRoot[:]...)
	buf = append(buf, s.LatestBlockHeader.BodyRoot[:]...)
	putRoots(s.BlockRoots)
	putRoots(s.StateRoots)
	putRoots(s.RandaoMixes)
	putRoots(s.HistoricalRoots)
	putRoots(s.ActiveIndexRoots)
	putU64(uint64(len(s.Extra)))
	buf = append(buf, s.Extra...)
	return buf
}

// DeserializeState is the inverse of SerializeState. Balances are not part
// of this byte stream; callers reattach them via hdiff.IntoState.
func DeserializeState(b []byte) (*BeaconState, error) {
	r := &reader{buf: b}
	s := &BeaconState{}
	s.Slot = Slot(r.u64())
	s.LatestBlockHeader.Slot = Slot(r.u64())
	s.LatestBlockHeader.ProposerIndex = r.u64()
	s.LatestBlockHeader.ParentRoot = r.root()
	s.LatestBlockHeader.StateRoot = r.root()
	s.LatestBlockHeader.BodyRoot = r.root()
	s.BlockRoots = r.roots()
	s.StateRoots = r.roots()
	s.RandaoMixes = r.roots()
	s.HistoricalRoots = r.roots()
	s.ActiveIndexRoots = r.roots()
	extraLen := r.u64()
	s.Extra = r.bytes(int(extraLen))
	if r.err != nil {
		return nil, fmt.Errorf("types: deserialize state: %w", r.err)
	}
	return s, nil
}

// SerializeFullState encodes a complete state, balances included, for cold
// snapshot storage and hot full-state storage. Unlike SerializeState (the
// hdiff engine's currency, which deliberately excludes balances), this is
// the self-contained on-disk form for BeaconState column values.
func SerializeFullState(s *BeaconState) []byte {
	buf := SerializeState(s)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(s.Balances)))
	buf = append(buf, tmp[:]...)
	for _, b := range s.Balances {
		binary.LittleEndian.PutUint64(tmp[:], b)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

// DeserializeFullState is the inverse of SerializeFullState.
func DeserializeFullState(b []byte) (*BeaconState, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("types: deserialize full state: truncated balances section")
	}
	r := &reader{buf: b}
	s := &BeaconState{}
	s.Slot = Slot(r.u64())
	s.LatestBlockHeader.Slot = Slot(r.u64())
	s.LatestBlockHeader.ProposerIndex = r.u64()
	s.LatestBlockHeader.ParentRoot = r.root()
	s.LatestBlockHeader.StateRoot = r.root()
	s.LatestBlockHeader.BodyRoot = r.root()
	s.BlockRoots = r.roots()
	s.StateRoots = r.roots()
	s.RandaoMixes = r.roots()
	s.HistoricalRoots = r.roots()
	s.ActiveIndexRoots = r.roots()
	extraLen := r.u64()
	s.Extra = r.bytes(int(extraLen))
	if r.err != nil {
		return nil, fmt.Errorf("types: deserialize full state: %w", r.err)
	}
	count := r.u64()
	s.Balances = make([]uint64, count)
	for i := range s.Balances {
		s.Balances[i] = r.u64()
	}
	if r.err != nil {
		return nil, fmt.Errorf("types: deserialize full state balances: %w", r.err)
	}
	return s, nil
}

// SerializeBlock encodes a signed block deterministically; Body and
// ExecutionPayload are length-prefixed opaque sections (they are versioned
// by fork at a layer above this package).
func SerializeBlock(b *SignedBeaconBlock) []byte {
	buf := make([]byte, 0, 128+len(b.Body)+len(b.ExecutionPayload))
	var tmp [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	putBytes := func(b []byte) {
		putU64(uint64(len(b)))
		buf = append(buf, b...)
	}

	putU64(uint64(b.Header.Slot))
	putU64(b.Header.ProposerIndex)
	buf = append(buf, b.Header.ParentRoot[:]...)
	buf = append(buf, b.Header.StateRoot[:]...)
	buf = append(buf, b.Header.BodyRoot[:]...)
	buf = append(buf, b.Signature[:]...)
	putBytes(b.Body)
	putBytes(b.ExecutionPayload)
	return buf
}

// DeserializeBlock is the inverse of SerializeBlock.
func DeserializeBlock(raw []byte) (*SignedBeaconBlock, error) {
	r := &reader{buf: raw}
	b := &SignedBeaconBlock{}
	b.Header.Slot = Slot(r.u64())
	b.Header.ProposerIndex = r.u64()
	b.Header.ParentRoot = r.root()
	b.Header.StateRoot = r.root()
	b.Header.BodyRoot = r.root()
	sig := r.bytes(96)
	copy(b.Signature[:], sig)
	bodyLen := r.u64()
	b.Body = r.bytes(int(bodyLen))
	payloadLen := r.u64()
	b.ExecutionPayload = r.bytes(int(payloadLen))
	if r.err != nil {
		return nil, fmt.Errorf("types: deserialize block: %w", r.err)
	}
	return b, nil
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil || r.off+n > len(r.buf) {
		if r.err == nil {
			r.err = fmt.Errorf("unexpected end of buffer at offset %d wanting %d bytes", r.off, n)
		}
		return false
	}
	return true
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) root() (out Root) {
	if !r.need(32) {
		return
	}
	copy(out[:], r.buf[r.off:])
	r.off += 32
	return
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	out := append([]byte(nil), r.buf[r.off:r.off+n]...)
	r.off += n
	return out
}

func (r *reader) roots() []Root {
	n := int(r.u64())
	if n < 0 || !r.need(n*32) {
		return nil
	}
	out := make([]Root, n)
	for i := range out {
		out[i] = r.root()
	}
	return out
}
