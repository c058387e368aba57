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
	"encoding/binary"

	"github.com/erigontech/caplin-store/types"
)

// Buffer is the two-way decomposition of a state into its non-balance
// bytes and its balances, the I/O currency of the diff engine. Balances
// are kept as a flat little-endian uint64 byte slice (not []uint64) so
// XorDiff can operate on it positionally without re-encoding.
type Buffer struct {
	StateBytes []byte
	Balances   []byte
}

// FromState splits a state into a Buffer, dropping the balances field out
// of the serialized remainder.
func FromState(s *types.BeaconState) Buffer {
	balances := make([]byte, 8*len(s.Balances))
	for i, b := range s.Balances {
		binary.LittleEndian.PutUint64(balances[i*8:], b)
	}
	withoutBalances := *s
	withoutBalances.Balances = nil
	return Buffer{
		StateBytes: types.SerializeState(&withoutBalances),
		Balances:   balances,
	}
}

// IntoState rematerializes a state from a Buffer, reattaching balances.
func IntoState(b Buffer) (*types.BeaconState, error) {
	s, err := types.DeserializeState(b.StateBytes)
	if err != nil {
		return nil, err
	}
	s.Balances = make([]uint64, len(b.Balances)/8)
	for i := range s.Balances {
		s.Balances[i] = binary.LittleEndian.Uint64(b.Balances[i*8:])
	}
	return s, nil
}
