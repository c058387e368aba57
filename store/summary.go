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
	"encoding/binary"
	"fmt"

	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// hotSummarySize is Slot(8) || LatestBlockRoot(32) || DiffBaseStateRoot(32)
// || DiffBaseSlot(8) || HasDiffBase(1) || PrevStateRoot(32).
const hotSummarySize = 8 + 32 + 32 + 8 + 1 + 32

func encodeHotStateSummary(s HotStateSummary) []byte {
	buf := make([]byte, hotSummarySize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(s.Slot))
	copy(buf[8:40], s.LatestBlockRoot[:])
	copy(buf[40:72], s.DiffBaseStateRoot[:])
	binary.BigEndian.PutUint64(buf[72:80], uint64(s.DiffBaseSlot))
	if s.HasDiffBase {
		buf[80] = 1
	}
	copy(buf[81:113], s.PrevStateRoot[:])
	return buf
}

func decodeHotStateSummary(b []byte) (HotStateSummary, error) {
	if len(b) != hotSummarySize {
		return HotStateSummary{}, fmt.Errorf("store: malformed hot state summary (%d bytes)", len(b))
	}
	var s HotStateSummary
	s.Slot = types.Slot(binary.BigEndian.Uint64(b[0:8]))
	copy(s.LatestBlockRoot[:], b[8:40])
	copy(s.DiffBaseStateRoot[:], b[40:72])
	s.DiffBaseSlot = types.Slot(binary.BigEndian.Uint64(b[72:80]))
	s.HasDiffBase = b[80] != 0
	copy(s.PrevStateRoot[:], b[81:113])
	return s, nil
}

func putHotStateSummary(tx kv.Putter, stateRoot types.Root, s HotStateSummary) error {
	if err := tx.Put(kv.BeaconStateSummary, stateRoot[:], encodeHotStateSummary(s)); err != nil {
		return fmt.Errorf("store: persist hot state summary: %w", err)
	}
	return nil
}

func getHotStateSummary(tx kv.Getter, stateRoot types.Root) (*HotStateSummary, error) {
	b, err := tx.GetOne(kv.BeaconStateSummary, stateRoot[:])
	if err != nil {
		return nil, fmt.Errorf("store: read hot state summary: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	s, err := decodeHotStateSummary(b)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func putColdStateSummary(tx kv.Putter, stateRoot types.Root, s ColdStateSummary) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(s.Slot))
	if err := tx.Put(kv.BeaconStateSummary, stateRoot[:], buf[:]); err != nil {
		return fmt.Errorf("store: persist cold state summary: %w", err)
	}
	return nil
}

func slotKey(slot types.Slot) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(slot))
	return buf[:]
}

func putSlotToRoot(tx kv.Putter, table string, slot types.Slot, root types.Root) error {
	if err := tx.Put(table, slotKey(slot), root[:]); err != nil {
		return fmt.Errorf("store: persist slot->root index: %w", err)
	}
	return nil
}

func getSlotToRoot(tx kv.Getter, table string, slot types.Slot) (types.Root, bool, error) {
	b, err := tx.GetOne(table, slotKey(slot))
	if err != nil {
		return types.Root{}, false, fmt.Errorf("store: read slot->root index: %w", err)
	}
	if b == nil {
		return types.Root{}, false, nil
	}
	var r types.Root
	copy(r[:], b)
	return r, true, nil
}
