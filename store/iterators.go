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
	"context"
	"encoding/binary"
	"fmt"

	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// RootPair is one (slot, root) yielded by a forwards iterator.
type RootPair struct {
	Slot types.Slot
	Root types.Root
}

// walkFn returns (true, nil) to keep iterating, (false, nil) to stop early,
// or a non-nil error to abort.
type walkFn func(RootPair) (bool, error)

// ForwardsBlockRootsIterator walks block roots in ascending slot order
// starting at startSlot, up through endStateRoot (the tip the
// caller is iterating toward). The cold portion (slots below the split) is
// read directly off the slot-keyed BeaconBlockRoots index; the hot portion
// has no such index (blocks are addressed by root only), so it is
// recovered by walking the hot state summary chain backward from
// endStateRoot, collecting each summary's (slot, latest_block_root), then
// replaying that walk forward.
func (db *HotColdDB) ForwardsBlockRootsIterator(ctx context.Context, startSlot types.Slot, endStateRoot types.Root, walk walkFn) error {
	split := db.Split()

	hotPairs, err := db.walkHotSummariesBackward(ctx, endStateRoot, split, func(s HotStateSummary) RootPair {
		return RootPair{Slot: s.Slot, Root: s.LatestBlockRoot}
	})
	if err != nil {
		return err
	}

	if startSlot < split.Slot {
		if err := db.cold.View(ctx, func(tx kv.Tx) error {
			return tx.ForEach(kv.BeaconBlockRoots, slotKey(startSlot), func(k, v []byte) (bool, error) {
				slot := types.Slot(binary.BigEndian.Uint64(k))
				if slot >= split.Slot {
					return false, nil
				}
				var r types.Root
				copy(r[:], v)
				return walk(RootPair{Slot: slot, Root: r})
			})
		}); err != nil {
			return err
		}
	}

	return walkPairsAscending(hotPairs, startSlot, walk)
}

// ForwardsStateRootsIterator is ForwardsBlockRootsIterator's state-root
// analog: the cold index is ColdStateRoots, and the hot portion recovers
// (slot, state_root) pairs directly from the summary chain rather than from
// latest_block_root.
func (db *HotColdDB) ForwardsStateRootsIterator(ctx context.Context, startSlot types.Slot, endStateRoot types.Root, walk walkFn) error {
	split := db.Split()

	var hotPairs []RootPair
	cur := endStateRoot
	const maxDepth = 1 << 20
	for depth := 0; cur != types.ZeroRoot; depth++ {
		if depth > maxDepth {
			return fmt.Errorf("store: state-roots iterator exceeded max depth")
		}
		if cur == split.StateRoot {
			hotPairs = append(hotPairs, RootPair{Slot: split.Slot, Root: split.StateRoot})
			break
		}
		var summary *HotStateSummary
		if err := db.hot.View(ctx, func(tx kv.Tx) error {
			s, err := getHotStateSummary(tx, cur)
			summary = s
			return err
		}); err != nil {
			return err
		}
		if summary == nil {
			break
		}
		hotPairs = append(hotPairs, RootPair{Slot: summary.Slot, Root: cur})
		if summary.Slot <= split.Slot {
			break
		}
		cur = summary.PrevStateRoot
	}

	if startSlot < split.Slot {
		if err := db.cold.View(ctx, func(tx kv.Tx) error {
			return tx.ForEach(kv.ColdStateRoots, slotKey(startSlot), func(k, v []byte) (bool, error) {
				slot := types.Slot(binary.BigEndian.Uint64(k))
				if slot >= split.Slot {
					return false, nil
				}
				var r types.Root
				copy(r[:], v)
				return walk(RootPair{Slot: slot, Root: r})
			})
		}); err != nil {
			return err
		}
	}

	return walkPairsAscending(hotPairs, startSlot, walk)
}

// walkHotSummariesBackward walks the hot summary chain from target back to
// the split, projecting each visited summary (plus the split itself) via
// project, and returns the collected pairs in the order visited
// (descending slot); callers reverse via walkPairsAscending.
func (db *HotColdDB) walkHotSummariesBackward(ctx context.Context, target types.Root, split Split, project func(HotStateSummary) RootPair) ([]RootPair, error) {
	var pairs []RootPair
	cur := target
	const maxDepth = 1 << 20
	for depth := 0; cur != types.ZeroRoot; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("store: block-roots iterator exceeded max depth")
		}
		if cur == split.StateRoot {
			pairs = append(pairs, RootPair{Slot: split.Slot, Root: split.BlockRoot})
			break
		}
		var summary *HotStateSummary
		if err := db.hot.View(ctx, func(tx kv.Tx) error {
			s, err := getHotStateSummary(tx, cur)
			summary = s
			return err
		}); err != nil {
			return nil, err
		}
		if summary == nil {
			break
		}
		pairs = append(pairs, project(*summary))
		if summary.Slot <= split.Slot {
			break
		}
		cur = summary.PrevStateRoot
	}
	return pairs, nil
}

// walkPairsAscending reverses a descending-slot pair list and feeds it
// through walk in ascending order, skipping anything below startSlot and
// stopping as soon as walk returns false.
func walkPairsAscending(pairs []RootPair, startSlot types.Slot, walk walkFn) error {
	for i := len(pairs) - 1; i >= 0; i-- {
		p := pairs[i]
		if p.Slot < startSlot {
			continue
		}
		cont, err := walk(p)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
