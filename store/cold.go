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
	"fmt"

	"github.com/erigontech/caplin-store/hdiff"
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// storeColdState is the cold write path: place the state per the
// configured hierarchy strategy, then always record the
// state_root->ColdStateSummary and slot->state_root indices, regardless of
// which strategy fired. Reads needed to compute a DiffFrom payload are done
// before the write transaction opens, so this never nests transactions on
// the cold DB.
func (db *HotColdDB) storeColdState(ctx context.Context, stateRoot types.Root, state *types.BeaconState) error {
	slotsPerEpoch := db.cfg.SlotsPerEpoch
	strategy := db.coldStrategy(state.Slot)

	var snapshotPayload, diffPayload []byte
	switch strategy.Kind {
	case hdiff.Snapshot:
		snapshotPayload = db.codec.Compress(nil, types.SerializeFullState(state))
	case hdiff.DiffFrom:
		baseSlot := types.Slot(strategy.Base * slotsPerEpoch)
		baseState, err := db.LoadColdStateBySlot(ctx, baseSlot, nil)
		if err != nil {
			return fmt.Errorf("store: load cold diff base at slot %d: %w", baseSlot, err)
		}
		diff, err := hdiff.Compute(db.codec, hdiff.FromState(baseState), hdiff.FromState(state))
		if err != nil {
			return err
		}
		diffPayload = encodeHDiff(diff)
	case hdiff.ReplayFrom:
		// Nothing stored beyond the indices below; read time replays
		// forward from strategy.Base using the frozen block range.
	}

	return db.cold.Update(ctx, func(tx kv.RwTx) error {
		if snapshotPayload != nil {
			if err := tx.Put(kv.BeaconStateSnapshot, slotKey(state.Slot), snapshotPayload); err != nil {
				return fmt.Errorf("store: persist cold snapshot: %w", err)
			}
		}
		if diffPayload != nil {
			if err := tx.Put(kv.BeaconStateDiff, slotKey(state.Slot), diffPayload); err != nil {
				return fmt.Errorf("store: persist cold diff: %w", err)
			}
		}
		if err := putColdStateSummary(tx, stateRoot, ColdStateSummary{Slot: state.Slot}); err != nil {
			return err
		}
		return putSlotToRoot(tx, kv.ColdStateRoots, state.Slot, stateRoot)
	})
}

// LoadColdStateBySlot reconstructs the full state stored at slot, per the
// strategy in force for its epoch. replayer is only consulted on the
// ReplayFrom path; it may be nil when the caller already knows the slot
// resolves to Snapshot or DiffFrom (as storeColdState's DiffFrom branch
// does, since a diff base is never itself a ReplayFrom epoch).
func (db *HotColdDB) LoadColdStateBySlot(ctx context.Context, slot types.Slot, replayer BlockReplayer) (*types.BeaconState, error) {
	if s, ok := db.historicStateCache.Get(uint64(slot)); ok {
		return s, nil
	}
	buf, err := db.loadHDiffBufferForSlot(ctx, slot, replayer)
	if err != nil {
		return nil, err
	}
	state, err := hdiff.IntoState(buf)
	if err != nil {
		return nil, err
	}
	db.historicStateCache.Put(uint64(slot), state)
	return state, nil
}

// loadHDiffBufferForSlot is the recursive reconstruction at the heart of
// the cold tier: snapshot slots read directly, diff slots recurse toward their
// base and apply one hdiff, and ReplayFrom epochs recurse toward their
// nearest strategy ancestor and replay blocks forward. The diff-buffer
// cache and its companion promise cache mean a deep DiffFrom chain is
// reconstructed at most once per slot no matter how many concurrent readers
// depend on it.
func (db *HotColdDB) loadHDiffBufferForSlot(ctx context.Context, slot types.Slot, replayer BlockReplayer) (hdiff.Buffer, error) {
	if b, ok := db.diffBufferCache.Get(uint64(slot)); ok {
		return b, nil
	}
	return db.bufferPromises.GetOrCompute(uint64(slot), func() (hdiff.Buffer, error) {
		if b, ok := db.diffBufferCache.Get(uint64(slot)); ok {
			return b, nil
		}
		buf, err := db.computeHDiffBufferForSlot(ctx, slot, replayer)
		if err != nil {
			return hdiff.Buffer{}, err
		}
		db.diffBufferCache.Put(uint64(slot), buf)
		return buf, nil
	})
}

// coldStrategy maps a slot to its storage strategy. Only epoch-boundary
// slots can be snapshot or diff slots; every intermediate slot replays
// from its own epoch's boundary, which (with the mandatory exponent-0
// level) is always itself a snapshot or diff slot. Both the write and
// read paths go through this, so the two can never disagree on a slot's
// role.
func (db *HotColdDB) coldStrategy(slot types.Slot) hdiff.Strategy {
	slotsPerEpoch := db.cfg.SlotsPerEpoch
	epoch := slot.Epoch(slotsPerEpoch)
	if uint64(slot)%slotsPerEpoch != 0 {
		return hdiff.Strategy{Kind: hdiff.ReplayFrom, Base: epoch}
	}
	return db.hierarchy.StorageStrategy(epoch)
}

func (db *HotColdDB) computeHDiffBufferForSlot(ctx context.Context, slot types.Slot, replayer BlockReplayer) (hdiff.Buffer, error) {
	slotsPerEpoch := db.cfg.SlotsPerEpoch
	strategy := db.coldStrategy(slot)

	switch strategy.Kind {
	case hdiff.Snapshot:
		var raw []byte
		if err := db.cold.View(ctx, func(tx kv.Tx) error {
			b, err := tx.GetOne(kv.BeaconStateSnapshot, slotKey(slot))
			raw = b
			return err
		}); err != nil {
			return hdiff.Buffer{}, err
		}
		if raw == nil {
			return hdiff.Buffer{}, fmt.Errorf("%w: slot %d", ErrMissingSnapshot, slot)
		}
		decompressed, err := db.codec.Decompress(nil, raw)
		if err != nil {
			return hdiff.Buffer{}, fmt.Errorf("store: decompress cold snapshot: %w", err)
		}
		state, err := types.DeserializeFullState(decompressed)
		if err != nil {
			return hdiff.Buffer{}, err
		}
		return hdiff.FromState(state), nil

	case hdiff.DiffFrom:
		baseSlot := types.Slot(strategy.Base * slotsPerEpoch)
		baseBuf, err := db.loadHDiffBufferForSlot(ctx, baseSlot, replayer)
		if err != nil {
			return hdiff.Buffer{}, err
		}
		var raw []byte
		if err := db.cold.View(ctx, func(tx kv.Tx) error {
			b, err := tx.GetOne(kv.BeaconStateDiff, slotKey(slot))
			raw = b
			return err
		}); err != nil {
			return hdiff.Buffer{}, err
		}
		if raw == nil {
			return hdiff.Buffer{}, fmt.Errorf("%w: slot %d", ErrMissingHDiff, slot)
		}
		diff, err := decodeHDiff(raw)
		if err != nil {
			return hdiff.Buffer{}, err
		}
		return hdiff.Apply(db.codec, diff, baseBuf)

	case hdiff.ReplayFrom:
		if replayer == nil {
			return hdiff.Buffer{}, fmt.Errorf("store: slot %d needs block replay but no replayer was supplied", slot)
		}
		baseSlot := types.Slot(strategy.Base * slotsPerEpoch)
		baseBuf, err := db.loadHDiffBufferForSlot(ctx, baseSlot, replayer)
		if err != nil {
			return hdiff.Buffer{}, err
		}
		baseState, err := hdiff.IntoState(baseBuf)
		if err != nil {
			return hdiff.Buffer{}, err
		}

		blocks := make(map[types.Slot]*types.SignedBeaconBlock)
		for s := baseSlot + 1; s <= slot; s++ {
			blk, err := db.getColdBlockBySlot(ctx, s)
			if err != nil {
				return hdiff.Buffer{}, err
			}
			if blk != nil {
				blocks[s] = blk
			}
		}
		result, err := replayer.ReplayRange(ctx, baseState, slot, blocks, nil)
		if err != nil {
			return hdiff.Buffer{}, err
		}
		return hdiff.FromState(result), nil

	default:
		return hdiff.Buffer{}, fmt.Errorf("store: unknown storage strategy kind %d", strategy.Kind)
	}
}

// GetState is the top-level dispatcher: states at or after the split are
// served from the hot tier's recursive assembly, states before it from cold
// reconstruction. slotHint, when supplied, lets a caller that already knows
// roughly where stateRoot lives skip a wasted hot lookup; it is otherwise
// resolved from the hot state summary graph.
func (db *HotColdDB) GetState(ctx context.Context, stateRoot types.Root, slotHint *types.Slot, replayer BlockReplayer) (*types.BeaconState, error) {
	split := db.Split()
	if slotHint != nil && *slotHint < split.Slot {
		return db.LoadColdStateBySlot(ctx, *slotHint, replayer)
	}
	return db.GetHotState(ctx, stateRoot, replayer)
}
