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

	"github.com/erigontech/caplin-store/compress"
	"github.com/erigontech/caplin-store/hdiff"
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// MaxParentStatesToCache bounds the caching policy during replay: the
// final stretch of intermediate states before the target are cached too,
// not just epoch boundaries, so a second lookup close to an already-served
// one is cheap.
const MaxParentStatesToCache = 8

// SetForkActivationPredicate installs the fork-activation-slot predicate:
// slots it reports true for always get a full state write regardless of
// diff placement. See HotColdDB.forkActivation.
func (db *HotColdDB) SetForkActivationPredicate(f func(types.Slot) bool) {
	db.forkActivation = f
}

// PutState dispatches a state write to the hot or cold tier based on the
// current split, per the placement rule.
func (db *HotColdDB) PutState(ctx context.Context, stateRoot types.Root, state *types.BeaconState) error {
	split := db.Split()
	if state.Slot < split.Slot {
		return db.storeColdState(ctx, stateRoot, state)
	}
	return db.storeHotState(ctx, stateRoot, state)
}

// storeHotState implements the 5-step hot storage algorithm.
func (db *HotColdDB) storeHotState(ctx context.Context, stateRoot types.Root, state *types.BeaconState) error {
	split := db.Split()
	if state.Slot < split.Slot {
		return fmt.Errorf("%w: slot %d < split slot %d", ErrSlotIsBeforeSplit, state.Slot, split.Slot)
	}

	// Step 1.
	latestBlockRoot := state.LatestBlockRoot(stateRoot)

	// Step 2: cache-only dedup. A cache hit means this exact (root,
	// block_root) pair was already durably written; skip everything.
	if cached, ok := db.stateCache.Get(stateRoot); ok {
		if cached.LatestBlockRoot(stateRoot) == latestBlockRoot {
			return nil
		}
	}

	slotsPerEpoch := db.cfg.SlotsPerEpoch
	epochsPerDiff := db.cfg.EpochsPerStateDiff

	// Step 3.
	var diffBaseSlot types.Slot
	hasDiffBase := false
	if slotsPerEpoch != 0 && uint64(state.Slot)%slotsPerEpoch == 0 {
		epochsSinceSplit := (uint64(state.Slot) - uint64(split.Slot)) / slotsPerEpoch
		if epochsPerDiff != 0 && epochsSinceSplit > 0 && epochsSinceSplit%epochsPerDiff == 0 {
			diffBaseSlot = types.Slot(uint64(state.Slot) - epochsPerDiff*slotsPerEpoch)
			hasDiffBase = true
		}
	}

	summary := HotStateSummary{
		Slot:            state.Slot,
		LatestBlockRoot: latestBlockRoot,
		PrevStateRoot:   state.LatestBlockHeader.StateRoot,
		HasDiffBase:     hasDiffBase,
	}

	err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		// Step 4. diff_base_state_root is resolved eagerly at write time
		// (the summary graph is keyed by state root, not slot) so later
		// readers never need to re-walk prev_state_root chains.
		var diffBaseStateRoot types.Root
		if hasDiffBase {
			root, ok, err := diffBaseRootLookup(tx, diffBaseSlot, summary.PrevStateRoot)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: no base found for diff_base_slot %d", ErrNoBaseStateFound, diffBaseSlot)
			}
			diffBaseStateRoot = root
		}
		s := summary
		s.DiffBaseSlot = diffBaseSlot
		s.DiffBaseStateRoot = diffBaseStateRoot
		if err := putHotStateSummary(tx, stateRoot, s); err != nil {
			return err
		}
		if err := updateVectors(tx, state, stateRoot, s.PrevStateRoot, slotsPerEpoch); err != nil {
			return err
		}

		// Step 5.
		if slotsPerEpoch == 0 || uint64(state.Slot)%slotsPerEpoch != 0 {
			return nil
		}
		isSplitState := stateRoot == split.StateRoot
		isForkActivation := db.forkActivation != nil && db.forkActivation(state.Slot)
		switch {
		case isSplitState || isForkActivation || state.Slot == 0:
			return tx.Put(kv.BeaconState, stateRoot[:], types.SerializeFullState(state))
		case hasDiffBase:
			baseState, err := loadDiffChainBaseState(tx, db.codec, diffBaseStateRoot)
			if err != nil {
				return err
			}
			diff, err := hdiff.Compute(db.codec, hdiff.FromState(baseState), hdiff.FromState(state))
			if err != nil {
				return err
			}
			return tx.Put(kv.BeaconStateDiff, stateRoot[:], encodeHDiff(diff))
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}
	db.stateCache.Put(stateRoot, latestBlockRoot, state)
	return nil
}

// PutStateTemporary writes a full state plus a temporary flag in one
// atomic batch. Callers importing a block whose surrounding write batch
// may still fail use this instead of PutState: the flag marks the record
// for garbage collection at next open if the process dies before
// ClearStateTemporaryFlag confirms the import committed.
func (db *HotColdDB) PutStateTemporary(ctx context.Context, stateRoot types.Root, state *types.BeaconState) error {
	return db.hot.Update(ctx, func(tx kv.RwTx) error {
		if err := tx.Put(kv.BeaconState, stateRoot[:], types.SerializeFullState(state)); err != nil {
			return fmt.Errorf("store: persist temporary state: %w", err)
		}
		return tx.Put(kv.BeaconStateTemporary, stateRoot[:], []byte{})
	})
}

// ClearStateTemporaryFlag promotes a temporary state to a permanent one.
func (db *HotColdDB) ClearStateTemporaryFlag(ctx context.Context, stateRoot types.Root) error {
	return db.hot.Update(ctx, func(tx kv.RwTx) error {
		return tx.Delete(kv.BeaconStateTemporary, stateRoot[:])
	})
}

// diffBaseRootLookup finds the state root stored at diffBaseSlot. Hot state
// summaries are keyed by state root, not slot, so there is no direct index;
// instead this walks the prev_state_root chain starting at fromStateRoot —
// the immediate ancestor of the state currently being stored — toward
// genesis/the split, since prev_state_root only ever decreases in slot.
// diffBaseSlot is always some earlier ancestor of the state being written
// so starting from its own immediate predecessor and walking
// backward is guaranteed to pass through it; starting from the split would
// instead walk further back than necessary and only ever find
// targetSlot == split.Slot.
func diffBaseRootLookup(tx kv.Getter, targetSlot types.Slot, fromStateRoot types.Root) (types.Root, bool, error) {
	root := fromStateRoot
	for i := 0; i < 1<<20; i++ {
		summary, err := getHotStateSummary(tx, root)
		if err != nil {
			return types.Root{}, false, err
		}
		if summary == nil {
			return types.Root{}, false, nil
		}
		if summary.Slot == targetSlot {
			return root, true, nil
		}
		if summary.Slot < targetSlot {
			return types.Root{}, false, nil
		}
		root = summary.PrevStateRoot
	}
	return types.Root{}, false, fmt.Errorf("store: diff base lookup exceeded walk bound")
}

// loadDiffChainBaseState resolves a diff base to its actual content. A diff
// base is not guaranteed to be fully stored itself: only the split, a
// fork-activation slot, and slot 0 are ever written in full (step 5), so the
// base one diff level back is frequently itself stored only as a diff
// against a still-earlier base. This walks that chain backward to the
// nearest fully-stored state and replays the diffs forward, the same
// iterative shape GetHotState uses, so that computing a diff never silently
// requires its base to be fully stored (loading the referenced base hot
// state covers the whole chain, not just the literal bytes).
// Diff bases are only ever other diffs or a fully-stored state, never a
// replay-only summary, so this never needs a BlockReplayer.
func loadDiffChainBaseState(tx kv.Getter, codec *compress.Codec, stateRoot types.Root) (*types.BeaconState, error) {
	type link struct {
		stateRoot types.Root
		diff      hdiff.Diff
	}
	var chain []link

	cur := stateRoot
	for depth := 0; ; depth++ {
		if depth > 1<<16 {
			return nil, fmt.Errorf("store: diff chain base lookup exceeded walk bound")
		}

		full, err := tx.GetOne(kv.BeaconState, cur[:])
		if err != nil {
			return nil, err
		}
		if full != nil {
			result, err := types.DeserializeFullState(full)
			if err != nil {
				return nil, err
			}
			for i := len(chain) - 1; i >= 0; i-- {
				buf, err := hdiff.Apply(codec, chain[i].diff, hdiff.FromState(result))
				if err != nil {
					return nil, err
				}
				next, err := hdiff.IntoState(buf)
				if err != nil {
					return nil, err
				}
				result = next.RebaseOn(result)
			}
			return result, nil
		}

		summary, err := getHotStateSummary(tx, cur)
		if err != nil {
			return nil, err
		}
		if summary == nil || !summary.HasDiffBase {
			return nil, fmt.Errorf("%w: diff base %x not fully stored and has no diff base of its own", ErrNoBaseStateFound, cur)
		}
		diffBytes, err := tx.GetOne(kv.BeaconStateDiff, cur[:])
		if err != nil {
			return nil, err
		}
		if diffBytes == nil {
			return nil, ErrMissingHDiff
		}
		diff, err := decodeHDiff(diffBytes)
		if err != nil {
			return nil, err
		}
		chain = append(chain, link{stateRoot: cur, diff: diff})
		cur = summary.DiffBaseStateRoot
	}
}

func encodeHDiff(d hdiff.Diff) []byte {
	buf := make([]byte, 0, 8+len(d.BytesDiff)+len(d.XorDiff))
	var tmp [8]byte
	putU64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			tmp[i] = byte(v >> (8 * i))
		}
		buf = append(buf, tmp[:]...)
	}
	putU64(uint64(len(d.BytesDiff)))
	buf = append(buf, d.BytesDiff...)
	buf = append(buf, d.XorDiff...)
	return buf
}

func decodeHDiff(b []byte) (hdiff.Diff, error) {
	if len(b) < 8 {
		return hdiff.Diff{}, fmt.Errorf("store: malformed hdiff record")
	}
	var n uint64
	for i := 0; i < 8; i++ {
		n |= uint64(b[i]) << (8 * i)
	}
	b = b[8:]
	if uint64(len(b)) < n {
		return hdiff.Diff{}, fmt.Errorf("store: truncated hdiff bytes_diff section")
	}
	return hdiff.Diff{BytesDiff: append([]byte(nil), b[:n]...), XorDiff: append([]byte(nil), b[n:]...)}, nil
}

// assemblyFrame is one entry in the explicit work stack used by
// GetHotState, replacing unbounded recursion with bounded-depth iteration
// per the store's recursion policy.
type assemblyFrame struct {
	stateRoot    types.Root
	summary      HotStateSummary
	applyDiff    bool
	replayBlock  *types.SignedBeaconBlock
}

// GetHotState implements the recursive hot-state assembly algorithm as an
// explicit work-stack walk: Phase 1 walks backward from stateRoot
// collecting frames until it reaches a cached, fully-stored, or split
// state; Phase 2 walks the stack forward re-applying diffs and replaying
// blocks.
func (db *HotColdDB) GetHotState(ctx context.Context, stateRoot types.Root, replayer BlockReplayer) (*types.BeaconState, error) {
	if s, ok := db.stateCache.Get(stateRoot); ok {
		return s, nil
	}

	return db.statePromises.GetOrCompute(stateRoot, func() (*types.BeaconState, error) {
		if s, ok := db.stateCache.Get(stateRoot); ok {
			return s, nil
		}
		return db.assembleHotState(ctx, stateRoot, replayer)
	})
}

func (db *HotColdDB) assembleHotState(ctx context.Context, target types.Root, replayer BlockReplayer) (*types.BeaconState, error) {
	split := db.Split()

	var stack []assemblyFrame
	cur := target
	var base *types.BeaconState

	const maxDepth = 1 << 20
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("store: hot state assembly exceeded max depth")
		}

		if cached, ok := db.stateCache.Get(cur); ok {
			base = cached
			break
		}

		if cur == split.StateRoot {
			b, err := db.loadFullHotState(ctx, cur)
			if err != nil {
				return nil, err
			}
			base = b
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
			return nil, nil // absent: per spec, a missing summary means "no such state"
		}

		// Dangling check: the summary's block must still exist.
		if _, ok := db.blockCache.Get(summary.LatestBlockRoot); !ok {
			var exists bool
			if err := db.hot.View(ctx, func(tx kv.Tx) error {
				ok, err := tx.Has(kv.BeaconBlock, summary.LatestBlockRoot[:])
				exists = ok
				return err
			}); err != nil {
				return nil, err
			}
			if !exists {
				return nil, nil // dangling: treated as absent, not an error
			}
		}

		// Full state stored directly under this root (split/fork-activation/slot 0).
		var full []byte
		if err := db.hot.View(ctx, func(tx kv.Tx) error {
			b, err := tx.GetOne(kv.BeaconState, cur[:])
			full = b
			return err
		}); err != nil {
			return nil, err
		}
		if full != nil {
			b, err := types.DeserializeFullState(full)
			if err != nil {
				return nil, err
			}
			base = b
			break
		}

		frame := assemblyFrame{stateRoot: cur, summary: *summary}

		if summary.HasDiffBase && summary.DiffBaseSlot >= split.Slot {
			frame.applyDiff = true
			stack = append(stack, frame)
			cur = summary.DiffBaseStateRoot
			continue
		}

		// Replay branch: stage the block at this slot (if any) and
		// recurse toward prev_state_root.
		var blk *types.SignedBeaconBlock
		if err := db.hot.View(ctx, func(tx kv.Tx) error {
			b, err := tx.GetOne(kv.BeaconBlock, summary.LatestBlockRoot[:])
			if err != nil || b == nil {
				return err
			}
			decoded, err := types.DeserializeBlock(b)
			blk = decoded
			return err
		}); err != nil {
			return nil, err
		}
		frame.replayBlock = blk
		stack = append(stack, frame)
		cur = summary.PrevStateRoot
	}

	if base == nil {
		return nil, nil
	}

	result := base
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		if frame.applyDiff {
			var diffBytes []byte
			if err := db.hot.View(ctx, func(tx kv.Tx) error {
				b, err := tx.GetOne(kv.BeaconStateDiff, frame.stateRoot[:])
				diffBytes = b
				return err
			}); err != nil {
				return nil, err
			}
			if diffBytes == nil {
				return nil, ErrMissingHDiff
			}
			diff, err := decodeHDiff(diffBytes)
			if err != nil {
				return nil, err
			}
			buf, err := hdiff.Apply(db.codec, diff, hdiff.FromState(result))
			if err != nil {
				return nil, err
			}
			next, err := hdiff.IntoState(buf)
			if err != nil {
				return nil, err
			}
			// Rebase so the rematerialized state shares its unchanged
			// ring-buffer slices with the base instead of holding a second
			// copy; deep diff chains would otherwise multiply memory by
			// chain length while cached.
			result = next.RebaseOn(result)
		} else if frame.replayBlock != nil {
			if replayer == nil {
				return nil, fmt.Errorf("store: slot %d needs block replay but no replayer was supplied", frame.summary.Slot)
			}
			next, err := replayer.ReplayRange(ctx, result, frame.summary.Slot, map[types.Slot]*types.SignedBeaconBlock{frame.summary.Slot: frame.replayBlock}, nil)
			if err != nil {
				return nil, err
			}
			result = next
		}

		if uint64(frame.summary.Slot)%db.cfg.SlotsPerEpoch == 0 || i < MaxParentStatesToCache {
			db.stateCache.Put(frame.stateRoot, frame.summary.LatestBlockRoot, result)
		}
	}

	db.stateCache.Put(target, result.LatestBlockRoot(target), result)
	return result, nil
}

// loadFullHotState loads a fully-stored hot state (used for the split
// state, which is always written in full).
func (db *HotColdDB) loadFullHotState(ctx context.Context, stateRoot types.Root) (*types.BeaconState, error) {
	var raw []byte
	if err := db.hot.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconState, stateRoot[:])
		raw = b
		return err
	}); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrMissingSplitState
	}
	return types.DeserializeFullState(raw)
}

// GetAdvancedHotState returns a state with LatestBlockRoot == blockRoot
// whose slot is <= maxSlot, consulting the state cache's secondary index
// first and falling back to replaying forward from the nearest known
// ancestor when no exact cache entry exists.
func (db *HotColdDB) GetAdvancedHotState(ctx context.Context, blockRoot types.Root, maxSlot types.Slot, stateRoot types.Root, replayer BlockReplayer) (*types.BeaconState, error) {
	if s, ok := db.stateCache.GetAdvanced(blockRoot, maxSlot); ok {
		return s, nil
	}

	split := db.Split()
	if blockRoot == split.BlockRoot && split.Slot <= maxSlot {
		base, err := db.loadFullHotState(ctx, split.StateRoot)
		if err != nil {
			return nil, err
		}
		if base.Slot == maxSlot || replayer == nil {
			return base, nil
		}
		return replayer.ReplayRange(ctx, base, maxSlot, nil, nil)
	}

	base, err := db.GetHotState(ctx, stateRoot, replayer)
	if err != nil || base == nil {
		return base, err
	}
	if base.Slot >= maxSlot || replayer == nil {
		return base, nil
	}
	return replayer.ReplayRange(ctx, base, maxSlot, nil, nil)
}
