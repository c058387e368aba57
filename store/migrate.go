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

	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// hotDelete is one hot-DB key scheduled for deletion during migration,
// applied in a single transaction once the split has been durably moved.
type hotDelete struct {
	table string
	key   []byte
}

// migrationTriple is one (block_root, state_root, slot) visited while
// walking backward from the newly finalized state to the current split.
type migrationTriple struct {
	BlockRoot types.Root
	StateRoot types.Root
	Slot      types.Slot
}

// MigrateDatabase is the finalization migration entry point: advance the
// split to finalizedState, copying everything between the old and new
// split down into the cold tier and scheduling the hot-side originals for
// deletion. The crash-consistency contract is enforced by literal
// statement order, never coalesced into one flush: the cold DB is synced
// before the new split is persisted, and the new split is persisted
// before any hot-DB deletion is applied. A crash at any point along that
// order leaves the store in a state recoverable by re-running migration,
// never in a state with cold data referencing a split that was never
// committed.
func (db *HotColdDB) MigrateDatabase(ctx context.Context, finalizedStateRoot, finalizedBlockRoot types.Root, finalizedState *types.BeaconState, replayer BlockReplayer) error {
	db.migrationMu.Lock()
	defer db.migrationMu.Unlock()

	slotsPerEpoch := db.cfg.SlotsPerEpoch
	if slotsPerEpoch == 0 || uint64(finalizedState.Slot)%slotsPerEpoch != 0 {
		return fmt.Errorf("%w: slot %d", ErrFreezeSlotUnaligned, finalizedState.Slot)
	}
	currentSplit := db.Split()
	if finalizedState.Slot < currentSplit.Slot {
		return fmt.Errorf("%w: finalized slot %d < split slot %d", ErrFreezeSlotError, finalizedState.Slot, currentSplit.Slot)
	}
	if finalizedState.Slot == currentSplit.Slot {
		return nil // nothing to do: already at this split
	}

	// Step 1: write the finalized state as a full hot state, in case it
	// was previously known only as a diff or a summary.
	if err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(kv.BeaconState, finalizedStateRoot[:], types.SerializeFullState(finalizedState))
	}); err != nil {
		return fmt.Errorf("store: migrate: write finalized full state: %w", err)
	}
	db.stateCache.Put(finalizedStateRoot, finalizedState.LatestBlockRoot(finalizedStateRoot), finalizedState)

	// Step 2: collect (block_root, state_root, slot) triples from the
	// finalized state back to the current split, in slot-ascending order.
	triples, err := db.collectMigrationTriples(ctx, finalizedStateRoot, currentSplit)
	if err != nil {
		return err
	}

	// Step 3. Cold writes from this run are tracked so a mid-loop failure
	// can be reversed: re-running migration converges regardless, but a
	// half-written cold tier should not be left behind when the caller is
	// going to surface the failure instead of retrying. If the reversal
	// itself cannot complete, the error is escalated as ErrRollback.
	var hotDeletes []hotDelete
	var coldWritten []migrationTriple
	anchor := db.AnchorInfo()
	step3 := func(t migrationTriple) error {
		coldWritten = append(coldWritten, t)
		if db.cfg.PrunePayloads {
			hotDeletes = append(hotDeletes, hotDelete{table: kv.ExecPayload, key: append([]byte(nil), t.BlockRoot[:]...)})
		}

		if db.cfg.LinearBlocks {
			blk, err := db.GetBlock(ctx, t.BlockRoot, &t.Slot)
			if err != nil {
				return fmt.Errorf("store: migrate: load block for cold copy: %w", err)
			}
			if blk != nil && (blk.Header.Slot == t.Slot || t.Slot == currentSplit.Slot) {
				if err := db.cold.Update(ctx, func(tx kv.RwTx) error {
					return putColdBlock(tx, db.codec, t.Slot, t.BlockRoot, blk)
				}); err != nil {
					return fmt.Errorf("store: migrate: copy block to cold: %w", err)
				}
				hotDeletes = append(hotDeletes, hotDelete{table: kv.BeaconBlock, key: append([]byte(nil), t.BlockRoot[:]...)})
			}
		}

		// The slot->block_root index is recorded for every slot, including
		// skip slots that merely repeat the previous slot's block root;
		// the forwards iterators depend on a dense index.
		if err := db.cold.Update(ctx, func(tx kv.RwTx) error {
			return putSlotToRoot(tx, kv.BeaconBlockRoots, t.Slot, t.BlockRoot)
		}); err != nil {
			return fmt.Errorf("store: migrate: record slot->block_root: %w", err)
		}

		hotDeletes = append(hotDeletes,
			hotDelete{table: kv.BeaconStateSummary, key: append([]byte(nil), t.StateRoot[:]...)},
			hotDelete{table: kv.BeaconState, key: append([]byte(nil), t.StateRoot[:]...)},
			hotDelete{table: kv.BeaconStateDiff, key: append([]byte(nil), t.StateRoot[:]...)},
		)

		if anchor != nil && t.Slot < anchor.StateUpperLimit {
			// Below the anchor's guaranteed state range: nothing to
			// reconstruct, so nothing to store cold either.
			return nil
		}

		state, err := db.GetHotState(ctx, t.StateRoot, replayer)
		if err != nil {
			return fmt.Errorf("store: migrate: assemble state for cold copy: %w", err)
		}
		if state == nil {
			return nil // dangling state: its block was pruned already, nothing left to migrate
		}
		if err := db.storeColdState(ctx, t.StateRoot, state); err != nil {
			return fmt.Errorf("store: migrate: store cold state: %w", err)
		}
		return nil
	}
	for _, t := range triples {
		if err := step3(t); err != nil {
			if rbErr := db.rollbackColdWrites(ctx, coldWritten); rbErr != nil {
				return fmt.Errorf("%w: %v (while handling: %v)", ErrRollback, rbErr, err)
			}
			return err
		}
	}

	// Step 4: flush and fsync the cold DB before the split ever moves.
	if err := db.cold.Sync(ctx); err != nil {
		return fmt.Errorf("store: migrate: sync cold db: %w", err)
	}

	// Step 5: under the split write lock, verify nothing else moved the
	// split since we observed it, then persist and durably sync the new
	// split before updating the in-memory value.
	newSplit := Split{Slot: finalizedState.Slot, StateRoot: finalizedStateRoot, BlockRoot: finalizedBlockRoot}
	db.splitMu.Lock()
	if db.split.Slot != currentSplit.Slot {
		db.splitMu.Unlock()
		return fmt.Errorf("%w: observed %d, now %d", ErrSplitPointModified, currentSplit.Slot, db.split.Slot)
	}
	if err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		return putSplit(tx, newSplit)
	}); err != nil {
		db.splitMu.Unlock()
		return fmt.Errorf("store: migrate: persist split: %w", err)
	}
	if err := db.hot.Sync(ctx); err != nil {
		db.splitMu.Unlock()
		return fmt.Errorf("store: migrate: sync split write: %w", err)
	}
	db.split = newSplit
	db.splitMu.Unlock()

	// Step 6: only now apply the hot-DB deletions accumulated in step 3,
	// atomically, since the split move just made the cold copies canonical.
	if err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		for _, d := range hotDeletes {
			if err := tx.Delete(d.table, d.key); err != nil {
				return fmt.Errorf("store: migrate: delete %s: %w", d.table, err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("store: migrate: apply hot deletions: %w", err)
	}

	// Step 7: the finalized state is already the newest entry in the
	// cache (written at step 1); nothing further to refresh there.
	return nil
}

// rollbackColdWrites deletes the cold-tier records a failed migration run
// wrote before it stopped. Deleting a key the failed run never reached is
// harmless, so the reversal covers every triple the run touched rather
// than tracking individual keys.
func (db *HotColdDB) rollbackColdWrites(ctx context.Context, triples []migrationTriple) error {
	if len(triples) == 0 {
		return nil
	}
	return db.cold.Update(ctx, func(tx kv.RwTx) error {
		for _, t := range triples {
			for _, table := range []string{kv.BeaconBlockFrozen, kv.BeaconBlockRoots, kv.ColdStateRoots, kv.BeaconStateSnapshot, kv.BeaconStateDiff} {
				if err := tx.Delete(table, slotKey(t.Slot)); err != nil {
					return err
				}
			}
			if err := tx.Delete(kv.BeaconStateSummary, t.StateRoot[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// collectMigrationTriples walks the hot state summary chain backward from
// finalizedStateRoot's own parent down through and including oldSplit (the
// state that was the split before this migration), or to the anchor slot
// (the earliest slot this node has any data for, if checkpoint synced),
// then reverses the walk into slot-ascending order.
//
// The walk deliberately starts one step behind finalizedStateRoot, not at
// it: finalizedStateRoot becomes the new split and step 1 already wrote it
// as a full hot state, so it must stay readable straight out of the hot DB
// as the split state. Starting the walk there would add it to
// the triple set and have it deleted again in step 6, undoing step 1.
//
// The walk does include oldSplit itself: that state was the split only
// for the migration that is now superseding it, so this is the one
// opportunity to move it into cold storage and drop its hot record too —
// skipping it here would leak one abandoned full hot state per past
// migration forever.
func (db *HotColdDB) collectMigrationTriples(ctx context.Context, finalizedStateRoot types.Root, oldSplit Split) ([]migrationTriple, error) {
	var triples []migrationTriple
	anchor := db.AnchorInfo()

	var finalizedSummary *HotStateSummary
	if err := db.hot.View(ctx, func(tx kv.Tx) error {
		s, err := getHotStateSummary(tx, finalizedStateRoot)
		finalizedSummary = s
		return err
	}); err != nil {
		return nil, err
	}
	if finalizedSummary == nil {
		return nil, fmt.Errorf("%w: finalized state %x", ErrMissingEpochBoundary, finalizedStateRoot)
	}
	cur := finalizedSummary.PrevStateRoot

	const maxDepth = 1 << 20
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("store: migrate: triple collection exceeded max depth")
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
		triples = append(triples, migrationTriple{BlockRoot: summary.LatestBlockRoot, StateRoot: cur, Slot: summary.Slot})
		if summary.Slot <= oldSplit.Slot {
			break
		}
		if anchor != nil && summary.Slot <= anchor.AnchorSlot {
			break
		}
		cur = summary.PrevStateRoot
	}

	for i, j := 0, len(triples)-1; i < j; i, j = i+1, j-1 {
		triples[i], triples[j] = triples[j], triples[i]
	}
	return triples, nil
}
