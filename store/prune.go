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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/caplin-store/internal/mathutil"
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// PruneExecutionPayloads is the execution-payload pruner: a
// catch-up sweep over the cold slot->block_root index, from bellatrixSlot
// (or the anchor slot, whichever is later) up to the current split,
// deleting any execution payload still sitting in the hot DB under a now
// pre-Merge-or-already-cold block root. Consecutive slots sharing the
// same block root (skip slots) are coalesced into a single delete;
// issuing the same delete twice is wasted work, not a correctness issue.
func (db *HotColdDB) PruneExecutionPayloads(ctx context.Context, bellatrixSlot types.Slot) error {
	if !db.cfg.PrunePayloads {
		return nil
	}
	db.migrationMu.Lock()
	defer db.migrationMu.Unlock()

	split := db.Split()
	lowerBound := bellatrixSlot
	if anchor := db.AnchorInfo(); anchor != nil && anchor.AnchorSlot > lowerBound {
		lowerBound = anchor.AnchorSlot
	}
	if lowerBound >= split.Slot {
		return nil
	}

	var roots []types.Root
	if err := db.cold.View(ctx, func(tx kv.Tx) error {
		return tx.ForEach(kv.BeaconBlockRoots, slotKey(lowerBound), func(k, v []byte) (bool, error) {
			slot := types.Slot(binary.BigEndian.Uint64(k))
			if slot >= split.Slot {
				return false, nil
			}
			var r types.Root
			copy(r[:], v)
			if len(roots) == 0 || roots[len(roots)-1] != r {
				roots = append(roots, r)
			}
			return true, nil
		})
	}); err != nil {
		return err
	}

	return db.hot.Update(ctx, func(tx kv.RwTx) error {
		for _, root := range roots {
			if err := tx.Delete(kv.ExecPayload, root[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// PruneBlobs computes the blob retention window [start_epoch, end_epoch],
// walks the cold block-roots index across it, deletes every blob record
// found, and advances BlobInfo.OldestBlobSlot past the window.
// dataAvailabilityBoundaryEpoch is supplied by the caller (derived from
// the fork schedule, a Non-goal here) rather than computed locally.
// Without force, the pruner only runs once the window has grown to at
// least epochs_per_blob_prune epochs, so finalization that hasn't yet
// advanced a full prune window is a no-op.
func (db *HotColdDB) PruneBlobs(ctx context.Context, dataAvailabilityBoundaryEpoch uint64, force bool) error {
	if !db.cfg.PruneBlobs {
		return nil
	}
	db.migrationMu.Lock()
	defer db.migrationMu.Unlock()

	slotsPerEpoch := db.cfg.SlotsPerEpoch
	split := db.Split()
	blobInfo := db.BlobInfo()

	splitEpoch := split.Slot.Epoch(slotsPerEpoch)
	if splitEpoch == 0 {
		return nil
	}
	margin := db.cfg.BlobPruneMarginEpochs
	if dataAvailabilityBoundaryEpoch <= margin {
		return nil // retention window hasn't opened yet
	}

	upperBound := splitEpoch - 1
	if b := dataAvailabilityBoundaryEpoch - margin - 1; b < upperBound {
		upperBound = b
	}

	startEpoch := blobInfo.OldestBlobSlot.Epoch(slotsPerEpoch)
	if startEpoch > upperBound {
		return nil // window empty or already fully pruned
	}
	if !force && upperBound-startEpoch+1 < db.cfg.EpochsPerBlobPrune {
		return nil // window hasn't grown a full prune interval yet
	}

	startSlot := types.Slot(startEpoch * slotsPerEpoch)
	endSlot := types.Slot((upperBound+1)*slotsPerEpoch) - 1

	var roots []types.Root
	if err := db.cold.View(ctx, func(tx kv.Tx) error {
		return tx.ForEach(kv.BeaconBlockRoots, slotKey(startSlot), func(k, v []byte) (bool, error) {
			slot := types.Slot(binary.BigEndian.Uint64(k))
			if slot > endSlot {
				return false, nil
			}
			var r types.Root
			copy(r[:], v)
			roots = append(roots, r)
			return true, nil
		})
	}); err != nil {
		return err
	}

	for _, root := range roots {
		if err := db.DeleteBlobs(ctx, root); err != nil {
			return err
		}
	}

	newInfo := BlobInfo{OldestBlobSlot: endSlot + 1, BlobsDBFlag: blobInfo.BlobsDBFlag}
	if err := db.CompareAndSetBlobInfo(ctx, blobInfo, newInfo); err != nil {
		return err
	}
	windowSlots := mathutil.AbsDiff(uint64(endSlot), uint64(startSlot))
	db.log.Debug("pruned blobs",
		zap.Uint64("start_slot", uint64(startSlot)),
		zap.Uint64("end_slot", uint64(endSlot)),
		zap.Int("roots", len(roots)),
		zap.Uint64("window_slots", windowSlots),
		zap.Uint64("window_epochs", mathutil.CeilDiv(windowSlots, slotsPerEpoch)),
	)
	return nil
}

// PruneForkedBranches is the fork pruner: at finalization, the
// caller's fork-choice has already determined which state and block roots
// belong to discarded, non-canonical branches (computing that set is a
// Non-goal here; this store only knows about the summary graph, not
// sibling branches). Given that set, it deletes the corresponding hot
// records and evicts them from the value caches so a stale read can never
// slip through.
func (db *HotColdDB) PruneForkedBranches(ctx context.Context, discardedStateRoots, discardedBlockRoots []types.Root) error {
	db.migrationMu.Lock()
	defer db.migrationMu.Unlock()

	if err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		for _, root := range discardedStateRoots {
			if err := tx.Delete(kv.BeaconStateSummary, root[:]); err != nil {
				return err
			}
			if err := tx.Delete(kv.BeaconState, root[:]); err != nil {
				return err
			}
			if err := tx.Delete(kv.BeaconStateDiff, root[:]); err != nil {
				return err
			}
		}
		for _, root := range discardedBlockRoots {
			if err := tx.Delete(kv.BeaconBlock, root[:]); err != nil {
				return err
			}
			if err := tx.Delete(kv.ExecPayload, root[:]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	for _, root := range discardedStateRoots {
		db.stateCache.Remove(root)
	}
	for _, root := range discardedBlockRoots {
		db.blockCache.Remove(root)
	}
	return nil
}

// RunPruners runs the execution-payload and blob pruners as one
// maintenance cycle. Both pruners serialize on migrationMu internally, so
// errgroup here buys structured cancellation and error propagation rather
// than true overlap; the fork pruner is invoked separately, directly from
// the finalization call site, since it needs the discarded-root set
// fork-choice computed for that specific finalization rather than a
// periodic schedule.
func (db *HotColdDB) RunPruners(ctx context.Context, bellatrixSlot types.Slot, dataAvailabilityBoundaryEpoch uint64, force bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return db.PruneExecutionPayloads(gctx, bellatrixSlot) })
	g.Go(func() error { return db.PruneBlobs(gctx, dataAvailabilityBoundaryEpoch, force) })
	if err := g.Wait(); err != nil {
		return err
	}

	if db.cfg.CompactOnPrune {
		if err := db.cold.Compact(ctx); err != nil {
			db.log.Warn("compact-on-prune failed", zap.Error(err))
		}
	}
	return nil
}
