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

	"go.uber.org/zap"

	"github.com/erigontech/caplin-store/types"
)

// ReconstructHistoricStates backfills the cold tier of a checkpoint-synced
// node. The anchor's (state_lower_limit, state_upper_limit) interval
// delimits the slots whose states were never computed: everything below
// the lower limit is already reconstructable, everything at or above the
// upper limit is covered by normal finalization migration. This walks the
// interval forward from the newest state below it, replaying frozen blocks
// one slot at a time and storing each resulting state per its hierarchy
// role, exactly as migration would have.
//
// Progress is durable: state_lower_limit advances through the anchor CAS
// at every epoch boundary, so an interrupted run resumes where it stopped
// instead of starting over. When the two limits meet the anchor is
// cleared and the node's history is complete.
//
// The frozen block range must already be backfilled (see
// PutColdBlindedBlock); a gap slot with no stored block is treated as a
// skip slot and replayed empty.
func (db *HotColdDB) ReconstructHistoricStates(ctx context.Context, replayer BlockReplayer) error {
	db.migrationMu.Lock()
	defer db.migrationMu.Unlock()

	anchor := db.AnchorInfo()
	if anchor == nil {
		return nil // genesis-synced: no gap to close
	}
	lower, upper := anchor.StateLowerLimit, anchor.StateUpperLimit
	if upper <= lower {
		return db.CompareAndSetAnchorInfo(ctx, anchor, nil)
	}
	if replayer == nil {
		return fmt.Errorf("store: historic state reconstruction needs a replayer")
	}

	state, err := db.LoadColdStateBySlot(ctx, lower, replayer)
	if err != nil {
		return fmt.Errorf("store: reconstruct: load base state at slot %d: %w", lower, err)
	}

	for slot := lower + 1; slot < upper; slot++ {
		blk, err := db.getColdBlockBySlot(ctx, slot)
		if err != nil {
			return fmt.Errorf("store: reconstruct: load frozen block at slot %d: %w", slot, err)
		}
		var blocks map[types.Slot]*types.SignedBeaconBlock
		if blk != nil {
			blocks = map[types.Slot]*types.SignedBeaconBlock{slot: blk}
		}
		next, err := replayer.ReplayRange(ctx, state, slot, blocks, nil)
		if err != nil {
			return fmt.Errorf("store: reconstruct: replay slot %d: %w", slot, err)
		}
		state = next

		stateRoot := types.HashTreeRoot(state)
		if err := db.storeColdState(ctx, stateRoot, state); err != nil {
			return fmt.Errorf("store: reconstruct: store state at slot %d: %w", slot, err)
		}

		if uint64(slot)%db.cfg.SlotsPerEpoch == 0 {
			advanced := *anchor
			advanced.StateLowerLimit = slot
			if err := db.CompareAndSetAnchorInfo(ctx, anchor, &advanced); err != nil {
				return err
			}
			anchor = &advanced
			db.log.Debug("historic state reconstruction progress",
				zap.Uint64("slot", uint64(slot)),
				zap.Uint64("remaining_slots", uint64(upper-slot)),
			)
		}
	}

	// The state at the upper limit itself was stored by finalization
	// migration; the interval below it is now closed.
	if err := db.CompareAndSetAnchorInfo(ctx, anchor, nil); err != nil {
		return err
	}
	db.log.Info("historic state reconstruction complete",
		zap.Uint64("from_slot", uint64(lower)),
		zap.Uint64("to_slot", uint64(upper)),
	)
	return nil
}
