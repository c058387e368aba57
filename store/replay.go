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

	"github.com/erigontech/caplin-store/types"
)

// StateTransition advances a state by one slot, optionally applying a
// block. Signature verification and consensus rule evaluation are the
// caller's concern; this store only invokes the function and persists the
// result.
type StateTransition func(ctx context.Context, pre *types.BeaconState, block *types.SignedBeaconBlock) (*types.BeaconState, error)

// StateRootSource supplies the state root for a given slot during replay,
// letting a replayer skip recomputing tree-hash roots it already knows
// from an iterator built during recursive assembly.
type StateRootSource func(slot types.Slot) (types.Root, bool)

// BlockReplayer runs StateTransition across an ordered run of slots,
// applying blocks where present. It is supplied by the caller (the
// consensus engine); this store never evaluates fork-choice or signatures
// itself.
type BlockReplayer interface {
	// ReplayRange advances from (fromSlot, fromState) to toSlot inclusive,
	// applying blocks at the slots where present in blocks (keyed by
	// slot), and using roots (if non-nil) to skip state-root computation
	// at slots it already covers.
	ReplayRange(ctx context.Context, fromState *types.BeaconState, toSlot types.Slot, blocks map[types.Slot]*types.SignedBeaconBlock, roots StateRootSource) (*types.BeaconState, error)
}

// transitionReplayer is the default BlockReplayer: a thin loop over
// StateTransition, one slot at a time. Supplied as a fallback so the store
// is self-contained in tests; production callers normally supply their own
// BlockReplayer wrapping a full fork-choice-aware state transition.
type transitionReplayer struct {
	transition StateTransition
}

// NewTransitionReplayer adapts a bare StateTransition function into a
// BlockReplayer.
func NewTransitionReplayer(transition StateTransition) BlockReplayer {
	return &transitionReplayer{transition: transition}
}

func (r *transitionReplayer) ReplayRange(ctx context.Context, fromState *types.BeaconState, toSlot types.Slot, blocks map[types.Slot]*types.SignedBeaconBlock, roots StateRootSource) (*types.BeaconState, error) {
	cur := fromState
	for slot := cur.Slot + 1; slot <= toSlot; slot++ {
		var blk *types.SignedBeaconBlock
		if blocks != nil {
			blk = blocks[slot]
		}
		next, err := r.transition(ctx, cur, blk)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
