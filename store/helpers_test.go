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
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/caplin-store/config"
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/kv/memdb"
	"github.com/erigontech/caplin-store/types"
)

var ctx = context.Background()

// testConfig is a small, fast-iterating hierarchy used throughout this
// package's tests; individual tests override fields they care about.
func testConfig() config.Config {
	c := config.Default()
	c.HierarchyExponents = []uint8{0, 2, 3}
	c.EpochsPerStateDiff = 3
	c.SlotsPerEpoch = 4
	c.CompressionLevel = 0
	c.PrunePayloads = false
	c.PruneBlobs = false
	c.LinearBlocks = true
	return c
}

func newTestStore(t *testing.T, cfg config.Config) (*HotColdDB, kv.DB, kv.DB) {
	t.Helper()
	hot := memdb.New(kv.HotTablesCfg)
	cold := memdb.New(kv.ColdTablesCfg)
	db, err := Open(ctx, zap.NewNop(), cfg, hot, cold, nil)
	require.NoError(t, err)
	return db, hot, cold
}

func reopenTestStore(t *testing.T, cfg config.Config, hot, cold kv.DB) *HotColdDB {
	t.Helper()
	db, err := Open(ctx, zap.NewNop(), cfg, hot, cold, nil)
	require.NoError(t, err)
	return db
}

func headerSkeleton(slot types.Slot, parentRoot, bodyRoot types.Root) types.BeaconBlockHeader {
	return types.BeaconBlockHeader{
		Slot:          slot,
		ProposerIndex: uint64(slot) + 1,
		ParentRoot:    parentRoot,
		BodyRoot:      bodyRoot,
	}
}

func ringBuffers() ([]types.Root, []types.Root, []types.Root, []types.Root) {
	return make([]types.Root, 8), make([]types.Root, 8), make([]types.Root, 8), make([]types.Root, 8)
}

// chainBalances yields a deterministic, strictly increasing balances list
// for slot, so every state in a test chain has a distinct Balances value
// (exercising the hdiff balances diff path) without ever shrinking in
// length across any base/target pair the hierarchy might diff between.
func chainBalances(slot types.Slot) []uint64 {
	return []uint64{1_000_000 + uint64(slot), 2_000_000 + 2*uint64(slot)}
}

// buildGenesis builds a slot-0 state and its originating block with a
// consistent root: the block's header carries the state's own root (the
// "fill zero state_root" case LatestBlockRoot documents), and state's own
// latest_block_header.state_root stays zero, since genesis has no parent.
func buildGenesis(t *testing.T, balances []uint64) (*types.BeaconState, *types.SignedBeaconBlock, types.Root) {
	t.Helper()
	header := headerSkeleton(0, types.ZeroRoot, types.Root{0xaa})
	blockRoots, stateRoots, randao, activeIdx := ringBuffers()
	state := &types.BeaconState{
		Slot:              0,
		LatestBlockHeader: header,
		BlockRoots:        blockRoots,
		StateRoots:        stateRoots,
		RandaoMixes:       randao,
		ActiveIndexRoots:  activeIdx,
		Balances:          balances,
	}
	stateRoot := types.HashTreeRoot(state)

	blockHeader := header
	blockHeader.StateRoot = stateRoot
	block := &types.SignedBeaconBlock{Header: blockHeader}
	return state, block, stateRoot
}

// buildChild builds a state extending parentStateRoot/parentBlockRoot at
// slot, with its header's state_root set directly to the parent's root (the
// non-zero case LatestBlockRoot leaves untouched), so the resulting block's
// root matches the state's own notion of its latest block root exactly.
func buildChild(t *testing.T, slot types.Slot, parentStateRoot, parentBlockRoot types.Root, balances []uint64) (*types.BeaconState, *types.SignedBeaconBlock, types.Root) {
	t.Helper()
	header := headerSkeleton(slot, parentBlockRoot, types.Root{byte(slot), 0xbb})
	header.StateRoot = parentStateRoot
	blockRoots, stateRoots, randao, activeIdx := ringBuffers()
	state := &types.BeaconState{
		Slot:              slot,
		LatestBlockHeader: header,
		BlockRoots:        blockRoots,
		StateRoots:        stateRoots,
		RandaoMixes:       randao,
		ActiveIndexRoots:  activeIdx,
		Balances:          balances,
	}
	stateRoot := types.HashTreeRoot(state)
	block := &types.SignedBeaconBlock{Header: header}
	return state, block, stateRoot
}

// chainLink is one slot's worth of fixtures produced by buildChain.
type chainLink struct {
	State     *types.BeaconState
	Block     *types.SignedBeaconBlock
	StateRoot types.Root
	BlockRoot types.Root
}

// buildChain builds a dense slot-0..n chain of states and blocks, each
// extending the previous one exactly as a real import would: state i's
// latest_block_header.state_root is state (i-1)'s root, and block i's
// parent_root is block (i-1)'s root.
func buildChain(t *testing.T, n int) []chainLink {
	t.Helper()
	links := make([]chainLink, 0, n+1)

	state, block, root := buildGenesis(t, chainBalances(0))
	links = append(links, chainLink{State: state, Block: block, StateRoot: root, BlockRoot: block.Root()})

	for slot := 1; slot <= n; slot++ {
		parent := links[len(links)-1]
		state, block, root := buildChild(t, types.Slot(slot), parent.StateRoot, parent.BlockRoot, chainBalances(types.Slot(slot)))
		links = append(links, chainLink{State: state, Block: block, StateRoot: root, BlockRoot: block.Root()})
	}
	return links
}

// persistChain writes every link's block and state to db in slot order, the
// way a real block-import pipeline would: the block first (GetHotState's
// dangling check and replay both depend on the block already being
// present), then the state.
func persistChain(t *testing.T, db *HotColdDB, links []chainLink) {
	t.Helper()
	for _, l := range links {
		_, err := db.PutBlock(ctx, l.Block)
		require.NoError(t, err)
		require.NoError(t, db.PutState(ctx, l.StateRoot, l.State))
	}
}

// evictStateCache removes every link's state from db's state cache, forcing
// a subsequent GetHotState to actually walk the summary/diff/replay chain
// instead of returning whatever PutState or an earlier assembly already
// cached.
func evictStateCache(db *HotColdDB, links []chainLink) {
	for _, l := range links {
		db.stateCache.Remove(l.StateRoot)
	}
}

// testTransition reconstructs the next state purely from the applied
// block's header fields, independent of pre, so it is safe to drive both
// GetHotState's replay branch and MigrateDatabase's internal reassembly
// with the exact same states a test chain already built via buildChain.
func testTransition(t *testing.T) StateTransition {
	t.Helper()
	return func(ctx context.Context, pre *types.BeaconState, block *types.SignedBeaconBlock) (*types.BeaconState, error) {
		state, _, _ := buildChild(t, block.Header.Slot, block.Header.StateRoot, block.Header.ParentRoot, chainBalances(block.Header.Slot))
		return state, nil
	}
}
