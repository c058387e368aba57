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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/kv/memdb"
	"github.com/erigontech/caplin-store/types"
)

// TestOpenFreshDatabase covers opening a fresh database: split
// is the zero triple, there is no anchor, and blob info is zero.
func TestOpenFreshDatabase(t *testing.T) {
	db, _, _ := newTestStore(t, testConfig())

	assert.Equal(t, Split{}, db.Split())
	assert.Nil(t, db.AnchorInfo())
	assert.Equal(t, BlobInfo{}, db.BlobInfo())
}

// TestOpenPersistsSplitAcrossReopen confirms a reopened instance observes
// whatever the previous instance last wrote, rather than reinitializing.
// The persisted record carries only {slot, state_root}; the block root
// must come back out of the split state's own summary.
func TestOpenPersistsSplitAcrossReopen(t *testing.T) {
	cfg := testConfig()
	hot := memdb.New(kv.HotTablesCfg)
	cold := memdb.New(kv.ColdTablesCfg)

	db := reopenTestStore(t, cfg, hot, cold)
	newSplit := Split{Slot: 4, StateRoot: types.Root{1}, BlockRoot: types.Root{2}}
	require.NoError(t, db.hot.Update(ctx, func(tx kv.RwTx) error {
		if err := putHotStateSummary(tx, newSplit.StateRoot, HotStateSummary{
			Slot:            newSplit.Slot,
			LatestBlockRoot: newSplit.BlockRoot,
		}); err != nil {
			return err
		}
		return putSplit(tx, newSplit)
	}))
	db.setSplit(newSplit)

	db2 := reopenTestStore(t, cfg, hot, cold)
	assert.Equal(t, newSplit, db2.Split())
}

// TestOpenFailsWhenSplitSummaryMissing pins the hard-error decision for a
// split whose block root cannot be derived: the state root is non-zero but
// no summary record survives for it.
func TestOpenFailsWhenSplitSummaryMissing(t *testing.T) {
	cfg := testConfig()
	hot := memdb.New(kv.HotTablesCfg)
	cold := memdb.New(kv.ColdTablesCfg)

	db := reopenTestStore(t, cfg, hot, cold)
	require.NoError(t, db.hot.Update(ctx, func(tx kv.RwTx) error {
		return putSplit(tx, Split{Slot: 4, StateRoot: types.Root{1}})
	}))

	_, err := Open(ctx, zap.NewNop(), cfg, hot, cold, nil)
	assert.ErrorIs(t, err, ErrMissingSplitState)
}

// TestOpenRejectsIncompatibleOnDiskConfig covers the persisted-config
// guard: a database written under one hierarchy cannot be reopened with
// another, since every on-disk diff placement would silently disagree.
func TestOpenRejectsIncompatibleOnDiskConfig(t *testing.T) {
	cfg := testConfig()
	hot := memdb.New(kv.HotTablesCfg)
	cold := memdb.New(kv.ColdTablesCfg)
	reopenTestStore(t, cfg, hot, cold)

	changed := cfg
	changed.HierarchyExponents = []uint8{0, 3, 5}
	_, err := Open(ctx, zap.NewNop(), changed, hot, cold, nil)
	assert.Error(t, err)

	// Reopening with the original config still works.
	reopenTestStore(t, cfg, hot, cold)
}

// TestOpenRejectsBlobDBRelocation covers the blobs_db_flag guard: once
// blobs have been recorded as living in the default (cold) store, opening
// with a separate blob engine must fail with the dedicated sentinel, and
// the reverse relocation must fail too.
func TestOpenRejectsBlobDBRelocation(t *testing.T) {
	cfg := testConfig()
	hot := memdb.New(kv.HotTablesCfg)
	cold := memdb.New(kv.ColdTablesCfg)
	reopenTestStore(t, cfg, hot, cold)

	blob := memdb.New(kv.ColdTablesCfg)
	_, err := Open(ctx, zap.NewNop(), cfg, hot, cold, blob)
	assert.ErrorIs(t, err, ErrBlobsPreviouslyInDefaultDB)

	// And the other direction: initialized separate, reopened default.
	hot2 := memdb.New(kv.HotTablesCfg)
	cold2 := memdb.New(kv.ColdTablesCfg)
	blob2 := memdb.New(kv.ColdTablesCfg)
	db2, err := Open(ctx, zap.NewNop(), cfg, hot2, cold2, blob2)
	require.NoError(t, err)
	assert.True(t, db2.BlobInfo().BlobsDBFlag)
	_, err = Open(ctx, zap.NewNop(), cfg, hot2, cold2, nil)
	assert.Error(t, err)
}

// TestCompareAndSetAnchorInfo exercises the anchor CAS guard both ways:
// a stale prev fails with the concurrency sentinel, a matching prev
// persists across reopen, and a nil next deletes the anchor.
func TestCompareAndSetAnchorInfo(t *testing.T) {
	cfg := testConfig()
	hot := memdb.New(kv.HotTablesCfg)
	cold := memdb.New(kv.ColdTablesCfg)
	db := reopenTestStore(t, cfg, hot, cold)

	anchor := &AnchorInfo{AnchorSlot: 64, OldestBlockSlot: 64, StateUpperLimit: 128}
	require.NoError(t, db.CompareAndSetAnchorInfo(ctx, nil, anchor))

	stale := &AnchorInfo{AnchorSlot: 1}
	err := db.CompareAndSetAnchorInfo(ctx, stale, nil)
	assert.ErrorIs(t, err, ErrAnchorInfoConcurrentMutation)

	db2 := reopenTestStore(t, cfg, hot, cold)
	require.NotNil(t, db2.AnchorInfo())
	assert.Equal(t, *anchor, *db2.AnchorInfo())

	require.NoError(t, db2.CompareAndSetAnchorInfo(ctx, anchor, nil))
	assert.Nil(t, db2.AnchorInfo())
}

// TestTemporaryStatesGarbageCollectedOnOpen covers the torn-write path: a
// state written with PutStateTemporary whose flag was never cleared must
// be deleted by the next open, while a confirmed one survives.
func TestTemporaryStatesGarbageCollectedOnOpen(t *testing.T) {
	cfg := testConfig()
	hot := memdb.New(kv.HotTablesCfg)
	cold := memdb.New(kv.ColdTablesCfg)
	db := reopenTestStore(t, cfg, hot, cold)

	links := buildChain(t, 1)
	abandoned, confirmed := links[0], links[1]
	require.NoError(t, db.PutStateTemporary(ctx, abandoned.StateRoot, abandoned.State))
	require.NoError(t, db.PutStateTemporary(ctx, confirmed.StateRoot, confirmed.State))
	require.NoError(t, db.ClearStateTemporaryFlag(ctx, confirmed.StateRoot))

	reopenTestStore(t, cfg, hot, cold)

	require.NoError(t, hot.View(ctx, func(tx kv.Tx) error {
		gone, err := tx.Has(kv.BeaconState, abandoned.StateRoot[:])
		require.NoError(t, err)
		assert.False(t, gone, "unconfirmed temporary state must be garbage collected")
		kept, err := tx.Has(kv.BeaconState, confirmed.StateRoot[:])
		require.NoError(t, err)
		assert.True(t, kept, "confirmed state must survive reopen")
		return nil
	}))
}

// TestCompareAndSetBlobInfo mirrors the anchor CAS test for blob info.
func TestCompareAndSetBlobInfo(t *testing.T) {
	db, _, _ := newTestStore(t, testConfig())

	next := BlobInfo{OldestBlobSlot: 32}
	require.NoError(t, db.CompareAndSetBlobInfo(ctx, BlobInfo{}, next))

	err := db.CompareAndSetBlobInfo(ctx, BlobInfo{}, BlobInfo{OldestBlobSlot: 64})
	assert.ErrorIs(t, err, ErrBlobInfoConcurrentMutation)
	assert.Equal(t, next, db.BlobInfo())
}
