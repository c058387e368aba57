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

// Package store is the heart of the system: HotColdDB owns both KV
// instances and all caches, and exposes put/get/delete for blocks, blobs,
// states, and execution payloads, plus iterators, the split point, the
// anchor info, and schema migration entry points.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/caplin-store/caches"
	"github.com/erigontech/caplin-store/compress"
	"github.com/erigontech/caplin-store/config"
	"github.com/erigontech/caplin-store/hdiff"
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/promise"
	"github.com/erigontech/caplin-store/types"
)

// HotColdDB is the shared handle callers pass around by pointer; every
// mutating operation is a method, so callers never thread lifetimes
// through their own APIs.
type HotColdDB struct {
	log *zap.Logger
	cfg config.Config

	hot  kv.DB
	cold kv.DB
	blob kv.DB // coincides with cold unless configured separately

	hierarchy hdiff.HierarchyConfig
	codec     *compress.Codec
	fastCodec *compress.FastCodec

	splitMu sync.RWMutex
	split   Split

	anchorMu sync.RWMutex
	anchor   *AnchorInfo

	blobInfoMu sync.RWMutex
	blobInfo   BlobInfo

	stateCache         *caches.StateCache
	blockCache         *caches.BlockCache
	blobCache          *caches.BlobCache
	diffBufferCache    *caches.DiffBufferCache
	historicStateCache *caches.HistoricStateCache

	statePromises  *promise.Cache[types.Root, *types.BeaconState]
	bufferPromises *promise.Cache[uint64, hdiff.Buffer]

	// forkActivation reports whether a slot is a fork-activation boundary
	// that always gets a full hot state write. The store has no fork
	// schedule of its own (Non-goal: consensus rule evaluation); callers
	// wire it in via SetForkActivationPredicate. Nil means none.
	forkActivation func(types.Slot) bool

	// migrationMu serializes migration/reconstruction/pruning against
	// each other without blocking readers, per the concurrency model's
	// "coarse migration mutex" rule.
	migrationMu sync.Mutex
}

// Open opens (or initializes) both KV instances, loads persisted config,
// split, and anchor, and runs any needed schema migration. Blob storage
// defaults to the cold instance; pass a distinct db to split it out.
func Open(ctx context.Context, log *zap.Logger, cfg config.Config, hot, cold kv.DB, blob kv.DB) (*HotColdDB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hierarchy := hdiff.HierarchyConfig{Exponents: cfg.HierarchyExponents}
	if len(hierarchy.Exponents) > 0 {
		if err := hierarchy.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHierarchy, err)
		}
	}
	if blob == nil {
		blob = cold
	}

	codec, err := compress.NewCodec(compress.Level(cfg.CompressionLevel))
	if err != nil {
		return nil, err
	}

	stateCache, err := caches.NewStateCache(cfg.StateCacheSize)
	if err != nil {
		return nil, err
	}
	blockCache, err := caches.NewBlockCache(cfg.BlockCacheSize)
	if err != nil {
		return nil, err
	}
	blobCache, err := caches.NewBlobCache(cfg.BlockCacheSize)
	if err != nil {
		return nil, err
	}
	diffBufferCache, err := caches.NewDiffBufferCache(cfg.DiffBufferCacheSize)
	if err != nil {
		return nil, err
	}
	historicStateCache, err := caches.NewHistoricStateCache(cfg.HistoricStateCacheSize)
	if err != nil {
		return nil, err
	}

	db := &HotColdDB{
		log: log, cfg: cfg,
		hot: hot, cold: cold, blob: blob,
		hierarchy: hierarchy, codec: codec, fastCodec: compress.NewFastCodec(),
		stateCache: stateCache, blockCache: blockCache,
		blobCache: blobCache, diffBufferCache: diffBufferCache,
		historicStateCache: historicStateCache,
		statePromises:      promise.New[types.Root, *types.BeaconState](),
		bufferPromises:     promise.New[uint64, hdiff.Buffer](),
	}

	separateBlobs := blob != cold
	if err := hot.Update(ctx, func(tx kv.RwTx) error {
		if err := loadOrInitSchemaVersion(tx); err != nil {
			return err
		}
		if err := loadOrInitStoredConfig(tx, cfg); err != nil {
			return err
		}
		split, err := loadOrInitSplit(tx)
		if err != nil {
			return err
		}
		db.split = split
		anchor, err := loadAnchor(tx)
		if err != nil {
			return err
		}
		db.anchor = anchor
		bi, err := loadOrInitBlobInfo(tx, separateBlobs)
		if err != nil {
			return err
		}
		db.blobInfo = bi
		return nil
	}); err != nil {
		return nil, err
	}

	if err := db.garbageCollectTemporaryStates(ctx); err != nil {
		return nil, err
	}

	if cfg.CompactOnInit {
		if err := db.Compact(ctx); err != nil {
			log.Warn("compact-on-init failed", zap.Error(err))
		}
	}

	return db, nil
}

// garbageCollectTemporaryStates deletes states whose temporary flag
// survived a restart: the batch that would have confirmed them never
// committed, so the records are torn leftovers rather than chain data.
func (db *HotColdDB) garbageCollectTemporaryStates(ctx context.Context) error {
	var roots []types.Root
	if err := db.hot.View(ctx, func(tx kv.Tx) error {
		return tx.ForEach(kv.BeaconStateTemporary, nil, func(k, _ []byte) (bool, error) {
			var r types.Root
			copy(r[:], k)
			roots = append(roots, r)
			return true, nil
		})
	}); err != nil {
		return err
	}
	if len(roots) == 0 {
		return nil
	}
	db.log.Info("deleting temporary states", zap.Int("count", len(roots)))
	return db.hot.Update(ctx, func(tx kv.RwTx) error {
		for _, r := range roots {
			for _, table := range []string{kv.BeaconStateTemporary, kv.BeaconState, kv.BeaconStateSummary, kv.BeaconStateDiff} {
				if err := tx.Delete(table, r[:]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Split returns a snapshot of the current split triple. Reads taken under
// the RWMutex's read lock observe a consistent triple for the duration of
// the read, per the concurrency model.
func (db *HotColdDB) Split() Split {
	db.splitMu.RLock()
	defer db.splitMu.RUnlock()
	return db.split
}

func (db *HotColdDB) setSplit(s Split) {
	db.splitMu.Lock()
	db.split = s
	db.splitMu.Unlock()
}

// AnchorInfo returns the current anchor, or nil if this is a
// genesis-synced node.
func (db *HotColdDB) AnchorInfo() *AnchorInfo {
	db.anchorMu.RLock()
	defer db.anchorMu.RUnlock()
	return db.anchor
}

func (db *HotColdDB) BlobInfo() BlobInfo {
	db.blobInfoMu.RLock()
	defer db.blobInfoMu.RUnlock()
	return db.blobInfo
}

// loadOrInitSplit reads the persisted split. The on-disk record carries
// only {slot, state_root}; block_root is derived here by reading the split
// state's hot summary, trying the current summary encoding first and
// falling back to the legacy record shape that embedded the block root
// directly.
func loadOrInitSplit(tx kv.RwTx) (Split, error) {
	b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeySplit)
	if err != nil {
		return Split{}, fmt.Errorf("store: read split: %w", err)
	}
	if b == nil {
		// Fresh database: split = {slot: 0, state_root: 0, block_root: 0}.
		zero := Split{}
		if err := putSplit(tx, zero); err != nil {
			return Split{}, err
		}
		return zero, nil
	}
	s, derive, err := decodeSplit(b)
	if err != nil {
		return Split{}, err
	}
	if derive && s.StateRoot != types.ZeroRoot {
		summary, err := getHotStateSummary(tx, s.StateRoot)
		if err != nil {
			return Split{}, err
		}
		if summary == nil {
			return Split{}, fmt.Errorf("%w: cannot derive split block root for state %x", ErrMissingSplitState, s.StateRoot)
		}
		s.BlockRoot = summary.LatestBlockRoot
	}
	return s, nil
}

func encodeSplit(s Split) []byte {
	buf := make([]byte, 8+32)
	binary.BigEndian.PutUint64(buf[:8], uint64(s.Slot))
	copy(buf[8:40], s.StateRoot[:])
	return buf
}

// decodeSplit accepts both the current 40-byte record (block_root derived
// at load time) and the legacy 72-byte record carrying the block root
// inline; the derive result tells the caller which one it got.
func decodeSplit(b []byte) (s Split, derive bool, err error) {
	switch len(b) {
	case 40:
		s.Slot = types.Slot(binary.BigEndian.Uint64(b[:8]))
		copy(s.StateRoot[:], b[8:40])
		return s, true, nil
	case 72:
		s.Slot = types.Slot(binary.BigEndian.Uint64(b[:8]))
		copy(s.StateRoot[:], b[8:40])
		copy(s.BlockRoot[:], b[40:72])
		return s, false, nil
	default:
		return Split{}, false, fmt.Errorf("store: malformed split record (%d bytes)", len(b))
	}
}

func putSplit(tx kv.Putter, s Split) error {
	if err := tx.Put(kv.BeaconMeta, kv.MetaKeySplit, encodeSplit(s)); err != nil {
		return fmt.Errorf("store: persist split: %w", err)
	}
	return nil
}

// encodeStoredConfig serializes the subset of the configuration that must
// stay consistent across opens of the same database: the restore-point /
// hierarchy mode, the hierarchy itself, the epoch geometry, and whether
// cold blocks are stored linearly (which must be set before the first cold
// write and never change).
func encodeStoredConfig(c config.Config) []byte {
	buf := make([]byte, 8+8+8+1+1+len(c.HierarchyExponents))
	binary.BigEndian.PutUint64(buf[0:8], c.SlotsPerRestorePoint)
	binary.BigEndian.PutUint64(buf[8:16], c.SlotsPerEpoch)
	binary.BigEndian.PutUint64(buf[16:24], c.EpochsPerStateDiff)
	if c.LinearBlocks {
		buf[24] = 1
	}
	buf[25] = byte(len(c.HierarchyExponents))
	copy(buf[26:], c.HierarchyExponents)
	return buf
}

// loadOrInitStoredConfig persists the durable config subset on first open
// and rejects any subsequent open whose supplied config disagrees: a
// hierarchy or geometry change would silently mis-place every diff and
// snapshot already on disk.
func loadOrInitStoredConfig(tx kv.RwTx, c config.Config) error {
	stored, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeyConfig)
	if err != nil {
		return fmt.Errorf("store: read on-disk config: %w", err)
	}
	encoded := encodeStoredConfig(c)
	if stored == nil {
		if err := tx.Put(kv.BeaconMeta, kv.MetaKeyConfig, encoded); err != nil {
			return fmt.Errorf("store: persist on-disk config: %w", err)
		}
		return nil
	}
	if !bytes.Equal(stored, encoded) {
		return fmt.Errorf("store: supplied config is incompatible with on-disk config (hierarchy, epoch geometry, and linear_blocks cannot change after first open)")
	}
	return nil
}

// anchorInfoSize is AnchorSlot(8) || OldestBlockSlot(8) || OldestBlockParent(32) || StateUpperLimit(8) || StateLowerLimit(8).
const anchorInfoSize = 8 + 8 + 32 + 8 + 8

func encodeAnchor(a AnchorInfo) []byte {
	buf := make([]byte, anchorInfoSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(a.AnchorSlot))
	binary.BigEndian.PutUint64(buf[8:16], uint64(a.OldestBlockSlot))
	copy(buf[16:48], a.OldestBlockParent[:])
	binary.BigEndian.PutUint64(buf[48:56], uint64(a.StateUpperLimit))
	binary.BigEndian.PutUint64(buf[56:64], uint64(a.StateLowerLimit))
	return buf
}

func decodeAnchor(b []byte) (AnchorInfo, error) {
	if len(b) != anchorInfoSize {
		return AnchorInfo{}, fmt.Errorf("store: malformed anchor info record (%d bytes)", len(b))
	}
	var a AnchorInfo
	a.AnchorSlot = types.Slot(binary.BigEndian.Uint64(b[0:8]))
	a.OldestBlockSlot = types.Slot(binary.BigEndian.Uint64(b[8:16]))
	copy(a.OldestBlockParent[:], b[16:48])
	a.StateUpperLimit = types.Slot(binary.BigEndian.Uint64(b[48:56]))
	a.StateLowerLimit = types.Slot(binary.BigEndian.Uint64(b[56:64]))
	return a, nil
}

func loadAnchor(tx kv.Getter) (*AnchorInfo, error) {
	b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeyAnchorInfo)
	if err != nil {
		return nil, fmt.Errorf("store: read anchor info: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	a, err := decodeAnchor(b)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func putAnchor(tx kv.Putter, a AnchorInfo) error {
	if err := tx.Put(kv.BeaconMeta, kv.MetaKeyAnchorInfo, encodeAnchor(a)); err != nil {
		return fmt.Errorf("store: persist anchor info: %w", err)
	}
	return nil
}

// CompareAndSetAnchorInfo atomically replaces the anchor with next iff the
// current anchor still equals prev, persisting the new value before the
// in-memory pointer moves. A nil prev asserts "no anchor is set yet"; a
// nil next deletes the anchor (history became complete). Fails with
// ErrAnchorInfoConcurrentMutation when another writer got there first;
// callers re-read and retry.
func (db *HotColdDB) CompareAndSetAnchorInfo(ctx context.Context, prev, next *AnchorInfo) error {
	db.anchorMu.Lock()
	defer db.anchorMu.Unlock()
	if !anchorEqual(db.anchor, prev) {
		return ErrAnchorInfoConcurrentMutation
	}
	if err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		if next == nil {
			return tx.Delete(kv.BeaconMeta, kv.MetaKeyAnchorInfo)
		}
		return putAnchor(tx, *next)
	}); err != nil {
		return err
	}
	if next == nil {
		db.anchor = nil
	} else {
		a := *next
		db.anchor = &a
	}
	return nil
}

func anchorEqual(a, b *AnchorInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// CompareAndSetBlobInfo is CompareAndSetAnchorInfo's blob-info analog,
// failing with ErrBlobInfoConcurrentMutation when the guard misses.
func (db *HotColdDB) CompareAndSetBlobInfo(ctx context.Context, prev, next BlobInfo) error {
	db.blobInfoMu.Lock()
	defer db.blobInfoMu.Unlock()
	if db.blobInfo != prev {
		return ErrBlobInfoConcurrentMutation
	}
	if err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		return putBlobInfo(tx, next)
	}); err != nil {
		return err
	}
	db.blobInfo = next
	return nil
}

// loadOrInitBlobInfo loads the blob-info record, initializing it on a
// fresh database to record whether blobs live in a separate engine. Once
// written, that placement can never change: reopening with a separate blob
// DB after blobs were written to the default store would silently orphan
// every existing record.
func loadOrInitBlobInfo(tx kv.RwTx, separateBlobs bool) (BlobInfo, error) {
	b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeyBlobInfo)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("store: read blob info: %w", err)
	}
	if b == nil {
		bi := BlobInfo{BlobsDBFlag: separateBlobs}
		if err := putBlobInfo(tx, bi); err != nil {
			return BlobInfo{}, err
		}
		return bi, nil
	}
	if len(b) != 9 {
		return BlobInfo{}, fmt.Errorf("store: malformed blob info record (%d bytes)", len(b))
	}
	bi := BlobInfo{
		OldestBlobSlot: types.Slot(binary.BigEndian.Uint64(b[:8])),
		BlobsDBFlag:    b[8] != 0,
	}
	if separateBlobs && !bi.BlobsDBFlag {
		return BlobInfo{}, ErrBlobsPreviouslyInDefaultDB
	}
	if !separateBlobs && bi.BlobsDBFlag {
		return BlobInfo{}, fmt.Errorf("store: blobs were previously stored in a separate database")
	}
	return bi, nil
}

func putBlobInfo(tx kv.Putter, bi BlobInfo) error {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[:8], uint64(bi.OldestBlobSlot))
	if bi.BlobsDBFlag {
		buf[8] = 1
	}
	if err := tx.Put(kv.BeaconMeta, kv.MetaKeyBlobInfo, buf); err != nil {
		return fmt.Errorf("store: persist blob info: %w", err)
	}
	return nil
}

// Close releases both KV engines.
func (db *HotColdDB) Close() error {
	if err := db.hot.Close(); err != nil {
		return err
	}
	if db.cold != db.hot {
		if err := db.cold.Close(); err != nil {
			return err
		}
	}
	if db.blob != db.cold && db.blob != db.hot {
		return db.blob.Close()
	}
	return nil
}

// Compact triggers backend-specific compaction on the hot DB and records
// when it completed; the cold DB is compacted as part of pruning, where
// large deletions actually happen.
func (db *HotColdDB) Compact(ctx context.Context) error {
	if err := db.hot.Compact(ctx); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().Unix()))
	return db.hot.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(kv.BeaconMeta, kv.MetaKeyCompactedAt, buf[:])
	})
}

// LastCompactedAt reports the unix timestamp recorded by the last
// completed compaction, or ok=false if none has run.
func (db *HotColdDB) LastCompactedAt(ctx context.Context) (int64, bool, error) {
	var ts int64
	var ok bool
	err := db.hot.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeyCompactedAt)
		if err != nil || b == nil {
			return err
		}
		if len(b) == 8 {
			ts = int64(binary.BigEndian.Uint64(b))
			ok = true
		}
		return nil
	})
	return ts, ok, err
}
