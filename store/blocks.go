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
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/types"
)

// PutBlock stores a block's blinded body under its own root in the hot DB,
// and its execution payload (if present) separately, so payload pruning
// never has to touch the blinded body. Returns the computed block root.
func (db *HotColdDB) PutBlock(ctx context.Context, block *types.SignedBeaconBlock) (types.Root, error) {
	root := block.Root()
	blinded := block.Blinded()
	blindedBytes := types.SerializeBlock(blinded)

	err := db.hot.Update(ctx, func(tx kv.RwTx) error {
		if err := tx.Put(kv.BeaconBlock, root[:], blindedBytes); err != nil {
			return fmt.Errorf("store: persist block: %w", err)
		}
		if len(block.ExecutionPayload) > 0 {
			compressed := db.fastCodec.Compress(nil, block.ExecutionPayload)
			if err := tx.Put(kv.ExecPayload, root[:], compressed); err != nil {
				return fmt.Errorf("store: persist execution payload: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return types.Root{}, err
	}
	db.blockCache.Put(root, blinded)
	return root, nil
}

// GetBlock looks up a block by root, consulting the block cache first, then
// the hot DB, then the cold (frozen) DB when slotHint places it before the
// split. A nil, nil result means absent; callers that require presence
// should compare against ErrBlockNotFound themselves (see RequireBlock).
func (db *HotColdDB) GetBlock(ctx context.Context, root types.Root, slotHint *types.Slot) (*types.SignedBeaconBlock, error) {
	if b, ok := db.blockCache.Get(root); ok {
		return db.attachExecutionPayload(ctx, root, b)
	}

	split := db.Split()
	if slotHint != nil && *slotHint < split.Slot {
		return db.getColdBlockBySlot(ctx, *slotHint)
	}

	var raw []byte
	if err := db.hot.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconBlock, root[:])
		raw = b
		return err
	}); err != nil {
		return nil, err
	}
	if raw == nil {
		if slotHint != nil {
			return db.getColdBlockBySlot(ctx, *slotHint)
		}
		return nil, nil
	}
	blk, err := types.DeserializeBlock(raw)
	if err != nil {
		return nil, err
	}
	db.blockCache.Put(root, blk)
	return db.attachExecutionPayload(ctx, root, blk)
}

// RequireBlock wraps GetBlock for callers (migration, pruning) that must
// treat absence as a hard error rather than a normal "unknown" result.
func (db *HotColdDB) RequireBlock(ctx context.Context, root types.Root, slotHint *types.Slot) (*types.SignedBeaconBlock, error) {
	blk, err := db.GetBlock(ctx, root, slotHint)
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, fmt.Errorf("%w: root %x", ErrBlockNotFound, root)
	}
	return blk, nil
}

func (db *HotColdDB) attachExecutionPayload(ctx context.Context, root types.Root, blinded *types.SignedBeaconBlock) (*types.SignedBeaconBlock, error) {
	var compressed []byte
	if err := db.hot.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.ExecPayload, root[:])
		compressed = b
		return err
	}); err != nil {
		return nil, err
	}
	if compressed == nil {
		return blinded, nil
	}
	payload, err := db.fastCodec.Decompress(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("store: decompress execution payload: %w", err)
	}
	out := *blinded
	out.ExecutionPayload = payload
	return &out, nil
}

// putColdBlock writes a block's blinded body to the cold (frozen) DB,
// indexed by slot, plus the slot->root companion index used by the
// forwards block-roots iterator. Called from finalization migration and
// from PutColdBlindedBlock.
func putColdBlock(tx kv.Putter, codec *compress.Codec, slot types.Slot, root types.Root, block *types.SignedBeaconBlock) error {
	compressed := codec.Compress(nil, types.SerializeBlock(block.Blinded()))
	if err := tx.Put(kv.BeaconBlockFrozen, slotKey(slot), compressed); err != nil {
		return fmt.Errorf("store: persist frozen block: %w", err)
	}
	return putSlotToRoot(tx, kv.BeaconBlockRoots, slot, root)
}

// PutColdBlindedBlock writes a backfilled block directly to the cold
// (frozen) tier by slot, plus the slot->root index. Block backfill below
// the split never transits the hot DB, so this is the one write path that
// targets the frozen tier outside finalization migration; historic state
// reconstruction depends on the range it fills.
func (db *HotColdDB) PutColdBlindedBlock(ctx context.Context, slot types.Slot, root types.Root, block *types.SignedBeaconBlock) error {
	return db.cold.Update(ctx, func(tx kv.RwTx) error {
		return putColdBlock(tx, db.codec, slot, root, block)
	})
}

func (db *HotColdDB) getColdBlockBySlot(ctx context.Context, slot types.Slot) (*types.SignedBeaconBlock, error) {
	var raw []byte
	if err := db.cold.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconBlockFrozen, slotKey(slot))
		raw = b
		return err
	}); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	decompressed, err := db.codec.Decompress(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("store: decompress frozen block: %w", err)
	}
	return types.DeserializeBlock(decompressed)
}

// PutBlobs stores a block's blob sidecar list in the blob DB. A nil or
// empty list still writes an empty record, distinguishing "no blobs ever
// seen" (no record) from "verified zero blobs" (empty record) the way the
// blob-pruning window tracking depends on.
func (db *HotColdDB) PutBlobs(ctx context.Context, blockRoot types.Root, blobs [][]byte) error {
	encoded := encodeBlobList(blobs)
	if err := db.blob.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(kv.BeaconBlob, blockRoot[:], encoded)
	}); err != nil {
		return fmt.Errorf("store: persist blobs: %w", err)
	}
	db.blobCache.Put(blockRoot, blobs)
	return nil
}

// GetBlobs returns the blob sidecar list stored for blockRoot, or (nil,
// false) if none was ever stored.
func (db *HotColdDB) GetBlobs(ctx context.Context, blockRoot types.Root) ([][]byte, bool, error) {
	if b, ok := db.blobCache.Get(blockRoot); ok {
		return b, true, nil
	}
	var raw []byte
	if err := db.blob.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconBlob, blockRoot[:])
		raw = b
		return err
	}); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	blobs, err := decodeBlobList(raw)
	if err != nil {
		return nil, false, err
	}
	db.blobCache.Put(blockRoot, blobs)
	return blobs, true, nil
}

// DeleteBlobs removes a block's blob record outright, used by the blob
// pruner once a slot falls outside the retention window.
func (db *HotColdDB) DeleteBlobs(ctx context.Context, blockRoot types.Root) error {
	if err := db.blob.Update(ctx, func(tx kv.RwTx) error {
		return tx.Delete(kv.BeaconBlob, blockRoot[:])
	}); err != nil {
		return fmt.Errorf("store: delete blobs: %w", err)
	}
	db.blobCache.Remove(blockRoot)
	return nil
}

func encodeBlobList(blobs [][]byte) []byte {
	buf := make([]byte, 0, 8)
	var tmp [8]byte
	putU64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			tmp[i] = byte(v >> (8 * i))
		}
		buf = append(buf, tmp[:]...)
	}
	putU64(uint64(len(blobs)))
	for _, b := range blobs {
		putU64(uint64(len(b)))
		buf = append(buf, b...)
	}
	return buf
}

func decodeBlobList(b []byte) ([][]byte, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("store: malformed blob list record")
	}
	readU64 := func() uint64 {
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(b[i]) << (8 * i)
		}
		b = b[8:]
		return v
	}
	n := readU64()
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(b) < 8 {
			return nil, fmt.Errorf("store: truncated blob list record")
		}
		l := readU64()
		if uint64(len(b)) < l {
			return nil, fmt.Errorf("store: truncated blob record")
		}
		out = append(out, append([]byte(nil), b[:l]...))
		b = b[l:]
	}
	return out, nil
}
