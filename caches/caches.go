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

// Package caches holds the value caches layered above the promise caches:
// state cache (with a secondary index), block cache, blob cache, and
// diff-buffer cache. All cache locks use short critical sections and are
// never held across KV I/O, per the store's lock-ordering discipline.
package caches

import (
	"fmt"
	"sync"

	arclru "github.com/hashicorp/golang-lru/arc/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erigontech/caplin-store/hdiff"
	"github.com/erigontech/caplin-store/types"
)

// secondaryKey indexes a hot state by (block_root, max_slot) for
// GetAdvancedHotState.
type secondaryKey struct {
	blockRoot types.Root
	maxSlot   types.Slot
}

// StateCache caches full materialized states by state root, plus a
// secondary (block_root, max_slot) -> state_root index used by
// GetAdvancedHotState.
type StateCache struct {
	mu        sync.Mutex
	byRoot    *lru.Cache[types.Root, *types.BeaconState]
	secondary map[secondaryKey]types.Root
}

func NewStateCache(size int) (*StateCache, error) {
	c, err := lru.New[types.Root, *types.BeaconState](size)
	if err != nil {
		return nil, fmt.Errorf("caches: new state cache: %w", err)
	}
	return &StateCache{byRoot: c, secondary: make(map[secondaryKey]types.Root)}, nil
}

func (c *StateCache) Get(root types.Root) (*types.BeaconState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byRoot.Get(root)
}

func (c *StateCache) Put(root types.Root, blockRoot types.Root, s *types.BeaconState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byRoot.Add(root, s)
	c.secondary[secondaryKey{blockRoot: blockRoot, maxSlot: s.Slot}] = root
}

// Remove evicts a state from the value cache, used by the fork pruner once
// a state root is known to belong to a discarded branch. The secondary
// (block_root, max_slot) index is left as-is; a stale hit there simply
// misses on the subsequent byRoot lookup.
func (c *StateCache) Remove(root types.Root) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byRoot.Remove(root)
}

// GetAdvanced looks up the cached state indexed under exactly
// (blockRoot, maxSlot); a state cached for the same block root at a lower
// slot is not found. Misses here fall through to hot-state assembly, they
// are not a correctness requirement.
func (c *StateCache) GetAdvanced(blockRoot types.Root, maxSlot types.Slot) (*types.BeaconState, bool) {
	c.mu.Lock()
	root, ok := c.secondary[secondaryKey{blockRoot: blockRoot, maxSlot: maxSlot}]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.Get(root)
}

// BlockCache caches blinded blocks by root.
type BlockCache struct {
	c *lru.Cache[types.Root, *types.SignedBeaconBlock]
}

func NewBlockCache(size int) (*BlockCache, error) {
	c, err := lru.New[types.Root, *types.SignedBeaconBlock](size)
	if err != nil {
		return nil, fmt.Errorf("caches: new block cache: %w", err)
	}
	return &BlockCache{c: c}, nil
}

func (c *BlockCache) Get(root types.Root) (*types.SignedBeaconBlock, bool) { return c.c.Get(root) }
func (c *BlockCache) Put(root types.Root, b *types.SignedBeaconBlock)      { c.c.Add(root, b) }
func (c *BlockCache) Remove(root types.Root)                               { c.c.Remove(root) }

// BlobCache caches blob sidecar lists by block root.
type BlobCache struct {
	c *lru.Cache[types.Root, [][]byte]
}

func NewBlobCache(size int) (*BlobCache, error) {
	c, err := lru.New[types.Root, [][]byte](size)
	if err != nil {
		return nil, fmt.Errorf("caches: new blob cache: %w", err)
	}
	return &BlobCache{c: c}, nil
}

func (c *BlobCache) Get(root types.Root) ([][]byte, bool) { return c.c.Get(root) }
func (c *BlobCache) Put(root types.Root, b [][]byte)      { c.c.Add(root, b) }
func (c *BlobCache) Remove(root types.Root)               { c.c.Remove(root) }

// HistoricStateCache caches fully materialized cold states by slot, so a
// burst of historical queries around the same slot (block explorers walk
// ranges) skips the diff-chain reconstruction entirely, not just the
// buffer loading the DiffBufferCache already covers.
type HistoricStateCache struct {
	c *lru.Cache[uint64, *types.BeaconState]
}

func NewHistoricStateCache(size int) (*HistoricStateCache, error) {
	c, err := lru.New[uint64, *types.BeaconState](size)
	if err != nil {
		return nil, fmt.Errorf("caches: new historic state cache: %w", err)
	}
	return &HistoricStateCache{c: c}, nil
}

func (c *HistoricStateCache) Get(slot uint64) (*types.BeaconState, bool) { return c.c.Get(slot) }
func (c *HistoricStateCache) Put(slot uint64, s *types.BeaconState)      { c.c.Add(slot, s) }

// DiffBufferCache caches HDiffBuffers by slot during cold reconstruction.
// It uses an ARC policy (as opposed to plain LRU) because reconstruction
// workloads alternate between recency-friendly forward replay and
// frequency-friendly repeated snapshot bases, which is exactly the
// scan-resistance ARC was built for.
type DiffBufferCache struct {
	c *arclru.ARCCache[uint64, hdiff.Buffer]
}

func NewDiffBufferCache(size int) (*DiffBufferCache, error) {
	c, err := arclru.NewARC[uint64, hdiff.Buffer](size)
	if err != nil {
		return nil, fmt.Errorf("caches: new diff buffer cache: %w", err)
	}
	return &DiffBufferCache{c: c}, nil
}

func (c *DiffBufferCache) Get(slot uint64) (hdiff.Buffer, bool) { return c.c.Get(slot) }
func (c *DiffBufferCache) Put(slot uint64, b hdiff.Buffer)      { c.c.Add(slot, b) }
