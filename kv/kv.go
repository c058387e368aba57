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

// Package kv is a uniform byte-level interface over an ordered embedded KV
// engine, used by both the hot and cold beacon stores. It generalizes the
// column-tag + TableCfg pattern used for Erigon's chaindata tables to the
// beacon-chain column set.
package kv

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Getter.GetOne callers that want a sentinel
// instead of (nil, nil). Most of the store package treats (nil, nil) as
// "absent" directly, matching erigon-lib's Get semantics.
var ErrKeyNotFound = errors.New("kv: key not found")

// Getter is the read-only subset of a transaction.
type Getter interface {
	// GetOne returns the value stored under table/key, or (nil, nil) if absent.
	GetOne(table string, key []byte) ([]byte, error)
	// Has reports whether a key exists without materializing the value.
	Has(table string, key []byte) (bool, error)
	// ForEach iterates all (key, value) pairs in the table in key order,
	// invoking walker for each until it returns false or an error.
	ForEach(table string, fromPrefix []byte, walker func(k, v []byte) (bool, error)) error
	// ForPrefix iterates all keys sharing the given prefix, in key order.
	ForPrefix(table string, prefix []byte, walker func(k, v []byte) (bool, error)) error
	// ForAmount iterates up to amount (key, value) pairs starting at fromPrefix.
	ForAmount(table string, fromPrefix []byte, amount uint32, walker func(k, v []byte) (bool, error)) error
}

// Putter is the write subset of a transaction.
type Putter interface {
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
}

// Tx is a read-only transaction.
type Tx interface {
	Getter
	Rollback()
}

// RwTx is a read-write transaction. Commit durably applies all writes made
// through the transaction; mdbx-go guarantees this is atomic.
type RwTx interface {
	Tx
	Putter
	Commit() error
}

// DB is a KV engine handle: the hot store, the cold store, and (in tests)
// an in-memory store all implement this.
type DB interface {
	View(ctx context.Context, f func(tx Tx) error) error
	Update(ctx context.Context, f func(tx RwTx) error) error
	// Sync forces all prior committed writes to stable storage. The
	// finalization migration's crash-consistency contract depends on this
	// being a real fsync on durable backends, never coalesced or skipped.
	Sync(ctx context.Context) error
	// Compact triggers backend-specific space reclamation. Neither bundled
	// backend reclaims space: the MDBX backend logs and returns nil, the
	// in-memory backend returns nil silently.
	Compact(ctx context.Context) error
	Close() error
}
