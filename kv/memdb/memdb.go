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

// Package memdb is an in-memory kv.DB backed by a google/btree per table,
// used by the store package's tests in place of the MDBX backend.
package memdb

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/erigontech/caplin-store/kv"
)

type entry struct {
	k, v []byte
}

func (e entry) Less(other entry) bool {
	return bytes.Compare(e.k, other.k) < 0
}

// DB is a single-process, lock-guarded in-memory KV engine.
type DB struct {
	mu     sync.RWMutex
	tables map[string]*btree.BTreeG[entry]
	cfg    kv.TableCfg
}

// New builds a memdb with one empty btree per table named in cfg.
func New(cfg kv.TableCfg) *DB {
	d := &DB{tables: make(map[string]*btree.BTreeG[entry]), cfg: cfg}
	for name := range cfg {
		d.tables[name] = btree.NewG(32, entry.Less)
	}
	return d
}

func (d *DB) table(name string) *btree.BTreeG[entry] {
	t, ok := d.tables[name]
	if !ok {
		// Unknown tables are allowed on the fly for tests exercising
		// columns outside the hot/cold split.
		t = btree.NewG(32, entry.Less)
		d.tables[name] = t
	}
	return t
}

type tx struct {
	db *DB
	rw bool
}

func (t *tx) GetOne(table string, key []byte) ([]byte, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	bt := t.db.table(table)
	if item, ok := bt.Get(entry{k: key}); ok {
		out := make([]byte, len(item.v))
		copy(out, item.v)
		return out, nil
	}
	return nil, nil
}

func (t *tx) Has(table string, key []byte) (bool, error) {
	v, err := t.GetOne(table, key)
	return v != nil, err
}

func (t *tx) ForEach(table string, fromPrefix []byte, walker func(k, v []byte) (bool, error)) error {
	t.db.mu.RLock()
	bt := t.db.table(table)
	var items []entry
	bt.AscendGreaterOrEqual(entry{k: fromPrefix}, func(e entry) bool {
		items = append(items, e)
		return true
	})
	t.db.mu.RUnlock()
	for _, e := range items {
		cont, err := walker(e.k, e.v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (t *tx) ForPrefix(table string, prefix []byte, walker func(k, v []byte) (bool, error)) error {
	return t.ForEach(table, prefix, func(k, v []byte) (bool, error) {
		if !bytes.HasPrefix(k, prefix) {
			return false, nil
		}
		return walker(k, v)
	})
}

func (t *tx) ForAmount(table string, fromPrefix []byte, amount uint32, walker func(k, v []byte) (bool, error)) error {
	var n uint32
	return t.ForEach(table, fromPrefix, func(k, v []byte) (bool, error) {
		if n >= amount {
			return false, nil
		}
		n++
		return walker(k, v)
	})
}

func (t *tx) Put(table string, key, value []byte) error {
	if !t.rw {
		panic("memdb: Put on read-only tx")
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	t.db.table(table).ReplaceOrInsert(entry{k: k, v: v})
	return nil
}

func (t *tx) Delete(table string, key []byte) error {
	if !t.rw {
		panic("memdb: Delete on read-only tx")
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.table(table).Delete(entry{k: key})
	return nil
}

func (t *tx) Commit() error { return nil }
func (t *tx) Rollback()     {}

func (d *DB) View(_ context.Context, f func(kv.Tx) error) error {
	return f(&tx{db: d})
}

func (d *DB) Update(_ context.Context, f func(kv.RwTx) error) error {
	return f(&tx{db: d, rw: true})
}

func (d *DB) Sync(_ context.Context) error    { return nil }
func (d *DB) Compact(_ context.Context) error { return nil }
func (d *DB) Close() error                    { return nil }

var _ kv.DB = (*DB)(nil)
