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

// Package mdbx wires kv.DB to Erigon's own storage engine, mdbx-go. This is
// the production backend for both the hot and cold stores; tests use memdb
// instead so they don't depend on a compiled libmdbx.
package mdbx

import (
	"context"
	"fmt"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"
	"go.uber.org/zap"

	"github.com/erigontech/caplin-store/kv"
)

// DB wraps a single mdbx.Env holding one DBI per logical table.
type DB struct {
	env  *mdbx.Env
	dbis map[string]mdbx.DBI
	log  *zap.Logger
}

// Options mirrors the subset of mdbx tuning knobs the store cares about.
type Options struct {
	Path      string
	MapSize   uint64 // bytes; 0 uses the mdbx-go default
	MaxTables int
	ReadOnly  bool
}

// Open creates (or opens) an MDBX environment at opts.Path with one DBI per
// name in cfg, creating missing ones on first open.
func Open(opts Options, cfg kv.TableCfg, log *zap.Logger) (*DB, error) {
	env, err := mdbx.NewEnv(mdbx.Default)
	if err != nil {
		return nil, fmt.Errorf("mdbx: new env: %w", err)
	}
	maxTables := opts.MaxTables
	if maxTables == 0 {
		maxTables = len(cfg) + 4
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(maxTables)); err != nil {
		return nil, fmt.Errorf("mdbx: set max tables: %w", err)
	}
	if opts.MapSize > 0 {
		if err := env.SetGeometry(-1, -1, int(opts.MapSize), -1, -1, -1); err != nil {
			return nil, fmt.Errorf("mdbx: set geometry: %w", err)
		}
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("mdbx: mkdir %s: %w", opts.Path, err)
	}
	flags := uint(mdbx.NoReadahead | mdbx.Coalesce | mdbx.LifoReclaim)
	if opts.ReadOnly {
		flags |= mdbx.Readonly
	}
	if err := env.Open(opts.Path, flags, 0o644); err != nil {
		return nil, fmt.Errorf("mdbx: open %s: %w", opts.Path, err)
	}

	db := &DB{env: env, dbis: make(map[string]mdbx.DBI), log: log}
	if err := env.Update(func(txn *mdbx.Txn) error {
		for name, item := range cfg {
			var flags uint
			if item.Flags&kv.DupSort != 0 {
				flags |= mdbx.DupSort
			}
			if item.Flags&kv.IntegerKey != 0 {
				flags |= mdbx.IntegerKey
			}
			dbi, err := txn.OpenDBI(name, mdbx.Create|flags, nil, nil)
			if err != nil {
				return fmt.Errorf("mdbx: open dbi %s: %w", name, err)
			}
			db.dbis[name] = dbi
		}
		return nil
	}); err != nil {
		env.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) dbi(table string) (mdbx.DBI, error) {
	dbi, ok := d.dbis[table]
	if !ok {
		return 0, fmt.Errorf("mdbx: unknown table %q", table)
	}
	return dbi, nil
}

type tx struct {
	db  *DB
	txn *mdbx.Txn
}

func (t *tx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mdbx: get %s: %w", table, err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *tx) Has(table string, key []byte) (bool, error) {
	v, err := t.GetOne(table, key)
	return v != nil, err
}

func (t *tx) forEach(table string, fromPrefix []byte, limit uint32, walker func(k, v []byte) (bool, error)) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return fmt.Errorf("mdbx: open cursor %s: %w", table, err)
	}
	defer cur.Close()

	var k, v []byte
	var n uint32
	k, v, err = cur.Get(fromPrefix, nil, mdbx.SetRange)
	for ; err == nil; k, v, err = cur.Get(nil, nil, mdbx.Next) {
		if limit > 0 && n >= limit {
			return nil
		}
		n++
		cont, werr := walker(k, v)
		if werr != nil {
			return werr
		}
		if !cont {
			return nil
		}
	}
	if mdbx.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("mdbx: iterate %s: %w", table, err)
}

func (t *tx) ForEach(table string, fromPrefix []byte, walker func(k, v []byte) (bool, error)) error {
	return t.forEach(table, fromPrefix, 0, walker)
}

func (t *tx) ForPrefix(table string, prefix []byte, walker func(k, v []byte) (bool, error)) error {
	return t.forEach(table, prefix, 0, func(k, v []byte) (bool, error) {
		if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
			return false, nil
		}
		return walker(k, v)
	})
}

func (t *tx) ForAmount(table string, fromPrefix []byte, amount uint32, walker func(k, v []byte) (bool, error)) error {
	return t.forEach(table, fromPrefix, amount, walker)
}

func (t *tx) Put(table string, key, value []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(dbi, key, value, 0); err != nil {
		return fmt.Errorf("mdbx: put %s: %w", table, err)
	}
	return nil
}

func (t *tx) Delete(table string, key []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(dbi, key, nil); err != nil && !mdbx.IsNotFound(err) {
		return fmt.Errorf("mdbx: delete %s: %w", table, err)
	}
	return nil
}

func (t *tx) Commit() error {
	if _, err := t.txn.Commit(); err != nil {
		return fmt.Errorf("mdbx: commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback() { t.txn.Abort() }

func (d *DB) View(_ context.Context, f func(kv.Tx) error) error {
	return d.env.View(func(txn *mdbx.Txn) error {
		return f(&tx{db: d, txn: txn})
	})
}

func (d *DB) Update(_ context.Context, f func(kv.RwTx) error) error {
	return d.env.Update(func(txn *mdbx.Txn) error {
		return f(&tx{db: d, txn: txn})
	})
}

// Sync forces mdbx to flush the environment to stable storage. Called by
// the finalization migration immediately before the split is persisted;
// this fsync is the linchpin of the crash-consistency contract and must
// never be coalesced away.
func (d *DB) Sync(_ context.Context) error {
	if err := d.env.Sync(true, false); err != nil {
		return fmt.Errorf("mdbx: sync: %w", err)
	}
	return nil
}

func (d *DB) Compact(_ context.Context) error {
	d.log.Info("mdbx compaction requested; mdbx reclaims space lazily via LIFO-reclaim, no explicit copy-compaction run")
	return nil
}

func (d *DB) Close() error {
	d.env.Close()
	return nil
}

var _ kv.DB = (*DB)(nil)
