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
	"encoding/binary"
	"fmt"

	"github.com/erigontech/caplin-store/kv"
)

// CurrentSchemaVersion is the single monotonic schema version this binary
// writes and expects to read. Opening a database with a higher stored
// version is always rejected; a lower version must pass through a
// registered migration.
const CurrentSchemaVersion uint64 = 1

// migrationFn upgrades a hot DB in place from one schema version to the
// next; registered functions are chained until CurrentSchemaVersion is
// reached.
type migrationFn func(tx kv.RwTx) error

// migrations maps "migrate away from this version" to its function. There
// are none yet: CurrentSchemaVersion is 1 and this is the first shipped
// schema.
var migrations = map[uint64]migrationFn{}

// loadOrInitSchemaVersion reads the stored schema version, initializing it
// to CurrentSchemaVersion on a fresh database, running any registered
// migrations otherwise, and failing with ErrUnsupportedSchemaVersion if
// the stored version exceeds what this binary understands.
func loadOrInitSchemaVersion(tx kv.RwTx) error {
	b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeySchemaVersion)
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if b == nil {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], CurrentSchemaVersion)
		return tx.Put(kv.BeaconMeta, kv.MetaKeySchemaVersion, buf[:])
	}

	version := binary.BigEndian.Uint64(b)
	if version > CurrentSchemaVersion {
		return fmt.Errorf("%w: stored version %d > current %d", ErrUnsupportedSchemaVersion, version, CurrentSchemaVersion)
	}
	for version < CurrentSchemaVersion {
		fn, ok := migrations[version]
		if !ok {
			return fmt.Errorf("%w: no migration registered from version %d", ErrUnsupportedSchemaVersion, version)
		}
		if err := fn(tx); err != nil {
			return fmt.Errorf("store: migrate from schema version %d: %w", version, err)
		}
		version++
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], CurrentSchemaVersion)
	return tx.Put(kv.BeaconMeta, kv.MetaKeySchemaVersion, buf[:])
}
