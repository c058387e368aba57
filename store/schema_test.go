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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/kv/memdb"
)

func TestSchemaVersionInitializesOnFreshDatabase(t *testing.T) {
	hot := memdb.New(kv.HotTablesCfg)
	require.NoError(t, hot.Update(ctx, func(tx kv.RwTx) error {
		return loadOrInitSchemaVersion(tx)
	}))
	require.NoError(t, hot.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeySchemaVersion)
		require.NoError(t, err)
		require.Len(t, b, 8)
		assert.Equal(t, CurrentSchemaVersion, binary.BigEndian.Uint64(b))
		return nil
	}))
}

// TestSchemaVersionIdentityWhenCurrent is the "stored version already
// matches" case: no migration runs (none are registered) and re-running is
// a no-op.
func TestSchemaVersionIdentityWhenCurrent(t *testing.T) {
	hot := memdb.New(kv.HotTablesCfg)
	require.NoError(t, hot.Update(ctx, func(tx kv.RwTx) error {
		return loadOrInitSchemaVersion(tx)
	}))
	require.NoError(t, hot.Update(ctx, func(tx kv.RwTx) error {
		return loadOrInitSchemaVersion(tx)
	}))
	require.NoError(t, hot.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeySchemaVersion)
		require.NoError(t, err)
		assert.Equal(t, CurrentSchemaVersion, binary.BigEndian.Uint64(b))
		return nil
	}))
}

func TestSchemaVersionRejectsFutureVersion(t *testing.T) {
	hot := memdb.New(kv.HotTablesCfg)
	require.NoError(t, hot.Update(ctx, func(tx kv.RwTx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], CurrentSchemaVersion+1)
		return tx.Put(kv.BeaconMeta, kv.MetaKeySchemaVersion, buf[:])
	}))
	err := hot.Update(ctx, func(tx kv.RwTx) error {
		return loadOrInitSchemaVersion(tx)
	})
	assert.ErrorIs(t, err, ErrUnsupportedSchemaVersion)
}

func TestOpenSurfacesSchemaVersionThroughOpen(t *testing.T) {
	_, hot, _ := newTestStore(t, testConfig())
	require.NoError(t, hot.View(ctx, func(tx kv.Tx) error {
		b, err := tx.GetOne(kv.BeaconMeta, kv.MetaKeySchemaVersion)
		require.NoError(t, err)
		assert.Equal(t, CurrentSchemaVersion, binary.BigEndian.Uint64(b))
		return nil
	}))
}
