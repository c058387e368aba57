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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateMutualExclusivity(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "both hierarchical and legacy set",
			mutate:  func(c *Config) { c.SlotsPerRestorePoint = 2048 },
			wantErr: true,
		},
		{
			name: "neither set",
			mutate: func(c *Config) {
				c.SlotsPerRestorePoint = 0
				c.HierarchyExponents = nil
			},
			wantErr: true,
		},
		{
			name:    "legacy mode only",
			mutate:  func(c *Config) { c.SlotsPerRestorePoint = 2048; c.HierarchyExponents = nil },
			wantErr: false,
		},
		{
			name:    "slots_per_epoch zero",
			mutate:  func(c *Config) { c.SlotsPerEpoch = 0 },
			wantErr: true,
		},
		{
			name:    "epochs_per_state_diff zero",
			mutate:  func(c *Config) { c.EpochsPerStateDiff = 0 },
			wantErr: true,
		},
		{
			name:    "compression level too high",
			mutate:  func(c *Config) { c.CompressionLevel = 4 },
			wantErr: true,
		},
		{
			name:    "compression level negative",
			mutate:  func(c *Config) { c.CompressionLevel = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadParsesAndValidatesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte(`
hierarchy_exponents: [0, 3, 5]
epochs_per_state_diff: 8
slots_per_epoch: 32
compression_level: 2
prune_payloads: true
`)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 3, 5}, c.HierarchyExponents)
	assert.Equal(t, uint64(8), c.EpochsPerStateDiff)
	assert.Equal(t, 2, c.CompressionLevel)
	assert.True(t, c.PrunePayloads)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte(`
slots_per_restore_point: 2048
hierarchy_exponents: [0, 3, 5]
slots_per_epoch: 32
epochs_per_state_diff: 8
`)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
