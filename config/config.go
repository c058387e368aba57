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

// Package config holds the on-open-validated configuration surface,
// loaded from YAML and checked once before any engine is touched.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface named in the persisted store's
// design: everything here is sanity-checked on open by Validate.
type Config struct {
	// SlotsPerRestorePoint is legacy; zero means "hierarchical mode" is
	// active via HierarchyExponents. Mixing the two is rejected.
	SlotsPerRestorePoint uint64 `yaml:"slots_per_restore_point"`

	HierarchyExponents []uint8 `yaml:"hierarchy_exponents"`
	EpochsPerStateDiff  uint64  `yaml:"epochs_per_state_diff"`
	SlotsPerEpoch       uint64  `yaml:"slots_per_epoch"`

	BlockCacheSize         int `yaml:"block_cache_size"`
	StateCacheSize         int `yaml:"state_cache_size"`
	HistoricStateCacheSize int `yaml:"historic_state_cache_size"`
	DiffBufferCacheSize    int `yaml:"diff_buffer_cache_size"`

	CompressionLevel int `yaml:"compression_level"`

	PrunePayloads        bool   `yaml:"prune_payloads"`
	PruneBlobs           bool   `yaml:"prune_blobs"`
	BlobPruneMarginEpochs uint64 `yaml:"blob_prune_margin_epochs"`
	EpochsPerBlobPrune    uint64 `yaml:"epochs_per_blob_prune"`

	CompactOnInit  bool `yaml:"compact_on_init"`
	CompactOnPrune bool `yaml:"compact_on_prune"`

	// LinearBlocks, whether cold blocks are stored by slot, must be set
	// before the first cold write and never change afterward.
	LinearBlocks bool `yaml:"linear_blocks"`
}

// Default returns mainnet-shaped defaults; tests override the hierarchy
// and epoch geometry with much smaller values to keep fixtures cheap.
func Default() Config {
	return Config{
		HierarchyExponents:     []uint8{0, 4, 6, 8, 11, 13, 16},
		EpochsPerStateDiff:     16,
		SlotsPerEpoch:          32,
		BlockCacheSize:         1024,
		StateCacheSize:         128,
		HistoricStateCacheSize: 32,
		DiffBufferCacheSize:    32,
		CompressionLevel:       1,
		PrunePayloads:          true,
		PruneBlobs:             true,
		BlobPruneMarginEpochs:  2,
		EpochsPerBlobPrune:     1,
		CompactOnInit:          false,
		CompactOnPrune:         false,
		LinearBlocks:           true,
	}
}

// Validate sanity-checks the configuration, returning a wrapped error
// rather than panicking.
func (c Config) Validate() error {
	if c.SlotsPerRestorePoint != 0 && len(c.HierarchyExponents) != 0 {
		return fmt.Errorf("config: slots_per_restore_point and hierarchy_exponents are mutually exclusive")
	}
	if c.SlotsPerRestorePoint == 0 && len(c.HierarchyExponents) == 0 {
		return fmt.Errorf("config: exactly one of slots_per_restore_point or hierarchy_exponents must be set")
	}
	if c.SlotsPerEpoch == 0 {
		return fmt.Errorf("config: slots_per_epoch must be nonzero")
	}
	if c.EpochsPerStateDiff == 0 {
		return fmt.Errorf("config: epochs_per_state_diff must be nonzero")
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 3 {
		return fmt.Errorf("config: compression_level out of range [0,3]: %d", c.CompressionLevel)
	}
	return nil
}

// Load reads and validates a Config from a YAML file.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
