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

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/erigontech/caplin-store/config"
	"github.com/erigontech/caplin-store/kv"
	"github.com/erigontech/caplin-store/kv/mdbx"
	"github.com/erigontech/caplin-store/store"
)

func newLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.Set(logLevel); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return cfg.Build()
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// openStore opens the hot, cold, and blob mdbx environments rooted at the
// CLI's --datadir/--coldDir/--blobDir flags and returns a ready HotColdDB.
func openStore(ctx context.Context) (*store.HotColdDB, *zap.Logger, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	cold := coldDir
	if cold == "" {
		cold = filepath.Join(dataDir, "cold")
	}
	blob := blobDir
	if blob == "" {
		blob = cold
	}

	hotDB, err := mdbx.Open(mdbx.Options{Path: dataDir}, kv.HotTablesCfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open hot db: %w", err)
	}
	coldDB, err := mdbx.Open(mdbx.Options{Path: cold}, kv.ColdTablesCfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open cold db: %w", err)
	}
	var blobDB *mdbx.DB
	if blob == cold {
		blobDB = coldDB
	} else {
		blobDB, err = mdbx.Open(mdbx.Options{Path: blob}, kv.ColdTablesCfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open blob db: %w", err)
		}
	}

	db, err := store.Open(ctx, log, cfg, hotDB, coldDB, blobDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return db, log, nil
}
