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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erigontech/caplin-store/types"
)

var (
	bellatrixSlot            uint64
	dataAvailabilityBoundary uint64
	forcePrune               bool
)

// pruneCmd runs the execution-payload and blob pruners as one maintenance
// cycle. bellatrixSlot and dataAvailabilityBoundary are fork-schedule
// facts this store never computes itself (consensus rule evaluation is a
// Non-goal): the operator (or the node wrapping this store) supplies them.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run the execution-payload and blob pruners",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, log, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close(); _ = log.Sync() }()

		if err := db.RunPruners(cmd.Context(), types.Slot(bellatrixSlot), dataAvailabilityBoundary, forcePrune); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		fmt.Println("pruning complete")
		return nil
	},
}

func init() {
	pruneCmd.Flags().Uint64Var(&bellatrixSlot, "bellatrixSlot", 0, "slot of the Bellatrix fork activation, the floor for payload pruning")
	pruneCmd.Flags().Uint64Var(&dataAvailabilityBoundary, "dataAvailabilityBoundaryEpoch", 0, "oldest epoch blob sidecars must still be served for")
	pruneCmd.Flags().BoolVar(&forcePrune, "force", false, "prune blobs even if the window is smaller than epochs_per_blob_prune")
}
