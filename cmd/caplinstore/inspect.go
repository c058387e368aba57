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
	"time"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the store's split point, anchor info, and blob retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, log, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close(); _ = log.Sync() }()

		split := db.Split()
		fmt.Printf("split:\n  slot:       %d\n  state_root: %x\n  block_root: %x\n", split.Slot, split.StateRoot, split.BlockRoot)

		if anchor := db.AnchorInfo(); anchor != nil {
			fmt.Printf("anchor:\n  anchor_slot:       %d\n  oldest_block_slot:  %d\n  state_upper_limit:  %d\n  state_lower_limit:  %d\n",
				anchor.AnchorSlot, anchor.OldestBlockSlot, anchor.StateUpperLimit, anchor.StateLowerLimit)
		} else {
			fmt.Println("anchor:     none (genesis-synced)")
		}

		blobInfo := db.BlobInfo()
		fmt.Printf("blobs:\n  oldest_blob_slot: %d\n  blobs_db_flag:    %v\n", blobInfo.OldestBlobSlot, blobInfo.BlobsDBFlag)

		if ts, ok, err := db.LastCompactedAt(cmd.Context()); err != nil {
			return err
		} else if ok {
			fmt.Printf("last_compacted_at: %s\n", time.Unix(ts, 0).UTC().Format(time.RFC3339))
		} else {
			fmt.Println("last_compacted_at: never")
		}
		return nil
	},
}
