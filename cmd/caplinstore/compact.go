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
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Trigger backend-specific compaction on the hot database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, log, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close(); _ = log.Sync() }()

		if err := db.Compact(cmd.Context()); err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		fmt.Println("compaction complete")
		return nil
	},
}
