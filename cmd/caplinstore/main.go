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

// Command caplinstore operates on a hot/cold beacon-chain store directly:
// inspecting its split and anchor, compacting it, and running its pruners
// out of band from a running node. It is a maintenance tool, not a node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"

	dataDir    string
	coldDir    string
	blobDir    string
	logLevel   string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "caplinstore",
	Short:   "Inspect and maintain a caplin-store hot/cold beacon-chain database",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "datadir", "", "hot database directory (required)")
	rootCmd.PersistentFlags().StringVar(&coldDir, "coldDir", "", "cold database directory (defaults to datadir/cold)")
	rootCmd.PersistentFlags().StringVar(&blobDir, "blobDir", "", "blob database directory (defaults to the cold directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log.level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML store config (defaults built in if omitted)")
	_ = rootCmd.MarkPersistentFlagRequired("datadir")

	rootCmd.AddCommand(inspectCmd, compactCmd, pruneCmd)
}
