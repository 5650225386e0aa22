// Copyright 2025 The ubt Authors
// This file is part of the ubt library.
//
// The ubt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ubt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ubt library. If not, see <http://www.gnu.org/licenses/>.

// ubt is the command line tool for the unified binary tree state store: it
// serves the ubt_* RPC namespace and runs one-shot exports and inspections
// against an existing data directory.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"github.com/urfave/cli/v2"
)

var (
	datadirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Data directory holding the leaf store and key index",
		Value:   ".",
		EnvVars: []string{"UBT_DATA_DIR"},
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:  "chain-id",
		Usage: "Chain ID stamped into snapshot headers",
		Value: 1,
	}
	deltaRetentionFlag = &cli.Uint64Flag{
		Name:  "delta-retention",
		Usage: "Number of recent blocks to keep per-block delta logs for",
		Value: 256,
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and reporting",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Address to expose the /debug/metrics endpoint on",
		Value: "127.0.0.1:6060",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "Listen address of the HTTP JSON-RPC server (disabled if empty)",
		Value: "127.0.0.1:8560",
	}
	ipcPathFlag = &cli.StringFlag{
		Name:  "ipc",
		Usage: "Path of the IPC socket to serve RPC on (disabled if empty)",
	}
	enginePathFlag = &cli.StringFlag{
		Name:  "engine",
		Usage: "Directory of the external trie engine's value store",
	}
	outputFlag = &cli.StringFlag{
		Name:  "output",
		Usage: "Output directory for exported snapshot files",
		Value: ".",
	}
	contractFlag = &cli.StringFlag{
		Name:  "contract",
		Usage: "Contract address to restrict the export to",
	}
	fromFlag = &cli.Uint64Flag{
		Name:  "from",
		Usage: "First block of the delta range (inclusive)",
	}
	toFlag = &cli.Uint64Flag{
		Name:  "to",
		Usage: "Last block of the delta range (inclusive)",
	}
	countStemsFlag = &cli.BoolFlag{
		Name:  "count-stems",
		Usage: "Walk the full key index and cross-check the recorded stem count",
	}
)

func main() {
	app := &cli.App{
		Name:  "ubt",
		Usage: "unified binary tree state store tool",
		Flags: []cli.Flag{
			datadirFlag,
			verbosityFlag,
			metricsFlag,
			metricsAddrFlag,
		},
		Before: func(ctx *cli.Context) error {
			handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), false)
			log.SetDefault(log.NewLogger(handler))
			if ctx.Bool(metricsFlag.Name) {
				metrics.Enable()
				exp.Setup(ctx.String(metricsAddrFlag.Name))
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand,
			exportCommand,
			exportContractCommand,
			deltaCommand,
			headCommand,
			inspectIndexCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
