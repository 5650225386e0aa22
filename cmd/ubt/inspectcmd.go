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

package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ubtrie/ubt/keyindex"
	"github.com/ubtrie/ubt/tree"
	"github.com/urfave/cli/v2"
)

var inspectIndexCommand = &cli.Command{
	Name:   "inspect-index",
	Usage:  "Print the key index head record and optionally verify its stem count",
	Action: runInspectIndex,
	Flags: []cli.Flag{
		countStemsFlag,
	},
}

func runInspectIndex(ctx *cli.Context) error {
	index, err := keyindex.Open(ctx.String(datadirFlag.Name), true)
	if err != nil {
		return err
	}
	defer index.Close()

	head, err := index.LoadHead()
	if err != nil {
		return err
	}
	if head == nil {
		fmt.Println("No head record persisted yet")
		return nil
	}
	fmt.Printf("block:  %d\n", head.BlockNumber)
	fmt.Printf("hash:   %s\n", head.BlockHash.Hex())
	fmt.Printf("root:   %s\n", head.Root.Hex())
	fmt.Printf("stems:  %d\n", head.StemCount)

	if ctx.Bool(countStemsFlag.Name) {
		var count uint64
		err := index.ForEachStem(func(tree.Stem, keyindex.StemRecord) error {
			count++
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("walked: %d\n", count)
		if count != head.StemCount {
			log.Warn("Stem count mismatch", "recorded", head.StemCount, "walked", count)
		}
	}
	return nil
}
