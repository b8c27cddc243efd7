// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var getInfoCommand = cli.Command{
	Action: getInfo,
	Name:   "info",
	Usage:  "prints summary information about an archive",
	Flags:  archiveFlags,
}

func getInfo(ctx *cli.Context) (err error) {
	provider, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(provider, &err)

	height, empty, err := provider.BlockHeight()
	if err != nil {
		return err
	}
	if empty {
		fmt.Println("Archive is empty")
		return nil
	}
	hash, _, err := provider.Archive().GetBlockHash(height)
	if err != nil {
		return err
	}
	fmt.Printf("Block height: %d\n", height)
	fmt.Printf("Head block hash: %v\n", hash)
	return nil
}
