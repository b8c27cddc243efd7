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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
	"github.com/Fantom-foundation/carmen-accountext/common/interrupt"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var (
	importFileFlag = cli.StringFlag{
		Name:  "file",
		Usage: "a JSON file listing blocks to be added to the archive",
	}
)

var importCommand = cli.Command{
	Action: importBlocksFromFile,
	Name:   "import",
	Usage:  "adds the blocks listed in a JSON file to an archive",
	Flags: append([]cli.Flag{
		&importFileFlag,
		&cpuProfilingFlag,
	}, archiveFlags...),
}

// blockJSON is a block in an import file.
type blockJSON struct {
	Number   uint64            `json:"number"`
	Hash     gethcommon.Hash   `json:"hash"`
	Accounts []accountDiffJSON `json:"accounts"`
}

// accountDiffJSON lists the changes of an account in a block. Fields not
// present are left unchanged.
type accountDiffJSON struct {
	Address gethcommon.Address `json:"address"`
	Create  bool               `json:"create"`
	Delete  bool               `json:"delete"`
	Balance *hexutil.Big       `json:"balance"`
	Nonce   *hexutil.Uint64    `json:"nonce"`
	Code    *hexutil.Bytes     `json:"code"`
}

func importBlocksFromFile(ctx *cli.Context) (err error) {
	profileTarget := ctx.String(cpuProfilingFlag.Name)
	if len(profileTarget) != 0 {
		if err := StartCPUProfile(profileTarget); err != nil {
			return err
		}
		defer StopCPUProfile()
	}

	file := ctx.String(importFileFlag.Name)
	if file == "" {
		return fmt.Errorf("no input file given, use --%s", importFileFlag.Name)
	}
	provider, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(provider, &err)

	cctx, cancel := interrupt.Register(ctx.Context)
	defer cancel()
	_, err = importFile(cctx, provider.Archive(), file)
	return err
}

func importFile(ctx context.Context, trg archive.Archive, file string) (int, error) {
	in, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return importBlocks(ctx, trg, in)
}

// importBlocks adds the JSON list of blocks read from the given input to the
// archive and returns the number of blocks added. Blocks are added one at a
// time, an interrupted import leaves the archive at the last added block.
func importBlocks(ctx context.Context, trg archive.Archive, in io.Reader) (int, error) {
	start := time.Now()
	decoder := json.NewDecoder(in)
	decoder.DisallowUnknownFields()

	if token, err := decoder.Token(); err != nil || token != json.Delim('[') {
		if err == nil {
			err = fmt.Errorf("unexpected token %v", token)
		}
		return 0, fmt.Errorf("input is not a list of blocks: %w", err)
	}

	count := 0
	for decoder.More() {
		if interrupt.IsCancelled(ctx) {
			return count, interrupt.ErrCanceled
		}
		var block blockJSON
		if err := decoder.Decode(&block); err != nil {
			return count, fmt.Errorf("failed to decode block: %w", err)
		}
		update, err := block.toUpdate()
		if err != nil {
			return count, fmt.Errorf("invalid block %d: %w", block.Number, err)
		}
		if err := trg.Add(block.Number, common.Hash(block.Hash), update); err != nil {
			return count, fmt.Errorf("failed to add block %d: %w", block.Number, err)
		}
		log.Debug("Imported block", "number", block.Number, "hash", block.Hash, "accounts", len(block.Accounts))
		count++
	}
	if _, err := decoder.Token(); err != nil {
		return count, fmt.Errorf("unterminated list of blocks: %w", err)
	}

	log.Info("Import complete", "blocks", count, "elapsed", time.Since(start))
	return count, nil
}

func (b *blockJSON) toUpdate() (common.Update, error) {
	update := common.Update{}
	for _, account := range b.Accounts {
		address := common.Address(account.Address)
		if account.Create {
			update.AppendCreateAccount(address)
		}
		if account.Delete {
			update.AppendDeleteAccount(address)
		}
		if account.Balance != nil {
			balance, err := amount.NewFromBigInt(account.Balance.ToInt())
			if err != nil {
				return common.Update{}, fmt.Errorf("invalid balance of %v: %w", address, err)
			}
			update.AppendBalanceUpdate(address, balance)
		}
		if account.Nonce != nil {
			update.AppendNonceUpdate(address, common.ToNonce(uint64(*account.Nonce)))
		}
		if account.Code != nil {
			update.AppendCodeUpdate(address, *account.Code)
		}
	}
	return update, update.Normalize()
}
