// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package archive_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/Fantom-foundation/carmen-accountext/backend"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive/ldb"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive/memory"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive/sqlite"
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
)

type archiveFactory struct {
	label      string
	getArchive func(tempDir string) archive.Archive
	persistent bool
}

func getArchiveFactories(tb testing.TB) []archiveFactory {
	return []archiveFactory{
		{
			label: "Memory",
			getArchive: func(tempDir string) archive.Archive {
				return memory.NewArchive()
			},
		},
		{
			label: "SQLite",
			getArchive: func(tempDir string) archive.Archive {
				archive, err := sqlite.NewArchive(tempDir + "/archive.sqlite")
				if err != nil {
					tb.Fatalf("failed to create archive; %s", err)
				}
				return archive
			},
			persistent: true,
		},
		{
			label: "LevelDB",
			getArchive: func(tempDir string) archive.Archive {
				db, err := backend.OpenLevelDb(tempDir, nil)
				if err != nil {
					tb.Fatalf("failed to open LevelDB; %s", err)
				}
				archive, err := ldb.NewArchive(db)
				if err != nil {
					tb.Fatalf("failed to create archive; %s", err)
				}
				return &ldbArchiveWrapper{archive, db}
			},
			persistent: true,
		},
		{
			label: "LevelDB-Owned",
			getArchive: func(tempDir string) archive.Archive {
				archive, err := ldb.OpenArchive(tempDir, backend.LevelDbOptions(16))
				if err != nil {
					tb.Fatalf("failed to open archive; %s", err)
				}
				return archive
			},
			persistent: true,
		},
	}
}

// ldbArchiveWrapper wraps the ldb.Archive to close the LevelDB on the archive Close
type ldbArchiveWrapper struct {
	archive.Archive
	db io.Closer
}

func (w *ldbArchiveWrapper) Close() error {
	err := w.Archive.Close()
	if err != nil {
		return err
	}
	return w.db.Close()
}

var (
	addr1 = common.Address{0x01}
	addr2 = common.Address{0x02}
	addr3 = common.Address{0x03}

	hash1 = common.Hash{0x01}
	hash5 = common.Hash{0x05}
	hash7 = common.Hash{0x07}
)

func TestAddGet(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		t.Run(factory.label, func(t *testing.T) {
			a := factory.getArchive(t.TempDir())
			defer a.Close()

			if err := a.Add(1, hash1, common.Update{
				CreatedAccounts: []common.Address{addr1},
				Balances: []common.BalanceUpdate{
					{Account: addr1, Balance: amount.New(0x12)},
				},
			}); err != nil {
				t.Fatalf("failed to add block 1; %s", err)
			}

			if err := a.Add(5, hash5, common.Update{
				Balances: []common.BalanceUpdate{
					{Account: addr1, Balance: amount.New(0x34)},
				},
				Codes: []common.CodeUpdate{
					{Account: addr1, Code: []byte{0x12, 0x23}},
				},
				Nonces: []common.NonceUpdate{
					{Account: addr1, Nonce: common.ToNonce(0x54)},
				},
			}); err != nil {
				t.Fatalf("failed to add block 5; %v", err)
			}
			if err := a.Add(7, hash7, common.Update{}); err != nil {
				t.Fatalf("failed to add block 7; %v", err)
			}

			if balance, err := a.GetBalance(1, addr1); err != nil || balance != amount.New(0x12) {
				t.Errorf("unexpected balance at block 1: %v; %v", balance, err)
			}
			if balance, err := a.GetBalance(3, addr1); err != nil || balance != amount.New(0x12) {
				t.Errorf("unexpected balance at block 3: %v; %v", balance, err)
			}
			if balance, err := a.GetBalance(5, addr1); err != nil || balance != amount.New(0x34) {
				t.Errorf("unexpected balance at block 5: %v; %v", balance, err)
			}
			if balance, err := a.GetBalance(7, addr1); err != nil || balance != amount.New(0x34) {
				t.Errorf("unexpected balance at block 7: %v; %v", balance, err)
			}

			if code, err := a.GetCode(1, addr1); err != nil || code != nil {
				t.Errorf("unexpected code at block 1: %x; %v", code, err)
			}
			if code, err := a.GetCode(5, addr1); err != nil || !bytes.Equal(code, []byte{0x12, 0x23}) {
				t.Errorf("unexpected code at block 5: %x; %v", code, err)
			}

			if nonce, err := a.GetNonce(1, addr1); err != nil || nonce != (common.Nonce{}) {
				t.Errorf("unexpected nonce at block 1: %x; %v", nonce, err)
			}
			if nonce, err := a.GetNonce(5, addr1); err != nil || nonce.ToUint64() != 0x54 {
				t.Errorf("unexpected nonce at block 5: %x; %v", nonce, err)
			}

			if exists, err := a.Exists(0, addr1); err != nil || exists {
				t.Errorf("unexpected existence status at block 0: %t; %v", exists, err)
			}
			if exists, err := a.Exists(1, addr1); err != nil || !exists {
				t.Errorf("unexpected existence status at block 1: %t; %v", exists, err)
			}
			if exists, err := a.Exists(7, addr2); err != nil || exists {
				t.Errorf("unexpected existence status of unknown account: %t; %v", exists, err)
			}
		})
	}
}

func TestEmptyArchive(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		t.Run(factory.label, func(t *testing.T) {
			a := factory.getArchive(t.TempDir())
			defer a.Close()

			if _, empty, err := a.GetBlockHeight(); err != nil || !empty {
				t.Errorf("fresh archive should be empty; %t, %v", empty, err)
			}
			if _, found, err := a.GetBlockHash(0); err != nil || found {
				t.Errorf("fresh archive should not know block 0; %t, %v", found, err)
			}
			if balance, err := a.GetBalance(0, addr1); err != nil || !balance.IsZero() {
				t.Errorf("unexpected balance in empty archive: %v, %v", balance, err)
			}
			if nonce, err := a.GetNonce(0, addr1); err != nil || nonce != (common.Nonce{}) {
				t.Errorf("unexpected nonce in empty archive: %v, %v", nonce, err)
			}
			if code, err := a.GetCode(0, addr1); err != nil || code != nil {
				t.Errorf("unexpected code in empty archive: %x, %v", code, err)
			}
		})
	}
}

func TestAccountDeleteCreate(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		t.Run(factory.label, func(t *testing.T) {
			a := factory.getArchive(t.TempDir())
			defer a.Close()

			if err := a.Add(1, hash1, common.Update{
				CreatedAccounts: []common.Address{addr1},
				Balances:        []common.BalanceUpdate{{Account: addr1, Balance: amount.New(12)}},
				Nonces:          []common.NonceUpdate{{Account: addr1, Nonce: common.ToNonce(3)}},
				Codes:           []common.CodeUpdate{{Account: addr1, Code: []byte{0x60, 0x00}}},
			}); err != nil {
				t.Fatalf("failed to add block 1; %v", err)
			}
			if err := a.Add(2, common.Hash{0x02}, common.Update{
				DeletedAccounts: []common.Address{addr1},
			}); err != nil {
				t.Fatalf("failed to add block 2; %v", err)
			}
			if err := a.Add(3, common.Hash{0x03}, common.Update{
				CreatedAccounts: []common.Address{addr1},
				Balances:        []common.BalanceUpdate{{Account: addr1, Balance: amount.New(7)}},
			}); err != nil {
				t.Fatalf("failed to add block 3; %v", err)
			}

			tests := []struct {
				block   uint64
				exists  bool
				balance amount.Amount
				nonce   uint64
				code    []byte
			}{
				{1, true, amount.New(12), 3, []byte{0x60, 0x00}},
				{2, false, amount.New(), 0, nil},
				{3, true, amount.New(7), 0, nil},
			}
			for _, test := range tests {
				if exists, err := a.Exists(test.block, addr1); err != nil || exists != test.exists {
					t.Errorf("unexpected existence at block %d: %t; %v", test.block, exists, err)
				}
				if balance, err := a.GetBalance(test.block, addr1); err != nil || balance != test.balance {
					t.Errorf("unexpected balance at block %d: %v; %v", test.block, balance, err)
				}
				if nonce, err := a.GetNonce(test.block, addr1); err != nil || nonce.ToUint64() != test.nonce {
					t.Errorf("unexpected nonce at block %d: %d; %v", test.block, nonce.ToUint64(), err)
				}
				if code, err := a.GetCode(test.block, addr1); err != nil || !bytes.Equal(code, test.code) {
					t.Errorf("unexpected code at block %d: %x; %v", test.block, code, err)
				}
			}
		})
	}
}

func TestBlockHeightAndHashes(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		t.Run(factory.label, func(t *testing.T) {
			a := factory.getArchive(t.TempDir())
			defer a.Close()

			for _, block := range []uint64{0, 1, 5, 7} {
				if err := a.Add(block, common.Hash{byte(block), 0xAA}, common.Update{}); err != nil {
					t.Fatalf("failed to add block %d; %v", block, err)
				}
				if height, empty, err := a.GetBlockHeight(); err != nil || empty || height != block {
					t.Errorf("unexpected block height: %d, %t; %v", height, empty, err)
				}
			}

			for _, block := range []uint64{0, 1, 5, 7} {
				want := common.Hash{byte(block), 0xAA}
				if hash, found, err := a.GetBlockHash(block); err != nil || !found || hash != want {
					t.Errorf("unexpected hash of block %d: %v, %t; %v", block, hash, found, err)
				}
				if number, found, err := a.GetBlockNumber(want); err != nil || !found || number != block {
					t.Errorf("unexpected number of block %v: %d, %t; %v", want, number, found, err)
				}
			}

			// implicitly empty and future blocks have no recorded hash
			for _, block := range []uint64{2, 6, 8} {
				if _, found, err := a.GetBlockHash(block); err != nil || found {
					t.Errorf("block %d should have no hash; %t, %v", block, found, err)
				}
			}
			if _, found, err := a.GetBlockNumber(common.Hash{0xFF}); err != nil || found {
				t.Errorf("unknown hash should not be found; %t, %v", found, err)
			}
		})
	}
}

func TestBlocksMustBeAddedInOrder(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		t.Run(factory.label, func(t *testing.T) {
			a := factory.getArchive(t.TempDir())
			defer a.Close()

			if err := a.Add(5, hash5, common.Update{}); err != nil {
				t.Fatalf("failed to add block 5; %v", err)
			}
			for _, block := range []uint64{0, 4, 5} {
				err := a.Add(block, common.Hash{0xEE, byte(block)}, common.Update{})
				if !errors.Is(err, archive.ErrBlockOutOfOrder) {
					t.Errorf("adding block %d should fail with out-of-order error, got %v", block, err)
				}
			}
			if height, _, err := a.GetBlockHeight(); err != nil || height != 5 {
				t.Errorf("failed insertions changed block height: %d; %v", height, err)
			}
		})
	}
}

func TestBlockHashesMustBeUnique(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		t.Run(factory.label, func(t *testing.T) {
			a := factory.getArchive(t.TempDir())
			defer a.Close()

			if err := a.Add(1, hash1, common.Update{}); err != nil {
				t.Fatalf("failed to add block 1; %v", err)
			}
			err := a.Add(2, hash1, common.Update{
				Balances: []common.BalanceUpdate{{Account: addr1, Balance: amount.New(1)}},
			})
			if !errors.Is(err, archive.ErrBlockHashInUse) {
				t.Fatalf("reusing a block hash should fail, got %v", err)
			}
			if height, _, err := a.GetBlockHeight(); err != nil || height != 1 {
				t.Errorf("failed insertion changed block height: %d; %v", height, err)
			}
			if balance, err := a.GetBalance(2, addr1); err != nil || !balance.IsZero() {
				t.Errorf("failed insertion changed balance: %v; %v", balance, err)
			}
		})
	}
}

func TestArchiveIsPersistent(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		if !factory.persistent {
			continue
		}
		t.Run(factory.label, func(t *testing.T) {
			dir := t.TempDir()
			a := factory.getArchive(dir)
			if err := a.Add(3, hash1, common.Update{
				CreatedAccounts: []common.Address{addr1},
				Balances:        []common.BalanceUpdate{{Account: addr1, Balance: amount.New(42)}},
			}); err != nil {
				t.Fatalf("failed to add block; %v", err)
			}
			if err := a.Close(); err != nil {
				t.Fatalf("failed to close archive; %v", err)
			}

			a = factory.getArchive(dir)
			defer a.Close()
			if height, empty, err := a.GetBlockHeight(); err != nil || empty || height != 3 {
				t.Errorf("unexpected block height after reopening: %d, %t; %v", height, empty, err)
			}
			if balance, err := a.GetBalance(3, addr1); err != nil || balance != amount.New(42) {
				t.Errorf("unexpected balance after reopening: %v; %v", balance, err)
			}
			if err := a.Add(3, hash5, common.Update{}); !errors.Is(err, archive.ErrBlockOutOfOrder) {
				t.Errorf("reopened archive should reject old block, got %v", err)
			}
		})
	}
}

func TestConcurrentReads(t *testing.T) {
	for _, factory := range getArchiveFactories(t) {
		t.Run(factory.label, func(t *testing.T) {
			a := factory.getArchive(t.TempDir())
			defer a.Close()

			const numBlocks = 10
			for i := uint64(1); i <= numBlocks; i++ {
				if err := a.Add(i, common.Hash{byte(i)}, common.Update{
					CreatedAccounts: createIf(i == 1, addr3),
					Balances:        []common.BalanceUpdate{{Account: addr3, Balance: amount.New(i)}},
				}); err != nil {
					t.Fatalf("failed to add block %d; %v", i, err)
				}
			}

			var wg sync.WaitGroup
			errs := make(chan error, numBlocks)
			for i := uint64(1); i <= numBlocks; i++ {
				wg.Add(1)
				go func(block uint64) {
					defer wg.Done()
					balance, err := a.GetBalance(block, addr3)
					if err != nil {
						errs <- err
						return
					}
					if balance != amount.New(block) {
						errs <- fmt.Errorf("unexpected balance at block %d: %v", block, balance)
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Error(err)
			}
		})
	}
}

func createIf(cond bool, addr common.Address) []common.Address {
	if cond {
		return []common.Address{addr}
	}
	return nil
}
