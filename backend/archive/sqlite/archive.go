// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
	_ "github.com/mattn/go-sqlite3"
)

// See https://github.com/mattn/go-sqlite3#connection-string; options given
// in the connection string apply to every connection of the pool.
const kConnectionOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

var kCreateTables = []string{
	"CREATE TABLE IF NOT EXISTS block (number INT PRIMARY KEY, hash BLOB)",
	"CREATE UNIQUE INDEX IF NOT EXISTS block_hash ON block (hash)",
	"CREATE TABLE IF NOT EXISTS status (account BLOB, block INT, exist INT, PRIMARY KEY (account,block))",
	"CREATE TABLE IF NOT EXISTS balance (account BLOB, block INT, value BLOB, PRIMARY KEY (account,block))",
	"CREATE TABLE IF NOT EXISTS nonce (account BLOB, block INT, value BLOB, PRIMARY KEY (account,block))",
	"CREATE TABLE IF NOT EXISTS code (account BLOB, block INT, code BLOB, PRIMARY KEY (account,block))",
}

const (
	kAddBlockStmt       = "INSERT INTO block(number, hash) VALUES (?,?)"
	kGetBlockHeightStmt = "SELECT number FROM block ORDER BY number DESC LIMIT 1"
	kGetBlockHashStmt   = "SELECT hash FROM block WHERE number = ?"
	kGetBlockNumberStmt = "SELECT number FROM block WHERE hash = ?"
	kAddStatusStmt      = "INSERT INTO status(account,block,exist) VALUES (?,?,?)"
	kGetStatusStmt      = "SELECT exist FROM status WHERE account = ? AND block <= ? ORDER BY block DESC LIMIT 1"
	kAddBalanceStmt     = "INSERT INTO balance(account,block,value) VALUES (?,?,?)"
	kGetBalanceStmt     = "SELECT value FROM balance WHERE account = ? AND block <= ? ORDER BY block DESC LIMIT 1"
	kAddNonceStmt       = "INSERT INTO nonce(account,block,value) VALUES (?,?,?)"
	kGetNonceStmt       = "SELECT value FROM nonce WHERE account = ? AND block <= ? ORDER BY block DESC LIMIT 1"
	kAddCodeStmt        = "INSERT INTO code(account,block,code) VALUES (?,?,?)"
	kGetCodeStmt        = "SELECT code FROM code WHERE account = ? AND block <= ? ORDER BY block DESC LIMIT 1"
)

// Archive is an SQLite based archive. Each account property is kept in its
// own table, keyed by account and block; historic lookups select the latest
// row at or before the requested block.
type Archive struct {
	db                 *sql.DB
	addBlockStmt       *sql.Stmt
	getBlockHeightStmt *sql.Stmt
	getBlockHashStmt   *sql.Stmt
	getBlockNumberStmt *sql.Stmt
	addStatusStmt      *sql.Stmt
	getStatusStmt      *sql.Stmt
	addBalanceStmt     *sql.Stmt
	getBalanceStmt     *sql.Stmt
	addNonceStmt       *sql.Stmt
	getNonceStmt       *sql.Stmt
	addCodeStmt        *sql.Stmt
	getCodeStmt        *sql.Stmt
	addMutex           sync.Mutex
}

// NewArchive opens the SQLite archive stored in the given file, creating it
// if it does not exist.
func NewArchive(file string) (*Archive, error) {
	db, err := sql.Open("sqlite3", "file:"+file+kConnectionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	for _, cmd := range kCreateTables {
		if _, err := db.Exec(cmd); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to run %s: %w", cmd, err), db.Close())
		}
	}

	a := &Archive{db: db}
	statements := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&a.addBlockStmt, kAddBlockStmt},
		{&a.getBlockHeightStmt, kGetBlockHeightStmt},
		{&a.getBlockHashStmt, kGetBlockHashStmt},
		{&a.getBlockNumberStmt, kGetBlockNumberStmt},
		{&a.addStatusStmt, kAddStatusStmt},
		{&a.getStatusStmt, kGetStatusStmt},
		{&a.addBalanceStmt, kAddBalanceStmt},
		{&a.getBalanceStmt, kGetBalanceStmt},
		{&a.addNonceStmt, kAddNonceStmt},
		{&a.getNonceStmt, kGetNonceStmt},
		{&a.addCodeStmt, kAddCodeStmt},
		{&a.getCodeStmt, kGetCodeStmt},
	}
	for _, cur := range statements {
		stmt, err := db.Prepare(cur.query)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to prepare %s: %w", cur.query, err), db.Close())
		}
		*cur.stmt = stmt
	}
	return a, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) Add(block uint64, hash common.Hash, update common.Update) error {
	a.addMutex.Lock()
	defer a.addMutex.Unlock()

	if block > math.MaxInt64 {
		return fmt.Errorf("block number %d exceeds maximum %d", block, int64(math.MaxInt64))
	}
	lastBlock, empty, err := a.GetBlockHeight()
	if err != nil {
		return fmt.Errorf("failed to get preceding block: %w", err)
	}
	if !empty && block <= lastBlock {
		return fmt.Errorf("%w: unable to add block %d, is higher or equal to already present block %d", archive.ErrBlockOutOfOrder, block, lastBlock)
	}
	if _, found, err := a.GetBlockNumber(hash); err != nil || found {
		if err != nil {
			return fmt.Errorf("failed to check block hash: %w", err)
		}
		return fmt.Errorf("%w: %v", archive.ErrBlockHashInUse, hash)
	}

	tx, err := a.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	if err := a.addInto(tx, int64(block), hash, &update); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

func (a *Archive) addInto(tx *sql.Tx, block int64, hash common.Hash, update *common.Update) error {
	addStatus := tx.Stmt(a.addStatusStmt)
	addBalance := tx.Stmt(a.addBalanceStmt)
	addNonce := tx.Stmt(a.addNonceStmt)
	addCode := tx.Stmt(a.addCodeStmt)

	accounts, accountUpdates := archive.AccountUpdatesFrom(update)
	for _, account := range accounts {
		au := accountUpdates[account]
		if au.StatusChanged() {
			if _, err := addStatus.Exec(account[:], block, au.Exists()); err != nil {
				return fmt.Errorf("failed to add status: %w", err)
			}
		}
		if au.HasBalance {
			balance := au.Balance.Bytes32()
			if _, err := addBalance.Exec(account[:], block, balance[:]); err != nil {
				return fmt.Errorf("failed to add balance: %w", err)
			}
		}
		if au.HasNonce {
			if _, err := addNonce.Exec(account[:], block, au.Nonce[:]); err != nil {
				return fmt.Errorf("failed to add nonce: %w", err)
			}
		}
		if au.HasCode {
			if _, err := addCode.Exec(account[:], block, au.Code); err != nil {
				return fmt.Errorf("failed to add code: %w", err)
			}
		}
	}

	if _, err := tx.Stmt(a.addBlockStmt).Exec(block, hash[:]); err != nil {
		return fmt.Errorf("failed to add block %d: %w", block, err)
	}
	return nil
}

func (a *Archive) GetBlockHeight() (block uint64, empty bool, err error) {
	var number int64
	err = a.getBlockHeightStmt.QueryRow().Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(number), false, nil
}

func (a *Archive) GetBlockHash(block uint64) (hash common.Hash, found bool, err error) {
	if block > math.MaxInt64 {
		return common.Hash{}, false, nil
	}
	var value []byte
	err = a.getBlockHashStmt.QueryRow(int64(block)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}
	copy(hash[:], value)
	return hash, true, nil
}

func (a *Archive) GetBlockNumber(hash common.Hash) (block uint64, found bool, err error) {
	var number int64
	err = a.getBlockNumberStmt.QueryRow(hash[:]).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(number), true, nil
}

func (a *Archive) Exists(block uint64, account common.Address) (exists bool, err error) {
	err = a.getLatest(a.getStatusStmt, block, account, &exists)
	return exists, err
}

func (a *Archive) GetBalance(block uint64, account common.Address) (amount.Amount, error) {
	var value []byte
	if err := a.getLatest(a.getBalanceStmt, block, account, &value); err != nil {
		return amount.New(), err
	}
	return amount.NewFromBytes(value...), nil
}

func (a *Archive) GetNonce(block uint64, account common.Address) (nonce common.Nonce, err error) {
	var value []byte
	if err := a.getLatest(a.getNonceStmt, block, account, &value); err != nil {
		return common.Nonce{}, err
	}
	copy(nonce[:], value)
	return nonce, nil
}

func (a *Archive) GetCode(block uint64, account common.Address) (code []byte, err error) {
	if err := a.getLatest(a.getCodeStmt, block, account, &code); err != nil || len(code) == 0 {
		return nil, err
	}
	return code, nil
}

// getLatest scans the latest row of the given query for the account at or
// before the given block into trg. If there is no such row, trg is untouched.
func (a *Archive) getLatest(stmt *sql.Stmt, block uint64, account common.Address, trg any) error {
	if block > math.MaxInt64 {
		block = math.MaxInt64
	}
	err := stmt.QueryRow(account[:], int64(block)).Scan(trg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
