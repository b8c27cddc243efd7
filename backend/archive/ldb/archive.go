// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package ldb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/carmen-accountext/backend"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Archive is a LevelDB based archive. Every account property is stored in its
// own table space keyed by account and inverted block number, so that the
// value valid at a block is the first entry of a range scan starting there.
type Archive struct {
	db             backend.LevelDB
	batch          leveldb.Batch
	lastBlockCache blockCache
	addMutex       sync.Mutex
	ownsDb         bool
}

// NewArchive creates an archive on top of the given database. The database
// remains owned by the caller and is not closed by the archive.
func NewArchive(db backend.LevelDB) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("no database provided")
	}
	return &Archive{db: db}, nil
}

// OpenArchive opens a LevelDB archive located in the given directory, which
// is created if missing. Closing the archive closes the database.
func OpenArchive(directory string, options *opt.Options) (*Archive, error) {
	db, err := backend.OpenLevelDb(directory, options)
	if err != nil {
		return nil, err
	}
	return &Archive{db: db, ownsDb: true}, nil
}

func (a *Archive) Close() error {
	if !a.ownsDb {
		return nil
	}
	return a.db.Close()
}

// Add a new update as a new block into the archive.
func (a *Archive) Add(block uint64, hash common.Hash, update common.Update) error {
	a.addMutex.Lock()
	defer a.addMutex.Unlock()

	if block > maxBlock {
		return fmt.Errorf("block number %d exceeds maximum %d", block, uint64(maxBlock))
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

	a.batch.Reset()
	accounts, accountUpdates := archive.AccountUpdatesFrom(&update)
	for _, account := range accounts {
		au := accountUpdates[account]
		var accountK accountBlockKey
		if au.StatusChanged() {
			accountK.set(backend.AccountArchiveKey, account, block)
			a.batch.Put(accountK[:], encodeStatus(au.Exists()))
		}
		if au.HasBalance {
			accountK.set(backend.BalanceArchiveKey, account, block)
			balance := au.Balance.Bytes32()
			a.batch.Put(accountK[:], balance[:])
		}
		if au.HasNonce {
			accountK.set(backend.NonceArchiveKey, account, block)
			a.batch.Put(accountK[:], au.Nonce[:])
		}
		if au.HasCode {
			accountK.set(backend.CodeArchiveKey, account, block)
			a.batch.Put(accountK[:], au.Code)
		}
	}

	var blockK blockKey
	blockK.set(block)
	a.batch.Put(blockK[:], hash[:])

	var hashK blockHashKey
	hashK.set(hash)
	var number [blockSize]byte
	binary.BigEndian.PutUint64(number[:], block)
	a.batch.Put(hashK[:], number[:])

	if err := a.db.Write(&a.batch, nil); err != nil {
		return err
	}

	a.lastBlockCache.set(block)
	return nil
}

func (a *Archive) GetBlockHeight() (block uint64, empty bool, err error) {
	if block, valid := a.lastBlockCache.get(); valid {
		return block, false, nil
	}
	return a.getBlockHeightSlow()
}

// getBlockHeightSlow represents the slow path of GetBlockHeight() method (extracted to allow inlining the fast path)
func (a *Archive) getBlockHeightSlow() (block uint64, empty bool, err error) {
	keyRange := getBlockKeyRangeFromHighest()
	it := a.db.NewIterator(&keyRange, nil)
	defer it.Release()

	if it.Next() {
		var blockK blockKey
		copy(blockK[:], it.Key())
		return blockK.get(), false, nil
	}
	return 0, true, it.Error()
}

func (a *Archive) GetBlockHash(block uint64) (hash common.Hash, found bool, err error) {
	var blockK blockKey
	blockK.set(block)
	value, err := a.db.Get(blockK[:], nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}
	copy(hash[:], value)
	return hash, true, nil
}

func (a *Archive) GetBlockNumber(hash common.Hash) (block uint64, found bool, err error) {
	var hashK blockHashKey
	hashK.set(hash)
	value, err := a.db.Get(hashK[:], nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(value) != blockSize {
		return 0, false, fmt.Errorf("invalid block number encoding of %d bytes for hash %v", len(value), hash)
	}
	return binary.BigEndian.Uint64(value), true, nil
}

func (a *Archive) Exists(block uint64, account common.Address) (exists bool, err error) {
	value, found, err := a.getLatest(backend.AccountArchiveKey, block, account)
	if !found || err != nil {
		return false, err
	}
	return len(value) > 0 && value[0] != 0, nil
}

func (a *Archive) GetBalance(block uint64, account common.Address) (balance amount.Amount, err error) {
	value, found, err := a.getLatest(backend.BalanceArchiveKey, block, account)
	if !found || err != nil {
		return amount.New(), err
	}
	return amount.NewFromBytes(value...), nil
}

func (a *Archive) GetNonce(block uint64, account common.Address) (nonce common.Nonce, err error) {
	value, found, err := a.getLatest(backend.NonceArchiveKey, block, account)
	if !found || err != nil {
		return common.Nonce{}, err
	}
	copy(nonce[:], value)
	return nonce, nil
}

func (a *Archive) GetCode(block uint64, account common.Address) (code []byte, err error) {
	value, found, err := a.getLatest(backend.CodeArchiveKey, block, account)
	if !found || err != nil || len(value) == 0 {
		return nil, err
	}
	return value, nil
}

// getLatest fetches a copy of the value written into the given table for the
// account at or before the given block.
func (a *Archive) getLatest(table backend.TableSpace, block uint64, account common.Address) ([]byte, bool, error) {
	if block > maxBlock {
		block = maxBlock
	}
	var key accountBlockKey
	key.set(table, account, block)
	keyRange := key.getRange()
	it := a.db.NewIterator(&keyRange, nil)
	defer it.Release()

	if it.Next() {
		value := make([]byte, len(it.Value()))
		copy(value, it.Value())
		return value, true, nil
	}
	return nil, false, it.Error()
}

func encodeStatus(exists bool) []byte {
	if exists {
		return []byte{1}
	}
	return []byte{0}
}

// blockCache caches info about the last block in the archive
type blockCache struct {
	mu           sync.Mutex
	lastBlockNum uint64
	valid        bool
}

func (c *blockCache) set(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBlockNum = number
	c.valid = true
}

func (c *blockCache) get() (number uint64, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBlockNum, c.valid
}
