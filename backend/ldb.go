// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package backend

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// TableSpace divide key-value storage into spaces by adding a prefix to the key.
type TableSpace byte

const (
	// BlockArchiveKey is a tablespace for archive mapping from block numbers to block hashes
	BlockArchiveKey TableSpace = '1'
	// AccountArchiveKey is a tablespace for archive account states
	AccountArchiveKey TableSpace = '2'
	// BalanceArchiveKey is a tablespace for archive balances
	BalanceArchiveKey TableSpace = '3'
	// CodeArchiveKey is a tablespace for archive codes of contracts
	CodeArchiveKey TableSpace = '4'
	// NonceArchiveKey is a tablespace for archive nonces
	NonceArchiveKey TableSpace = '5'
	// BlockHashArchiveKey is a tablespace for archive mapping from block hashes to block numbers
	BlockHashArchiveKey TableSpace = '8'
)

// LevelDB is an interface missing in original LevelDB design.
// It contains the subset of LevelDB methods the archive relies on and allows
// for wrapping or substituting the database instance.
type LevelDB interface {
	// Get gets the value for the given key. It returns ErrNotFound if the
	// DB does not contain the key.
	//
	// The returned slice is its own copy, it is safe to modify the contents
	// of the returned slice.
	Get(key []byte, ro *opt.ReadOptions) (value []byte, err error)

	// NewIterator returns an iterator for the latest snapshot of the
	// underlying DB. It is safe to use multiple iterators concurrently,
	// with each in a dedicated goroutine, and concurrently with writes.
	//
	// The iterator must be released after use, by calling Release method.
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator

	// Write apply the given batch to the DB. The batch records are applied
	// atomically.
	Write(batch *leveldb.Batch, wo *opt.WriteOptions) error

	// Close closes the DB.
	Close() error
}

// LevelDbOptions derives LevelDB options from a total cache budget in MiB.
// Half of the budget is assigned to the block cache, a quarter to the write
// buffer. A zero budget yields the LevelDB defaults.
func LevelDbOptions(cacheMiB int) *opt.Options {
	if cacheMiB <= 0 {
		return nil
	}
	return &opt.Options{
		BlockCacheCapacity: cacheMiB / 2 * opt.MiB,
		WriteBuffer:        cacheMiB / 4 * opt.MiB,
	}
}

// OpenLevelDb opens or creates the LevelDB instance in the given directory.
func OpenLevelDb(path string, options *opt.Options) (*leveldb.DB, error) {
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB in %s: %w", path, err)
	}
	return db, nil
}
