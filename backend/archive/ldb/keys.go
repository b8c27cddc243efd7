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

	"github.com/Fantom-foundation/carmen-accountext/backend"
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const blockSize = 8                 // block number size (uint64)
const maxBlock = 0xFFFFFFFFFFFFFFFE // max block number (uint64) - must be less than the max value to fit into limit range

var limitBlock = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF} // max range value, must be greater than maxBlock

// blockKey is a key for block table, it consists of
// * the tablespace
// * the block number, represented as an inverse value to sort from the highest block
type blockKey [1 + blockSize]byte

func (k *blockKey) set(block uint64) {
	k[0] = byte(backend.BlockArchiveKey)
	binary.BigEndian.PutUint64(k[1:], maxBlock-block)
}

func (k *blockKey) get() (block uint64) {
	return maxBlock - binary.BigEndian.Uint64(k[1:])
}

// getBlockKeyRangeFromHighest provides a key range for iterating from the highest block to the first
func getBlockKeyRangeFromHighest() util.Range {
	var start, end blockKey
	start.set(maxBlock)
	end[0] = start[0]
	copy(end[1:], limitBlock)
	return util.Range{Start: start[:], Limit: end[:]}
}

// blockHashKey is a key for the block hash index, it consists of
// * the tablespace
// * the block hash
type blockHashKey [1 + common.HashSize]byte

func (k *blockHashKey) set(hash common.Hash) {
	k[0] = byte(backend.BlockHashArchiveKey)
	copy(k[1:], hash[:])
}

// accountBlockKey is a key for account details tables, it consists of
// * the tablespace
// * the account address
// * the block number
type accountBlockKey [1 + common.AddressSize + blockSize]byte

func (k *accountBlockKey) set(table backend.TableSpace, account common.Address, block uint64) {
	k[0] = byte(table)
	copy(k[1:1+common.AddressSize], account[:])
	binary.BigEndian.PutUint64(k[1+common.AddressSize:], maxBlock-block)
}

// getRange provides a key range for iterating the account value from the given block to the first block
func (k *accountBlockKey) getRange() util.Range {
	end := *k
	copy(end[1+common.AddressSize:], limitBlock)
	return util.Range{Start: k[:], Limit: end[:]}
}
