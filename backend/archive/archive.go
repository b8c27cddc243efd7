// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package archive

import (
	"io"

	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
)

//go:generate mockgen -source archive.go -destination archive_mocks.go -package archive

const (
	// ErrBlockOutOfOrder is returned when adding a block that is not higher
	// than the last block of the archive.
	ErrBlockOutOfOrder = common.ConstError("block out of order")
	// ErrBlockHashInUse is returned when adding a block whose hash has
	// already been recorded for another block.
	ErrBlockHashInUse = common.ConstError("block hash already in use")
)

// An Archive retains a history of account state mutations in a blockchain on
// a block-level granularity. The history is recorded by adding per-block
// updates. All updates are append-only. History written once can no longer be
// altered. Blocks between two added blocks are implicitly empty.
//
// Archive Add(..) and GetXXX(..) operations are thread safe and may thus be run
// in parallel. Lookups at block B return the last value written at or before B.
type Archive interface {

	// Add adds the changes of the given block with the given hash to this
	// archive. Block numbers must be strictly increasing.
	Add(block uint64, hash common.Hash, update common.Update) error

	// GetBlockHeight gets the maximum block height inserted so far. If the
	// archive is empty, the empty flag is set.
	GetBlockHeight() (block uint64, empty bool, err error)

	// GetBlockHash returns the hash recorded for the given block. The found
	// flag is false for blocks that were never added.
	GetBlockHash(block uint64) (hash common.Hash, found bool, err error)

	// GetBlockNumber returns the number of the block with the given hash. The
	// found flag is false if no block with the hash was added.
	GetBlockNumber(hash common.Hash) (block uint64, found bool, err error)

	// Exists allows to fetch a historic existence status of a given account.
	Exists(block uint64, account common.Address) (exists bool, err error)

	// GetBalance allows to fetch a historic balance values for a given account.
	GetBalance(block uint64, account common.Address) (balance amount.Amount, err error)

	// GetNonce allows to fetch a historic nonce values for a given account.
	GetNonce(block uint64, account common.Address) (nonce common.Nonce, err error)

	// GetCode allows to fetch a historic code values for a given account.
	GetCode(block uint64, account common.Address) (code []byte, err error)

	io.Closer
}
