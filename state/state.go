// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package state

//go:generate mockgen -source state.go -destination state_mocks.go -package state

import (
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
)

const (
	// ErrBlockNotFound is returned when a requested block number is beyond
	// the head of the chain or a requested block hash is unknown.
	ErrBlockNotFound = common.ConstError("block not found")
	// ErrStatePruned is returned when the requested block is known, but its
	// state is no longer retained.
	ErrStatePruned = common.ConstError("state pruned")
	// ErrNoState is returned when no block has been recorded yet.
	ErrNoState = common.ConstError("no state available")
)

// Provider resolves block identifiers to read-only views of the account
// state at the corresponding block. Implementations must be safe for
// concurrent use.
type Provider interface {
	// LatestState provides a view of the most recent committed block.
	LatestState() (View, error)

	// StateAt provides a view of the state at the given block number.
	StateAt(block uint64) (View, error)

	// StateByHash provides a view of the state at the block with the given
	// hash.
	StateByHash(hash common.Hash) (View, error)

	// BlockHeight returns the number of the most recent committed block. The
	// empty flag is set if no block is available.
	BlockHeight() (block uint64, empty bool, err error)
}

// View is a read-only point-in-time snapshot of account state. A view is
// bound to one block and must be closed when no longer needed.
type View interface {
	// GetAccount fetches the record of the given account. If the account
	// does not exist at the view's block, nil is returned without error.
	GetAccount(address common.Address) (*Account, error)

	// Block is the number of the block this view observes.
	Block() uint64

	// Close releases the view.
	Close() error
}

// Account is the raw account record as stored in the state. A nil CodeHash
// indicates that the record carries no code hash.
type Account struct {
	Balance  amount.Amount
	Nonce    uint64
	CodeHash *common.Hash
}
