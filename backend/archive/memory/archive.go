// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package memory

import (
	"fmt"
	"sync"

	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
	"golang.org/x/exp/slices"
)

// Archive is an in-memory archive implementation. It keeps, for every
// account property, the list of values in the order of the blocks they were
// written in, and resolves historic lookups by binary search.
type Archive struct {
	mu       sync.RWMutex
	hashes   map[uint64]common.Hash
	numbers  map[common.Hash]uint64
	height   uint64
	empty    bool
	status   map[common.Address][]entry[bool]
	balances map[common.Address][]entry[amount.Amount]
	nonces   map[common.Address][]entry[common.Nonce]
	codes    map[common.Address][]entry[[]byte]
}

type entry[V any] struct {
	block uint64
	value V
}

func NewArchive() *Archive {
	return &Archive{
		hashes:   map[uint64]common.Hash{},
		numbers:  map[common.Hash]uint64{},
		empty:    true,
		status:   map[common.Address][]entry[bool]{},
		balances: map[common.Address][]entry[amount.Amount]{},
		nonces:   map[common.Address][]entry[common.Nonce]{},
		codes:    map[common.Address][]entry[[]byte]{},
	}
}

func (a *Archive) Add(block uint64, hash common.Hash, update common.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.empty && block <= a.height {
		return fmt.Errorf("%w: unable to add block %d, is higher or equal to already present block %d", archive.ErrBlockOutOfOrder, block, a.height)
	}
	if _, exists := a.numbers[hash]; exists {
		return fmt.Errorf("%w: %v", archive.ErrBlockHashInUse, hash)
	}

	accounts, updates := archive.AccountUpdatesFrom(&update)
	for _, account := range accounts {
		au := updates[account]
		if au.StatusChanged() {
			a.status[account] = append(a.status[account], entry[bool]{block, au.Exists()})
		}
		if au.HasBalance {
			a.balances[account] = append(a.balances[account], entry[amount.Amount]{block, au.Balance})
		}
		if au.HasNonce {
			a.nonces[account] = append(a.nonces[account], entry[common.Nonce]{block, au.Nonce})
		}
		if au.HasCode {
			a.codes[account] = append(a.codes[account], entry[[]byte]{block, slices.Clone(au.Code)})
		}
	}

	a.hashes[block] = hash
	a.numbers[hash] = block
	a.height = block
	a.empty = false
	return nil
}

func (a *Archive) GetBlockHeight() (block uint64, empty bool, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.height, a.empty, nil
}

func (a *Archive) GetBlockHash(block uint64) (common.Hash, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	hash, found := a.hashes[block]
	return hash, found, nil
}

func (a *Archive) GetBlockNumber(hash common.Hash) (uint64, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	block, found := a.numbers[hash]
	return block, found, nil
}

func (a *Archive) Exists(block uint64, account common.Address) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return lookup(a.status[account], block), nil
}

func (a *Archive) GetBalance(block uint64, account common.Address) (amount.Amount, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return lookup(a.balances[account], block), nil
}

func (a *Archive) GetNonce(block uint64, account common.Address) (common.Nonce, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return lookup(a.nonces[account], block), nil
}

func (a *Archive) GetCode(block uint64, account common.Address) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	code := lookup(a.codes[account], block)
	if len(code) == 0 {
		return nil, nil
	}
	return slices.Clone(code), nil
}

func (a *Archive) Close() error {
	return nil
}

// lookup returns the last value written at or before the given block, or the
// zero value if there is none.
func lookup[V any](history []entry[V], block uint64) V {
	// position of the entry of the given block, or of the first entry after it
	pos, found := slices.BinarySearchFunc(history, block, func(e entry[V], block uint64) int {
		switch {
		case e.block < block:
			return -1
		case e.block > block:
			return 1
		}
		return 0
	})
	if found {
		return history[pos].value
	}
	if pos == 0 {
		var zero V
		return zero
	}
	return history[pos-1].value
}
