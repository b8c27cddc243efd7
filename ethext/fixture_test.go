// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package ethext

import (
	"fmt"

	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/state"
)

// fixtureProvider is a deterministic in-memory provider. Each block holds a
// full set of account records; blocks below the pruning limit are reported
// as pruned.
type fixtureProvider struct {
	head   uint64
	pruned uint64
	blocks map[uint64]map[common.Address]*state.Account
	hashes map[common.Hash]uint64
}

func newFixtureProvider() *fixtureProvider {
	return &fixtureProvider{
		blocks: map[uint64]map[common.Address]*state.Account{},
		hashes: map[common.Hash]uint64{},
	}
}

func (p *fixtureProvider) setAccount(block uint64, address common.Address, account *state.Account) {
	accounts, found := p.blocks[block]
	if !found {
		accounts = map[common.Address]*state.Account{}
		p.blocks[block] = accounts
	}
	accounts[address] = account
	if block > p.head {
		p.head = block
	}
}

func (p *fixtureProvider) LatestState() (state.View, error) {
	return p.StateAt(p.head)
}

func (p *fixtureProvider) StateAt(block uint64) (state.View, error) {
	if block > p.head {
		return nil, fmt.Errorf("%w: block %d", state.ErrBlockNotFound, block)
	}
	if block < p.pruned {
		return nil, fmt.Errorf("%w: block %d", state.ErrStatePruned, block)
	}
	return &fixtureView{block: block, accounts: p.blocks[block]}, nil
}

func (p *fixtureProvider) StateByHash(hash common.Hash) (state.View, error) {
	block, found := p.hashes[hash]
	if !found {
		return nil, fmt.Errorf("%w: hash %v", state.ErrBlockNotFound, hash)
	}
	return p.StateAt(block)
}

func (p *fixtureProvider) BlockHeight() (uint64, bool, error) {
	return p.head, false, nil
}

type fixtureView struct {
	block    uint64
	accounts map[common.Address]*state.Account
}

func (v *fixtureView) GetAccount(address common.Address) (*state.Account, error) {
	account, found := v.accounts[address]
	if !found {
		return nil, nil
	}
	res := *account
	return &res, nil
}

func (v *fixtureView) Block() uint64 {
	return v.block
}

func (v *fixtureView) Close() error {
	return nil
}
