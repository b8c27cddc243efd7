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
	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AccountUpdate combines the updates applied to a single account in one block.
// It is the unit written by archive implementations: an account that is
// created or deleted gets its balance, nonce, and code reset, unless the
// same block sets them explicitly.
type AccountUpdate struct {
	Created bool
	Deleted bool

	HasBalance bool
	Balance    amount.Amount
	HasNonce   bool
	Nonce      common.Nonce
	HasCode    bool
	Code       []byte
}

// StatusChanged is true if the existence of the account changed in the block.
func (au *AccountUpdate) StatusChanged() bool {
	return au.Created || au.Deleted
}

// Exists is the existence status of the account after the block. It is only
// meaningful if StatusChanged is true.
func (au *AccountUpdate) Exists() bool {
	return au.Created
}

// AccountUpdatesFrom process a common.Update into a map of AccountUpdate,
// returning the updated accounts in ascending order.
func AccountUpdatesFrom(update *common.Update) ([]common.Address, map[common.Address]*AccountUpdate) {
	accountUpdates := make(map[common.Address]*AccountUpdate)

	get := func(address common.Address) *AccountUpdate {
		au, exists := accountUpdates[address]
		if !exists {
			au = new(AccountUpdate)
			accountUpdates[address] = au
		}
		return au
	}

	for _, address := range update.DeletedAccounts {
		get(address).Deleted = true
	}
	for _, address := range update.CreatedAccounts {
		au := get(address)
		au.Created = true
		au.Deleted = false
	}
	for _, au := range accountUpdates {
		// a status change resets all account properties
		au.HasBalance = true
		au.HasNonce = true
		au.HasCode = true
	}
	for _, balanceUpdate := range update.Balances {
		accountUpdate := get(balanceUpdate.Account)
		accountUpdate.HasBalance = true
		accountUpdate.Balance = balanceUpdate.Balance
	}
	for _, nonceUpdate := range update.Nonces {
		accountUpdate := get(nonceUpdate.Account)
		accountUpdate.HasNonce = true
		accountUpdate.Nonce = nonceUpdate.Nonce
	}
	for _, codeUpdate := range update.Codes {
		accountUpdate := get(codeUpdate.Account)
		accountUpdate.HasCode = true
		accountUpdate.Code = codeUpdate.Code
	}

	accounts := maps.Keys(accountUpdates)
	slices.SortFunc(accounts, func(a, b common.Address) int { return a.Compare(&b) })
	return accounts, accountUpdates
}
