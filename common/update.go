// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package common

import (
	"bytes"
	"fmt"

	"github.com/Fantom-foundation/carmen-accountext/common/amount"
	"golang.org/x/exp/slices"
)

// Update summarizes the effective changes to the account state at the end of
// a block. It combines changes to the account existence (created or deleted),
// balances, nonces, and codes.
//
// An example use of an update would look like this:
//
//	// Create an update.
//	update := Update{}
//	// Fill in changes.
//	update.AppendCreateAccount(..)
//	update.AppendBalanceUpdate(..)
//	...
//	// Sort and de-duplicate the changes, failing on conflicts.
//	err := update.Normalize()
//
// Valid instances can then be forwarded to an archive as a block update.
type Update struct {
	DeletedAccounts []Address
	CreatedAccounts []Address
	Balances        []BalanceUpdate
	Nonces          []NonceUpdate
	Codes           []CodeUpdate
}

type BalanceUpdate struct {
	Account Address
	Balance amount.Amount
}

type NonceUpdate struct {
	Account Address
	Nonce   Nonce
}

type CodeUpdate struct {
	Account Address
	Code    []byte
}

// IsEmpty is true if there is no change covered by this update.
func (u *Update) IsEmpty() bool {
	return len(u.DeletedAccounts) == 0 &&
		len(u.CreatedAccounts) == 0 &&
		len(u.Balances) == 0 &&
		len(u.Nonces) == 0 &&
		len(u.Codes) == 0
}

// AppendDeleteAccount registers an account to be deleted in this block. Delete
// operations are the first to be carried out, resetting the account's balance,
// nonce, and code. Subsequent account creations or balance / nonce / code
// updates take effect after the deletion of the account.
func (u *Update) AppendDeleteAccount(addr Address) {
	u.DeletedAccounts = append(u.DeletedAccounts, addr)
}

// AppendCreateAccount registers a new account to be created in this block.
// This takes affect after deleting the accounts listed in this update.
func (u *Update) AppendCreateAccount(addr Address) {
	u.CreatedAccounts = append(u.CreatedAccounts, addr)
}

// AppendBalanceUpdate registers a balance update to be conducted.
func (u *Update) AppendBalanceUpdate(addr Address, balance amount.Amount) {
	u.Balances = append(u.Balances, BalanceUpdate{addr, balance})
}

// AppendNonceUpdate registers a nonce update to be conducted.
func (u *Update) AppendNonceUpdate(addr Address, nonce Nonce) {
	u.Nonces = append(u.Nonces, NonceUpdate{addr, nonce})
}

// AppendCodeUpdate registers a code update to be conducted.
func (u *Update) AppendCodeUpdate(addr Address, code []byte) {
	u.Codes = append(u.Codes, CodeUpdate{addr, code})
}

// Normalize sorts all updates and removes duplicates. Two different values
// for the same account property can not be resolved and produce an error.
func (u *Update) Normalize() error {
	u.DeletedAccounts = sortUnique(u.DeletedAccounts, compareAddress, accountEqual)
	u.CreatedAccounts = sortUnique(u.CreatedAccounts, compareAddress, accountEqual)
	u.Balances = sortUnique(u.Balances, compareBalance, balanceEqual)
	u.Nonces = sortUnique(u.Nonces, compareNonce, nonceEqual)
	u.Codes = sortUnique(u.Codes, compareCode, codeEqual)
	return u.Check()
}

// Check verifies that all updates are unique and in order.
func (u *Update) Check() error {
	if !isSortedAndUnique(u.CreatedAccounts, compareAddress) {
		return fmt.Errorf("created accounts are not in order or unique")
	}
	if !isSortedAndUnique(u.DeletedAccounts, compareAddress) {
		return fmt.Errorf("deleted accounts are not in order or unique")
	}
	if !isSortedAndUnique(u.Balances, compareBalance) {
		return fmt.Errorf("balance updates are not in order or unique")
	}
	if !isSortedAndUnique(u.Nonces, compareNonce) {
		return fmt.Errorf("nonce updates are not in order or unique")
	}
	if !isSortedAndUnique(u.Codes, compareCode) {
		return fmt.Errorf("code updates are not in order or unique")
	}

	// Make sure that there is no account created and deleted.
	for i, j := 0, 0; i < len(u.CreatedAccounts) && j < len(u.DeletedAccounts); {
		cmp := u.CreatedAccounts[i].Compare(&u.DeletedAccounts[j])
		if cmp == 0 {
			return fmt.Errorf("unable to create and delete same address in update: %v", u.CreatedAccounts[i])
		}
		if cmp < 0 {
			i++
		} else {
			j++
		}
	}
	return nil
}

func compareAddress(a, b Address) int {
	return a.Compare(&b)
}

func accountEqual(a, b Address) bool {
	return a == b
}

func compareBalance(a, b BalanceUpdate) int {
	return a.Account.Compare(&b.Account)
}

func balanceEqual(a, b BalanceUpdate) bool {
	return a == b
}

func compareNonce(a, b NonceUpdate) int {
	return a.Account.Compare(&b.Account)
}

func nonceEqual(a, b NonceUpdate) bool {
	return a == b
}

func compareCode(a, b CodeUpdate) int {
	return a.Account.Compare(&b.Account)
}

func codeEqual(a, b CodeUpdate) bool {
	return a.Account == b.Account && bytes.Equal(a.Code, b.Code)
}

func isSortedAndUnique[T any](list []T, cmp func(a, b T) int) bool {
	for i := 0; i < len(list)-1; i++ {
		if cmp(list[i], list[i+1]) >= 0 {
			return false
		}
	}
	return true
}

// sortUnique sorts the input list and removes exact duplicates. Entries that
// compare equal but differ in value are retained, so a subsequent Check
// reports them as conflicts.
func sortUnique[T any](list []T, cmp func(a, b T) int, equal func(a, b T) bool) []T {
	if len(list) <= 1 {
		return list
	}
	slices.SortStableFunc(list, cmp)
	j := 0
	for i := 1; i < len(list); i++ {
		if !equal(list[j], list[i]) {
			j++
			list[j] = list[i]
		}
	}
	return list[:j+1]
}
