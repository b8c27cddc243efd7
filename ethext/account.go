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
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/common/amount"
	"github.com/Fantom-foundation/carmen-accountext/state"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AccountExt is the response of eth_getAccountExt. CodeHash is only set for
// accounts with non-empty code; it never equals the empty code hash. On the
// wire the balance is a hex quantity and the nonce a plain JSON number.
type AccountExt struct {
	Balance  amount.Amount
	Nonce    uint64
	CodeHash *gethcommon.Hash
}

type accountExtJSON struct {
	Balance  *hexutil.Big     `json:"balance"`
	Nonce    uint64           `json:"nonce"`
	CodeHash *gethcommon.Hash `json:"codeHash,omitempty"`
}

// NewAccountExt normalizes a raw account record. A missing account is
// reported as an account with zero balance and nonce and without code.
func NewAccountExt(account *state.Account) AccountExt {
	if account == nil {
		return AccountExt{}
	}
	res := AccountExt{
		Balance: account.Balance,
		Nonce:   account.Nonce,
	}
	if hash := account.CodeHash; hash != nil && !common.IsEmptyCode(*hash) {
		codeHash := gethcommon.Hash(*hash)
		res.CodeHash = &codeHash
	}
	return res
}

// IsEmpty is true for accounts with zero nonce, zero balance, and no code.
func (a AccountExt) IsEmpty() bool {
	return a.Nonce == 0 && a.Balance.IsZero() &&
		(a.CodeHash == nil || common.IsEmptyCode(common.Hash(*a.CodeHash)))
}

func (a AccountExt) MarshalJSON() ([]byte, error) {
	return json.Marshal(accountExtJSON{
		Balance:  (*hexutil.Big)(a.Balance.ToBig()),
		Nonce:    a.Nonce,
		CodeHash: a.CodeHash,
	})
}

// UnmarshalJSON decodes an account, rejecting unknown fields. Missing fields
// default to zero.
func (a *AccountExt) UnmarshalJSON(data []byte) error {
	var enc accountExtJSON
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&enc); err != nil {
		return err
	}
	balance, err := amount.NewFromBigInt((*big.Int)(enc.Balance))
	if err != nil {
		return fmt.Errorf("invalid balance: %w", err)
	}
	*a = AccountExt{
		Balance: balance,
		Nonce:   enc.Nonce,
	}
	if enc.CodeHash != nil && !common.IsEmptyCode(common.Hash(*enc.CodeHash)) {
		a.CodeHash = enc.CodeHash
	}
	return nil
}
