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

import (
	"fmt"

	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/common"
)

// ArchiveView represents a historical state. Loads data from the Archive.
type ArchiveView struct {
	archive archive.Archive
	block   uint64
}

func (v *ArchiveView) GetAccount(address common.Address) (*Account, error) {
	exists, err := v.archive.Exists(v.block, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get status of account %v at block %d: %w", address, v.block, err)
	}
	if !exists {
		return nil, nil
	}
	balance, err := v.archive.GetBalance(v.block, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of account %v at block %d: %w", address, v.block, err)
	}
	nonce, err := v.archive.GetNonce(v.block, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce of account %v at block %d: %w", address, v.block, err)
	}
	code, err := v.archive.GetCode(v.block, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get code of account %v at block %d: %w", address, v.block, err)
	}
	codeHash := common.Keccak256(code)
	return &Account{
		Balance:  balance,
		Nonce:    nonce.ToUint64(),
		CodeHash: &codeHash,
	}, nil
}

func (v *ArchiveView) Block() uint64 {
	return v.block
}

func (v *ArchiveView) Close() error {
	// no-op, the archive is owned by the provider
	return nil
}
