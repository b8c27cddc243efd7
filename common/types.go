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
	"encoding/binary"
	"encoding/hex"
)

const (
	// AddressSize is the size of an account address in bytes.
	AddressSize = 20
	// HashSize is the size of a hash in bytes.
	HashSize = 32
	// NonceSize is the size of an encoded nonce in bytes.
	NonceSize = 8
)

// Address is the 20-byte key of an account.
type Address [AddressSize]byte

// Hash is a 32-byte keccak256 hash, used for block and code hashes.
type Hash [HashSize]byte

// Nonce is the big-endian encoding of an account's transaction counter.
type Nonce [NonceSize]byte

// Compare returns -1, 0, or 1 if a is less, equal, or greater than b.
func (a *Address) Compare(b *Address) int {
	return bytes.Compare(a[:], b[:])
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// ToUint64 decodes the nonce into its numeric value.
func (n Nonce) ToUint64() uint64 {
	return binary.BigEndian.Uint64(n[:])
}

// ToNonce encodes the given counter as a Nonce.
func ToNonce(value uint64) (res Nonce) {
	binary.BigEndian.PutUint64(res[:], value)
	return res
}
