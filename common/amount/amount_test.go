// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package amount

import (
	"math/big"
	"testing"
)

func TestAmount_New(t *testing.T) {
	tests := []struct {
		name      string
		args      []uint64
		want      Amount
		wantPanic bool
	}{
		{"No arguments", []uint64{}, Amount{[4]uint64{0, 0, 0, 0}}, false},
		{"One argument", []uint64{1}, Amount{[4]uint64{1, 0, 0, 0}}, false},
		{"Two arguments", []uint64{1, 2}, Amount{[4]uint64{2, 1, 0, 0}}, false},
		{"Four arguments", []uint64{1, 2, 3, 4}, Amount{[4]uint64{4, 3, 2, 1}}, false},
		{"Too many arguments", []uint64{1, 2, 3, 4, 5}, Amount{}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					if !test.wantPanic {
						t.Errorf("New() panicked unexpectedly: %v", r)
					}
				} else if test.wantPanic {
					t.Errorf("New() did not panic")
				}
			}()
			if got, want := New(test.args...), test.want; got != want {
				t.Errorf("wrong result, got %v, want %v", got, want)
			}
		})
	}
}

func TestAmount_NewFromBytes(t *testing.T) {
	if NewFromBytes() != New() {
		t.Errorf("empty amount should be zero")
	}
	if got, want := NewFromBytes(0x01, 0x00), New(256); got != want {
		t.Errorf("wrong result, got %v, want %v", got, want)
	}
	max := Max().Bytes32()
	if got, want := NewFromBytes(max[:]...), Max(); got != want {
		t.Errorf("wrong result, got %v, want %v", got, want)
	}
}

func TestAmount_BytesRoundTrip(t *testing.T) {
	for _, a := range []Amount{New(), New(1), New(1000), New(1, 0), Max()} {
		bytes := a.Bytes32()
		if got := NewFromBytes(bytes[:]...); got != a {
			t.Errorf("round trip failed, got %v, want %v", got, a)
		}
	}
}

func TestAmount_NewFromBigInt(t *testing.T) {
	if got, err := NewFromBigInt(nil); err != nil || got != New() {
		t.Errorf("nil should be converted to zero, got %v, %v", got, err)
	}
	if got, err := NewFromBigInt(big.NewInt(1000)); err != nil || got != New(1000) {
		t.Errorf("wrong conversion, got %v, %v", got, err)
	}
	if _, err := NewFromBigInt(big.NewInt(-1)); err == nil {
		t.Errorf("negative values should be rejected")
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := NewFromBigInt(tooBig); err == nil {
		t.Errorf("values exceeding 256 bits should be rejected")
	}
}

func TestAmount_ToBigIsExact(t *testing.T) {
	want, _ := new(big.Int).SetString("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", 16)
	if got := Max().ToBig(); got.Cmp(want) != 0 {
		t.Errorf("wrong conversion, got %v, want %v", got, want)
	}
	if got := New(1, 0).ToBig(); got.Cmp(new(big.Int).Lsh(big.NewInt(1), 64)) != 0 {
		t.Errorf("wrong conversion of 2^64, got %v", got)
	}
}

func TestAmount_Predicates(t *testing.T) {
	if !New().IsZero() || New(1).IsZero() {
		t.Errorf("IsZero is not working")
	}
	if got := New(1000).String(); got != "1000" {
		t.Errorf("wrong string representation, got %s", got)
	}
}
