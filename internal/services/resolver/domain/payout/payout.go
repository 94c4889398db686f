// Package payout derives a bet's roll from a verified authority signature and
// computes the house-edged payout.
//
// The two steps use different overflow policies on purpose. Roll derivation
// works modulo 2^128, so wraparound is part of the definition. Payout
// arithmetic is checked at every step and fails with ErrOverflow instead of
// truncating.
package payout

import (
	"errors"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	sha256 "github.com/minio/sha256-simd"
	"lukechampine.com/uint128"
)

const (
	// Scale is the fixed-point denominator of the edge factor.
	Scale = 100000
	// HouseEdge is the retained share in Scale units (1.5%).
	HouseEdge = 150
	// Sides is the number of distinct roll values.
	Sides = 100
)

// ErrOverflow indicates a payout step overflowed or divided by zero.
var ErrOverflow = errors.New("arithmetic overflow")

// Outcome is the result of resolving one bet.
type Outcome struct {
	Roll   uint8
	Won    bool
	Payout uint64
}

// Roll hashes the verified signature and maps the digest onto [1, Sides].
func Roll(signature []byte) uint8 {
	return RollFromDigest(sha256.Sum256(signature))
}

// RollFromDigest folds the two little-endian halves of digest together with
// wrapping addition and reduces modulo Sides.
func RollFromDigest(digest [32]byte) uint8 {
	lower := uint128.FromBytes(digest[0:16])
	upper := uint128.FromBytes(digest[16:32])
	return uint8(lower.AddWrap(upper).Mod64(Sides)) + 1
}

// Wins reports whether roll lands strictly under target.
func Wins(target, roll uint8) bool {
	return target > roll
}

// Payout computes amount * (Scale - HouseEdge) / (target - 1) / 100 in 128-bit
// arithmetic. The division order is fixed; reordering changes rounding.
func Payout(amount uint64, target uint8) (uint64, error) {
	if target == 0 {
		return 0, ErrOverflow
	}
	value, ok := checkedMul(uint128.From64(amount), Scale-HouseEdge)
	if !ok {
		return 0, ErrOverflow
	}
	if value, ok = checkedDiv(value, uint64(target)-1); !ok {
		return 0, ErrOverflow
	}
	if value, ok = checkedDiv(value, 100); !ok {
		return 0, ErrOverflow
	}
	if value.Hi != 0 {
		return 0, ErrOverflow
	}
	return value.Lo, nil
}

// Resolve derives the roll for a verified signature and, on a win, the payout.
func Resolve(commitment bet.Commitment, verifiedSignature []byte) (Outcome, error) {
	roll := Roll(verifiedSignature)
	if !Wins(commitment.Target, roll) {
		return Outcome{Roll: roll}, nil
	}
	amount, err := Payout(commitment.Amount, commitment.Target)
	if err != nil {
		return Outcome{Roll: roll, Won: true}, err
	}
	return Outcome{Roll: roll, Won: true, Payout: amount}, nil
}

func checkedMul(value uint128.Uint128, factor uint64) (uint128.Uint128, bool) {
	if factor == 0 || value.IsZero() {
		return uint128.Zero, true
	}
	if value.Cmp(uint128.Max.Div64(factor)) > 0 {
		return uint128.Zero, false
	}
	return value.Mul64(factor), true
}

func checkedDiv(value uint128.Uint128, divisor uint64) (uint128.Uint128, bool) {
	if divisor == 0 {
		return uint128.Zero, false
	}
	return value.Div64(divisor), true
}
