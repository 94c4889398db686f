// Package bet defines the wager commitment an authority signs and its
// canonical byte encoding.
//
// # Encoding
//
// The signed message is the v1 fixed-width, little-endian layout below. Field
// order and widths are a compatibility contract with every signer: changing
// either requires a new encoding version.
//
//	offset size field
//	0      32   player address
//	32     16   seed (u128)
//	48     8    slot (u64)
//	56     8    amount (u64)
//	64     1    target
//	65     1    bump
package bet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"lukechampine.com/uint128"
)

// EncodingV1Size is the byte length of a v1 encoded commitment.
const EncodingV1Size = address.Size + 16 + 8 + 8 + 1 + 1

const (
	// MinTarget is the lowest accepted target: a single winning roll.
	MinTarget = 2
	// MaxTarget is the highest accepted target: every roll but 100 wins.
	MaxTarget = 100
)

var (
	// ErrInvalidTarget indicates a target outside [MinTarget, MaxTarget].
	ErrInvalidTarget = fmt.Errorf("target must be between %d and %d", MinTarget, MaxTarget)
	// ErrZeroAmount indicates a wager of nothing.
	ErrZeroAmount = errors.New("amount must be greater than zero")
	// ErrMissingPlayer indicates a commitment without a player.
	ErrMissingPlayer = errors.New("player is required")
	// ErrMalformedEncoding indicates bytes that are not a v1 commitment.
	ErrMalformedEncoding = fmt.Errorf("encoded commitment must be %d bytes", EncodingV1Size)
)

// Commitment is the immutable wager record. The ledger owns it; resolution
// only reads it.
type Commitment struct {
	Player address.Address
	Seed   uint128.Uint128
	Slot   uint64
	Amount uint64
	Target uint8
	Bump   uint8
}

// Validate checks the invariants a ledger must enforce before storing a bet.
func (c Commitment) Validate() error {
	if c.Player.IsZero() {
		return ErrMissingPlayer
	}
	if c.Target < MinTarget || c.Target > MaxTarget {
		return ErrInvalidTarget
	}
	if c.Amount == 0 {
		return ErrZeroAmount
	}
	return nil
}

// Encode returns the canonical v1 message an authority signs.
func (c Commitment) Encode() []byte {
	out := make([]byte, EncodingV1Size)
	copy(out[0:32], c.Player[:])
	c.Seed.PutBytes(out[32:48])
	binary.LittleEndian.PutUint64(out[48:56], c.Slot)
	binary.LittleEndian.PutUint64(out[56:64], c.Amount)
	out[64] = c.Target
	out[65] = c.Bump
	return out
}

// Decode parses a canonical v1 message.
func Decode(raw []byte) (Commitment, error) {
	if len(raw) != EncodingV1Size {
		return Commitment{}, ErrMalformedEncoding
	}
	var c Commitment
	copy(c.Player[:], raw[0:32])
	c.Seed = uint128.FromBytes(raw[32:48])
	c.Slot = binary.LittleEndian.Uint64(raw[48:56])
	c.Amount = binary.LittleEndian.Uint64(raw[56:64])
	c.Target = raw[64]
	c.Bump = raw[65]
	return c, nil
}

// SeedBytes returns the seed as 16 little-endian bytes, the form used in
// bet address derivation.
func SeedBytes(seed uint128.Uint128) []byte {
	out := make([]byte, 16)
	seed.PutBytes(out)
	return out
}

// ParseSeed reads a decimal seed.
func ParseSeed(value string) (uint128.Uint128, error) {
	seed, err := uint128.FromString(value)
	if err != nil {
		return uint128.Zero, fmt.Errorf("parse seed: %w", err)
	}
	return seed, nil
}

// WinProbabilityBasisPoints returns (target-1)/100 expressed in basis points.
func (c Commitment) WinProbabilityBasisPoints() int {
	if c.Target <= 1 {
		return 0
	}
	if c.Target > MaxTarget+1 {
		return 10000
	}
	return (int(c.Target) - 1) * 100
}
