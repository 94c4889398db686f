// Package random generates the 128-bit seeds that make bet addresses unique.
package random

import (
	crand "crypto/rand"
	"fmt"
	"io"

	"lukechampine.com/uint128"
)

// NewSeed draws a seed from crypto/rand.
func NewSeed() (uint128.Uint128, error) {
	return NewSeedFrom(crand.Reader)
}

// NewSeedFrom reads 16 little-endian bytes from r.
func NewSeedFrom(r io.Reader) (uint128.Uint128, error) {
	if r == nil {
		r = crand.Reader
	}
	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return uint128.Zero, fmt.Errorf("read random seed: %w", err)
	}
	return uint128.FromBytes(b[:]), nil
}
