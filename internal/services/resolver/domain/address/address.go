// Package address models 32-byte account addresses and the program-derived
// addresses used for vaults and bet records.
//
// Program-derived addresses are hashes that deliberately fall off the ed25519
// curve, so no private key can exist for them. Only the owning program can
// authorize movements out of such an address, by presenting the seeds and bump
// that re-derive it.
package address

import (
	"bytes"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	sha256 "github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// Size is the byte length of an address.
const Size = 32

const (
	// MaxSeeds caps the number of seeds in a derivation, bump included.
	MaxSeeds = 16
	// MaxSeedLen caps the byte length of a single seed.
	MaxSeedLen = 32
)

const pdaMarker = "ProgramDerivedAddress"

var (
	// ErrInvalidAddress indicates a textual address did not decode to 32 bytes.
	ErrInvalidAddress = errors.New("address must be 32 base58-encoded bytes")
	// ErrMaxSeedsExceeded indicates too many or too long derivation seeds.
	ErrMaxSeedsExceeded = errors.New("derivation seeds exceed limits")
	// ErrOnCurve indicates the derived hash is a valid curve point.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump indicates no bump in 0..255 produced an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump")
)

// Address is a 32-byte account identifier.
type Address [Size]byte

// Zero is the all-zero address.
var Zero Address

// Parse decodes a base58 address.
func Parse(value string) (Address, error) {
	raw, err := base58.Decode(value)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return FromBytes(raw)
}

// MustParse is Parse for package-level constants.
func MustParse(value string) Address {
	addr, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromBytes copies a 32-byte slice into an Address.
func FromBytes(raw []byte) (Address, error) {
	if len(raw) != Size {
		return Address{}, ErrInvalidAddress
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, a[:])
	return out
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether every byte is zero.
func (a Address) IsZero() bool {
	return a == Zero
}

// Equal reports byte equality.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// OnCurve reports whether the bytes decode to an ed25519 point.
func OnCurve(raw []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// CreateProgramAddress derives the address for seeds under programID. The
// bump, when used, must already be the last seed.
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrMaxSeedsExceeded
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return Address{}, ErrMaxSeedsExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out Address
	copy(out[:], h.Sum(nil))
	if OnCurve(out[:]) {
		return Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrMaxSeedsExceeded
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}
