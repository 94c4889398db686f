package bet

import (
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"lukechampine.com/uint128"
)

const (
	vaultSeedPrefix = "vault"
	betSeedPrefix   = "bet"
)

// VaultSeeds returns the derivation seeds of house's vault, without bump.
func VaultSeeds(house address.Address) [][]byte {
	return [][]byte{[]byte(vaultSeedPrefix), house.Bytes()}
}

// AddressSeeds returns the derivation seeds of a bet held by vault, without
// bump.
func AddressSeeds(vault address.Address, seed uint128.Uint128) [][]byte {
	return [][]byte{[]byte(betSeedPrefix), vault.Bytes(), SeedBytes(seed)}
}

// DeriveVault finds house's vault address and bump under programID.
func DeriveVault(house, programID address.Address) (address.Address, uint8, error) {
	return address.FindProgramAddress(VaultSeeds(house), programID)
}

// DeriveAddress finds the address and bump of the bet identified by vault and
// seed under programID.
func DeriveAddress(vault address.Address, seed uint128.Uint128, programID address.Address) (address.Address, uint8, error) {
	return address.FindProgramAddress(AddressSeeds(vault, seed), programID)
}

// WithBump appends bump to seeds as the final one-byte seed.
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, len(seeds), len(seeds)+1)
	copy(out, seeds)
	return append(out, []byte{bump})
}
