package sigverify

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
)

// ErrVerification is the parent of every Verify failure.
var ErrVerification = errors.New("signature verification failed")

// Structural failures: the record is absent or malformed.
var (
	ErrMissingVerificationRecord = fmt.Errorf("%w: no verification record at position 0", ErrVerification)
	ErrWrongVerifier             = fmt.Errorf("%w: record is not addressed to the ed25519 program", ErrVerification)
	ErrUnexpectedAccounts        = fmt.Errorf("%w: record must not reference accounts", ErrVerification)
	ErrSignatureCountMismatch    = fmt.Errorf("%w: record must carry exactly one signature", ErrVerification)
	ErrNotVerifiable             = fmt.Errorf("%w: signature entry is not self-contained", ErrVerification)
)

// Content failures: the record is well formed but proves something else.
var (
	ErrPublicKeyMismatch      = fmt.Errorf("%w: public key is not the authority", ErrVerification)
	ErrSignatureBytesMismatch = fmt.Errorf("%w: signature differs from the verified one", ErrVerification)
	ErrMessageMismatch        = fmt.Errorf("%w: signed message is not the bet commitment", ErrVerification)
)

// RecordIndex is the fixed position of the verification record.
const RecordIndex = 0

// Verify checks that records[RecordIndex] proves authority signed
// expectedMessage producing signature. Structural checks run before content
// checks; the first failure is returned.
func Verify(authority address.Address, expectedMessage []byte, records []Instruction, signature []byte) error {
	if len(records) <= RecordIndex {
		return ErrMissingVerificationRecord
	}
	record := records[RecordIndex]

	if record.ProgramID != Ed25519ProgramID {
		return ErrWrongVerifier
	}
	if len(record.Accounts) != 0 {
		return ErrUnexpectedAccounts
	}
	entries, err := ParseSignatures(record.Data)
	if err != nil {
		return fmt.Errorf("%w (%v)", ErrSignatureCountMismatch, err)
	}
	if len(entries) != 1 {
		return ErrSignatureCountMismatch
	}
	entry := entries[0]
	if !entry.Verifiable {
		return ErrNotVerifiable
	}

	if !equal(entry.PublicKey, authority[:]) {
		return ErrPublicKeyMismatch
	}
	if !equal(entry.Signature, signature) {
		return ErrSignatureBytesMismatch
	}
	if !equal(entry.Message, expectedMessage) {
		return ErrMessageMismatch
	}
	return nil
}

// IsStructural reports whether err is a record-shape failure.
func IsStructural(err error) bool {
	for _, target := range []error{
		ErrMissingVerificationRecord,
		ErrWrongVerifier,
		ErrUnexpectedAccounts,
		ErrSignatureCountMismatch,
		ErrNotVerifiable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func equal(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
