package sigverify

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// ErrNativeVerificationFailed indicates the native facility rejected a record.
var ErrNativeVerificationFailed = errors.New("native ed25519 verification failed")

// ExecuteNative runs the native facility over every record addressed to it,
// the way the host does before handing control to resolution. Offsets that
// name another record index are resolved against records.
func ExecuteNative(records []Instruction) error {
	for i, ix := range records {
		if ix.ProgramID != Ed25519ProgramID {
			continue
		}
		if err := executeRecord(records, ix.Data); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrNativeVerificationFailed, i, err)
		}
	}
	return nil
}

func executeRecord(records []Instruction, data []byte) error {
	if len(data) < headerSize {
		return ErrMalformedPayload
	}
	count := int(data[0])
	if count == 0 && len(data) > headerSize {
		return fmt.Errorf("%w: no signatures but trailing data", ErrMalformedPayload)
	}
	if len(data) < headerSize+count*offsetsSize {
		return fmt.Errorf("%w: truncated offsets", ErrMalformedPayload)
	}

	for i := 0; i < count; i++ {
		offsets := readOffsets(data[headerSize+i*offsetsSize:])

		sig, err := resolveData(records, data, offsets.SignatureInstructionIndex, offsets.SignatureOffset, SignatureSize)
		if err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		pub, err := resolveData(records, data, offsets.PublicKeyInstructionIndex, offsets.PublicKeyOffset, PublicKeySize)
		if err != nil {
			return fmt.Errorf("public key %d: %w", i, err)
		}
		msg, err := resolveData(records, data, offsets.MessageInstructionIndex, offsets.MessageDataOffset, int(offsets.MessageDataSize))
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
			return fmt.Errorf("signature %d does not verify", i)
		}
	}
	return nil
}

func resolveData(records []Instruction, own []byte, index, offset uint16, size int) ([]byte, error) {
	source := own
	if index != CurrentRecord {
		if int(index) >= len(records) {
			return nil, fmt.Errorf("%w: record index %d out of range", ErrMalformedPayload, index)
		}
		source = records[index].Data
	}
	return slice(source, offset, size)
}
