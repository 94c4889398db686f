// Package sigverify checks that a bet resolution carries proof, produced by the
// native Ed25519 verification facility, that the authority signed the exact
// bet commitment.
//
// Proof arrives as an ordered list of verification records (instructions
// addressed to the Ed25519 program). The host facility verifies every record
// cryptographically before resolution runs; Verify then pins the record at
// position 0 to the authority key, the supplied signature and the expected
// message.
package sigverify

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
)

// Ed25519ProgramID identifies the native signature verification facility.
var Ed25519ProgramID = address.MustParse("Ed25519SigVerify111111111111111111111111111")

const (
	// PublicKeySize is the byte length of an Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the byte length of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	headerSize  = 2
	offsetsSize = 14

	// CurrentRecord marks offsets that point into the record's own data.
	CurrentRecord = math.MaxUint16
)

// ErrMalformedPayload indicates record data that does not follow the
// Ed25519 program layout.
var ErrMalformedPayload = errors.New("malformed ed25519 record payload")

// AccountMeta is an account reference attached to a record.
type AccountMeta struct {
	Address    address.Address
	IsSigner   bool
	IsWritable bool
}

// Instruction is one verification record.
type Instruction struct {
	ProgramID address.Address
	Accounts  []AccountMeta
	Data      []byte
}

// SignatureOffsets locates one signature's parts inside record data.
type SignatureOffsets struct {
	SignatureOffset           uint16
	SignatureInstructionIndex uint16
	PublicKeyOffset           uint16
	PublicKeyInstructionIndex uint16
	MessageDataOffset         uint16
	MessageDataSize           uint16
	MessageInstructionIndex   uint16
}

// SelfContained reports whether every part lives in the same record.
func (o SignatureOffsets) SelfContained() bool {
	return o.SignatureInstructionIndex == CurrentRecord &&
		o.PublicKeyInstructionIndex == CurrentRecord &&
		o.MessageInstructionIndex == CurrentRecord
}

// SignatureEntry is one parsed signature. PublicKey, Signature and Message
// are only populated when Verifiable is true.
type SignatureEntry struct {
	Verifiable bool
	Offsets    SignatureOffsets
	PublicKey  []byte
	Signature  []byte
	Message    []byte
}

// ParseSignatures decodes the signature entries in record data.
func ParseSignatures(data []byte) ([]SignatureEntry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedPayload)
	}
	count := int(data[0])
	if len(data) < headerSize+count*offsetsSize {
		return nil, fmt.Errorf("%w: truncated offsets", ErrMalformedPayload)
	}

	entries := make([]SignatureEntry, 0, count)
	for i := 0; i < count; i++ {
		offsets := readOffsets(data[headerSize+i*offsetsSize:])
		entry := SignatureEntry{
			Verifiable: offsets.SelfContained(),
			Offsets:    offsets,
		}
		if entry.Verifiable {
			var err error
			if entry.PublicKey, err = slice(data, offsets.PublicKeyOffset, PublicKeySize); err != nil {
				return nil, fmt.Errorf("public key %d: %w", i, err)
			}
			if entry.Signature, err = slice(data, offsets.SignatureOffset, SignatureSize); err != nil {
				return nil, fmt.Errorf("signature %d: %w", i, err)
			}
			if entry.Message, err = slice(data, offsets.MessageDataOffset, int(offsets.MessageDataSize)); err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BuildInstruction signs message with key and lays out a single-signature
// record the way client libraries do: public key, signature, then message.
func BuildInstruction(key ed25519.PrivateKey, message []byte) (Instruction, error) {
	if len(key) != ed25519.PrivateKeySize {
		return Instruction{}, errors.New("ed25519 private key is required")
	}
	pub := key.Public().(ed25519.PublicKey)
	return BuildSignedInstruction(pub, ed25519.Sign(key, message), message)
}

// BuildSignedInstruction lays out a record for an existing signature.
func BuildSignedInstruction(pub, signature, message []byte) (Instruction, error) {
	if len(pub) != PublicKeySize {
		return Instruction{}, fmt.Errorf("public key must be %d bytes", PublicKeySize)
	}
	if len(signature) != SignatureSize {
		return Instruction{}, fmt.Errorf("signature must be %d bytes", SignatureSize)
	}
	publicKeyOffset := headerSize + offsetsSize
	signatureOffset := publicKeyOffset + PublicKeySize
	messageOffset := signatureOffset + SignatureSize
	if len(message) > math.MaxUint16-messageOffset {
		return Instruction{}, errors.New("message is too large")
	}

	data := make([]byte, messageOffset+len(message))
	data[0] = 1
	writeOffsets(data[headerSize:], SignatureOffsets{
		SignatureOffset:           uint16(signatureOffset),
		SignatureInstructionIndex: CurrentRecord,
		PublicKeyOffset:           uint16(publicKeyOffset),
		PublicKeyInstructionIndex: CurrentRecord,
		MessageDataOffset:         uint16(messageOffset),
		MessageDataSize:           uint16(len(message)),
		MessageInstructionIndex:   CurrentRecord,
	})
	copy(data[publicKeyOffset:], pub)
	copy(data[signatureOffset:], signature)
	copy(data[messageOffset:], message)

	return Instruction{ProgramID: Ed25519ProgramID, Data: data}, nil
}

// SignatureFromInstruction returns the signature bytes of the first entry,
// which callers pass alongside the record when resolving.
func SignatureFromInstruction(ix Instruction) ([]byte, error) {
	entries, err := ParseSignatures(ix.Data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || !entries[0].Verifiable {
		return nil, fmt.Errorf("%w: no self-contained signature", ErrMalformedPayload)
	}
	return entries[0].Signature, nil
}

func readOffsets(b []byte) SignatureOffsets {
	return SignatureOffsets{
		SignatureOffset:           binary.LittleEndian.Uint16(b[0:2]),
		SignatureInstructionIndex: binary.LittleEndian.Uint16(b[2:4]),
		PublicKeyOffset:           binary.LittleEndian.Uint16(b[4:6]),
		PublicKeyInstructionIndex: binary.LittleEndian.Uint16(b[6:8]),
		MessageDataOffset:         binary.LittleEndian.Uint16(b[8:10]),
		MessageDataSize:           binary.LittleEndian.Uint16(b[10:12]),
		MessageInstructionIndex:   binary.LittleEndian.Uint16(b[12:14]),
	}
}

func writeOffsets(b []byte, o SignatureOffsets) {
	binary.LittleEndian.PutUint16(b[0:2], o.SignatureOffset)
	binary.LittleEndian.PutUint16(b[2:4], o.SignatureInstructionIndex)
	binary.LittleEndian.PutUint16(b[4:6], o.PublicKeyOffset)
	binary.LittleEndian.PutUint16(b[6:8], o.PublicKeyInstructionIndex)
	binary.LittleEndian.PutUint16(b[8:10], o.MessageDataOffset)
	binary.LittleEndian.PutUint16(b[10:12], o.MessageDataSize)
	binary.LittleEndian.PutUint16(b[12:14], o.MessageInstructionIndex)
}

func slice(data []byte, offset uint16, size int) ([]byte, error) {
	start := int(offset)
	end := start + size
	if end > len(data) {
		return nil, fmt.Errorf("%w: range %d..%d exceeds %d bytes", ErrMalformedPayload, start, end, len(data))
	}
	out := make([]byte, size)
	copy(out, data[start:end])
	return out, nil
}
