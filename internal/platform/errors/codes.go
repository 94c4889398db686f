// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Verification errors
	CodeVerificationMissingRecord     Code = "VERIFICATION_MISSING_RECORD"
	CodeVerificationWrongVerifier     Code = "VERIFICATION_WRONG_VERIFIER"
	CodeVerificationUnexpectedAccount Code = "VERIFICATION_UNEXPECTED_ACCOUNTS"
	CodeVerificationSignatureCount    Code = "VERIFICATION_SIGNATURE_COUNT"
	CodeVerificationNotVerifiable     Code = "VERIFICATION_NOT_VERIFIABLE"
	CodeVerificationPublicKeyMismatch Code = "VERIFICATION_PUBLIC_KEY_MISMATCH"
	CodeVerificationSignatureMismatch Code = "VERIFICATION_SIGNATURE_MISMATCH"
	CodeVerificationMessageMismatch   Code = "VERIFICATION_MESSAGE_MISMATCH"
	CodeVerificationNativeFailed      Code = "VERIFICATION_NATIVE_FAILED"

	// Arithmetic errors
	CodeArithmeticOverflow Code = "ARITHMETIC_OVERFLOW"

	// Transfer errors
	CodeTransferFailed Code = "TRANSFER_FAILED"

	// Bet errors
	CodeBetInvalidTarget  Code = "BET_INVALID_TARGET"
	CodeBetInvalidAmount  Code = "BET_INVALID_AMOUNT"
	CodeBetInvalidSeed    Code = "BET_INVALID_SEED"
	CodeBetNotFound       Code = "BET_NOT_FOUND"
	CodeBetAlreadyExists  Code = "BET_ALREADY_EXISTS"
	CodeBetRefundTooEarly Code = "BET_REFUND_TOO_EARLY"

	// Ledger errors
	CodeLedgerInsufficientFunds Code = "LEDGER_INSUFFICIENT_FUNDS"
	CodeLedgerSignerMismatch    Code = "LEDGER_SIGNER_MISMATCH"
	CodeLedgerFaucetDisabled    Code = "LEDGER_FAUCET_DISABLED"
	CodeLedgerVaultMissing      Code = "LEDGER_VAULT_MISSING"
	CodeLedgerVaultExists       Code = "LEDGER_VAULT_EXISTS"

	// Request errors
	CodeInvalidAddress Code = "INVALID_ADDRESS"
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - malformed input
	case CodeVerificationMissingRecord,
		CodeVerificationWrongVerifier,
		CodeVerificationUnexpectedAccount,
		CodeVerificationSignatureCount,
		CodeVerificationNotVerifiable,
		CodeBetInvalidTarget,
		CodeBetInvalidAmount,
		CodeBetInvalidSeed,
		CodeInvalidAddress,
		CodeInvalidRequest:
		return codes.InvalidArgument

	// PermissionDenied - proof does not authorize this resolution
	case CodeVerificationPublicKeyMismatch,
		CodeVerificationSignatureMismatch,
		CodeVerificationMessageMismatch,
		CodeVerificationNativeFailed,
		CodeLedgerSignerMismatch,
		CodeLedgerFaucetDisabled:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow operation
	case CodeLedgerInsufficientFunds,
		CodeTransferFailed,
		CodeBetRefundTooEarly,
		CodeLedgerVaultMissing:
		return codes.FailedPrecondition

	// OutOfRange - arithmetic cannot represent the result
	case CodeArithmeticOverflow:
		return codes.OutOfRange

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeBetNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeBetAlreadyExists,
		CodeLedgerVaultExists:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
