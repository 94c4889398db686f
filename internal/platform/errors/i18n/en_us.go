package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeVerificationMissingRecord     = "VERIFICATION_MISSING_RECORD"
	CodeVerificationWrongVerifier     = "VERIFICATION_WRONG_VERIFIER"
	CodeVerificationUnexpectedAccount = "VERIFICATION_UNEXPECTED_ACCOUNTS"
	CodeVerificationSignatureCount    = "VERIFICATION_SIGNATURE_COUNT"
	CodeVerificationNotVerifiable     = "VERIFICATION_NOT_VERIFIABLE"
	CodeVerificationPublicKeyMismatch = "VERIFICATION_PUBLIC_KEY_MISMATCH"
	CodeVerificationSignatureMismatch = "VERIFICATION_SIGNATURE_MISMATCH"
	CodeVerificationMessageMismatch   = "VERIFICATION_MESSAGE_MISMATCH"
	CodeVerificationNativeFailed      = "VERIFICATION_NATIVE_FAILED"
	CodeArithmeticOverflow            = "ARITHMETIC_OVERFLOW"
	CodeTransferFailed                = "TRANSFER_FAILED"
	CodeBetInvalidTarget              = "BET_INVALID_TARGET"
	CodeBetInvalidAmount              = "BET_INVALID_AMOUNT"
	CodeBetInvalidSeed                = "BET_INVALID_SEED"
	CodeBetNotFound                   = "BET_NOT_FOUND"
	CodeBetAlreadyExists              = "BET_ALREADY_EXISTS"
	CodeBetRefundTooEarly             = "BET_REFUND_TOO_EARLY"
	CodeLedgerInsufficientFunds       = "LEDGER_INSUFFICIENT_FUNDS"
	CodeLedgerSignerMismatch          = "LEDGER_SIGNER_MISMATCH"
	CodeLedgerFaucetDisabled          = "LEDGER_FAUCET_DISABLED"
	CodeLedgerVaultMissing            = "LEDGER_VAULT_MISSING"
	CodeLedgerVaultExists             = "LEDGER_VAULT_EXISTS"
	CodeInvalidAddress                = "INVALID_ADDRESS"
	CodeInvalidRequest                = "INVALID_REQUEST"
	CodeNotFound                      = "NOT_FOUND"
	CodeUnknown                       = "UNKNOWN"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Verification errors
		CodeVerificationMissingRecord:     "A signature verification record is required",
		CodeVerificationWrongVerifier:     "The verification record was not produced by the Ed25519 program",
		CodeVerificationUnexpectedAccount: "The verification record must not reference accounts",
		CodeVerificationSignatureCount:    "The verification record must contain exactly one signature",
		CodeVerificationNotVerifiable:     "The signature in the verification record cannot be checked on its own",
		CodeVerificationPublicKeyMismatch: "The bet was not signed by the house authority",
		CodeVerificationSignatureMismatch: "The signature does not match the verified record",
		CodeVerificationMessageMismatch:   "The signature does not cover this bet",
		CodeVerificationNativeFailed:      "The signature failed verification",

		// Arithmetic errors
		CodeArithmeticOverflow: "The payout cannot be represented",

		// Transfer errors
		CodeTransferFailed: "The payout transfer could not be completed",

		// Bet errors
		CodeBetInvalidTarget:  "Target must be between {{.Min}} and {{.Max}}",
		CodeBetInvalidAmount:  "Bet amount must be greater than zero",
		CodeBetInvalidSeed:    "Bet seed must be an unsigned 128-bit integer",
		CodeBetNotFound:       "Bet {{.Bet}} was not found",
		CodeBetAlreadyExists:  "A bet with this seed already exists",
		CodeBetRefundTooEarly: "Bet cannot be refunded before {{.RefundableAt}}",

		// Ledger errors
		CodeLedgerInsufficientFunds: "Account {{.Account}} has insufficient funds",
		CodeLedgerSignerMismatch:    "The escrow signer does not match the vault",
		CodeLedgerFaucetDisabled:    "Funding is disabled on this deployment",
		CodeLedgerVaultMissing:      "The house vault has not been initialized",
		CodeLedgerVaultExists:       "The house vault is already initialized",

		// Request errors
		CodeInvalidAddress: "{{.Field}} must be a base58 address",
		CodeInvalidRequest: "Invalid request: {{.Reason}}",

		// Storage errors
		CodeNotFound: "Resource not found",
		CodeUnknown:  "An unexpected error occurred",
	},
}
