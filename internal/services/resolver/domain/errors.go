package domain

import (
	"errors"
	"strconv"

	apperrors "github.com/louisbranch/fairroll/internal/platform/errors"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/engine"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/payout"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
)

// codeBySentinel maps domain failures to platform codes. Order matters:
// wrapping sentinels come before the ones they may wrap.
var codeBySentinel = []struct {
	err  error
	code apperrors.Code
}{
	{sigverify.ErrMissingVerificationRecord, apperrors.CodeVerificationMissingRecord},
	{sigverify.ErrWrongVerifier, apperrors.CodeVerificationWrongVerifier},
	{sigverify.ErrUnexpectedAccounts, apperrors.CodeVerificationUnexpectedAccount},
	{sigverify.ErrSignatureCountMismatch, apperrors.CodeVerificationSignatureCount},
	{sigverify.ErrNotVerifiable, apperrors.CodeVerificationNotVerifiable},
	{sigverify.ErrPublicKeyMismatch, apperrors.CodeVerificationPublicKeyMismatch},
	{sigverify.ErrSignatureBytesMismatch, apperrors.CodeVerificationSignatureMismatch},
	{sigverify.ErrMessageMismatch, apperrors.CodeVerificationMessageMismatch},
	{sigverify.ErrNativeVerificationFailed, apperrors.CodeVerificationNativeFailed},
	{sigverify.ErrMalformedPayload, apperrors.CodeVerificationNativeFailed},
	{payout.ErrOverflow, apperrors.CodeArithmeticOverflow},
	{engine.ErrTransferFailed, apperrors.CodeTransferFailed},
	{storage.ErrInsufficientFunds, apperrors.CodeLedgerInsufficientFunds},
	{storage.ErrSignerMismatch, apperrors.CodeLedgerSignerMismatch},
	{storage.ErrAmountOutOfRange, apperrors.CodeArithmeticOverflow},
	{bet.ErrInvalidTarget, apperrors.CodeBetInvalidTarget},
	{bet.ErrZeroAmount, apperrors.CodeBetInvalidAmount},
	{bet.ErrMissingPlayer, apperrors.CodeInvalidAddress},
	{address.ErrInvalidAddress, apperrors.CodeInvalidAddress},
}

// toAppError converts a domain or storage failure into a coded platform
// error. metadata fills the user message template.
func toAppError(err error, metadata map[string]string) error {
	if err == nil {
		return nil
	}
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		if len(metadata) == 0 {
			return coded
		}
		return coded.WithMetadata(metadata)
	}
	code := apperrors.CodeUnknown
	for _, candidate := range codeBySentinel {
		if errors.Is(err, candidate.err) {
			code = candidate.code
			break
		}
	}
	appErr := apperrors.Wrap(code, "", err)
	if code == apperrors.CodeBetInvalidTarget {
		metadata = withTargetRange(metadata)
	}
	if len(metadata) > 0 {
		appErr = appErr.WithMetadata(metadata)
	}
	return appErr
}

func withTargetRange(metadata map[string]string) map[string]string {
	out := map[string]string{
		"Min": strconv.Itoa(bet.MinTarget),
		"Max": strconv.Itoa(bet.MaxTarget),
	}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
