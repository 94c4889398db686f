package errors

import (
	"errors"
	"maps"

	"github.com/louisbranch/fairroll/internal/platform/errors/i18n"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the error domain attached to gRPC error details.
const Domain = "fairroll.resolver"

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Template values for the user message
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error around a cause. The cause message is used when
// message is empty.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithMetadata returns a copy of e carrying extra template values.
func (e *Error) WithMetadata(metadata map[string]string) *Error {
	merged := make(map[string]string, len(e.Metadata)+len(metadata))
	maps.Copy(merged, e.Metadata)
	maps.Copy(merged, metadata)
	return &Error{Code: e.Code, Message: e.Message, Metadata: merged, Cause: e.Cause}
}

// ToGRPCStatus converts the error to a gRPC status with errdetails. The status
// message keeps the internal message; LocalizedMessage carries userMessage.
func (e *Error) ToGRPCStatus(locale string, userMessage string) error {
	st := status.New(e.Code.GRPCCode(), e.Error())
	detailed, err := st.WithDetails(
		&errdetails.ErrorInfo{
			Reason:   string(e.Code),
			Domain:   Domain,
			Metadata: e.Metadata,
		},
		&errdetails.LocalizedMessage{
			Locale:  locale,
			Message: userMessage,
		},
	)
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// HandleError converts domain errors to gRPC status for client responses,
// rendering the user-facing message for locale (en-US when empty).
func HandleError(err error, locale string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		catalog := i18n.GetCatalog(locale)
		return appErr.ToGRPCStatus(catalog.Locale(), catalog.Format(string(appErr.Code), appErr.Metadata))
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}

// GetCode extracts the error code, or CodeUnknown for non-domain errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// ReasonFromStatus returns the ErrorInfo reason carried by a gRPC error, or
// CodeUnknown.
func ReasonFromStatus(err error) Code {
	st, ok := status.FromError(err)
	if !ok {
		return CodeUnknown
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return Code(info.GetReason())
		}
	}
	return CodeUnknown
}
