package ledger

import (
	"errors"
	"fmt"
)

// Code identifies a failure class. Ledger-reported codes are deterministic:
// retrying the same operation yields the same code. Timeout, transport, and
// rate-limit codes are environment-reported by the node and client layers;
// the ledger itself never returns them.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInvalidPrice        Code = "INVALID_PRICE"
	CodeInsufficientPayment Code = "INSUFFICIENT_PAYMENT"
	CodeInactiveAsset       Code = "INACTIVE_ASSET"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeDuplicateContent    Code = "DUPLICATE_CONTENT"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeOverflow            Code = "OVERFLOW"

	CodeTimeout          Code = "TIMEOUT"
	CodeTransportFailure Code = "TRANSPORT_FAILURE"
	CodeRateLimited      Code = "RATE_LIMITED"

	CodeUnknown Code = "UNKNOWN"
)

// Retryable reports whether blind retry can ever change the outcome. Only
// environment-reported codes qualify, and mutating operations must still
// reuse their idempotency key when resubmitting.
func (c Code) Retryable() bool {
	switch c {
	case CodeTimeout, CodeTransportFailure, CodeRateLimited:
		return true
	}
	return false
}

// Error is a classified failure. Two Errors match under errors.Is when
// their codes match, so callers compare against the sentinels below while
// sites attach specific messages via Errorf.
type Error struct {
	code Code
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Code returns the failure class.
func (e *Error) Code() Code { return e.code }

// Is matches by class, not by message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// Errorf builds a classified error with a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound            = &Error{code: CodeNotFound, msg: "asset not found"}
	ErrUnauthorized        = &Error{code: CodeUnauthorized, msg: "caller is not the asset creator"}
	ErrInvalidPrice        = &Error{code: CodeInvalidPrice, msg: "query price must be greater than zero"}
	ErrInsufficientPayment = &Error{code: CodeInsufficientPayment, msg: "payment below query price"}
	ErrInactiveAsset       = &Error{code: CodeInactiveAsset, msg: "asset is not active"}
	ErrInsufficientFunds   = &Error{code: CodeInsufficientFunds, msg: "insufficient balance"}
	ErrDuplicateContent    = &Error{code: CodeDuplicateContent, msg: "content reference already registered"}
	ErrInvalidArgument     = &Error{code: CodeInvalidArgument, msg: "invalid argument"}
	ErrOverflow            = &Error{code: CodeOverflow, msg: "amount would overflow"}

	ErrTimeout          = &Error{code: CodeTimeout, msg: "confirmation wait timed out"}
	ErrTransportFailure = &Error{code: CodeTransportFailure, msg: "submission never reached the ledger"}
	ErrRateLimited      = &Error{code: CodeRateLimited, msg: "submission intake rate exceeded"}
)

// CodeOf extracts the failure class from anywhere in a wrap chain.
// Unclassified errors report CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeUnknown
}

// FromCode rebuilds a classified error from a stored code and message, for
// confirmation records read back from the node.
func FromCode(code Code, msg string) error {
	if code == "" {
		code = CodeUnknown
	}
	if msg == "" {
		return &Error{code: code, msg: string(code)}
	}
	return &Error{code: code, msg: msg}
}
