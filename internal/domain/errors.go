package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies both per-row validation failures and operation errors.
type ErrorCode string

// Per-row codes. A row carrying any of these is rejected from import.
const (
	CodeInvalidDate      ErrorCode = "INVALID_DATE"
	CodeEmptyDescription ErrorCode = "EMPTY_DESCRIPTION"
	CodeAmbiguousAmount  ErrorCode = "AMBIGUOUS_AMOUNT"
	CodeMissingAmount    ErrorCode = "MISSING_AMOUNT"
	CodeUnrepairable     ErrorCode = "UNREPAIRABLE"
	CodeBalanceMismatch  ErrorCode = "BALANCE_MISMATCH"
	CodeDuplicateRow     ErrorCode = "DUPLICATE_ROW"
)

// Row warnings. They are reported alongside the row but do not reject it.
const (
	CodeUnreadableBalance ErrorCode = "UNREADABLE_BALANCE"
)

// Operation codes.
const (
	CodeInvalidCategory      ErrorCode = "INVALID_CATEGORY"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"
	CodeImportFailed         ErrorCode = "IMPORT_FAILED"
	CodePredictorUnavailable ErrorCode = "PREDICTOR_UNAVAILABLE"
)

// RowError explains why a statement row was rejected.
type RowError struct {
	Code   ErrorCode `json:"code"`
	Reason string    `json:"reason"`
}

func (e RowError) String() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Error is a coded operation error.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound builds a NOT_FOUND error for the given kind and id.
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
