package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to the transport layer. Codes are part of the
// external contract; renaming one is a breaking change.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeAuth           = "AUTH_ERROR"
	CodeAuthz          = "AUTHZ_ERROR"
	CodeLedger         = "LEDGER_ERROR"
	CodeDB             = "DB_ERROR"
	CodeIndexingDelay  = "INDEXING_DELAY"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)

// Error is the single error type crossing component boundaries. Lower layers
// wrap their raw failures into one of these; nothing untyped escapes upward.
type Error struct {
	Code    string
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Public reports whether the message is safe to return to callers verbatim.
// Unclassified 5xx messages are replaced by the transport with a generic one.
func (e *Error) Public() bool {
	switch e.Code {
	case CodeValidation, CodeNotFound, CodeAuth, CodeAuthz, CodeIndexingDelay, CodeNotImplemented:
		return true
	}
	return false
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: msg}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
	}
}

func Unauthenticated(msg string) *Error {
	if msg == "" {
		msg = "authentication failed"
	}
	return &Error{Code: CodeAuth, Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "insufficient permissions"
	}
	return &Error{Code: CodeAuthz, Status: http.StatusForbidden, Message: msg}
}

func Ledger(msg string, cause error) *Error {
	return &Error{Code: CodeLedger, Status: http.StatusInternalServerError, Message: msg, Cause: cause}
}

// LedgerNotFound keeps the LEDGER_ERROR code but maps to 404: the ledger itself
// rejected the contract id, which is indistinguishable to the caller from a
// missing entity.
func LedgerNotFound(contractID string) *Error {
	return &Error{
		Code:    CodeLedger,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("contract %s not known to the ledger", contractID),
	}
}

func LedgerUnauthorized(msg string) *Error {
	return &Error{Code: CodeLedger, Status: http.StatusForbidden, Message: msg}
}

func DB(msg string, cause error) *Error {
	return &Error{Code: CodeDB, Status: http.StatusInternalServerError, Message: msg, Cause: cause}
}

func IndexingDelay(msg string) *Error {
	return &Error{Code: CodeIndexingDelay, Status: http.StatusInternalServerError, Message: msg}
}

func NotImplemented(msg string) *Error {
	return &Error{Code: CodeNotImplemented, Status: http.StatusNotImplemented, Message: msg}
}

// AsError extracts a *Error from an arbitrary error chain, wrapping unknown
// failures as an internal ledger-layer error so the taxonomy stays closed.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{
		Code:    CodeLedger,
		Status:  http.StatusInternalServerError,
		Message: "internal error",
		Cause:   err,
	}
}
