package domain

import "errors"

// Sentinel errors for the application. Handlers map these to HTTP status
// codes and wire-level error codes; the sync clients map them back.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("conflict")
	ErrPayloadInvalid = errors.New("invalid payload")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrTransient      = errors.New("transient failure")
	ErrInternal       = errors.New("internal server error")
)

// Wire-level error codes, stable across clients.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeConflict       ErrorCode = "CONFLICT"
	CodePayloadInvalid ErrorCode = "PAYLOAD_INVALID"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInternal       ErrorCode = "INTERNAL"
)

// CodeFor maps a sentinel error to its wire code.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrPayloadInvalid):
		return CodePayloadInvalid
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	}
	return CodeInternal
}

// ErrFor maps a wire code back to the matching sentinel error.
func ErrFor(code ErrorCode) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeConflict:
		return ErrConflict
	case CodePayloadInvalid:
		return ErrPayloadInvalid
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeForbidden:
		return ErrForbidden
	}
	return ErrInternal
}
