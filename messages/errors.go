package messages

import (
	"errors"
	"fmt"
)

// Code enumerates every terminal failure the protocol core can produce.
// None of these are retried internally; boundaries convert them into a
// signed error-response (bank side) or a user-visible abort (payer side).
type Code string

const (
	MalformedMessage        Code = "MalformedMessage"
	SignatureInvalid        Code = "SignatureInvalid"
	UnsupportedAlgorithm    Code = "UnsupportedAlgorithm"
	NoMatchingDecryptionKey Code = "NoMatchingDecryptionKey"
	AmountExceedsLimit      Code = "AmountExceedsLimit"
	RequestHashMismatch     Code = "RequestHashMismatch"
	AuthorityFetchFailed    Code = "AuthorityFetchFailed"
	AuthorityExpired        Code = "AuthorityExpired"
	UnknownErrorCode        Code = "UnknownErrorCode"
	NetworkTimeout          Code = "NetworkTimeout"
)

// Error is a protocol failure with its taxonomy code. It wraps an optional
// cause so call sites can keep using errors.Is/errors.As on the chain.
type Error struct {
	Code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Errf builds a protocol error with a formatted message.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy code to an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...), err: err}
}

// CodeOf extracts the taxonomy code from an error chain, or the empty code
// for errors that did not originate in the protocol core.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
