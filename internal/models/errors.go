package models

import "errors"

// ErrorKind classifies failures so callers can decide scope and retry policy.
type ErrorKind string

const (
	KindConfig      ErrorKind = "ConfigError"
	KindValidation  ErrorKind = "ValidationError"
	KindAuth        ErrorKind = "AuthError"
	KindAuthTimeout ErrorKind = "AuthTimeout"
	KindTransport   ErrorKind = "TransportError"
	KindProtocol    ErrorKind = "ProtocolError"
	KindInternal    ErrorKind = "InternalError"
)

// Error is a classified error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error

	// Retryable marks transport failures that happened before the platform
	// committed to an upload session.
	Retryable bool
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with kind and op.
func E(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient wraps err as a retryable transport error.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err, Retryable: true}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when none is present.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a retryable transport error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
