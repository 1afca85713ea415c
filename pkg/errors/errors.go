package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. The consume loop and retry policy key
// off the kind, never off message text.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindDuplicateKey   Kind = "DUPLICATE_KEY"
	KindUpstreamSignal Kind = "UPSTREAM_SIGNAL"
	KindInvalidConfig  Kind = "INVALID_CONFIG"
	KindTransport      Kind = "TRANSPORT"
	KindInternal       Kind = "INTERNAL"
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

// Error is the structured failure surface used everywhere in the pipeline.
// Provider is set for upstream signal failures, StatusCode for HTTP-backed
// providers.
type Error struct {
	Kind       Kind
	Message    string
	Provider   string
	StatusCode int
	Cause      error
	retryable  *bool
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func DuplicateKey(message string) *Error {
	return &Error{Kind: KindDuplicateKey, Message: message}
}

func UpstreamSignal(provider, message string) *Error {
	return &Error{Kind: KindUpstreamSignal, Provider: provider, Message: message}
}

func InvalidConfig(message string) *Error {
	return &Error{Kind: KindInvalidConfig, Message: message}
}

func Transport(message string) *Error {
	return &Error{Kind: KindTransport, Message: message}
}

func (e *Error) Error() string {
	switch {
	case e.Provider != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s (provider %s, caused by: %v)", e.Kind, e.Message, e.Provider, e.Cause)
	case e.Provider != "":
		return fmt.Sprintf("%s: %s (provider %s)", e.Kind, e.Message, e.Provider)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure is worth re-attempting. Validation
// and config rejections are deterministic and never retried.
func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	switch e.Kind {
	case KindValidation, KindInvalidConfig, KindDuplicateKey:
		return false
	}
	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return true
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithStatusCode(code int) *Error {
	err := *e
	err.StatusCode = code
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf extracts the kind from any error in the chain, KindInternal when
// the error does not carry one.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

func IsValidation(err error) bool {
	return IsKind(err, KindValidation)
}

func IsDuplicateKey(err error) bool {
	return IsKind(err, KindDuplicateKey)
}

func IsUpstreamSignal(err error) bool {
	return IsKind(err, KindUpstreamSignal)
}

func IsInvalidConfig(err error) bool {
	return IsKind(err, KindInvalidConfig)
}

func IsTransport(err error) bool {
	return IsKind(err, KindTransport)
}
