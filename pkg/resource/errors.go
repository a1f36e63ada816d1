package resource

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a target or a configuration failed.
type ErrorKind string

// Error kinds. Only ErrKindConfiguration is fatal to a scan.
const (
	ErrKindConfiguration     ErrorKind = "configuration"
	ErrKindAuth              ErrorKind = "auth"
	ErrKindRegionUnavailable ErrorKind = "region_unavailable"
	ErrKindThrottled         ErrorKind = "throttled"
	ErrKindMalformedResponse ErrorKind = "malformed_response"
	ErrKindTimeout           ErrorKind = "timeout"
	ErrKindInternal          ErrorKind = "internal"
)

// Sentinels for errors.Is checks against any *Error of the same kind.
var (
	ErrConfiguration     error = kindError(ErrKindConfiguration)
	ErrAuth              error = kindError(ErrKindAuth)
	ErrRegionUnavailable error = kindError(ErrKindRegionUnavailable)
	ErrThrottled         error = kindError(ErrKindThrottled)
	ErrMalformedResponse error = kindError(ErrKindMalformedResponse)
	ErrTimeout           error = kindError(ErrKindTimeout)
	ErrInternal          error = kindError(ErrKindInternal)
)

// sentinelKinds is the order KindOf checks wrapped sentinels in.
var sentinelKinds = []ErrorKind{
	ErrKindConfiguration,
	ErrKindAuth,
	ErrKindRegionUnavailable,
	ErrKindThrottled,
	ErrKindMalformedResponse,
	ErrKindTimeout,
	ErrKindInternal,
}

type kindError ErrorKind

func (k kindError) Error() string {
	return string(k)
}

// Error is a classified failure, optionally bound to a target.
type Error struct {
	Kind   ErrorKind
	Target Target
	Op     string
	Err    error
}

// NewError builds a classified error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configurationf builds a configuration error from a format string.
func Configurationf(format string, args ...any) *Error {
	return &Error{Kind: ErrKindConfiguration, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Message()
	if e.Target != (Target{}) {
		return e.Target.String() + ": " + msg
	}
	return msg
}

// Message renders the error without the target prefix.
func (e *Error) Message() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && ErrorKind(k) == e.Kind
}

// WithTarget returns a copy bound to t.
func (e *Error) WithTarget(t Target) *Error {
	c := *e
	c.Target = t
	return &c
}

// KindOf extracts the error kind from an *Error or a wrapped sentinel.
// Unclassified errors are internal, except a bare context deadline which
// is a timeout.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range sentinelKinds {
		if errors.Is(err, kindError(k)) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindInternal
}

// AsError converts any error into an *Error, keeping an existing classification.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindOf(err), Err: err}
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
