// Package simerr defines the typed error taxonomy shared by the batch
// and serverless compute services. Every public API call returns a plain Go error; callers
// that need to branch on the failure kind use Is / As against the
// exported Kind constants, in the spirit of jontk-slurm-client's
// structured SlurmError rather than sentinel string matching.
package simerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error variants the batch and serverless
// services can return.
type Kind string

const (
	KindInvalidArgument           Kind = "invalid_argument"
	KindNotEnoughResources        Kind = "not_enough_resources"
	KindJobTimeout                Kind = "job_timeout"
	KindJobKilled                 Kind = "job_killed"
	KindServiceIsDown             Kind = "service_is_down"
	KindFunctionNotRegistered     Kind = "function_not_registered"
	KindFunctionAlreadyRegistered Kind = "function_already_registered"
	KindInvocationNotReady        Kind = "invocation_not_ready"
	KindFunctionalityNotAvailable Kind = "functionality_not_available"
	KindNotAllowed                Kind = "not_allowed"
	KindCapacityExceeded          Kind = "capacity_exceeded"
	KindInvalidRequest            Kind = "invalid_request"
)

// Error is the concrete type returned for every classified failure.
// Job and Service carry the relevant names when applicable; Cause
// wraps an underlying error, if any.
type Error struct {
	Kind    Kind
	Job     string
	Service string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Job != "" {
		msg += fmt.Sprintf(" job=%s", e.Job)
	}
	if e.Service != "" {
		msg += fmt.Sprintf(" service=%s", e.Service)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same Kind, allowing
// errors.Is(err, &simerr.Error{Kind: simerr.KindJobTimeout}) checks
// without caring about the other fields.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Of reports the Kind of err if it is (or wraps) a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is classified under kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotEnoughResources(job, service string) error {
	return &Error{Kind: KindNotEnoughResources, Job: job, Service: service}
}

func JobTimeout(job string) error {
	return &Error{Kind: KindJobTimeout, Job: job}
}

func JobKilled(job string) error {
	return &Error{Kind: KindJobKilled, Job: job}
}

func ServiceIsDown(service string) error {
	return &Error{Kind: KindServiceIsDown, Service: service}
}

func FunctionNotRegistered(name string) error {
	return &Error{Kind: KindFunctionNotRegistered, Message: name}
}

func FunctionAlreadyRegistered(name, service string) error {
	return &Error{Kind: KindFunctionAlreadyRegistered, Message: name, Service: service}
}

func InvocationNotReady() error {
	return &Error{Kind: KindInvocationNotReady, Message: "invocation not yet complete"}
}

func FunctionalityNotAvailable(service, what string) error {
	return &Error{Kind: KindFunctionalityNotAvailable, Service: service, Message: what}
}

func NotAllowed(service, reason string) error {
	return &Error{Kind: KindNotAllowed, Service: service, Message: reason}
}

func CapacityExceeded(format string, args ...any) error {
	return &Error{Kind: KindCapacityExceeded, Message: fmt.Sprintf(format, args...)}
}

func InvalidRequest(format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and a cause to an existing error, matching the
// teacher's fmt.Errorf("...: %w", err) wrapping idiom but producing a
// classifiable *Error instead of an opaque wrapped string.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
