// Copyright (c) 2024 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package towererrors defines the uniform error taxonomy shared by every
// layer and component in this module: a small Code enum plus a boxed error
// type that preserves the triggering cause.
package towererrors

import "fmt"

// Code classifies the kind of failure a Service, Layer, or internal
// component reported.
type Code int

const (
	// CodeUnknown is the zero value and is never produced by this package's
	// constructors; it exists so a zero Code is visibly invalid.
	CodeUnknown Code = iota
	// CodeInner means a wrapped service reported an error; it is
	// propagated verbatim.
	CodeInner
	// CodeRejected means a Filter middleware's predicate denied the
	// request.
	CodeRejected
	// CodeElapsed means a deadline expired before the response arrived.
	CodeElapsed
	// CodeOverloaded means a LoadShed middleware dropped the request
	// because the inner service was not ready at the last poll.
	CodeOverloaded
	// CodeClosed means the upstream (buffered worker, cancellation pair)
	// went away.
	CodeClosed
	// CodeFailed means a specific replica in a keyed set failed; see
	// KeyError for the carried key.
	CodeFailed
	// CodeExhausted means a retry budget was depleted.
	CodeExhausted
	// CodeDiscover means a discovery stream itself errored.
	CodeDiscover
)

func (c Code) String() string {
	switch c {
	case CodeInner:
		return "inner"
	case CodeRejected:
		return "rejected"
	case CodeElapsed:
		return "elapsed"
	case CodeOverloaded:
		return "overloaded"
	case CodeClosed:
		return "closed"
	case CodeFailed:
		return "failed"
	case CodeExhausted:
		return "exhausted"
	case CodeDiscover:
		return "discover"
	default:
		return "unknown"
	}
}

// Error is the boxed error type produced by this module. It always carries
// a Code and, except at the root of a chain, a Cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause so errors.Is/errors.As can walk the chain,
// matching the propagation policy that inner errors bubble up unchanged in
// meaning even when wrapped for context.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with the given code, message, and optional cause.
func New(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Inner wraps cause as a CodeInner error, used when propagating a wrapped
// service's error through a middleware layer.
func Inner(cause error) *Error {
	return New(CodeInner, cause, "inner service error")
}

// Rejected reports a Filter predicate's denial.
func Rejected(cause error) *Error {
	return New(CodeRejected, cause, "request rejected by filter")
}

// Elapsed reports a Timeout layer's deadline expiry.
func Elapsed() *Error {
	return New(CodeElapsed, nil, "deadline elapsed")
}

// Overloaded reports a LoadShed layer dropping a request.
func Overloaded() *Error {
	return New(CodeOverloaded, nil, "service overloaded, shedding load")
}

// Closed reports an upstream (buffered worker, cancellation pair) going
// away, optionally wrapping the cause that closed it.
func Closed(cause error) *Error {
	return New(CodeClosed, cause, "upstream closed")
}

// Exhausted reports a Retry layer's budget depletion.
func Exhausted(cause error) *Error {
	return New(CodeExhausted, cause, "retry budget exhausted")
}

// Discover reports a discovery stream failure, fatal to whatever consumes
// it (a ready-cache or balancer).
func Discover(cause error) *Error {
	return New(CodeDiscover, cause, "discovery stream failed")
}

// KeyError is a Failed(K, e) error for a specific replica in a keyed set.
// Because a Go error value cannot itself be a generic type, KeyError
// exposes the key as an untyped accessor; call sites that know the key
// type recover it with a type assertion.
type KeyError interface {
	error
	Key() any
	Cause() error
}

type keyError struct {
	key   any
	cause error
}

// NewKeyError constructs a CodeFailed KeyError for the given key and cause.
func NewKeyError(key any, cause error) KeyError {
	return &keyError{key: key, cause: cause}
}

func (e *keyError) Key() any { return e.key }

func (e *keyError) Cause() error { return e.cause }

func (e *keyError) Error() string {
	return fmt.Sprintf("%s: key %v: %s", CodeFailed, e.key, e.cause)
}

func (e *keyError) Unwrap() error { return e.cause }

// CodeOf returns the Code of err, or CodeUnknown if err is nil or was not
// produced by this package.
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if te, ok := err.(*Error); ok {
		return te.Code
	}
	if _, ok := err.(KeyError); ok {
		return CodeFailed
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
