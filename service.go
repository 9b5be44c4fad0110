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

package tower

import "context"

// Status reports the outcome of a non-blocking readiness check.
type Status int

const (
	// StatusPending indicates the service cannot presently accept a Call;
	// the caller must poll again later.
	StatusPending Status = iota
	// StatusReady indicates the service has reserved capacity for exactly
	// one subsequent Call.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Request is an opaque request value. The framework is protocol-agnostic:
// concrete middleware and services agree out of band on the dynamic type
// they exchange.
type Request = any

// Response is an opaque response value, symmetric with Request.
type Response = any

// Service models a function from Request to an eventually-available
// Response, gated by an explicit readiness step.
//
// PollReady performs a non-blocking check of whether the service can accept
// one Call without blocking or failing for capacity reasons, and if so
// reserves that capacity. It must not perform blocking I/O. A StatusReady
// result is a one-time reservation: the next Call consumes it, and
// PollReady must be invoked again before any further Call. An error
// returned from PollReady is terminal: the service is poisoned and every
// later PollReady/Call must fail with an error of the same class.
//
// Call consumes the reservation established by the most recent StatusReady
// result and dispatches the request. Calling without a prior StatusReady is
// a caller bug; implementations may panic or return an error, and callers
// must not rely on either behavior.
//
// Within a single Service instance, the order calls to Call are issued is
// the order the service observes requests, but nothing constrains the order
// in which their responses resolve.
type Service interface {
	PollReady(ctx context.Context) (Status, error)
	Call(ctx context.Context, req Request) (Response, error)
}

// ServiceFunc adapts a function with the Call signature into a Service that
// is always ready. It is useful for tests and for trivial leaf services
// (echo services, constant responders) that never need to shed load.
type ServiceFunc func(ctx context.Context, req Request) (Response, error)

// PollReady always reports the service ready.
func (ServiceFunc) PollReady(context.Context) (Status, error) { return StatusReady, nil }

// Call invokes the wrapped function.
func (f ServiceFunc) Call(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }
