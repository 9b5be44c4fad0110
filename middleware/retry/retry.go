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

// Package retry re-dispatches a failed Call and consults a Policy to
// decide whether to try again with a possibly-mutated request. Retries are
// counted after the initial attempt, and the default Budget policy paces
// them with internal/backoff.DefaultExponential; callers with their own
// retry semantics supply their own Policy.
package retry

import (
	"context"
	"time"

	"github.com/gotower/tower"
	"github.com/gotower/tower/internal/backoff"
	"github.com/gotower/tower/internal/clock"
	"github.com/gotower/tower/towererrors"
)

// Decision is what a Policy returns after observing one attempt's outcome.
type Decision struct {
	// Retry, if true, causes the layer to attempt Req again after waiting
	// Backoff. If false, Err (possibly rewritten by the policy, e.g. into
	// a user-visible "tried N times" error) is returned to the caller.
	Retry bool
	// Req is the request to use for the next attempt; policies that add a
	// retry-counter header or similar must return the mutated request
	// here, not mutate the original in place.
	Req tower.Request
	// Err overrides the error surfaced to the caller when Retry is false.
	// If nil, the attempt's own error (or Exhausted, once budget runs out)
	// is used.
	Err error
}

// Policy decides, after each failed attempt, whether to retry. attempt is
// zero-based: the call that just failed was the (attempt+1)-th. Policies
// must be safe to call repeatedly for the same logical request; the layer
// constructs one Policy instance per Call via New.
type Policy interface {
	// Decide is awaited cooperatively: an implementation that needs to
	// pace retries does so by blocking here (respecting ctx), not by
	// returning a duration for the caller to sleep separately.
	Decide(ctx context.Context, req tower.Request, rsp tower.Response, err error, attempt int) Decision
}

// PolicyFactory constructs a fresh Policy for each top-level Call, so
// per-call state (like a jittered backoff function's random source)
// does not leak across unrelated requests sharing one Layer.
type PolicyFactory func() Policy

// Budget caps a Policy at a fixed number of retries (attempts after the
// first), backing off between attempts per strategy. Budget is the
// default Policy; construct one per Call via NewBudgetFactory since the
// backoff function it holds is stateful and not safe to share across
// concurrent requests.
type Budget struct {
	retries  uint
	strategy func(uint) time.Duration
	clock    clock.Clock
}

var _ Policy = (*Budget)(nil)

// NewBudgetFactory returns a PolicyFactory producing a Budget that retries
// up to retries times using backoff.DefaultExponential, or the strategy
// supplied via WithBackoff.
func NewBudgetFactory(retries uint, opts ...BudgetOption) PolicyFactory {
	o := budgetOptions{clock: clock.NewReal()}
	for _, opt := range opts {
		opt(&o)
	}
	return func() Policy {
		newBackoff := o.newBackoff
		if newBackoff == nil {
			newBackoff = backoff.DefaultExponential
		}
		return &Budget{retries: retries, strategy: newBackoff(), clock: o.clock}
	}
}

type budgetOptions struct {
	newBackoff func() func(uint) time.Duration
	clock      clock.Clock
}

// BudgetOption customizes a Budget produced by NewBudgetFactory.
type BudgetOption func(*budgetOptions)

// WithBackoff overrides the backoff strategy constructor, defaulting to
// backoff.DefaultExponential.
func WithBackoff(newBackoff func() func(uint) time.Duration) BudgetOption {
	return func(o *budgetOptions) { o.newBackoff = newBackoff }
}

// WithClock overrides the time source used to wait between attempts, for
// deterministic tests with internal/clock.NewFake().
func WithClock(c clock.Clock) BudgetOption {
	return func(o *budgetOptions) { o.clock = c }
}

// Decide retries up to b.retries times, sleeping the configured backoff
// strategy's duration for the given attempt between them. The request is
// passed through unmutated; Budget carries no per-attempt request rewrite.
func (b *Budget) Decide(ctx context.Context, req tower.Request, rsp tower.Response, err error, attempt int) Decision {
	if uint(attempt) >= b.retries {
		return Decision{Retry: false, Err: towererrors.Exhausted(err)}
	}
	d := b.strategy(uint(attempt))
	t := b.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C():
	case <-ctx.Done():
		return Decision{Retry: false, Err: ctx.Err()}
	}
	return Decision{Retry: true, Req: req}
}

type layer struct {
	newPolicy PolicyFactory
}

// New returns a Layer that retries a failed Call per the Policy produced
// by newPolicy. PollReady forwards to the inner service unchanged: retry
// only concerns Call's outcome, not capacity reservation.
func New(newPolicy PolicyFactory) tower.Layer {
	return &layer{newPolicy: newPolicy}
}

func (l *layer) Wrap(inner tower.Service) tower.Service {
	return &service{inner: inner, newPolicy: l.newPolicy}
}

type service struct {
	inner     tower.Service
	newPolicy PolicyFactory
}

var _ tower.Service = (*service)(nil)

func (s *service) PollReady(ctx context.Context) (tower.Status, error) {
	return s.inner.PollReady(ctx)
}

// Call dispatches req, and on error consults a fresh Policy for whether to
// retry. Each retry attempt still requires the inner service to report
// Ready again, since a retry is, from the inner service's perspective, an
// entirely new dispatch.
func (s *service) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	policy := s.newPolicy()
	attempt := 0
	for {
		status, err := s.inner.PollReady(ctx)
		if err != nil {
			return nil, err
		}
		if status != tower.StatusReady {
			return nil, towererrors.New(towererrors.CodeInner, nil, "retry: inner service not ready for attempt %d", attempt)
		}

		rsp, err := s.inner.Call(ctx, req)
		if err == nil {
			return rsp, nil
		}

		decision := policy.Decide(ctx, req, rsp, err, attempt)
		if !decision.Retry {
			if decision.Err != nil {
				return nil, decision.Err
			}
			return rsp, err
		}
		if decision.Req != nil {
			req = decision.Req
		}
		attempt++
	}
}
