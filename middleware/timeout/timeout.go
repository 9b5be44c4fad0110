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

// Package timeout arms a deadline around a tower.Service's Call and fails
// with a towererrors.CodeElapsed error if the inner response does not
// complete first. The deadline is raced against the inner call through a
// derived context, with internal/clock supplying the timer so tests can
// drive it deterministically.
package timeout

import (
	"context"
	"time"

	"github.com/gotower/tower"
	"github.com/gotower/tower/internal/clock"
	"github.com/gotower/tower/towererrors"
)

type layer struct {
	d      time.Duration
	clock  clock.Clock
	global bool
}

// Option customizes a Layer.
type Option interface {
	apply(*layer)
}

type optionFunc func(*layer)

func (f optionFunc) apply(l *layer) { f(l) }

// WithClock overrides the time source, defaulting to clock.NewReal().
func WithClock(c clock.Clock) Option {
	return optionFunc(func(l *layer) { l.clock = c })
}

// New returns a Layer that arms a deadline of d around each Call.
// PollReady forwards to the inner service unchanged.
func New(d time.Duration, opts ...Option) tower.Layer {
	l := &layer{d: d, clock: clock.NewReal()}
	for _, o := range opts {
		o.apply(l)
	}
	return l
}

// NewGlobal returns a Layer that arms its deadline inside PollReady rather
// than Call, so that time spent blocked behind an inner rate limiter (or
// any other PollReady-level wait) counts against the budget. Call reuses
// the deadline armed by the most recent PollReady.
func NewGlobal(d time.Duration, opts ...Option) tower.Layer {
	l := &layer{d: d, clock: clock.NewReal(), global: true}
	for _, o := range opts {
		o.apply(l)
	}
	return l
}

func (l *layer) Wrap(inner tower.Service) tower.Service {
	return &service{inner: inner, d: l.d, clock: l.clock, global: l.global}
}

type service struct {
	inner  tower.Service
	d      time.Duration
	clock  clock.Clock
	global bool

	deadline context.Context
	stop     func()
	fired    <-chan struct{}
}

var _ tower.Service = (*service)(nil)

func (s *service) PollReady(ctx context.Context) (tower.Status, error) {
	if s.global {
		if s.stop != nil {
			s.stop()
		}
		s.deadline, s.stop, s.fired = s.arm(ctx)
		ctx = s.deadline
	}
	return s.inner.PollReady(ctx)
}

// arm derives a context from parent that is canceled either by parent's own
// cancellation or by s.clock firing after s.d, whichever comes first. The
// returned channel closes in the latter case, letting callers tell an
// elapsed deadline apart from the parent simply going away; this is the
// point of injecting s.clock rather than calling context.WithTimeout
// directly, which is pinned to the real wall clock.
func (s *service) arm(parent context.Context) (context.Context, func(), <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	fired := make(chan struct{})
	timer := s.clock.AfterFunc(s.d, func() {
		close(fired)
		cancel()
	})
	stop := func() {
		timer.Stop()
		cancel()
	}
	return ctx, stop, fired
}

func (s *service) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	deadline, stop, fired := s.deadline, s.stop, s.fired
	if !s.global || deadline == nil {
		deadline, stop, fired = s.arm(ctx)
	}
	defer stop()

	type result struct {
		rsp tower.Response
		err error
	}
	done := make(chan result, 1)
	go func() {
		// Once the select below resolves against the deadline, nobody
		// waits on this goroutine; the canceled context is the inner
		// call's signal to stop.
		rsp, err := s.inner.Call(deadline, req)
		done <- result{rsp: rsp, err: err}
	}()

	select {
	case r := <-done:
		return r.rsp, r.err
	case <-deadline.Done():
		select {
		case <-fired:
			return nil, towererrors.Elapsed()
		default:
			return nil, deadline.Err()
		}
	}
}
