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

// Package ratelimit reports Ready only while a token-bucket Throttle has
// remaining credit, reporting Pending until the window refills otherwise.
// It is a thin tower.Layer over internal/ratelimit.Throttle's leaky-bucket
// admission.
package ratelimit

import (
	"context"

	"github.com/gotower/tower"
	"github.com/gotower/tower/internal/clock"
	"github.com/gotower/tower/internal/ratelimit"
)

type layer struct {
	rps  int
	opts []ratelimit.Option
}

// Option customizes the underlying Throttle.
type Option = ratelimit.Option

// New returns a Layer admitting up to rps requests per second (with the
// Throttle's default burst), reporting StatusPending from PollReady until
// the window has credit rather than blocking.
func New(rps int, opts ...Option) tower.Layer {
	return &layer{rps: rps, opts: opts}
}

func (l *layer) Wrap(inner tower.Service) tower.Service {
	return &service{inner: inner, throttle: ratelimit.NewThrottle(l.rps, l.opts...)}
}

type service struct {
	inner    tower.Service
	throttle *ratelimit.Throttle
}

var _ tower.Service = (*service)(nil)

func (s *service) PollReady(ctx context.Context) (tower.Status, error) {
	if s.throttle.Throttle() {
		return tower.StatusPending, nil
	}
	return s.inner.PollReady(ctx)
}

func (s *service) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	return s.inner.Call(ctx, req)
}

// WithClock overrides the Throttle's time source, for deterministic tests
// with internal/clock.NewFake().
func WithClock(c clock.Clock) Option {
	return ratelimit.WithClock(c)
}
