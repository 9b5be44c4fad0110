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

// Package concurrencylimit reports Ready only when both a semaphore permit
// is acquirable and the inner service is itself Ready, holding the permit
// until the dispatched Call returns (success, error, or cancellation).
// The semaphore is a plain buffered channel rather than an atomic counter:
// a non-blocking channel receive is exactly the acquire primitive
// PollReady needs.
package concurrencylimit

import (
	"context"

	"github.com/gotower/tower"
)

type layer struct {
	max int
}

// New returns a Layer admitting at most max concurrent dispatches through
// the wrapped service.
func New(max int) tower.Layer {
	if max < 1 {
		max = 1
	}
	return &layer{max: max}
}

func (l *layer) Wrap(inner tower.Service) tower.Service {
	sem := make(chan struct{}, l.max)
	for i := 0; i < l.max; i++ {
		sem <- struct{}{}
	}
	return &service{inner: inner, sem: sem}
}

type service struct {
	inner tower.Service
	sem   chan struct{}
}

var _ tower.Service = (*service)(nil)

// PollReady acquires a permit from sem via a non-blocking channel receive —
// safe for many goroutines to call concurrently on the same *service, since
// each successful receive is itself the proof of a distinct reservation,
// with no shared mutable flag needed to remember it — and then reports
// ready only once the inner service also reports ready. A permit acquired
// here but not followed by a Call (because the inner service was not
// itself ready, or erred) is returned immediately.
func (s *service) PollReady(ctx context.Context) (tower.Status, error) {
	select {
	case <-s.sem:
	default:
		return tower.StatusPending, nil
	}

	status, err := s.inner.PollReady(ctx)
	if err != nil {
		s.sem <- struct{}{}
		return 0, err
	}
	if status != tower.StatusReady {
		s.sem <- struct{}{}
		return tower.StatusPending, nil
	}
	return tower.StatusReady, nil
}

// Call dispatches through the inner service, releasing the permit acquired
// by the PollReady that reserved this dispatch once the inner Call returns
// by any path: success, error, or the caller's context being canceled (the
// Go analogue of the caller dropping the response future before it
// resolves).
func (s *service) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	defer func() { s.sem <- struct{}{} }()
	return s.inner.Call(ctx, req)
}
