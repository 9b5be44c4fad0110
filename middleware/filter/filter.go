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

// Package filter runs a predicate ahead of a dispatch and rejects the
// request with a towererrors.CodeRejected error instead of forwarding it
// to the inner service. The predicate receives the caller's context, so it
// may do its own (cancelable) work before deciding.
package filter

import (
	"context"

	"github.com/gotower/tower"
	"github.com/gotower/tower/towererrors"
)

// Predicate decides whether req may be forwarded to the inner service. A
// non-nil error rejects the request; the error is wrapped as the Cause of
// a CodeRejected error rather than propagated directly, so callers can
// distinguish a filter rejection from an inner service error by Code alone.
type Predicate func(ctx context.Context, req tower.Request) error

type layer struct {
	predicate Predicate
}

// New returns a Layer that runs predicate before every Call and rejects
// the request if predicate returns a non-nil error. PollReady forwards to
// the inner service unchanged: filtering is a Call-time decision only, so
// it does not affect the inner service's capacity reservation.
func New(predicate Predicate) tower.Layer {
	return &layer{predicate: predicate}
}

func (l *layer) Wrap(inner tower.Service) tower.Service {
	return &service{inner: inner, predicate: l.predicate}
}

type service struct {
	inner     tower.Service
	predicate Predicate
}

var _ tower.Service = (*service)(nil)

func (s *service) PollReady(ctx context.Context) (tower.Status, error) {
	return s.inner.PollReady(ctx)
}

func (s *service) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	if err := s.predicate(ctx, req); err != nil {
		return nil, towererrors.Rejected(err)
	}
	return s.inner.Call(ctx, req)
}
