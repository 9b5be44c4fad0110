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

// Package loadshed always reports Ready and drops a request immediately
// with a towererrors.CodeOverloaded error whenever the inner service was
// not Ready the last time it was polled, rather than letting the caller
// block behind it. Shedding trades tail latency for throughput: an
// overloaded inner service sees no new work until it reports Ready again.
package loadshed

import (
	"context"

	"github.com/gotower/tower"
	"github.com/gotower/tower/towererrors"
)

type layer struct{}

// New returns a Layer that never itself applies back-pressure: it always
// reports Ready, shedding (rather than queuing) load the inner service
// cannot presently accept.
func New() tower.Layer {
	return layer{}
}

func (layer) Wrap(inner tower.Service) tower.Service {
	return &service{inner: inner}
}

type service struct {
	inner tower.Service
	ready bool
}

var _ tower.Service = (*service)(nil)

func (s *service) PollReady(ctx context.Context) (tower.Status, error) {
	status, err := s.inner.PollReady(ctx)
	if err != nil {
		s.ready = false
		return 0, err
	}
	s.ready = status == tower.StatusReady
	return tower.StatusReady, nil
}

func (s *service) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	if !s.ready {
		return nil, towererrors.Overloaded()
	}
	s.ready = false
	return s.inner.Call(ctx, req)
}
