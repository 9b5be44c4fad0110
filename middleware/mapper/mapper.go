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

// Package mapper provides the three synchronous data-transforming layers:
// MapRequest rewrites a request before dispatch, MapResponse rewrites a
// successful response, and MapErr rewrites a Call error. Each is a bare
// function wrapped to satisfy tower.Layer; none of them touch readiness.
package mapper

import (
	"context"

	"github.com/gotower/tower"
)

// RequestFunc rewrites a request before it reaches the inner service.
type RequestFunc func(ctx context.Context, req tower.Request) (tower.Request, error)

// ResponseFunc rewrites a successful response from the inner service.
type ResponseFunc func(ctx context.Context, rsp tower.Response) (tower.Response, error)

// ErrFunc rewrites an error returned by the inner service's Call. It is
// not consulted for errors from PollReady, which are terminal per the
// Service contract and must not be recoverable by a downstream mapper.
type ErrFunc func(ctx context.Context, err error) error

// MapRequest returns a Layer applying f to every request before Call.
// PollReady forwards unchanged.
func MapRequest(f RequestFunc) tower.Layer {
	return tower.LayerFunc(func(inner tower.Service) tower.Service {
		return &reqMapper{inner: inner, f: f}
	})
}

type reqMapper struct {
	inner tower.Service
	f     RequestFunc
}

func (m *reqMapper) PollReady(ctx context.Context) (tower.Status, error) { return m.inner.PollReady(ctx) }

func (m *reqMapper) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	mapped, err := m.f(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.inner.Call(ctx, mapped)
}

// MapResponse returns a Layer applying f to every successful response.
// PollReady forwards unchanged.
func MapResponse(f ResponseFunc) tower.Layer {
	return tower.LayerFunc(func(inner tower.Service) tower.Service {
		return &rspMapper{inner: inner, f: f}
	})
}

type rspMapper struct {
	inner tower.Service
	f     ResponseFunc
}

func (m *rspMapper) PollReady(ctx context.Context) (tower.Status, error) { return m.inner.PollReady(ctx) }

func (m *rspMapper) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	rsp, err := m.inner.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.f(ctx, rsp)
}

// MapErr returns a Layer applying f to every error returned by the inner
// service's Call. PollReady forwards unchanged; readiness errors remain
// terminal and are not passed through f.
func MapErr(f ErrFunc) tower.Layer {
	return tower.LayerFunc(func(inner tower.Service) tower.Service {
		return &errMapper{inner: inner, f: f}
	})
}

type errMapper struct {
	inner tower.Service
	f     ErrFunc
}

func (m *errMapper) PollReady(ctx context.Context) (tower.Status, error) { return m.inner.PollReady(ctx) }

func (m *errMapper) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	rsp, err := m.inner.Call(ctx, req)
	if err != nil {
		return nil, m.f(ctx, err)
	}
	return rsp, nil
}
