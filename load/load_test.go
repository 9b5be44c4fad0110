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

package load

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotower/tower"
)

func TestPendingRequestsStartFinish(t *testing.T) {
	p := NewPendingRequests()
	assert.Equal(t, int64(0), p.Pending())

	p.start()
	assert.Equal(t, int64(1), p.Pending())
	assert.Equal(t, 1.0, p.Load())

	p.finish(0)
	assert.Equal(t, int64(0), p.Pending())
}

// TestInstrumentDropDecreasesPendingByOne confirms that once a response
// completes and its instrumented response is released,
// the tracker's pending count is exactly one lower than it was while the
// response was still outstanding.
func TestInstrumentDropDecreasesPendingByOne(t *testing.T) {
	orig := nowNanos
	defer func() { nowNanos = orig }()
	var now int64 = 1000
	nowNanos = func() int64 { return now }

	tracker := NewPendingRequests()
	inner := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		now += 500
		return req, nil
	})

	var pendingBeforeRelease int64
	point := func(h *Handle, rsp tower.Response, err error) (tower.Response, error) {
		pendingBeforeRelease = tracker.Pending()
		h.Release()
		return rsp, err
	}

	svc := Instrument(inner, tracker, point)

	status, err := svc.PollReady(context.Background())
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)

	rsp, err := svc.Call(context.Background(), "req")
	require.NoError(t, err)
	assert.Equal(t, "req", rsp)

	assert.Equal(t, int64(1), pendingBeforeRelease)
	assert.Equal(t, int64(0), tracker.Pending())
}

// TestDiscreteReleasesBeforeReturning confirms the default measurement
// point's contract: it releases the handle unconditionally, even when the
// inner call failed.
func TestDiscreteReleasesBeforeReturning(t *testing.T) {
	tracker := NewPendingRequests()
	tracker.start()
	h := &Handle{tracker: tracker, start: 0, nowFn: func() int64 { return 0 }}

	_, err := Discrete(h, nil, assert.AnError)
	assert.Equal(t, assert.AnError, err)
	assert.Equal(t, int64(0), tracker.Pending())
}

func TestHandleReleaseIsIdempotent(t *testing.T) {
	tracker := NewPendingRequests()
	tracker.start()
	h := &Handle{tracker: tracker, start: 0, nowFn: func() int64 { return 0 }}

	h.Release()
	h.Release()
	assert.Equal(t, int64(0), tracker.Pending())
}

func TestNilHandleReleaseIsNoop(t *testing.T) {
	var h *Handle
	assert.NotPanics(t, func() { h.Release() })
}
