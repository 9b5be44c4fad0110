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

// Package load provides the load metrics consumed by balance/p2c: a plain
// pending-request counter and a peak-EWMA estimator of response latency,
// both fed by drop-guard handles attached to responses at dispatch time.
package load

import (
	"context"

	"github.com/gotower/tower"
)

// Metric is a comparable scalar approximating a service's current cost of
// handling an additional request. float64 is used (rather than a generic
// Ordered constraint) because it is the one representation that covers
// both PendingRequests's integer count and PeakEWMA's floating-point cost.
type Metric = float64

// Loaded is implemented by anything the balancer can compare for load.
type Loaded interface {
	Load() Metric
}

// MeasurementPoint maps a dispatched Handle and the Response it guards to
// an instrumented response whose own release closes the Handle. The
// default measurement point (Discrete) releases the handle as soon as the
// response resolves; protocols that report completion at a different point
// (first byte, trailers, end-of-stream) supply their own.
type MeasurementPoint func(h *Handle, rsp tower.Response, err error) (tower.Response, error)

// Discrete is the default MeasurementPoint: it releases h immediately and
// returns rsp/err unchanged, suitable for services with no streaming body.
func Discrete(h *Handle, rsp tower.Response, err error) (tower.Response, error) {
	h.Release()
	return rsp, err
}

// Instrument wraps svc so that every dispatch through it allocates a Handle
// at Call time and releases it through point once the response resolves.
func Instrument(svc tower.Service, tracker Tracker, point MeasurementPoint) tower.Service {
	if point == nil {
		point = Discrete
	}
	return &instrumented{inner: svc, tracker: tracker, point: point}
}

// Tracker is the mutable load-tracking state a Handle reports into on
// dispatch and release. PendingRequests and PeakEWMA both implement it.
type Tracker interface {
	Loaded
	// start is called once per dispatch, before the inner Call begins.
	start()
	// finish is called exactly once per Handle, when the response (or its
	// body) is released; elapsed is the Call's duration in nanoseconds.
	finish(elapsed float64)
	// now reports the tracker's own clock in nanoseconds. Handle lifetimes
	// are measured against it so a tracker driven by a fake clock never
	// mixes wall-clock latencies into its decay arithmetic.
	now() int64
}

// Handle is a drop-guard attached to a response at dispatch time. Release
// must be called exactly once, either when a discrete response resolves or
// when a streaming response body terminates.
type Handle struct {
	tracker  Tracker
	start    int64 // tracker-clock nanoseconds, set at dispatch
	nowFn    func() int64
	released bool
}

// Release decrements the tracker's pending count and records the handle's
// elapsed lifetime exactly once; subsequent calls are no-ops.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	elapsed := float64(h.nowFn() - h.start)
	if elapsed < 0 {
		elapsed = 0
	}
	h.tracker.finish(elapsed)
}

type instrumented struct {
	inner   tower.Service
	tracker Tracker
	point   MeasurementPoint
}

func (i *instrumented) PollReady(ctx context.Context) (tower.Status, error) {
	return i.inner.PollReady(ctx)
}

func (i *instrumented) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	i.tracker.start()
	h := &Handle{tracker: i.tracker, start: i.tracker.now(), nowFn: i.tracker.now}
	rsp, err := i.inner.Call(ctx, req)
	return i.point(h, rsp, err)
}
