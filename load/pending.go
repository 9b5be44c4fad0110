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

import "go.uber.org/atomic"

// PendingRequests is a Tracker whose load is simply its count of in-flight
// dispatches (outstanding Handles). It is suitable for discrete,
// non-streaming responses where raw concurrency is a good enough proxy for
// cost.
type PendingRequests struct {
	count atomic.Int64
}

// NewPendingRequests returns a PendingRequests tracker with a zero count.
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{}
}

func (p *PendingRequests) start() { p.count.Inc() }

func (p *PendingRequests) finish(float64) { p.count.Dec() }

func (p *PendingRequests) now() int64 { return nowNanos() }

// Load returns the current outstanding dispatch count.
func (p *PendingRequests) Load() Metric { return float64(p.count.Load()) }

// Pending returns the current outstanding dispatch count as an integer.
func (p *PendingRequests) Pending() int64 { return p.count.Load() }

var _ Tracker = (*PendingRequests)(nil)
