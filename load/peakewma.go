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
	"math"
	"sync"
	"time"

	"github.com/gotower/tower/internal/clock"
)

// PeakEWMA tracks an exponentially-weighted moving average of observed
// response latency with a peak-take rule: any observation greater than the
// current average replaces it outright, and smaller observations decay in
// via w = exp(-Δt/τ). Reported load is cost * (pending + 1), so that two
// replicas with identical latency but different concurrency are still
// distinguished.
//
// The critical section guarded by mu is a handful of floating-point
// operations; the lock is never held across a channel operation or any
// other wait.
type PeakEWMA struct {
	mu      sync.Mutex
	pending int64
	cost    float64
	stamp   time.Time
	tau     time.Duration
	clock   clock.Clock
}

// NewPeakEWMA returns a PeakEWMA with the given half-life tau, using clk as
// its time source (internal/clock.NewReal() in production,
// internal/clock.NewFake() in tests).
func NewPeakEWMA(tau time.Duration, clk clock.Clock) *PeakEWMA {
	return &PeakEWMA{
		tau:   tau,
		clock: clk,
		stamp: clk.Now(),
	}
}

func (p *PeakEWMA) start() {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
}

func (p *PeakEWMA) finish(elapsedNanos float64) {
	p.mu.Lock()
	p.pending--
	p.update(elapsedNanos, p.clock.Now())
	p.mu.Unlock()
}

func (p *PeakEWMA) now() int64 { return p.clock.Now().UnixNano() }

// update applies the peak-EWMA rule for an observed latency rtt (ns) at
// time now. Callers must hold p.mu.
func (p *PeakEWMA) update(rtt float64, now time.Time) {
	if rtt > p.cost {
		// Peak rule: an observation above the running average replaces it
		// outright, with no decay.
		p.cost = rtt
	} else {
		// Smaller (or zero, for load()'s staleness decay) observations
		// decay in by the elapsed-time weight.
		dt := now.Sub(p.stamp)
		w := math.Exp(-float64(dt) / float64(p.tau))
		p.cost = p.cost*w + rtt*(1-w)
	}
	p.stamp = now
}

// Load returns cost * (pending + 1). Calling Load decays stale cost (a
// zero-latency update) without recording a new peak, so a replica that has
// gone idle gradually looks cheaper again.
func (p *PeakEWMA) Load() Metric {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	p.update(0, now)
	return p.cost * float64(p.pending+1)
}

// Pending returns the current in-flight dispatch count.
func (p *PeakEWMA) Pending() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Cost returns the current EWMA cost in nanoseconds, for tests and metrics
// export.
func (p *PeakEWMA) Cost() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cost
}

var _ Tracker = (*PeakEWMA)(nil)
