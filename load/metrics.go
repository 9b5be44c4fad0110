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

import "go.uber.org/net/metrics"

// MetricsTracker decorates a Tracker with a pair of exported counters:
// one CounterVector tagged by phase, fetched once at construction and
// incremented directly rather than looked up per call.
type MetricsTracker struct {
	Tracker

	started  *metrics.Counter
	finished *metrics.Counter
}

// NewMetricsTracker wraps tracker so every dispatch it tracks also
// increments a "<name>_measurements_total" CounterVector in scope, tagged
// by phase ("started"/"finished"). scope is typically a component-scoped
// *metrics.Scope shared with the rest of a Balancer's instrumentation; a
// nil scope is rejected rather than silently degrading to a no-op, since
// callers that ask for metrics should know immediately if registration
// failed.
func NewMetricsTracker(tracker Tracker, scope *metrics.Scope, name string) (*MetricsTracker, error) {
	vector, err := scope.CounterVector(metrics.Spec{
		Name:      name + "_measurements_total",
		Help:      "Count of load-tracked dispatches, by phase.",
		ConstTags: map[string]string{"component": "tower-load"},
		VarTags:   []string{"phase"},
	})
	if err != nil {
		return nil, err
	}
	started, err := vector.Get("phase", "started")
	if err != nil {
		return nil, err
	}
	finished, err := vector.Get("phase", "finished")
	if err != nil {
		return nil, err
	}
	return &MetricsTracker{Tracker: tracker, started: started, finished: finished}, nil
}

// start increments the "started" counter before delegating to the wrapped
// Tracker.
func (t *MetricsTracker) start() {
	t.started.Inc()
	t.Tracker.start()
}

// finish increments the "finished" counter before delegating to the
// wrapped Tracker.
func (t *MetricsTracker) finish(elapsed float64) {
	t.finished.Inc()
	t.Tracker.finish(elapsed)
}
