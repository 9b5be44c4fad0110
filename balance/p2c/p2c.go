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

// Package p2c implements a power-of-two-choices load balancer over a
// discover.Discoverer and a readycache.Cache: it samples two distinct
// ready replicas uniformly at random and dispatches through whichever
// reports the lower load.Metric. Under uniform sampling the two-choice
// rule keeps the maximum load imbalance near O(log log n) without any
// coordination between callers.
package p2c

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/net/metrics"

	"github.com/gotower/tower"
	"github.com/gotower/tower/discover"
	"github.com/gotower/tower/load"
	"github.com/gotower/tower/readycache"
	"github.com/gotower/tower/towererrors"
)

// timeSeed returns the default PRNG seed, approximately the construction
// time in nanoseconds.
func timeSeed() int64 { return time.Now().UnixNano() }

// Loader resolves the load.Metric for a ready replica's key, so the
// balancer can compare two sampled candidates without the ready-cache
// itself needing to know about load instrumentation.
type Loader[K comparable] interface {
	Load(key K) load.Metric
}

// LoaderFunc adapts a function into a Loader.
type LoaderFunc[K comparable] func(key K) load.Metric

// Load calls f.
func (f LoaderFunc[K]) Load(key K) load.Metric { return f(key) }

type options struct {
	rng       *rand.Rand
	selection *metrics.CounterVector
}

// Option customizes a Balancer.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithRand supplies a caller-controlled random source, for reproducible
// sampling in tests.
func WithRand(r *rand.Rand) Option {
	return optionFunc(func(o *options) { o.rng = r })
}

// WithMetrics registers a "p2c_selections_total" CounterVector in scope,
// tagged by outcome ("single", "two_ready", "one_ready", "none_ready"),
// incremented once per selection decision. A registration failure is
// silently ignored; a Balancer should not fail to construct over a metrics
// backend problem.
func WithMetrics(scope *metrics.Scope) Option {
	return optionFunc(func(o *options) {
		vector, err := scope.CounterVector(metrics.Spec{
			Name:      "p2c_selections_total",
			Help:      "Count of power-of-two-choices selection outcomes.",
			ConstTags: map[string]string{"component": "tower-p2c"},
			VarTags:   []string{"outcome"},
		})
		if err == nil {
			o.selection = vector
		}
	})
}

func (o *options) incSelection(outcome string) {
	if o.selection == nil {
		return
	}
	if counter, err := o.selection.Get("outcome", outcome); counter != nil && err == nil {
		counter.Inc()
	}
}

// Balancer is a tower.Service that selects among the replicas currently
// reported ready by an underlying readycache.Cache, fed by a
// discover.Discoverer, using the power-of-two-choices rule.
type Balancer[K comparable] struct {
	discoverer discover.Discoverer[K]
	cache      *readycache.Cache[K]
	loader     Loader[K]
	rng        *rand.Rand
	metrics    *options

	chosen    int
	hasChosen bool
}

var _ tower.Service = (*Balancer[string])(nil)

// New constructs a Balancer over disc, using loader to compare candidates'
// load and cache to hold/drive the discovered replica set. Construct cache
// fresh per Balancer (readycache.New()); Balancer owns it exclusively.
func New[K comparable](disc discover.Discoverer[K], cache *readycache.Cache[K], loader Loader[K], opts ...Option) *Balancer[K] {
	o := &options{rng: rand.New(rand.NewSource(timeSeed()))}
	for _, opt := range opts {
		opt.apply(o)
	}
	return &Balancer[K]{discoverer: disc, cache: cache, loader: loader, rng: o.rng, metrics: o}
}

// PollReady drains pending discovery changes into the ready-cache, drives
// un-ready replicas in the background, and attempts to sample a ready
// replica via power-of-two-choices. A discovery-stream failure is fatal to
// the Balancer; a replica's own readiness failure only evicts that
// replica, which the Balancer treats as a local, non-fatal event.
func (b *Balancer[K]) PollReady(ctx context.Context) (tower.Status, error) {
	b.hasChosen = false

	for {
		status, change, err := b.discoverer.Poll(ctx)
		if err != nil {
			return 0, towererrors.Discover(err)
		}
		if status == tower.StatusPending {
			break
		}
		switch change.Kind {
		case discover.Insert:
			b.cache.Push(ctx, change.Key, change.Service)
		case discover.Remove:
			b.cache.Evict(change.Key)
		}
	}

	for {
		_, err := b.cache.PollPending(ctx)
		if err != nil {
			// A specific replica failed readiness; it has already been
			// dropped from the cache. This is local to that replica, not
			// fatal to the balancer, so we loop to drain any further
			// resolutions before attempting selection.
			continue
		}
		break
	}

	return b.selectReady(ctx)
}

func (b *Balancer[K]) selectReady(ctx context.Context) (tower.Status, error) {
	n := b.cache.ReadyLen()
	if n == 0 {
		return tower.StatusPending, nil
	}
	if n == 1 {
		ok, err := b.cache.CheckReadyIndex(ctx, 0)
		if err != nil {
			// The lone replica failed its re-check and has been removed;
			// that is local to the replica, so report Pending, not failure.
			return tower.StatusPending, nil
		}
		if !ok {
			return tower.StatusPending, nil
		}
		b.chosen, b.hasChosen = 0, true
		b.metrics.incSelection("single")
		return tower.StatusReady, nil
	}

	attempts := n
	for attempt := 0; attempt < attempts; attempt++ {
		i0, i1 := b.sampleDistinct(n)

		key0 := b.cache.ReadyKey(i0)
		key1 := b.cache.ReadyKey(i1)

		ok0, err0 := b.cache.CheckReadyIndex(ctx, i0)
		// i1 may have shifted if CheckReadyIndex above removed i0's entry
		// via a swap-to-last; re-resolve it by key to stay correct.
		i1 = b.indexOf(key1, i1)
		ok1, err1 := false, error(nil)
		if i1 >= 0 {
			ok1, err1 = b.cache.CheckReadyIndex(ctx, i1)
		}

		if err0 != nil && err1 != nil {
			continue
		}

		switch {
		case ok0 && ok1:
			i0 = b.indexOf(key0, i0)
			load0, load1 := b.loader.Load(key0), b.loader.Load(key1)
			if load1 < load0 {
				b.chosen = b.indexOf(key1, i1)
			} else {
				b.chosen = i0
			}
			b.hasChosen = true
			b.metrics.incSelection("two_ready")
			return tower.StatusReady, nil
		case ok0:
			b.chosen = b.indexOf(key0, i0)
			b.hasChosen = true
			b.metrics.incSelection("one_ready")
			return tower.StatusReady, nil
		case ok1:
			b.chosen = b.indexOf(key1, i1)
			b.hasChosen = true
			b.metrics.incSelection("one_ready")
			return tower.StatusReady, nil
		}

		if b.cache.ReadyLen() == 0 {
			b.metrics.incSelection("none_ready")
			return tower.StatusPending, nil
		}
	}
	b.metrics.incSelection("none_ready")
	return tower.StatusPending, nil
}

// indexOf resolves key's current ready-set index, starting from hint
// (valid most of the time) and falling back to a linear scan since the
// ready set may have been perturbed by a swap-to-last removal.
func (b *Balancer[K]) indexOf(key K, hint int) int {
	n := b.cache.ReadyLen()
	if hint >= 0 && hint < n && b.cache.ReadyKey(hint) == key {
		return hint
	}
	for i := 0; i < n; i++ {
		if b.cache.ReadyKey(i) == key {
			return i
		}
	}
	return -1
}

// sampleDistinct draws two distinct indices uniformly from [0, n): i is
// uniform in [0, n), and j is offset by 1 plus a uniform draw in [0, n-1)
// so it can never coincide with i.
func (b *Balancer[K]) sampleDistinct(n int) (int, int) {
	i := b.rng.Intn(n)
	j := i + 1 + b.rng.Intn(n-1)
	if j >= n {
		j -= n
	}
	return i, j
}

// Call dispatches through the replica selected by the most recent
// PollReady. Calling it without a prior successful PollReady is a caller
// bug, per the Service contract's reserve-then-dispatch rule.
func (b *Balancer[K]) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	if !b.hasChosen {
		panic("p2c: Call invoked without a successful PollReady reservation")
	}
	idx := b.chosen
	b.hasChosen = false
	return b.cache.CallReadyIndex(ctx, idx, req)
}
