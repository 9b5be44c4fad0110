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

// Package readycache drives a dynamic, keyed set of tower.Service replicas
// to readiness concurrently, partitioning them into a pending set (a
// readiness task outstanding) and a ready set (cheap index access for a
// balancer). The ready set is an ordered slice plus an index map so
// removal stays O(1) without losing positional addressing.
package readycache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gotower/tower"
	"github.com/gotower/tower/internal/cancel"
	"github.com/gotower/tower/towererrors"
)

type entry[K comparable] struct {
	key    K
	svc    tower.Service
	cancel cancel.Pair
}

// pendingResult is what a background readiness task reports back to the
// Cache once its service resolves, errors, or the task notices it has been
// superseded.
type pendingResult[K comparable] struct {
	key   K
	pair  cancel.Pair
	svc   tower.Service
	err   error
}

// Cache drives a keyed set of Services to readiness in the background and
// exposes by-key and by-index access to the ones that have reported ready.
// A Cache is safe for concurrent use, though its intended caller
// (balance/p2c.Balancer) drives it from a single goroutine per instance.
type Cache[K comparable] struct {
	mu sync.Mutex

	ready    []entry[K]
	readyIdx map[K]int

	pendingCancel map[K]cancel.Pair
	results       chan pendingResult[K]

	pollBackoff time.Duration
	logger      *zap.Logger
}

// Option customizes a Cache.
type Option[K comparable] interface {
	apply(*Cache[K])
}

type optionFunc[K comparable] func(*Cache[K])

func (f optionFunc[K]) apply(c *Cache[K]) { f(c) }

// WithLogger sets the logger used to report readiness-task panics, mirrored
// from the same optional-logger pattern used throughout this module.
func WithLogger[K comparable](logger *zap.Logger) Option[K] {
	return optionFunc[K](func(c *Cache[K]) { c.logger = logger })
}

// WithPollBackoff sets the interval a background readiness task waits
// between PollReady retries while a service reports StatusPending.
// Defaults to 1ms.
func WithPollBackoff[K comparable](d time.Duration) Option[K] {
	return optionFunc[K](func(c *Cache[K]) { c.pollBackoff = d })
}

// New returns an empty Cache.
func New[K comparable](opts ...Option[K]) *Cache[K] {
	c := &Cache[K]{
		readyIdx:      make(map[K]int),
		pendingCancel: make(map[K]cancel.Pair),
		results:       make(chan pendingResult[K], 16),
		pollBackoff:   time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// ReadyLen returns the number of services that have most recently reported
// ready.
func (c *Cache[K]) ReadyLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ready)
}

// PendingLen returns the number of services with an outstanding readiness
// task.
func (c *Cache[K]) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingCancel)
}

// ReadyKey returns the key at ready index i. Valid only until the next call
// that may invalidate indices (see CheckReadyIndex).
func (c *Cache[K]) ReadyKey(i int) K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready[i].key
}

// Push inserts svc under key, superseding and evicting whatever was
// previously registered under that key (in either the ready or pending
// set) and scheduling a fresh readiness task. An Insert discovery change
// maps directly onto Push.
func (c *Cache[K]) Push(ctx context.Context, key K, svc tower.Service) {
	c.mu.Lock()
	c.evictLocked(key)
	pair := cancel.NewPair(ctx)
	c.pendingCancel[key] = pair
	c.mu.Unlock()

	go c.runPending(key, svc, pair)
}

// Evict removes key from whichever set holds it, reporting whether it was
// present. Evicting a pending entry signals its cancellation; the service
// itself is only actually dropped once the background task observes the
// signal (it holds the only reference once removed from the Cache's own
// maps). A Remove discovery change maps directly onto Evict.
func (c *Cache[K]) Evict(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(key)
}

func (c *Cache[K]) evictLocked(key K) bool {
	if idx, ok := c.readyIdx[key]; ok {
		c.ready[idx].cancel.Signal()
		c.removeReadyLocked(idx)
		return true
	}
	if pair, ok := c.pendingCancel[key]; ok {
		pair.Signal()
		delete(c.pendingCancel, key)
		return true
	}
	return false
}

// removeReadyLocked deletes the ready entry at idx with a swap-to-last
// removal; this invalidates idx and, if a different entry was moved into
// its place, whatever index that entry previously held.
func (c *Cache[K]) removeReadyLocked(idx int) {
	last := len(c.ready) - 1
	delete(c.readyIdx, c.ready[idx].key)
	if idx != last {
		c.ready[idx] = c.ready[last]
		c.readyIdx[c.ready[idx].key] = idx
	}
	c.ready = c.ready[:last]
}

// runPending drives svc to readiness (or failure) in the background,
// reporting the outcome on c.results unless pair has been superseded.
// Eviction only signals cancellation; the service stays owned by this task
// until the task itself observes the signal and returns.
func (c *Cache[K]) runPending(key K, svc tower.Service, pair cancel.Pair) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("readycache: readiness task panicked", zap.Any("key", key), zap.Any("panic", r))
		}
	}()
	for {
		select {
		case <-pair.Done():
			return
		default:
		}
		status, err := svc.PollReady(pair.Context())
		if err != nil {
			c.send(pendingResult[K]{key: key, pair: pair, err: err})
			return
		}
		if status == tower.StatusReady {
			c.send(pendingResult[K]{key: key, pair: pair, svc: svc})
			return
		}
		select {
		case <-pair.Done():
			return
		case <-time.After(c.pollBackoff):
		}
	}
}

func (c *Cache[K]) send(r pendingResult[K]) {
	select {
	case c.results <- r:
	case <-r.pair.Done():
	}
}

// PollPending drains every readiness task that has resolved since the last
// call, promoting successes into the ready set and removing failures.
// It surfaces at most one Failed(K, err) per call, in the order resolved;
// call it again to continue draining. A canceled task (superseded by a
// later Push or an Evict) requires no action here: the Push/Evict call
// that superseded it already updated the Cache's maps synchronously.
//
// PollPending returns StatusReady both when no tasks are outstanding and
// when every outstanding task is still in flight; it never returns
// StatusPending. Tasks report their results on an internal channel, so
// "come back later" carries no information a fresh call would not
// recompute — callers simply poll again on their next readiness round.
func (c *Cache[K]) PollPending(ctx context.Context) (tower.Status, error) {
	for {
		var r pendingResult[K]
		select {
		case r = <-c.results:
		default:
			return tower.StatusReady, nil
		}

		c.mu.Lock()
		current, stillCurrent := c.pendingCancel[r.key]
		if !stillCurrent || !current.Same(r.pair) {
			// Superseded since this task started; Push/Evict already did
			// the bookkeeping, so this result is a no-op.
			c.mu.Unlock()
			continue
		}
		delete(c.pendingCancel, r.key)
		if r.err != nil {
			c.mu.Unlock()
			return tower.StatusReady, towererrors.NewKeyError(r.key, r.err)
		}
		c.ready = append(c.ready, entry[K]{key: r.key, svc: r.svc, cancel: r.pair})
		c.readyIdx[r.key] = len(c.ready) - 1
		c.mu.Unlock()
	}
}

// CheckReady polls the named ready service's PollReady once more,
// immediately before a dispatch. On StatusReady it returns true and leaves
// the entry in the ready set. On StatusPending it moves the entry back to
// the pending set, re-arming its (reused) cancellation pair and spawning a
// fresh readiness task, and returns false. On error it removes the entry
// and returns a Failed(K, err) error.
func (c *Cache[K]) CheckReady(ctx context.Context, key K) (bool, error) {
	c.mu.Lock()
	_, ok := c.readyIdx[key]
	if !ok {
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()
	return c.checkReadyAt(ctx, key)
}

// CheckReadyIndex is CheckReady addressed by position in the ready set
// rather than by key. The index is invalidated by a false result here, by
// CallReadyIndex, by Evict of a ready key, or by the ready-failure path of
// PollPending; callers must not reuse it afterward without re-deriving it.
func (c *Cache[K]) CheckReadyIndex(ctx context.Context, i int) (bool, error) {
	c.mu.Lock()
	key := c.ready[i].key
	c.mu.Unlock()
	return c.checkReadyAt(ctx, key)
}

func (c *Cache[K]) checkReadyAt(ctx context.Context, key K) (bool, error) {
	c.mu.Lock()
	idx, ok := c.readyIdx[key]
	if !ok {
		c.mu.Unlock()
		return false, nil
	}
	svc := c.ready[idx].svc
	c.mu.Unlock()

	status, err := svc.PollReady(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok = c.readyIdx[key]
	if !ok {
		// Evicted concurrently while we polled.
		return false, nil
	}
	if err != nil {
		c.removeReadyLocked(idx)
		return false, towererrors.NewKeyError(key, err)
	}
	if status == tower.StatusReady {
		return true, nil
	}

	pair := c.ready[idx].cancel
	c.removeReadyLocked(idx)
	c.pendingCancel[key] = pair
	go c.runPending(key, svc, pair)
	return false, nil
}

// CallReady dispatches req through the named ready service, then moves it
// back to the pending set to be driven to readiness again for the next
// caller. The caller must have last observed CheckReady/CheckReadyIndex
// return true for this key; calling this otherwise is a caller bug.
//
// The entry is accounted as pending for the whole dispatch, but its fresh
// readiness task only starts once Call has returned: a service instance
// must never see PollReady concurrently with an in-flight Call.
func (c *Cache[K]) CallReady(ctx context.Context, key K, req tower.Request) (tower.Response, error) {
	c.mu.Lock()
	idx, ok := c.readyIdx[key]
	if !ok {
		c.mu.Unlock()
		panic("readycache: CallReady on a key not in the ready set")
	}
	svc := c.ready[idx].svc
	pair := c.ready[idx].cancel
	c.removeReadyLocked(idx)
	c.pendingCancel[key] = pair
	c.mu.Unlock()

	rsp, err := svc.Call(ctx, req)

	// If a Push or Evict superseded this entry mid-dispatch, pair is
	// already canceled and the task below exits without reporting.
	go c.runPending(key, svc, pair)
	return rsp, err
}

// CallReadyIndex is CallReady addressed by position; see CheckReadyIndex
// for index-invalidation rules, which apply identically here.
func (c *Cache[K]) CallReadyIndex(ctx context.Context, i int, req tower.Request) (tower.Response, error) {
	c.mu.Lock()
	key := c.ready[i].key
	c.mu.Unlock()
	return c.CallReady(ctx, key, req)
}
