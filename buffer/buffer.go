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

// Package buffer lets many goroutines share a single non-concurrent,
// non-cloneable tower.Service while preserving its single-dispatch
// invariant and providing bounded back-pressure: requests queue on a
// bounded channel and a dedicated worker goroutine owns the inner service
// exclusively.
package buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/gotower/tower"
	"github.com/gotower/tower/towererrors"
)

type result struct {
	rsp tower.Response
	err error
}

// message is the (Req, ResponseSlot) tuple queued to the worker.
type message struct {
	ctx  context.Context
	req  tower.Request
	resp chan result
}

type options struct {
	logger      *zap.Logger
	pollBackoff time.Duration
}

var defaultOptions = options{
	logger:      zap.NewNop(),
	pollBackoff: time.Millisecond,
}

// Option customizes a Buffer.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger sets the logger used to report worker-loop failures.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(o *options) { o.logger = logger })
}

// WithPollBackoff sets the interval the worker waits between PollReady
// retries while the inner service is StatusPending. Defaults to 1ms.
func WithPollBackoff(d time.Duration) Option {
	return optionFunc(func(o *options) { o.pollBackoff = d })
}

// Buffer adapts a non-concurrent tower.Service into one that is safe to
// call from many goroutines, queuing requests on a bounded channel of
// capacity B and dispatching them one at a time from a dedicated worker
// goroutine.
type Buffer struct {
	inner    tower.Service
	messages chan message
	sem      chan struct{}
	reserved atomic.Int64
	errMu    sync.RWMutex
	err      error
	done     chan struct{}
	opts     options
}

var _ tower.Service = (*Buffer)(nil)

// New constructs a Buffer over inner with the given bounded capacity and
// starts its worker goroutine rooted at ctx; canceling ctx shuts the worker
// down, failing every still-queued message with a Closed error.
func New(ctx context.Context, inner tower.Service, capacity int, opts ...Option) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	o := defaultOptions
	for _, opt := range opts {
		opt.apply(&o)
	}

	sem := make(chan struct{}, capacity)
	for i := 0; i < capacity; i++ {
		sem <- struct{}{}
	}

	b := &Buffer{
		inner:    inner,
		messages: make(chan message, capacity),
		sem:      sem,
		done:     make(chan struct{}),
		opts:     o,
	}
	go b.run(ctx)
	return b
}

// Clone returns b itself: a *Buffer is already a shareable, cheaply-copied
// handle (a pointer plus channels), so no reference-counted clone is
// necessary. Clone exists so call sites that hand one front-end handle per
// producer have a direct way to spell that.
func (b *Buffer) Clone() *Buffer { return b }

// PollReady reports StatusReady iff the bounded channel has a free slot
// reserved for this call; the reservation is consumed by the next Call.
func (b *Buffer) PollReady(ctx context.Context) (tower.Status, error) {
	if err := b.loadErr(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	select {
	case <-b.sem:
		b.reserved.Inc()
		return tower.StatusReady, nil
	default:
		return tower.StatusPending, nil
	}
}

// Call enqueues req for the worker goroutine and blocks until its response
// is ready, the context is canceled, or the worker has failed.
//
// Call must only be invoked after a PollReady call on this Buffer returned
// StatusReady; calling it otherwise is a caller bug and may panic, per the
// Service contract's reserve-then-dispatch rule.
func (b *Buffer) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	if err := b.loadErr(); err != nil {
		return nil, err
	}
	if b.reserved.Dec() < 0 {
		b.reserved.Inc()
		panic("tower/buffer: Call invoked without a successful PollReady reservation")
	}
	resp := make(chan result, 1)
	// A held reservation accounts for a slot the worker has not yet handed
	// back, so this send cannot find the channel full.
	select {
	case b.messages <- message{ctx: ctx, req: req, resp: resp}:
	default:
		panic("tower/buffer: reserved slot unavailable")
	}
	select {
	case r := <-resp:
		return r.rsp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, b.loadErr()
	}
}

func (b *Buffer) loadErr() error {
	b.errMu.RLock()
	defer b.errMu.RUnlock()
	if b.err == nil {
		return nil
	}
	return towererrors.Closed(b.err)
}

// run is the dedicated worker goroutine: it owns the inner service
// exclusively, so it alone calls PollReady/Call on it, preserving the
// single-dispatch invariant.
func (b *Buffer) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case msg, ok := <-b.messages:
			if !ok {
				return
			}
			// The slot this message occupied is free as soon as it leaves
			// the channel; return its permit before dispatching so a new
			// producer may reserve it.
			b.sem <- struct{}{}
			b.dispatch(ctx, msg)
		case <-ctx.Done():
			b.fail(ctx.Err())
			b.drain()
			return
		}
	}
}

func (b *Buffer) dispatch(ctx context.Context, msg message) {
	// Once the service-error cell is set the inner service is not touched
	// again: every message still reaching the worker fails with that error.
	if err := b.loadErr(); err != nil {
		msg.resp <- result{err: err}
		return
	}
	defer func() {
		if r := recover(); r != nil {
			// A worker panic mid-dispatch must not leave msg.resp unsent:
			// an unsent channel receive blocks its caller forever.
			b.fail(fmt.Errorf("panic in buffer worker: %v", r))
			msg.resp <- result{err: b.loadErr()}
		}
	}()

	for {
		status, err := b.inner.PollReady(ctx)
		if err != nil {
			b.fail(err)
			msg.resp <- result{err: b.loadErr()}
			b.drain()
			return
		}
		if status == tower.StatusReady {
			break
		}
		select {
		case <-time.After(b.opts.pollBackoff):
		case <-ctx.Done():
			msg.resp <- result{err: ctx.Err()}
			return
		}
	}

	rsp, err := b.inner.Call(msg.ctx, msg.req)
	msg.resp <- result{rsp: rsp, err: err}
}

// fail records err in the shared service-error cell exactly once: the
// first failure wins and is what every queued and future message observes.
func (b *Buffer) fail(err error) {
	if err == nil {
		return
	}
	b.errMu.Lock()
	defer b.errMu.Unlock()
	if b.err != nil {
		return
	}
	stored := err
	if towererrors.CodeOf(err) != towererrors.CodeClosed {
		stored = towererrors.Inner(err)
	}
	b.err = stored
	b.opts.logger.Error("buffer worker failed", zap.Error(err))
}

// drain completes every already-queued message's response slot with a
// clone of the shared error cell, so each message enqueued before the
// failure resolves with an error whose root cause is the original.
func (b *Buffer) drain() {
	for {
		select {
		case msg := <-b.messages:
			msg.resp <- result{err: b.loadErr()}
		default:
			return
		}
	}
}

// Wait blocks until the worker goroutine has exited, for tests and for
// orderly shutdown sequencing.
func (b *Buffer) Wait() {
	<-b.done
}
