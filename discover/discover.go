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

// Package discover defines the abstract insert/remove change stream
// consumed by readycache.Cache and balance/p2c.Balancer, along with a
// static slice-backed source for fixed replica sets and a channel adapter
// for sources that produce changes asynchronously.
package discover

import (
	"context"

	"github.com/gotower/tower"
)

// ChangeKind distinguishes an Insert from a Remove.
type ChangeKind int

const (
	// Insert announces that key K now maps to the given service,
	// authoritatively replacing any prior service registered under K.
	Insert ChangeKind = iota
	// Remove announces that key K should no longer be considered part of
	// the discovered set. Removing an absent key is a no-op, not an error.
	Remove
)

// Change is one discovery event for a keyed set of services.
type Change[K comparable] struct {
	Kind    ChangeKind
	Key     K
	Service tower.Service
}

// Inserted constructs an Insert change.
func Inserted[K comparable](key K, svc tower.Service) Change[K] {
	return Change[K]{Kind: Insert, Key: key, Service: svc}
}

// Removed constructs a Remove change.
func Removed[K comparable](key K) Change[K] {
	return Change[K]{Kind: Remove, Key: key}
}

// Discoverer is a lazy, possibly-infinite, poll-based stream of changes.
// Poll must not block; it returns tower.StatusPending when no change is
// presently available (after registering for a wakeup via ctx, where the
// concrete implementation supports one). An error returned from Poll is
// fatal: the consumer must treat the entire discovery source as failed.
type Discoverer[K comparable] interface {
	Poll(ctx context.Context) (tower.Status, Change[K], error)
}

// List is a static, slice-backed Discoverer that reports every entry as an
// Insert exactly once and then reports StatusPending forever; useful for
// tests and for fixed replica sets that never change after construction.
type List[K comparable] struct {
	changes []Change[K]
	next    int
}

var _ Discoverer[string] = (*List[string])(nil)

// NewList constructs a List that will yield one Insert per entry, in the
// map's iteration order, which is unspecified.
func NewList[K comparable](entries map[K]tower.Service) *List[K] {
	l := &List[K]{changes: make([]Change[K], 0, len(entries))}
	for k, svc := range entries {
		l.changes = append(l.changes, Inserted(k, svc))
	}
	return l
}

// Poll yields the next queued Insert, or StatusPending once exhausted.
func (l *List[K]) Poll(ctx context.Context) (tower.Status, Change[K], error) {
	if err := ctx.Err(); err != nil {
		return 0, Change[K]{}, err
	}
	if l.next >= len(l.changes) {
		return tower.StatusPending, Change[K]{}, nil
	}
	c := l.changes[l.next]
	l.next++
	return tower.StatusReady, c, nil
}

// Stream adapts an arbitrary Go channel of changes into a Discoverer.
// Watchers naturally produce changes over channels rather than polled
// streams, so Stream is the production discoverer while List serves tests
// and static replica sets.
type Stream[K comparable] struct {
	changes <-chan Change[K]
	errs    <-chan error
}

var _ Discoverer[string] = (*Stream[string])(nil)

// NewStream constructs a Stream reading changes from ch and, if errs is
// non-nil, terminal errors from errs. Closing ch without sending to errs is
// not itself an error; Poll simply reports StatusPending forever once ch is
// drained and closed.
func NewStream[K comparable](ch <-chan Change[K], errs <-chan error) *Stream[K] {
	return &Stream[K]{changes: ch, errs: errs}
}

// Poll returns the next available change without blocking.
func (s *Stream[K]) Poll(ctx context.Context) (tower.Status, Change[K], error) {
	if err := ctx.Err(); err != nil {
		return 0, Change[K]{}, err
	}
	select {
	case c, ok := <-s.changes:
		if ok {
			return tower.StatusReady, c, nil
		}
		// ch is drained and closed; a nil channel is never ready, so this
		// and every later Poll fall through to errs.
		s.changes = nil
	default:
	}
	if s.errs != nil {
		select {
		case err, ok := <-s.errs:
			if ok && err != nil {
				return 0, Change[K]{}, err
			}
		default:
		}
	}
	return tower.StatusPending, Change[K]{}, nil
}
