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

// Package cancel provides the one-shot cancellation primitive used to evict
// pending readiness tasks from a readycache.Cache. It is built on
// context.CancelFunc rather than a literal oneshot channel because
// context.Context is the idiomatic Go cancellation signal, observable from
// either end exactly as a oneshot sender/receiver pair would be.
package cancel

import "context"

// Pair bundles a cancellation sender and receiver. Signal is idempotent and
// safe to call from any goroutine; Done() is observable from any goroutine.
type Pair struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPair returns a fresh cancellation pair derived from parent.
func NewPair(parent context.Context) Pair {
	ctx, cancel := context.WithCancel(parent)
	return Pair{ctx: ctx, cancel: cancel}
}

// Signal cancels the pair, which every holder of it observes through
// Done(); calling Signal more than once is a no-op.
func (p Pair) Signal() {
	p.cancel()
}

// Done returns a channel closed once Signal has been called or the parent
// context given to NewPair has been canceled.
func (p Pair) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Canceled reports whether Signal has already been called or the parent
// context has been canceled.
func (p Pair) Canceled() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

// Context returns the pair's context, for callers (such as readycache's
// background readiness tasks) that need to pass it to a Service's
// PollReady as the cancellation-aware context.
func (p Pair) Context() context.Context {
	return p.ctx
}

// Same reports whether p and other are the same cancellation pair, i.e.
// whether they share the same underlying context. It lets a consumer
// detect that a pair it is holding has been superseded by a fresh Push
// without comparing unexported fields directly.
func (p Pair) Same(other Pair) bool {
	return p.ctx == other.ctx
}
