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

package buffer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gotower/tower"
	"github.com/gotower/tower/buffer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type callResult struct {
	rsp tower.Response
	err error
}

// readinessFailsAfterN reports StatusReady for the first allowed PollReady
// calls and then fails every subsequent one with err, modeling an inner
// service whose readiness breaks after accepting some messages.
type readinessFailsAfterN struct {
	mu      sync.Mutex
	allowed int
	err     error
}

func (s *readinessFailsAfterN) PollReady(ctx context.Context) (tower.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allowed > 0 {
		s.allowed--
		return tower.StatusReady, nil
	}
	return 0, s.err
}

func (s *readinessFailsAfterN) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	return req, nil
}

// TestBufferedHappyPath drives a Buffer(capacity=2) over an echo service,
// sending "a", "b", "c" in order and expecting the same order back.
func TestBufferedHappyPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echo := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		return req, nil
	})
	buf := buffer.New(ctx, echo, 2)
	defer buf.Wait()

	call := func(msg string) (tower.Response, error) {
		status, err := buf.PollReady(ctx)
		require.NoError(t, err)
		require.Equal(t, tower.StatusReady, status)
		return buf.Call(ctx, msg)
	}

	for _, msg := range []string{"a", "b", "c"} {
		rsp, err := call(msg)
		require.NoError(t, err)
		assert.Equal(t, msg, rsp)
	}
	cancel()
}

// TestBufferAdmitsThirdOnlyAfterSlotFreed exercises back-pressure:
// with both of a capacity-2 buffer's slots reserved, a third
// PollReady only becomes Ready once the worker has dequeued one of the
// first two messages, even before that message's Call has completed.
func TestBufferAdmitsThirdOnlyAfterSlotFreed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	blocking := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		<-release
		return req, nil
	})
	buf := buffer.New(ctx, blocking, 2)
	defer buf.Wait()

	status, err := buf.PollReady(ctx)
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	doneA := make(chan callResult, 1)
	go func() {
		rsp, err := buf.Call(ctx, "a")
		doneA <- callResult{rsp, err}
	}()

	status, err = buf.PollReady(ctx)
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	doneB := make(chan callResult, 1)
	go func() {
		rsp, err := buf.Call(ctx, "b")
		doneB <- callResult{rsp, err}
	}()

	require.Eventually(t, func() bool {
		status, err := buf.PollReady(ctx)
		require.NoError(t, err)
		return status == tower.StatusReady
	}, time.Second, time.Millisecond, "third slot never freed up")

	close(release)
	a := <-doneA
	b := <-doneB
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	cancel()
}

// TestBufferedWorkerFailureFanOut confirms that once the inner service's
// readiness fails after accepting one message, every already enqueued
// message's response resolves with an error whose cause compares equal to
// the original readiness error.
func TestBufferedWorkerFailureFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("readiness exploded")
	inner := &readinessFailsAfterN{allowed: 1, err: boom}
	buf := buffer.New(ctx, inner, 2)
	defer buf.Wait()

	status, err := buf.PollReady(ctx)
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	rsp, err := buf.Call(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "first", rsp)

	status, err = buf.PollReady(ctx)
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	doneA := make(chan callResult, 1)
	go func() {
		rsp, err := buf.Call(ctx, "second")
		doneA <- callResult{rsp, err}
	}()

	status, err = buf.PollReady(ctx)
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	doneB := make(chan callResult, 1)
	go func() {
		rsp, err := buf.Call(ctx, "third")
		doneB <- callResult{rsp, err}
	}()

	a := <-doneA
	b := <-doneB

	assert.ErrorIs(t, a.err, boom)
	assert.ErrorIs(t, b.err, boom)

	status, err = buf.PollReady(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, tower.Status(0), status)
	cancel()
}

// TestBufferCallWithoutReservationPanics documents the reserve-then-
// dispatch caller contract: Call without a prior successful PollReady
// panics rather than silently blocking forever.
func TestBufferCallWithoutReservationPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echo := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		return req, nil
	})
	buf := buffer.New(ctx, echo, 1)
	defer buf.Wait()

	status, err := buf.PollReady(ctx)
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	_, err = buf.Call(ctx, "only reservation")
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = buf.Call(ctx, "no reservation")
	})
	cancel()
}

// TestBufferShutdownPopulatesErrorCell confirms that canceling the context
// a Buffer was constructed with stops the worker and poisons every later
// PollReady/Call with a Closed error, matching the "upstream (buffered
// worker) went away" error class.
func TestBufferShutdownPopulatesErrorCell(t *testing.T) {
	rootCtx, cancel := context.WithCancel(context.Background())
	echo := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		return req, nil
	})
	buf := buffer.New(rootCtx, echo, 1)

	cancel()
	buf.Wait()

	status, err := buf.PollReady(context.Background())
	assert.Error(t, err)
	assert.Equal(t, tower.StatusPending, status)
}

// TestBufferInFlightDispatchObservesCancellation confirms that a message
// already handed to the worker, but still stuck retrying a Pending
// readiness poll, resolves with the root context's cancellation error
// rather than blocking forever.
func TestBufferInFlightDispatchObservesCancellation(t *testing.T) {
	rootCtx, cancel := context.WithCancel(context.Background())

	neverReady := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		t.Fatal("Call should never be reached; PollReady never reports Ready")
		return nil, nil
	})
	buf := buffer.New(rootCtx, serviceFuncPollPending{neverReady}, 1)

	status, err := buf.PollReady(context.Background())
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)

	done := make(chan callResult, 1)
	go func() {
		rsp, err := buf.Call(rootCtx, "stuck")
		done <- callResult{rsp, err}
	}()

	cancel()
	r := <-done
	assert.ErrorIs(t, r.err, context.Canceled)
	buf.Wait()
}

// serviceFuncPollPending wraps a Service so its PollReady always reports
// StatusPending while its Call still delegates, used to keep the worker's
// dispatch retry loop spinning so cancellation has something to interrupt.
type serviceFuncPollPending struct {
	inner tower.Service
}

func (s serviceFuncPollPending) PollReady(ctx context.Context) (tower.Status, error) {
	return tower.StatusPending, nil
}

func (s serviceFuncPollPending) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	return s.inner.Call(ctx, req)
}
