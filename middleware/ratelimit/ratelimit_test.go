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

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotower/tower"
	"github.com/gotower/tower/internal/clock"
	intratelimit "github.com/gotower/tower/internal/ratelimit"
	"github.com/gotower/tower/middleware/ratelimit"
)

// TestRateLimitAdmitsOnceThenWaitsForWindow confirms a one-per-100ms rate
// limit admits one request immediately, reports the next Pending, and
// admits again only once the fake clock advances past the window.
func TestRateLimitAdmitsOnceThenWaitsForWindow(t *testing.T) {
	clk := clock.NewFake()
	echo := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		return req, nil
	})
	svc := ratelimit.New(10, ratelimit.WithClock(clk), intratelimit.WithBurstLimit(1)).Wrap(echo)

	status, err := svc.PollReady(context.Background())
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	rsp, err := svc.Call(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", rsp)

	status, err = svc.PollReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tower.StatusPending, status)

	clk.Add(100 * time.Millisecond)

	status, err = svc.PollReady(context.Background())
	require.NoError(t, err)
	require.Equal(t, tower.StatusReady, status)
	rsp, err = svc.Call(context.Background(), "ok2")
	require.NoError(t, err)
	assert.Equal(t, "ok2", rsp)
}

// TestRateLimitDefersToInnerReadiness confirms the layer still consults the
// inner service's own PollReady once the throttle itself admits a request.
func TestRateLimitDefersToInnerReadiness(t *testing.T) {
	clk := clock.NewFake()
	notReady := tower.ServiceFunc(func(ctx context.Context, req tower.Request) (tower.Response, error) {
		t.Fatal("Call should not be reached")
		return nil, nil
	})
	svc := ratelimit.New(10, ratelimit.WithClock(clk)).Wrap(pendingAlways{notReady})

	status, err := svc.PollReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tower.StatusPending, status)
}

type pendingAlways struct {
	inner tower.Service
}

func (s pendingAlways) PollReady(ctx context.Context) (tower.Status, error) {
	return tower.StatusPending, nil
}

func (s pendingAlways) Call(ctx context.Context, req tower.Request) (tower.Response, error) {
	return s.inner.Call(ctx, req)
}
