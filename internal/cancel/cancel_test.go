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

package cancel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairSignalClosesDone(t *testing.T) {
	p := NewPair(context.Background())
	assert.False(t, p.Canceled())

	select {
	case <-p.Done():
		t.Fatal("Done closed before Signal")
	default:
	}

	p.Signal()
	<-p.Done()
	assert.True(t, p.Canceled())
}

func TestPairSignalIsIdempotent(t *testing.T) {
	p := NewPair(context.Background())
	p.Signal()
	assert.NotPanics(t, p.Signal)
	assert.True(t, p.Canceled())
}

func TestPairObservesParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPair(ctx)

	cancel()
	<-p.Done()
	assert.True(t, p.Canceled())
}

func TestPairSame(t *testing.T) {
	a := NewPair(context.Background())
	b := NewPair(context.Background())
	defer a.Signal()
	defer b.Signal()

	assert.True(t, a.Same(a))
	assert.False(t, a.Same(b))
}
