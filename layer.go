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

package tower

// Layer is a pure Service-transforming decorator. Layers carry only
// configuration; they hold no state of their own beyond what they close
// over at construction, so a single Layer value may wrap many Services
// concurrently (for instance, once per connection).
type Layer interface {
	Wrap(Service) Service
}

// LayerFunc adapts a function into a Layer.
type LayerFunc func(Service) Service

// Wrap calls f.
func (f LayerFunc) Wrap(s Service) Service { return f(s) }

type identityLayer struct{}

func (identityLayer) Wrap(s Service) Service { return s }

// Identity is the two-sided unit of layer composition: Identity.Wrap(s) is
// observationally equivalent to s.
var Identity Layer = identityLayer{}

type stackLayer struct {
	inner, outer Layer
}

// Stack composes two layers so that wrapping a service with the result
// applies inner first and outer second: Stack(inner, outer).Wrap(s) ==
// outer.Wrap(inner.Wrap(s)). Stack is associative:
// Stack(Stack(a, b), c) and Stack(a, Stack(b, c)) produce observationally
// equivalent services for any service s.
func Stack(inner, outer Layer) Layer {
	return stackLayer{inner: inner, outer: outer}
}

func (s stackLayer) Wrap(svc Service) Service {
	return s.outer.Wrap(s.inner.Wrap(svc))
}

// Builder accumulates layers in a fluent API and materializes them around a
// base service. Materialization is infallible by construction: any
// configuration error a layer might raise must be surfaced when the layer
// itself is built, not when it is applied.
//
// Layers passed to Use are applied in the order given: the first Use call
// ends up outermost (it sees a request first and a response last), and the
// last Use call ends up innermost, closest to the wrapped service. This is
// the reverse of Stack's argument order: Use(a).Use(b) wraps a service the
// way Stack(b, a) does.
type Builder struct {
	layers []Layer
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Use appends layer to the builder and returns the builder for chaining.
func (b *Builder) Use(layer Layer) *Builder {
	b.layers = append(b.layers, layer)
	return b
}

// Service materializes the accumulated layers around s.
func (b *Builder) Service(s Service) Service {
	result := s
	for i := len(b.layers) - 1; i >= 0; i-- {
		result = b.layers[i].Wrap(result)
	}
	return result
}
