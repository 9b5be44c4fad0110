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

// Package tower defines the service contract and layer algebra that the
// rest of this module builds on: a Service is a function from a request to
// an eventually-available response with an explicit, pollable readiness
// step, and a Layer is a Service-transforming decorator that composes
// associatively.
//
// Subpackages provide the reusable building blocks described by the core
// contract: buffer (a bounded worker that shares a non-concurrent Service
// across goroutines), readycache (drives a keyed set of Services to
// readiness concurrently), discover (the insert/remove change stream
// consumed by readycache and the balancer), load (pending-request and
// peak-EWMA load metrics), balance/p2c (a power-of-two-choices balancer),
// and middleware/* (timeout, rate-limit, concurrency-limit, load-shed,
// filter, request/response/error mapping, and retry layers).
package tower
