// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"sync"

	"github.com/lxr-project/lxr/address"
)

// BufferPool recycles []address.Address backing arrays of the kind
// ProcessIncs/ProcessDecs-style packets carry. Built directly on
// sync.Pool, which already provides the per-P-local-plus-victim-cache
// design of the standard library's pool. The barriers and sinks in
// this module allocate their own slices and do not draw from it.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool constructs a pool of []address.Address buffers
// pre-sized to cap.
func NewBufferPool(cap int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return make([]address.Address, 0, cap)
			},
		},
	}
}

// Get returns an empty buffer, reused if one is available.
func (p *BufferPool) Get() []address.Address {
	return p.pool.Get().([]address.Address)[:0]
}

// Put returns buf to the pool for reuse. Callers must not touch buf
// afterward.
func (p *BufferPool) Put(buf []address.Address) {
	p.pool.Put(buf) //nolint:staticcheck // intentionally retains capacity
}
