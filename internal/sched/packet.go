// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements the work-packet scheduler of spec.md §4.6:
// ordered buckets, a fixed worker pool popping local-deque → bucket
// prioritized → bucket normal → steal-from-peers → steal-from-open-
// buckets, a coordinator channel, and postponement. Grounded directly
// on runtime/proc.go's findrunnable/runqget/runqsteal/globrunqget
// work-stealing scheduler and runtime/runtime2.go's p/schedt
// structures, translated from OS-thread scheduling to goroutine-driven
// GC-worker scheduling.
package sched

// Packet is a unit of GC work. Do runs it against the given Worker,
// which gives packets access to the shared GC context (the plan, the
// metadata plane, other packets it may spawn).
type Packet interface {
	Do(w *Worker)
}

// PacketFunc adapts a plain function to the Packet interface, the
// common case for small packets that close over their arguments.
type PacketFunc func(w *Worker)

func (f PacketFunc) Do(w *Worker) { f(w) }
