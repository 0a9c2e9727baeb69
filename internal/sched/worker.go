// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "sync"

// Worker is one member of the fixed GC worker pool. Worker 0 doubles
// as the coordinator.
// Grounded on runtime/runtime2.go's p (processor) struct: a private
// run queue plus the ability to have work stolen from it.
type Worker struct {
	ID        int
	sched     *Scheduler
	coordinator bool

	mu    sync.Mutex
	local []Packet // LIFO; stealers take from the opposite end
}

func newWorker(id int, s *Scheduler) *Worker {
	return &Worker{ID: id, sched: s, coordinator: id == 0}
}

// Push adds a packet to this worker's own local deque.
func (w *Worker) Push(p Packet) {
	w.mu.Lock()
	w.local = append(w.local, p)
	w.mu.Unlock()
	w.sched.notifyOne()
}

// popLocal pops from the tail of this worker's own deque (LIFO,
// grounded on runqget's "get g, with inheritTime" local-queue pop).
func (w *Worker) popLocal() (Packet, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.local)
	if n == 0 {
		return nil, false
	}
	p := w.local[n-1]
	w.local[n-1] = nil
	w.local = w.local[:n-1]
	return p, true
}

// stealFrom takes up to half of victim's local deque (grounded on
// runqsteal's "steal half the queue" policy), returning one packet to
// run immediately and keeping the rest on the stealer's own deque.
func (w *Worker) stealFrom(victim *Worker) (Packet, bool) {
	if victim == w {
		return nil, false
	}
	victim.mu.Lock()
	n := len(victim.local)
	if n == 0 {
		victim.mu.Unlock()
		return nil, false
	}
	take := (n + 1) / 2
	if take == 0 {
		take = 1
	}
	stolen := make([]Packet, take)
	copy(stolen, victim.local[:take])
	copy(victim.local, victim.local[take:])
	victim.local = victim.local[:n-take]
	victim.mu.Unlock()

	if len(stolen) == 0 {
		return nil, false
	}
	first := stolen[0]
	rest := stolen[1:]
	if len(rest) > 0 {
		w.mu.Lock()
		w.local = append(w.local, rest...)
		w.mu.Unlock()
	}
	return first, true
}

// run is the worker's main loop: pop a packet and run it until none
// remain. It returns when the scheduler signals shutdown.
func (w *Worker) run() {
	for {
		p, ok := w.sched.popAny(w)
		if !ok {
			if w.sched.waitForWork(w) {
				continue
			}
			return
		}
		p.Do(w)
	}
}

// Scheduler returns the scheduler this worker belongs to, so packets
// running on this worker can post further work to its buckets.
func (w *Worker) Scheduler() *Scheduler { return w.sched }
