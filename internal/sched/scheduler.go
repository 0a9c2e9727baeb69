// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"sync/atomic"

	"github.com/lxr-project/lxr/log"
)

// Scheduler owns the ordered buckets, the worker pool, and the
// postponed-work lists. Grounded on runtime/proc.go's
// schedt global scheduler state and runtime/runtime2.go's
// note/condvar parking primitives, translated to sync.Cond since Go
// already gives goroutines cheap parking without a custom futex.
type Scheduler struct {
	buckets [numStages]*Bucket

	workers []*Worker
	wg      sync.WaitGroup

	mu   sync.Mutex
	cond *sync.Cond

	current      int32 // atomic index into buckets, as a Stage
	shuttingDown int32 // atomic bool

	coordinatorCh chan Packet

	postponeMu           sync.Mutex
	postponed            []Packet
	postponedPrioritized []*prioritizedItem

	log *log.Logger
}

// NewScheduler builds a scheduler with numWorkers goroutines (worker 0
// is the coordinator) and every bucket in spec.md §4.6's canonical
// order pre-created.
func NewScheduler(numWorkers int, logger *log.Logger) *Scheduler {
	s := &Scheduler{
		coordinatorCh: make(chan Packet, 256),
		log:           logger,
	}
	s.cond = sync.NewCond(&s.mu)
	for st := Stage(0); st < numStages; st++ {
		s.buckets[st] = newBucket(st, s)
	}
	s.workers = make([]*Worker, numWorkers)
	for i := range s.workers {
		s.workers[i] = newWorker(i, s)
	}
	return s
}

// Bucket returns the bucket for stage.
func (s *Scheduler) Bucket(stage Stage) *Bucket { return s.buckets[stage] }

// Start launches the worker goroutines. Call once per process
// lifetime; buckets are reused (and reset) across pauses.
func (s *Scheduler) Start() {
	s.wg.Add(len(s.workers))
	for _, w := range s.workers {
		w := w
		go func() {
			defer s.wg.Done()
			w.run()
		}()
	}
}

// Shutdown signals every worker to exit once idle and waits for them.
func (s *Scheduler) Shutdown() {
	atomic.StoreInt32(&s.shuttingDown, 1)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// ResetForPause reopens every bucket for a new GC pause, pointed back
// at Unconstrained. Postponed work from the previous pause is not
// cleared here: callers drain it explicitly via DrainPostponed at the
// point spec.md §4.6 calls for ("consumed when the plan re-enters
// ConcurrentMarking or a later pause").
func (s *Scheduler) ResetForPause() {
	for _, b := range s.buckets {
		b.reset()
	}
	atomic.StoreInt32(&s.current, int32(Unconstrained))
}

// currentStage returns the bucket the scheduler is presently draining.
func (s *Scheduler) currentStage() Stage {
	return Stage(atomic.LoadInt32(&s.current))
}

// AddCoordinatorWork bounces p onto the coordinator's channel; some
// work (stop-world initiation, end-of-GC) must run there // §4.6).
func (s *Scheduler) AddCoordinatorWork(p Packet) {
	s.coordinatorCh <- p
}

// PostponeWork parks p for after the current pause.
func (s *Scheduler) PostponeWork(p Packet) {
	s.postponeMu.Lock()
	s.postponed = append(s.postponed, p)
	s.postponeMu.Unlock()
}

// PostponePrioritized parks p, to run before ordinary postponed work
// once consumed.
func (s *Scheduler) PostponePrioritized(p Packet, priority int) {
	s.postponeMu.Lock()
	s.postponedPrioritized = append(s.postponedPrioritized, &prioritizedItem{packet: p, priority: priority})
	s.postponeMu.Unlock()
}

// PostponeAll parks a whole batch of ordinary work at once.
func (s *Scheduler) PostponeAll(ps []Packet) {
	s.postponeMu.Lock()
	s.postponed = append(s.postponed, ps...)
	s.postponeMu.Unlock()
}

// DrainPostponed removes and returns every postponed packet,
// prioritized ones first.
func (s *Scheduler) DrainPostponed() []Packet {
	s.postponeMu.Lock()
	defer s.postponeMu.Unlock()
	out := make([]Packet, 0, len(s.postponed)+len(s.postponedPrioritized))
	for _, it := range s.postponedPrioritized {
		out = append(out, it.packet)
	}
	out = append(out, s.postponed...)
	s.postponed = nil
	s.postponedPrioritized = nil
	return out
}

// notifyOne wakes a single parked worker, used after an ordinary push
//.
func (s *Scheduler) notifyOne() {
	s.mu.Lock()
	s.cond.Signal()
	s.mu.Unlock()
}

// notifyAll wakes every parked worker, used after a bulk push // §4.6 "notify_all on bulk push") and whenever a bucket opens.
func (s *Scheduler) notifyAll() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// popAny implements the pop_any popping strategy of spec.md §4.6:
// local deque → current bucket prioritized → current bucket normal →
// steal from peers → steal from open buckets in stage order.
func (s *Scheduler) popAny(w *Worker) (Packet, bool) {
	if w.coordinator {
		select {
		case p := <-s.coordinatorCh:
			return p, true
		default:
		}
	}

	if p, ok := w.popLocal(); ok {
		return p, true
	}

	s.advanceIfDrained()
	cur := s.buckets[s.currentStage()]
	if p, ok := cur.PopPrioritized(); ok {
		return p, true
	}
	if p, ok := cur.PopNormal(); ok {
		return p, true
	}

	for _, peer := range s.workers {
		if peer == w {
			continue
		}
		if p, ok := w.stealFrom(peer); ok {
			return p, true
		}
	}

	for st := Stage(0); st < numStages; st++ {
		b := s.buckets[st]
		if !b.IsOpen() {
			continue
		}
		if p, ok := b.PopPrioritized(); ok {
			return p, true
		}
		if p, ok := b.PopNormal(); ok {
			return p, true
		}
	}

	return nil, false
}

// advanceIfDrained opens the next bucket in stage order once the
// current one is activated-and-empty // current bucket causes the scheduler to open the next").
func (s *Scheduler) advanceIfDrained() {
	for {
		st := s.currentStage()
		b := s.buckets[st]
		if !b.TryActivate() {
			return
		}
		if !b.Drained() {
			return
		}
		if st+1 >= numStages {
			return
		}
		if atomic.CompareAndSwapInt32(&s.current, int32(st), int32(st+1)) {
			s.notifyAll()
			continue
		}
		return
	}
}

// waitForWork parks the calling worker until new work might be
// available or the scheduler is shutting down. It returns false if the
// caller should exit its run loop.
func (s *Scheduler) waitForWork(w *Worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.shuttingDown) != 0 {
		return false
	}
	s.cond.Wait()
	return atomic.LoadInt32(&s.shuttingDown) == 0
}

// AllDrained reports whether every bucket through Final has been
// opened and emptied, meaning the pause's scheduled work is complete.
func (s *Scheduler) AllDrained() bool {
	for _, b := range s.buckets {
		if !b.Drained() {
			return false
		}
	}
	return true
}
