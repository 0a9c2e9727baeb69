// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mutator wires a barrier's flushed buffers into the RC table
// and the scheduler's RCProcessDecs bucket, the "ProcessIncs/ProcessDecs
// packets" spec.md §4.4 describes. Grounded on runtime/mgcwork.go's
// gcWork.dispose, which hands a full work buffer to the global work
// list exactly where this sink hands a flushed buffer to a scheduler
// bucket.
package mutator

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/rc"
	"github.com/lxr-project/lxr/internal/sched"
)

// Scanner lets the mark closure visit an object's outgoing edges and
// query the facts Evacuate needs (size, LOS membership) without this
// package depending on package binding directly; any binding's object
// graph (e.g. binding/fake's Scanning, or anything satisfying
// internal/rc.Graph) already implements this structurally.
type Scanner interface {
	ForEachEdge(obj address.Address, visit func(child address.Address))
	ObjectSize(obj address.Address) uintptr
	IsLargeObject(obj address.Address) bool
}

// Sink implements barrier.Sink by driving RC increments synchronously
// (they never recurse, spec.md §4.4) and posting decrements as a
// ProcessDecs packet for the scheduler to run (decrements may recurse
// through process_dead_object, so they run on a worker, not inline on
// the mutator).
type Sink struct {
	table     *rc.Table
	processor *rc.DeadProcessor
	scheduler *sched.Scheduler
	predictor *rc.SurvivalPredictor
	space     *immix.Space
	scan      Scanner
	copyAlloc *immix.Allocator

	// defrag, true only during a FullTraceDefrag pause, tells trace to
	// evacuate objects living in defrag-source blocks instead of
	// marking them in place.
	defrag bool
}

// NewSink builds a Sink over table/processor/scheduler. space and scan
// drive the mark closure ProcessSATB posts: space.AttemptMark decides
// which objects are newly reached, scan.ForEachEdge walks each one's
// outgoing edges to find further work, per spec.md §4.3.2. The copying
// allocator it builds over space backs Evacuate's destination
// allocation when a defrag pause moves objects out of collection-set
// blocks (spec.md §4.6).
func NewSink(table *rc.Table, processor *rc.DeadProcessor, scheduler *sched.Scheduler, predictor *rc.SurvivalPredictor, space *immix.Space, scan Scanner) *Sink {
	var copyAlloc *immix.Allocator
	if space != nil {
		copyAlloc = immix.NewAllocator(space, true)
	}
	return &Sink{table: table, processor: processor, scheduler: scheduler, predictor: predictor, space: space, scan: scan, copyAlloc: copyAlloc}
}

// SetDefragMode toggles whether trace evacuates defrag-source objects
// instead of marking them in place; plan's prepare step (the Prepare
// packet Populate posts) calls it through Plan.SetDefragModeSink once
// per pause, per the pause kind it is driving (spec.md §4.3.4).
func (s *Sink) SetDefragMode(defrag bool) { s.defrag = defrag }

// ProcessIncs increments every edge's target counter inline.
func (s *Sink) ProcessIncs(edges []address.Address) {
	for _, e := range edges {
		if e.IsZero() {
			continue
		}
		s.table.Inc(e)
	}
}

// ProcessDecs posts a packet to the RCProcessDecs bucket that
// decrements every object and runs process_dead_object for any that
// reach zero.
func (s *Sink) ProcessDecs(objs []address.Address) {
	batch := append([]address.Address(nil), objs...)
	s.scheduler.Bucket(sched.RCProcessDecs).Push(sched.PacketFunc(func(w *sched.Worker) {
		for _, o := range batch {
			if o.IsZero() {
				continue
			}
			if s.table.Dec(o) == rc.DecKilled {
				s.processor.Process(o)
			}
		}
	}))
}

// ProcessSATB posts the snapshot-at-the-beginning roots/edges as a
// Closure-stage packet that drives the trace closure to a fixpoint:
// per spec.md §4.3.2, a mark that succeeds enqueues the object into
// the closure, so every object newly reached from objs is marked and
// scanned in turn until nothing new is found.
func (s *Sink) ProcessSATB(objs []address.Address) {
	batch := append([]address.Address(nil), objs...)
	s.scheduler.Bucket(sched.Closure).Push(sched.PacketFunc(func(w *sched.Worker) {
		s.trace(batch)
	}))
}

// trace runs the mark closure over worklist: pop an object and either
// mark it in place or, during a FullTraceDefrag pause, evacuate it out
// of its block if that block was chosen as a collection-set source
// (spec.md §4.6's opportunistic copying, scenario 3: source block
// Marked -> Unallocated with forwarding pointers installed). Either
// way a win marks the lines of the object's (possibly new, post-copy)
// location for this epoch, scans that location's edges and pushes
// newly discovered children back onto the worklist.
// Objects already marked this cycle (lost the CAS, or Evacuate found
// them already marked) are dropped without rescanning, since whoever
// won already did or will do the scan.
func (s *Sink) trace(worklist []address.Address) {
	if s.space == nil || s.scan == nil {
		return
	}
	for len(worklist) > 0 {
		n := len(worklist)
		obj := worklist[n-1]
		worklist = worklist[:n-1]
		if obj.IsZero() {
			continue
		}

		target := obj
		if s.defrag && !s.scan.IsLargeObject(obj) && immix.BlockOf(obj).IsDefragSource(s.space.Plane()) {
			if s.space.IsMarked(obj) {
				continue
			}
			size := s.scan.ObjectSize(obj)
			result, err := s.space.Evacuate(obj, size, s.copyAlloc, false)
			if err != nil {
				continue
			}
			target = result.NewAddress
		} else if !s.space.AttemptMark(obj) {
			continue
		}
		immix.MarkLinesForObject(s.space.Plane(), target, s.scan.ObjectSize(target), s.space.CurrentMarkState())

		s.scan.ForEachEdge(target, func(child address.Address) {
			if !child.IsZero() {
				worklist = append(worklist, child)
			}
		})
	}
}
