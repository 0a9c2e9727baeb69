// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/lxr-project/lxr/internal/defrag"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/sched"
)

// Mutators is the narrow binding.Collection/ActivePlan view the pause
// driver needs: stopping/resuming mutators and iterating them to post
// per-mutator packets.
type Mutators interface {
	StopAll()
	ResumeAll()
	ForEach(visit func(mutatorID int))
}

// RootScanner reports thread and VM-specific roots into the trace
// (binding.Scanning's scan_thread_roots/scan_vm_specific_roots).
type RootScanner interface {
	ScanStackRoots(enqueue func(obj uintptr))
	ScanVMRoots(enqueue func(obj uintptr))
}

// Populate builds the bucket contents for kind by pushing each
// bucket's initial packets. It installs no can_open predicates: every
// bucket opens once the stages before it have drained, so Closure does
// not wait for the mutators' barrier flush, which runs as a RefClosure
// packet. Work that itself spawns more packets (ScanStackRoot per
// mutator, ProcessIncs/ProcessDecs flushed from barriers) enqueues
// directly into the relevant bucket from inside its Do method; this
// only seeds the pause's starting packets.
func (p *Plan) Populate(kind Kind, mutators Mutators, roots RootScanner, candidates []defrag.Candidate) {
	p.Scheduler.ResetForPause()
	s := p.Scheduler

	s.Bucket(sched.Unconstrained).Push(sched.PacketFunc(func(w *sched.Worker) {
		mutators.StopAll()
	}))

	if kind == InitialMark {
		s.Bucket(sched.PreClosure).Push(sched.PacketFunc(func(w *sched.Worker) {
			p.setState(ConcurrentMarkingState)
		}))
	}

	s.Bucket(sched.Prepare).Push(sched.PacketFunc(func(w *sched.Worker) {
		p.prepare(kind, candidates)
	}))
	mutators.ForEach(func(id int) {
		id := id
		s.Bucket(sched.Prepare).Push(sched.PacketFunc(func(w *sched.Worker) {
			p.prepareMutator(id)
		}))
	})
	s.Bucket(sched.Prepare).Push(sched.PacketFunc(func(w *sched.Worker) {
		// Thread/stack roots and VM-specific roots (globals, interned
		// tables) come from independent sources, so scan both
		// concurrently rather than forcing one to wait on the other;
		// errgroup joins them and surfaces the first panic/error as a
		// single failure instead of ad-hoc goroutine+WaitGroup
		// bookkeeping.
		g, _ := errgroup.WithContext(context.Background())
		g.Go(func() error {
			roots.ScanStackRoots(func(obj uintptr) { p.enqueueRoot(obj) })
			return nil
		})
		g.Go(func() error {
			roots.ScanVMRoots(func(obj uintptr) { p.enqueueRoot(obj) })
			return nil
		})
		_ = g.Wait()
	}))

	s.Bucket(sched.RefClosure).Push(sched.PacketFunc(func(w *sched.Worker) {
		p.processWeakRefs()
	}))
	s.Bucket(sched.RefClosure).Push(sched.PacketFunc(func(w *sched.Worker) {
		mutators.ForEach(func(id int) { p.flushMutator(id) })
	}))

	s.Bucket(sched.Release).Push(sched.PacketFunc(func(w *sched.Worker) {
		p.release(kind)
	}))

	if kind == RefCount {
		s.Bucket(sched.RCProcessDecs).Push(sched.PacketFunc(func(w *sched.Worker) {
			p.processPostponedDecs(true)
		}))
	} else {
		s.Bucket(sched.RCProcessDecs).Push(sched.PacketFunc(func(w *sched.Worker) {
			p.processPostponedDecs(false)
		}))
	}

	s.Bucket(sched.Final).Push(sched.PacketFunc(func(w *sched.Worker) {
		p.EndOfGC(kind, mutators)
	}))
}

// enqueueRoot forwards a root discovered by ScanStackRoots/ScanVMRoots
// to the mark closure installed via SetRootSink (see
// cmd/lxrdemo.newDemo for the wiring). A plan with no sink installed
// reports roots and drops them, rather than failing Populate outright.
func (p *Plan) enqueueRoot(obj uintptr) {
	p.rootSinkMu.Lock()
	sink := p.rootSink
	p.rootSinkMu.Unlock()
	if sink != nil {
		sink(obj)
	}
}

func (p *Plan) prepare(kind Kind, candidates []defrag.Candidate) {
	if kind == InitialMark || kind == FullTraceFast || kind == FullTraceDefrag {
		p.Space.FlipMarkState()
	}
	p.setDefragMode(kind == FullTraceDefrag)
	if kind == FullTraceDefrag {
		selected := p.DefragPolicy.SelectCollectionSet(candidates, p.Config)
		for _, b := range selected {
			immix.Block{Start: b}.SetDefragSource(p.Space.Plane(), true)
		}
	}
}

func (p *Plan) prepareMutator(id int) {
	// Per-mutator reset hook (barrier buffer rewiring, allocator
	// cursor invalidation); concrete behavior lives in the binding's
	// Mutator implementation, reached via the mutator registry the
	// binding maintains.
}

func (p *Plan) processWeakRefs() {
	// Weak-reference sweep hook; the core's contribution is purely
	// structural (drives the bucket), the policy is binding-supplied
	// via Collection.ProcessWeakRefs.
}

func (p *Plan) flushMutator(id int) {
	p.flushHooksMu.Lock()
	flush := p.flushHooks[id]
	p.flushHooksMu.Unlock()
	if flush != nil {
		flush()
	}
}

// release performs the per-pause-kind sweep: RC pauses
// reclaim purely by zero RC counters, while a completed trace (FinalMark
// having run the concurrent mark to closure, or either full-trace kind)
// sweeps by line marks, recycling partially-live blocks as Reusable and
// releasing fully-dead ones. InitialMark only opens a cycle and has
// nothing to sweep yet. The histogram is reset first so it holds this
// sweep's occupancy counts rather than last cycle's.
func (p *Plan) release(kind Kind) {
	p.Space.Histogram().Reset()
	switch kind {
	case RefCount:
		p.Space.SweepAll(immix.SweepRCMode)
	case FinalMark, FullTraceFast, FullTraceDefrag:
		p.Space.SweepAll(immix.SweepLineMarkedMode)
	}
}

func (p *Plan) processPostponedDecs(lazy bool) {
	postponed := p.Scheduler.DrainPostponed()
	for _, w := range postponed {
		p.Scheduler.Bucket(sched.RCProcessDecs).Push(w)
	}
}

// EndOfGC updates the survival predictor, returns the plan to NotInGC
// (an InitialMark pause that entered ConcurrentMarkingState keeps it),
// and resumes mutators. It records no pause metrics and keeps no
// root-set generations to swap.
func (p *Plan) EndOfGC(kind Kind, mutators Mutators) {
	p.Predictor.EndCycle()
	if p.State() != ConcurrentMarkingState || kind != InitialMark {
		p.setState(NotInGC)
	}
	mutators.ResumeAll()
}
