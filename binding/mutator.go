// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binding

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/barrier"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/plan"
)

// Semantics distinguishes allocation request flavors. Alloc and
// PostAlloc accept it but do not act on it: every request is served by
// the same Immix allocator.
type Semantics int

const (
	Default Semantics = iota
	Immortal
	Large
)

// Mutator is the per-thread allocation and barrier context the core
// exposes to the binding. One Mutator is owned by exactly one VM thread.
type Mutator struct {
	id int

	plan    *plan.Plan
	alloc   *immix.Allocator
	barrier *barrier.FieldLogBarrier
}

// NewMutator constructs a mutator context bound to id, allocating out
// of plan's Immix space through the field-logging barrier.
func NewMutator(id int, p *plan.Plan, sink barrier.Sink) *Mutator {
	m := &Mutator{
		id:      id,
		plan:    p,
		alloc:   immix.NewAllocator(p.Space, false),
		barrier: barrier.NewFieldLogBarrier(p.Space.Plane(), sink, func() bool { return p.State() == plan.ConcurrentMarkingState }),
	}
	p.RegisterFlushHook(id, m.Flush)
	return m
}

func (m *Mutator) ID() int { return m.id }

// Alloc is the core's allocation entry point.
// offset and semantics beyond Default are accepted for interface
// completeness; this module's Immix space has a single allocation
// discipline regardless of semantics class.
func (m *Mutator) Alloc(size, align uintptr, offset uintptr, semantics Semantics) (address.Address, error) {
	_ = offset
	_ = semantics
	m.plan.RecordAllocation(size)
	return m.alloc.Alloc(size, align)
}

// PostAlloc runs after the VM has initialized a freshly allocated
// object's header, giving the core a chance to do allocation-time
// bookkeeping.
func (m *Mutator) PostAlloc(obj address.Address, bytes uintptr, semantics Semantics) {
	_ = bytes
	_ = semantics
	// Freshly allocated nursery objects start at RC 0; the first inc
	// (from whoever stores a reference to it) drives promotion, so
	// there is nothing to stamp here beyond what Alloc already did.
}

// WriteBarrier is the core's barrier entry point for
// object_reference_write(mutator, src, slot, val).
func (m *Mutator) WriteBarrier(src, slot, val address.Address) {
	m.barrier.Write(slot, val)
}

// CopyBarrier implements "memory_region_copy(mutator, src_slice,
// dst_slice)": an array-copy (same-layout region) applies the
// single-edge protocol to every destination slot; a clone (fresh
// object, no prior slot contents) only needs increments.
func (m *Mutator) CopyBarrier(dstSlots []address.Address, vals []address.Address, isClone bool) {
	if isClone {
		m.barrier.WriteClone(vals)
		return
	}
	m.barrier.WriteArrayCopy(dstSlots, vals)
}

// Flush drains the mutator's barrier buffers, called at a safepoint
// before a pause's Closure bucket may open.
func (m *Mutator) Flush() { m.barrier.Flush() }

// Destroy releases the mutator's allocator cursor back to the page
// resource.
func (m *Mutator) Destroy() {
	m.plan.UnregisterFlushHook(m.id)
	m.plan.Space.FlushAllocator(m.alloc)
}

// HandleUserCollectionRequest implements handle_user_collection_request:
// the binding calls this when VM-level code explicitly asks for a
// collection (e.g. System.gc()).
func HandleUserCollectionRequest(p *plan.Plan) {
	p.RequestFullCollection()
}
