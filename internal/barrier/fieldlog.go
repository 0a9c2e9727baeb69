// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package barrier implements the two write-barrier variants, sharing
// the write(src, slot, val)/flush() contract. Grounded on
// runtime/mgcwork.go's gcWork double-buffer (wbuf1/wbuf2
// producer/consumer split), reused here as the per-mutator
// inc/dec/mod-buffer queues that flush into scheduler work packets.
package barrier

import (
	"runtime"
	"sync/atomic"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/meta"
)

// Capacity is the default sub-buffer flush threshold (1024 entries).
const Capacity = 1024

// Sink receives a mutator's buffers at flush time, handing them off as
// scheduler ProcessIncs/ProcessDecs/ProcessSATB work packets.
type Sink interface {
	ProcessIncs(edges []address.Address)
	ProcessDecs(objs []address.Address)
	ProcessSATB(objs []address.Address)
}

// FieldLogBarrier is the LXR field-logging barrier.
// One instance is owned by a single mutator; it is not safe for
// concurrent use by multiple goroutines.
type FieldLogBarrier struct {
	plane *meta.Plane
	sink  Sink

	// concurrentMarking reports whether an SATB pass is in progress;
	// consulted at flush time to decide whether decs must also be
	// cloned into the SATB stream.
	concurrentMarking func() bool

	incs []address.Address
	decs []address.Address
	satb []address.Address
}

// NewFieldLogBarrier constructs a barrier over plane, flushing through
// sink.
func NewFieldLogBarrier(plane *meta.Plane, sink Sink, concurrentMarking func() bool) *FieldLogBarrier {
	return &FieldLogBarrier{
		plane:             plane,
		sink:              sink,
		concurrentMarking: concurrentMarking,
		incs:              make([]address.Address, 0, Capacity),
		decs:              make([]address.Address, 0, Capacity),
		satb:              make([]address.Address, 0, Capacity),
	}
}

// Write implements the six-step single-edge protocol for one field
// write *slot = val: lockAndLog reads oldTarget, the value slot held
// before the write, under the edge lock, and Write then stores val into
// slot whether or not the edge still needed logging.
func (b *FieldLogBarrier) Write(slot address.Address, val address.Address) {
	old, ok := b.lockAndLog(slot)
	atomic.StoreUint64((*uint64)(wordPtr(slot)), uint64(val))
	if !ok {
		// Edge already logged this epoch; nothing further to record.
		return
	}
	if !old.IsZero() {
		b.decs = append(b.decs, old)
	}
	if !val.IsZero() {
		b.incs = append(b.incs, val)
	}
	b.maybeFlush()
}

// lockAndLog performs steps 1-3: spin-CAS the lock bit, read the old
// target, store the logged state, release the lock. It returns
// (oldTarget, true) on success, or (zero, false) if the edge was
// already logged (bit already 1) and no barrier work is needed.
func (b *FieldLogBarrier) lockAndLog(slot address.Address) (address.Address, bool) {
	spins := 0
	for {
		if b.plane.Unlog.LoadAtomic(slot) == 1 {
			return address.Zero, false
		}
		if b.plane.Lock.CompareAndSwap(slot, 0, 1) {
			break
		}
		spins++
		if spins&0xff == 0 {
			runtime.Gosched()
		}
	}
	old := address.Address(loadWord(slot))
	b.plane.Unlog.StoreAtomic(slot, 1)
	b.plane.Lock.StoreAtomic(slot, 0)
	return old, true
}

// loadWord reads the raw 8-byte value currently stored at addr,
// i.e. the pointer the mutator is about to overwrite.
func loadWord(addr address.Address) uint64 {
	return atomic.LoadUint64((*uint64)(wordPtr(addr)))
}

// WriteArrayCopy applies the single-edge protocol to every slot in an
// array-copy destination, one Write call per slot in the destination
// slice.
func (b *FieldLogBarrier) WriteArrayCopy(slots []address.Address, vals []address.Address) {
	for i, slot := range slots {
		b.Write(slot, vals[i])
	}
}

// WriteClone increments every field of a freshly cloned object,
// without consulting the lock/unlog protocol: the destination slots
// held no prior value, so there is nothing to decrement.
func (b *FieldLogBarrier) WriteClone(vals []address.Address) {
	for _, v := range vals {
		if !v.IsZero() {
			b.incs = append(b.incs, v)
		}
	}
	b.maybeFlush()
}

// LoadReference records a reference observed by a read barrier as an
// additional SATB node, used only while concurrent marking is active.
func (b *FieldLogBarrier) LoadReference(ref address.Address) {
	if ref.IsZero() || b.concurrentMarking == nil || !b.concurrentMarking() {
		return
	}
	b.satb = append(b.satb, ref)
	if len(b.satb) >= Capacity {
		b.flushSATB()
	}
}

func (b *FieldLogBarrier) maybeFlush() {
	if len(b.incs) >= Capacity || len(b.decs) >= Capacity {
		b.Flush()
	}
}

// Flush drains incs/decs to the sink. If concurrent marking is in
// progress, decs is also cloned into the SATB stream before being
// handed off, since a dying edge's old target may be the only
// remaining path a concurrent tracer has to an object.
func (b *FieldLogBarrier) Flush() {
	if b.concurrentMarking != nil && b.concurrentMarking() && len(b.decs) > 0 {
		b.satb = append(b.satb, b.decs...)
	}
	if len(b.incs) > 0 {
		b.sink.ProcessIncs(b.incs)
		b.incs = make([]address.Address, 0, Capacity)
	}
	if len(b.decs) > 0 {
		b.sink.ProcessDecs(b.decs)
		b.decs = make([]address.Address, 0, Capacity)
	}
	b.flushSATB()
}

func (b *FieldLogBarrier) flushSATB() {
	if len(b.satb) == 0 {
		return
	}
	b.sink.ProcessSATB(b.satb)
	b.satb = make([]address.Address, 0, Capacity)
}
