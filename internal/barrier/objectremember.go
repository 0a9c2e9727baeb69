// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/meta"
)

// ModBufSink receives a drained mod-buffer at flush time.
type ModBufSink interface {
	ProcessModBuf(objs []address.Address, nurseryPause bool)
}

// ObjectRememberBarrier is the simpler alternative to the field-log
// barrier: it remembers whole source objects rather than individual
// edges, trading precision for a much smaller per-write fast path.
type ObjectRememberBarrier struct {
	plane *meta.Plane
	sink  ModBufSink

	nurseryPause func() bool

	modBuf []address.Address
}

// NewObjectRememberBarrier constructs the barrier over plane, flushing
// through sink.
func NewObjectRememberBarrier(plane *meta.Plane, sink ModBufSink, nurseryPause func() bool) *ObjectRememberBarrier {
	return &ObjectRememberBarrier{
		plane:        plane,
		sink:         sink,
		nurseryPause: nurseryPause,
		modBuf:       make([]address.Address, 0, Capacity),
	}
}

// Write records a write to any field of o: on the first write to o
// this cycle (CAS unlog bit 1->0 succeeds), o is pushed into the
// mod-buffer.
func (b *ObjectRememberBarrier) Write(o address.Address) {
	if !b.plane.Unlog.CompareAndSwap(o, 1, 0) {
		return
	}
	b.modBuf = append(b.modBuf, o)
	if len(b.modBuf) >= Capacity {
		b.Flush()
	}
}

// Flush hands the accumulated mod-buffer to a ProcessModBuf packet,
// which re-logs every object (restores its unlog bit to 1) and, if
// this is a nursery pause, scans them for roots into the young
// generation.
func (b *ObjectRememberBarrier) Flush() {
	if len(b.modBuf) == 0 {
		return
	}
	nursery := false
	if b.nurseryPause != nil {
		nursery = b.nurseryPause()
	}
	b.sink.ProcessModBuf(b.modBuf, nursery)
	b.modBuf = make([]address.Address, 0, Capacity)
}
