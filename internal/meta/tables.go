// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"sync"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
)

// Specs for every side table named in spec.md §3/§4.1.
var (
	MarkBitSpec   = Spec{Name: "mark", BitsPerUnit: 1, UnitShift: layout.LogBytesInWord}
	UnlogBitSpec  = Spec{Name: "unlog", BitsPerUnit: 1, UnitShift: layout.LogBytesInWord}
	LockBitSpec   = Spec{Name: "lock", BitsPerUnit: 1, UnitShift: layout.LogBytesInWord}
	ForwardBitSpec = Spec{Name: "forward", BitsPerUnit: 2, UnitShift: layout.LogBytesInWord}
	RCCountSpec   = Spec{Name: "rc", BitsPerUnit: 4, UnitShift: layout.LogBytesInWord}
	LineMarkSpec  = Spec{Name: "linemark", BitsPerUnit: 8, UnitShift: layout.LogBytesInLine}
	BlockStateSpec = Spec{Name: "blockstate", BitsPerUnit: 8, UnitShift: layout.LogBytesInBlock}
	DefragSourceSpec = Spec{Name: "defragsrc", BitsPerUnit: 1, UnitShift: layout.LogBytesInBlock}
	HoleCountSpec = Spec{Name: "holecount", BitsPerUnit: 8, UnitShift: layout.LogBytesInBlock}
)

// Forwarding-bits states (2 bits, per spec.md §4.3.3 evacuation protocol).
const (
	ForwardNotForwarded uint32 = 0
	ForwardBeingForwarded uint32 = 1 // CAS installed, copy in progress
	ForwardForwarded uint32 = 3      // copy complete, forwarding pointer valid
)

// Plane bundles every side table covering one contiguous heap region.
// It is owned by the Immix space.
type Plane struct {
	Base   address.Address
	Extent uintptr

	Mark        *SideMetadata
	Unlog       *SideMetadata
	Lock        *SideMetadata
	Forward     *SideMetadata
	RC          *SideMetadata
	LineMark    *SideMetadata
	BlockState  *SideMetadata
	DefragSrc   *SideMetadata
	HoleCount   *SideMetadata

	// forwardPtrs is not bit-packed: a forwarded object's new
	// address does not fit in a handful of bits, so it is stored
	// word-granular, keyed by the object's original address. Grounded
	// on spec.md §4.3.3 step 1 ("spin-read the forwarded pointer").
	forwardPtrs map[address.Address]address.Address
	fpMu        sync.RWMutex
}

// NewPlane allocates every side table for a heap region [base,
// base+extent).
func NewPlane(base address.Address, extent uintptr) *Plane {
	return &Plane{
		Base:        base,
		Extent:      extent,
		Mark:        NewSideMetadata(MarkBitSpec, base, extent),
		Unlog:       NewSideMetadata(UnlogBitSpec, base, extent),
		Lock:        NewSideMetadata(LockBitSpec, base, extent),
		Forward:     NewSideMetadata(ForwardBitSpec, base, extent),
		RC:          NewSideMetadata(RCCountSpec, base, extent),
		LineMark:    NewSideMetadata(LineMarkSpec, base, extent),
		BlockState:  NewSideMetadata(BlockStateSpec, base, extent),
		DefragSrc:   NewSideMetadata(DefragSourceSpec, base, extent),
		HoleCount:   NewSideMetadata(HoleCountSpec, base, extent),
		forwardPtrs: make(map[address.Address]address.Address),
	}
}

// SetForwardingPointer records the new address a forwarded object
// copied to.
func (p *Plane) SetForwardingPointer(obj, newAddr address.Address) {
	p.fpMu.Lock()
	p.forwardPtrs[obj] = newAddr
	p.fpMu.Unlock()
}

// ForwardingPointer returns the recorded new address for obj, if any.
func (p *Plane) ForwardingPointer(obj address.Address) (address.Address, bool) {
	p.fpMu.RLock()
	defer p.fpMu.RUnlock()
	a, ok := p.forwardPtrs[obj]
	return a, ok
}

// ClearForwardingPointer removes a forwarding record, done at block
// reset / GC-cycle end.
func (p *Plane) ClearForwardingPointer(obj address.Address) {
	p.fpMu.Lock()
	delete(p.forwardPtrs, obj)
	p.fpMu.Unlock()
}

// ZeroBlock resets every side table entry covering [blockStart,
// blockStart+layout.BytesInBlock) — used when a clean block is
// allocated // block").
func (p *Plane) ZeroBlock(blockStart address.Address) {
	end := blockStart.Add(layout.BytesInBlock)
	p.Mark.ZeroRange(blockStart, end)
	p.Unlog.ZeroRange(blockStart, end)
	p.Lock.ZeroRange(blockStart, end)
	p.Forward.ZeroRange(blockStart, end)
	p.RC.ZeroRange(blockStart, end)
	p.LineMark.ZeroRange(blockStart, end)
}
