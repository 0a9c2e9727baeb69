// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pages

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
)

// uintptrOf returns the address of a byte slice's backing array. The
// slice (and thus the arena) must be kept alive by the caller for as
// long as any address derived from it is in use; byteArena retains
// storage for its own lifetime to guarantee this.
func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// Arena is the thin collaborator standing in for the real
// memory-mapping layer, which spec.md §1 explicitly places out of
// scope ("memory-mapped/page-resource layer... external collaborator").
// A production binding would back this with mmap'd OS pages; the core
// only needs monotonic, chunk-granular address reservation.
type Arena interface {
	// Reserve hands back the base address of a fresh, zeroed region of
	// exactly layout.BytesInChunk bytes, or an error if the arena's
	// total capacity is exhausted.
	Reserve() (address.Address, error)

	// Base and Capacity report the arena's whole address range,
	// [Base, Base+Capacity), fixed at construction time. Callers use
	// this to size a metadata plane over the entire arena up front,
	// rather than growing the plane chunk by chunk alongside Reserve.
	Base() address.Address
	Capacity() uintptr
}

// byteArena backs the Arena interface with a single contiguous Go
// byte slice, carved into chunks on demand. This is the "in-process
// byte-slice arena" named in SPEC_FULL.md §1.
type byteArena struct {
	mu       sync.Mutex
	storage  []byte
	base     address.Address
	capacity uintptr
	reserved uintptr
}

// NewByteArena allocates a Go-heap-backed arena of the given total
// capacity in bytes, rounded up to a whole number of chunks. Its base
// is aligned to a chunk boundary, so aligning any address inside it
// down to a block or chunk lands on a region Reserve hands out.
func NewByteArena(capacity uintptr) Arena {
	capacity = (capacity + layout.BytesInChunk - 1) &^ (layout.BytesInChunk - 1)
	buf := make([]byte, capacity+layout.BytesInChunk)
	base := (uintptrOf(buf) + layout.BytesInChunk - 1) &^ (layout.BytesInChunk - 1)
	return &byteArena{
		storage:  buf,
		base:     address.Address(base),
		capacity: capacity,
	}
}

func (a *byteArena) Base() address.Address { return a.base }

func (a *byteArena) Capacity() uintptr { return a.capacity }

func (a *byteArena) Reserve() (address.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reserved+layout.BytesInChunk > a.capacity {
		return address.Zero, fmt.Errorf("pages: arena exhausted (capacity=%d bytes)", a.capacity)
	}
	base := a.base.Add(a.reserved)
	a.reserved += layout.BytesInChunk
	return base, nil
}
