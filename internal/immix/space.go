// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/meta"
	"github.com/lxr-project/lxr/internal/pages"
	"github.com/lxr-project/lxr/log"
)

// addressSlice views n bytes starting at a as a byte slice, used only
// by copyBytes to physically relocate an object during evacuation.
func addressSlice(a address.Address, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(a))), n)
}

// Space is the Immix space : it owns the metadata plane
// and the page resource, and provides the allocate/mark/sweep/evacuate
// operations every Allocator and GC worker drives.
type Space struct {
	plane *meta.Plane
	pager *pages.PageResource

	// markState is always 1 or 2, the value that means "marked" for the
	// in-progress (or most recently completed) trace. Flipping it each
	// cycle lets attempt_mark CAS objects without a separate
	// heap-wide mark-bit clear, per spec.md §4.3.2. 0 is deliberately
	// never a live mark state: it is the Mark/LineMark side tables'
	// zero-initialized "never touched" value, so a freshly allocated
	// object or line must never be mistaken for already-marked.
	markState uint32

	// reusable holds blocks pushed by a line-marked sweep that still
	// have at least one free line 	// least one free line").
	reusable pages.LFStack[address.Address]

	histogram   *Histogram
	copyReserve *pages.CopyReserve
	rcMode      bool
	log         *log.Logger
}

// NewSpace constructs an Immix space backed by pager. rcMode selects
// RC-dead sweeping/hole-search (true) over line-mark sweeping (false),
// per spec.md §4.3.4.
func NewSpace(pager *pages.PageResource, plane *meta.Plane, rcMode bool, copyReserveBlocks int64, logger *log.Logger) *Space {
	return &Space{
		plane:       plane,
		pager:       pager,
		markState:   1,
		histogram:   NewHistogram(layout.LinesInBlock),
		copyReserve: pages.NewCopyReserve(copyReserveBlocks),
		rcMode:      rcMode,
		log:         logger,
	}
}

// CurrentMarkState returns the bit value meaning "marked" this cycle.
func (s *Space) CurrentMarkState() uint32 { return atomic.LoadUint32(&s.markState) }

// otherMarkState returns the complement of a live mark state within
// {1, 2}, the value FlipMarkState moves away from.
func otherMarkState(s uint32) uint32 { return 3 - s }

// FlipMarkState toggles the mark-state value between 1 and 2 and
// resets the occupancy histogram; called from a pause's prepare step
// for InitialMark, FullTraceFast and FullTraceDefrag pauses.
func (s *Space) FlipMarkState() {
	for {
		old := atomic.LoadUint32(&s.markState)
		if atomic.CompareAndSwapUint32(&s.markState, old, otherMarkState(old)) {
			break
		}
	}
	s.histogram.Reset()
}

// AttemptMark is the CAS from !mark_state to mark_state described in
// spec.md §4.3.2: it commits want unless the slot already holds want,
// so it returns true exactly once per object per cycle for whichever
// caller wins the race, regardless of whether the slot's prior value
// was the opposite live epoch or the 0 a never-touched object still
// carries.
func (s *Space) AttemptMark(obj address.Address) bool {
	want := s.CurrentMarkState()
	_, committed := s.plane.Mark.FetchUpdate(obj, func(old uint32) (uint32, bool) {
		if old == want {
			return old, false
		}
		return want, true
	})
	return committed
}

// IsMarked reports whether obj's mark bit already matches this
// cycle's mark state.
func (s *Space) IsMarked(obj address.Address) bool {
	return s.plane.Mark.LoadAtomic(obj) == s.CurrentMarkState()
}

// Plane exposes the underlying metadata plane to collaborators (rc,
// barrier, sched) that share side tables with the Immix space.
func (s *Space) Plane() *meta.Plane { return s.plane }

// CopyReserve exposes the evacuation copy-budget semaphore.
func (s *Space) CopyReserve() *pages.CopyReserve { return s.copyReserve }

// Histogram exposes the occupancy histogram for the defrag policy.
func (s *Space) Histogram() *Histogram { return s.histogram }

// --- Allocation -------------------------------------

// Allocator is a single-owner bump-pointer cursor over the Immix
// space, shared by mutator fast-path allocation and GC-worker copy
// allocation. Grounded on runtime/malloc.go's mcache bump-pointer
// fast path (nextFreeFast / c.tiny+tinyoffset).
type Allocator struct {
	space    *Space
	local    pages.BlockArray
	copying bool // true for the copy allocator
	cursor   address.Address
	limit    address.Address
	curBlock Block
	curLine  int // next line to resume hole search from, within curBlock
	haveHole bool
}

// NewAllocator builds an allocator over space. Pass copying=true for
// the GC-worker evacuation allocator; its clean blocks start in state
// Marked rather than Nursery.
func NewAllocator(space *Space, copying bool) *Allocator {
	return &Allocator{space: space, copying: copying}
}

// Alloc returns size bytes aligned to align (a power of two), or an
// error if the space cannot grow further.
func (a *Allocator) Alloc(size, align uintptr) (address.Address, error) {
	for {
		start := a.cursor.AlignUp(align)
		end := start.Add(size)
		if uintptr(a.cursor) != 0 && uintptr(end) <= uintptr(a.limit) {
			a.cursor = end
			return start, nil
		}
		if err := a.refill(size); err != nil {
			return address.Zero, err
		}
	}
}

// refill finds the next usable range, either by continuing a hole
// search in the current reusable block or by falling back to a clean
// block.
func (a *Allocator) refill(size uintptr) error {
	if a.haveHole {
		if start, end, next, ok := a.space.holeSearch(a.curBlock, a.curLine, a.space.rcMode); ok {
			a.cursor, a.limit, a.curLine = start, end, next
			return nil
		}
		// Block exhausted: it has no more holes this cycle. The block
		// keeps its state and is not released here.
		a.haveHole = false
	}

	// Try another reusable block.
	if bAddr, ok := a.space.reusable.Pop(); ok {
		block := Block{Start: bAddr}
		block.CompareAndSwapState(a.space.plane, block.State(a.space.plane), StateReusing)
		if start, end, next, ok := a.space.holeSearch(block, 0, a.space.rcMode); ok {
			a.curBlock, a.curLine, a.haveHole = block, next, true
			a.cursor, a.limit = start, end
			return nil
		}
		// Nothing usable left in this block; drop it and try a clean one.
	}

	return a.allocCleanBlock(size)
}

// allocCleanBlock pulls a fresh block from the page resource, zeroes
// its metadata, sets its initial state, and installs it as the
// allocator's current bump range.
func (a *Allocator) allocCleanBlock(size uintptr) error {
	if size > layout.BytesInBlock {
		return fmt.Errorf("immix: request of %d bytes exceeds block size", size)
	}
	addr, err := a.space.pager.AllocBlock(&a.local)
	if err != nil {
		return err
	}
	block := Block{Start: addr}
	block.Reset(a.space.plane)
	if a.copying {
		block.SetState(a.space.plane, StateMarked)
	} else {
		block.SetState(a.space.plane, StateNursery)
	}
	a.curBlock = block
	a.haveHole = false
	a.cursor = block.Start
	a.limit = block.End()
	return nil
}

// holeSearch walks lines of b starting at fromLine, looking for the
// next maximal free run — a run of lines that are (RC mode) covered
// entirely by zero RC counters, or (mark mode) unmarked this epoch.
// The first line of a discovered run is conservatively skipped to
// absorb objects straddling the previous used region.
// It returns the next line to resume from so callers can keep walking
// the same block across multiple Alloc refills.
func (s *Space) holeSearch(b Block, fromLine int, rcMode bool) (start, end address.Address, nextLine int, ok bool) {
	epoch := s.CurrentMarkState()
	line := fromLine
	for line < layout.LinesInBlock {
		if s.lineOccupied(b, line, epoch, rcMode) {
			line++
			continue
		}
		// Found the start of a free run; conservatively skip it.
		runStart := line
		for line < layout.LinesInBlock && !s.lineOccupied(b, line, epoch, rcMode) {
			line++
		}
		if line-runStart < 2 {
			// Run too small once the first line is skipped.
			continue
		}
		lo := b.Start.Add(uintptr(runStart+1) * layout.BytesInLine)
		hi := b.Start.Add(uintptr(line) * layout.BytesInLine)
		s.clearLogBits(lo, hi)
		return lo, hi, line, true
	}
	return address.Zero, address.Zero, line, false
}

// FindHole exposes holeSearch for callers outside this package that
// need to drive the hole-finding allocation strategy directly (e.g.
// tests exercising the conservative first-line skip in isolation from
// a full Alloc refill).
func (s *Space) FindHole(b Block, fromLine int, rcMode bool) (start, end address.Address, nextLine int, ok bool) {
	return s.holeSearch(b, fromLine, rcMode)
}

// lineOccupied reports whether line i of b should be treated as
// in-use by the hole search.
func (s *Space) lineOccupied(b Block, i int, epoch uint32, rcMode bool) bool {
	lineStart := b.Start.Add(uintptr(i) * layout.BytesInLine)
	if rcMode {
		return !s.plane.RC.IsZeroRange(lineStart, lineStart.Add(layout.BytesInLine))
	}
	return Line{Start: lineStart}.IsMarked(s.plane, epoch)
}

// clearLogBits clears the unlog-bit table for a freshly returned free
// range, so the next mutator to write into it takes the barrier's slow
// path exactly once // are cleared before returning").
func (s *Space) clearLogBits(start, end address.Address) {
	s.plane.Unlog.ZeroRange(start, end)
}

// FlushAllocator drains an allocator's worker-local block cache back
// to the page resource, done at end-of-pause / worker shutdown.
func (s *Space) FlushAllocator(a *Allocator) {
	s.pager.FlushWorker(&a.local)
}

// --- Sweeping ---------------------------------------

// SweepResult summarizes the action taken for one block, used by
// callers that report bytes reclaimed / blocks recycled.
type SweepResult int

const (
	SweptReleased  SweepResult = iota // returned to the page resource
	SweptKept                         // kept Unmarked/Marked as-is
	SweptRecycled                     // pushed onto the reusable list
	SweptSkipped                      // was already Unallocated
)

// SweepBlockOnly implements the non-line-marked sweep mode // §4.3.4 "Block-only mode").
func (s *Space) SweepBlockOnly(b Block) SweepResult {
	switch b.State(s.plane) {
	case StateUnallocated:
		return SweptSkipped
	case StateUnmarked:
		b.Reset(s.plane)
		s.pager.ReleaseBlockGlobal(b.Start)
		return SweptReleased
	default:
		return SweptKept
	}
}

// SweepLineMarked implements the line-marked sweep mode: count marked
// lines and hole transitions, then release / retire-to-Unmarked /
// recycle-as-Reusable accordingly.
func (s *Space) SweepLineMarked(b Block) SweepResult {
	if b.State(s.plane) == StateUnallocated {
		return SweptSkipped
	}
	epoch := s.CurrentMarkState()
	markedLines := 0
	holeTransitions := 0
	wasOccupied := false
	for i := 0; i < layout.LinesInBlock; i++ {
		lineStart := b.Start.Add(uintptr(i) * layout.BytesInLine)
		occ := Line{Start: lineStart}.IsMarked(s.plane, epoch)
		if occ {
			markedLines++
			if !wasOccupied {
				holeTransitions++
			}
		}
		wasOccupied = occ
	}

	switch {
	case markedLines == 0:
		b.Reset(s.plane)
		s.pager.ReleaseBlockGlobal(b.Start)
		return SweptReleased
	case markedLines == layout.LinesInBlock:
		b.SetState(s.plane, StateUnmarked)
		return SweptKept
	default:
		b.SetState(s.plane, ReusableState(markedLines))
		b.SetHoleCount(s.plane, holeTransitions)
		s.reusable.Push(b.Start)
		s.histogram.Record(markedLines)
		return SweptRecycled
	}
}

// SweepRC implements RC-mode sweeping: a block with an all-zero RC
// side table is dead and released without consulting line marks
//.
func (s *Space) SweepRC(b Block) SweepResult {
	if b.State(s.plane) == StateUnallocated {
		return SweptSkipped
	}
	if s.plane.RC.IsZeroRange(b.Start, b.End()) {
		b.Reset(s.plane)
		s.pager.ReleaseBlockGlobal(b.Start)
		return SweptReleased
	}
	return SweptKept
}

// SweepMode selects which of the three sweep disciplines above SweepAll
// applies to every block the space has ever handed out.
type SweepMode int

const (
	SweepBlockOnlyMode SweepMode = iota
	SweepLineMarkedMode
	SweepRCMode
)

// SweepAll walks every block this space has ever carved from the
// arena and applies the sweep discipline selected by mode, releasing,
// recycling or retiring each one // pause from the Release bucket). Blocks still Unallocated are
// skipped by the underlying Sweep* call.
func (s *Space) SweepAll(mode SweepMode) {
	for _, addr := range s.pager.AllBlocks() {
		b := Block{Start: addr}
		switch mode {
		case SweepBlockOnlyMode:
			s.SweepBlockOnly(b)
		case SweepRCMode:
			s.SweepRC(b)
		default:
			s.SweepLineMarked(b)
		}
	}
}

// --- Evacuation -------------------------------------

// EvacuateResult reports what Evacuate actually did, so the caller
// knows whether a new object needs enqueuing for further tracing.
type EvacuateResult struct {
	NewAddress address.Address
	Copied     bool
}

// Evacuate implements the four-step opportunistic-copy protocol for an
// object known to live in a defrag source block.
func (s *Space) Evacuate(obj address.Address, size uintptr, copyAlloc *Allocator, pinned bool) (EvacuateResult, error) {
	// Step 1: install forwarding bits via CAS.
	if !s.plane.Forward.CompareAndSwap(obj, meta.ForwardNotForwarded, meta.ForwardBeingForwarded) {
		// Someone else is forwarding (or has forwarded, or decided to
		// keep it in place) this object; spin-read the result.
		for {
			state := s.plane.Forward.LoadAtomic(obj)
			if state == meta.ForwardForwarded {
				newAddr, _ := s.plane.ForwardingPointer(obj)
				return EvacuateResult{NewAddress: newAddr, Copied: false}, nil
			}
			if state == meta.ForwardNotForwarded {
				// The winner took an in-place path (already marked,
				// pinned, or copy reserve exhausted) and cleared the
				// forwarding bits back to NotForwarded rather than
				// ever reaching Forwarded; the object never moves, so
				// read it in place instead of spinning forever.
				return EvacuateResult{NewAddress: obj, Copied: false}, nil
			}
			// still being forwarded by another worker; spin
		}
	}

	// Step 2: if already marked for this cycle, someone (us, racing
	// with ourselves across a prior attempt) visited first; undo.
	if s.IsMarked(obj) {
		s.plane.Forward.StoreAtomic(obj, meta.ForwardNotForwarded)
		return EvacuateResult{NewAddress: obj, Copied: false}, nil
	}

	// Step 3: pinned objects or exhausted copy reserve stay in place.
	if pinned || !s.copyReserve.TryAcquire() {
		s.plane.Mark.StoreAtomic(obj, s.CurrentMarkState())
		s.plane.Forward.StoreAtomic(obj, meta.ForwardNotForwarded)
		BlockOf(obj).SetState(s.plane, StateMarked)
		return EvacuateResult{NewAddress: obj, Copied: false}, nil
	}
	defer s.copyReserve.Release()

	// Step 4: copy via the copy allocator, install the forwarding
	// pointer, mark the new object.
	newAddr, err := copyAlloc.Alloc(size, layout.BytesInWord)
	if err != nil {
		// Out of copy space: fall back to keeping the object in place
		// rather than failing the whole collection.
		s.plane.Mark.StoreAtomic(obj, s.CurrentMarkState())
		s.plane.Forward.StoreAtomic(obj, meta.ForwardNotForwarded)
		BlockOf(obj).SetState(s.plane, StateMarked)
		return EvacuateResult{NewAddress: obj, Copied: false}, nil
	}

	copyBytes(newAddr, obj, size)
	s.plane.SetForwardingPointer(obj, newAddr)
	s.plane.Mark.StoreAtomic(newAddr, s.CurrentMarkState())
	s.plane.Forward.StoreAtomic(obj, meta.ForwardForwarded)
	return EvacuateResult{NewAddress: newAddr, Copied: true}, nil
}

// copyBytes is the one place this package reaches past the metadata
// plane into raw heap bytes, needed to physically relocate an
// object's storage during evacuation.
func copyBytes(dst, src address.Address, n uintptr) {
	d := addressSlice(dst, n)
	s := addressSlice(src, n)
	copy(d, s)
}
