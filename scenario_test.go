// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// End-to-end scenario tests cross-cutting the metadata plane, Immix
// space, reference counting, write barriers and scheduler, exercised
// together the way a real pause would use them.
package lxr_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/barrier"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/meta"
	"github.com/lxr-project/lxr/internal/pages"
	"github.com/lxr-project/lxr/internal/rc"
	"github.com/lxr-project/lxr/internal/sched"
	"github.com/lxr-project/lxr/log"
)

func wordAt(a address.Address) *uint64 { return (*uint64)(unsafe.Pointer(uintptr(a))) }

func newScenarioSpace(t *testing.T, rcMode bool) *immix.Space {
	t.Helper()
	arena := pages.NewByteArena(4 * layout.BytesInChunk)
	pager := pages.NewPageResource(arena, log.Nop())
	plane := meta.NewPlane(arena.Base(), arena.Capacity())
	return immix.NewSpace(pager, plane, rcMode, 16, log.Nop())
}

// nopGraph is a reference graph with no edges, standing in for a real
// object model wherever a scenario only needs process_dead_object's
// block bookkeeping, not its recursion.
type nopGraph struct{}

func (nopGraph) ForEachEdge(address.Address, func(address.Address)) {}
func (nopGraph) IsLargeObject(address.Address) bool                 { return false }
func (nopGraph) FreeLargeObject(address.Address)                    {}
func (nopGraph) ClearStraddleBit(address.Address)                   {}

// Scenario 1: linear RC lifecycle — A.f = B drives B's counter to 1 and
// logs the slot; A.f = null later drives it back to 0 and queues B's
// block as possibly-dead-mature.
func TestScenarioLinearRCLifecycle(t *testing.T) {
	space := newScenarioSpace(t, true)
	alloc := immix.NewAllocator(space, false)
	scheduler := sched.NewScheduler(1, log.Nop())
	table := rc.NewTable(space.Plane())
	processor := rc.NewDeadProcessor(table, space.Plane(), nopGraph{}, false)

	objA, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	objB, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	slot := objA // treat A's own header word as the field slot for this test
	*wordAt(slot) = 0

	sink := &scenarioSink{table: table, processor: processor, scheduler: scheduler}
	b := barrier.NewFieldLogBarrier(space.Plane(), sink, func() bool { return false })

	b.Write(slot, objB)
	b.Flush()
	assert.EqualValues(t, 1, table.Count(objB))
	assert.EqualValues(t, 1, space.Plane().Unlog.LoadAtomic(slot))

	// Simulate the next cycle's log-bit clear 	// clear-on-reuse path, exercised directly here since this scenario
	// never runs a full pause) so the overwrite below is observed by
	// the barrier rather than short-circuited as already-logged.
	space.Plane().Unlog.StoreAtomic(slot, 0)

	b.Write(slot, address.Zero)
	b.Flush()

	pkt, ok := scheduler.Bucket(sched.RCProcessDecs).PopNormal()
	require.True(t, ok)
	pkt.Do(nil)

	assert.EqualValues(t, 0, table.Count(objB))
	dead := processor.DrainPossiblyDeadMature()
	assert.Contains(t, dead, immix.BlockOf(objB).Start)
}

// scenarioSink plugs a barrier straight into an rc.Table/DeadProcessor
// without going through package mutator, so these tests exercise rc
// and barrier together without depending on a third package's wiring.
type scenarioSink struct {
	table     *rc.Table
	processor *rc.DeadProcessor
	scheduler *sched.Scheduler
}

func (s *scenarioSink) ProcessIncs(edges []address.Address) {
	for _, e := range edges {
		if !e.IsZero() {
			s.table.Inc(e)
		}
	}
}

func (s *scenarioSink) ProcessDecs(objs []address.Address) {
	batch := append([]address.Address(nil), objs...)
	s.scheduler.Bucket(sched.RCProcessDecs).Push(sched.PacketFunc(func(w *sched.Worker) {
		for _, o := range batch {
			if !o.IsZero() && s.table.Dec(o) == rc.DecKilled {
				s.processor.Process(o)
			}
		}
	}))
}

func (s *scenarioSink) ProcessSATB(objs []address.Address) {}

// Scenario 2: a counter saturated to Max by 16 increments stays stuck
// even after all 16 matching decrements run (they become no-ops), so
// the object survives an RC-mode sweep; only a line-marked sweep that
// finds its line genuinely untraced reclaims it (and its counter) at
// FullTraceFast.
func TestScenarioStuckCounterReclaimedByFullTraceFast(t *testing.T) {
	space := newScenarioSpace(t, false)
	alloc := immix.NewAllocator(space, false)
	table := rc.NewTable(space.Plane())

	obj, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		table.Inc(obj)
	}
	require.EqualValues(t, rc.Max, table.Count(obj))

	for i := 0; i < 16; i++ {
		assert.Equal(t, rc.DecNoOp, table.Dec(obj))
	}
	assert.EqualValues(t, rc.Max, table.Count(obj))
	assert.True(t, table.IsStuck(obj))
	assert.False(t, table.IsDead(obj))

	// obj's block is genuinely unreachable this cycle: nothing marks
	// any of its lines, so FullTraceFast's line-marked sweep releases
	// the whole block, zeroing the RC side table (and every other side
	// table) along with it.
	b := immix.BlockOf(obj)
	result := space.SweepLineMarked(b)

	assert.Equal(t, immix.SweptReleased, result)
	assert.Equal(t, immix.StateUnallocated, b.State(space.Plane()))
	assert.EqualValues(t, 0, table.Count(obj))
}

// Scenario 3: evacuating every live object out of a defrag-source
// block leaves it with zero marked lines, so the following sweep
// releases it whole; each evacuated object's forwarding pointer
// resolves to a freshly marked copy.
func TestScenarioEvacuationDrainsSourceBlock(t *testing.T) {
	space := newScenarioSpace(t, false)
	srcAlloc := immix.NewAllocator(space, false)
	copyAlloc := immix.NewAllocator(space, true)

	const n = 10
	const size = 64
	objs := make([]address.Address, n)
	for i := range objs {
		addr, err := srcAlloc.Alloc(size, 8)
		require.NoError(t, err)
		objs[i] = addr
	}
	srcBlock := immix.BlockOf(objs[0])
	srcBlock.SetDefragSource(space.Plane(), true)

	for _, obj := range objs {
		result, err := space.Evacuate(obj, size, copyAlloc, false)
		require.NoError(t, err)
		assert.True(t, result.Copied)
		assert.NotEqual(t, obj, result.NewAddress)
		assert.True(t, space.IsMarked(result.NewAddress))

		newAddr, ok := space.Plane().ForwardingPointer(obj)
		require.True(t, ok)
		assert.Equal(t, result.NewAddress, newAddr)
	}

	// Nothing in the source block carries this cycle's mark (evacuation
	// only marks the copies), so a line-marked sweep reclaims it whole.
	result := space.SweepLineMarked(srcBlock)
	assert.Equal(t, immix.SweptReleased, result)
	assert.Equal(t, immix.StateUnallocated, srcBlock.State(space.Plane()))
}

// Scenario 4: a reference snapshotted at InitialMark survives a
// concurrent mutator write that nulls the only live edge to it,
// because the dying edge is cloned into the SATB stream at flush time
// rather than silently dropped.
func TestScenarioConcurrentMarkingSATBPreservesSnapshotTarget(t *testing.T) {
	space := newScenarioSpace(t, false)
	alloc := immix.NewAllocator(space, false)

	objA, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	objB, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	slot := objA
	*wordAt(slot) = uint64(objB)
	space.Plane().Unlog.StoreAtomic(slot, 1) // A.f = B already logged from before the pause

	// InitialMark snapshots the edge: B is marked as part of the root
	// closure before any concurrent mutation can hide it.
	space.AttemptMark(objB)

	var satbBatches [][]address.Address
	sink := &captureSATBSink{record: func(objs []address.Address) {
		satbBatches = append(satbBatches, append([]address.Address(nil), objs...))
	}}
	b := barrier.NewFieldLogBarrier(space.Plane(), sink, func() bool { return true })

	// Concurrent mutator nulls A's only reference to B mid-trace.
	space.Plane().Unlog.StoreAtomic(slot, 0)
	b.Write(slot, address.Zero)
	b.Flush()

	require.Len(t, satbBatches, 1)
	assert.Contains(t, satbBatches[0], objB)
	// FinalMark still finds B marked: the snapshot, not the dangling
	// edge, is what kept it alive.
	assert.True(t, space.IsMarked(objB))
}

type captureSATBSink struct{ record func([]address.Address) }

func (captureSATBSink) ProcessIncs([]address.Address) {}
func (captureSATBSink) ProcessDecs([]address.Address) {}
func (c captureSATBSink) ProcessSATB(objs []address.Address) {
	if len(objs) > 0 {
		c.record(objs)
	}
}

// Scenario 5: a UUUUFFFFUUUU line pattern yields exactly one hole, and
// the hole search conservatively skips the first free line to absorb
// any object straddling the boundary from the preceding occupied run.
func TestScenarioLineHoleFindingSkipsFirstFreeLine(t *testing.T) {
	space := newScenarioSpace(t, false)
	alloc := immix.NewAllocator(space, false)
	addr, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	b := immix.BlockOf(addr)

	epoch := space.CurrentMarkState()
	for _, i := range []int{0, 1, 2, 3, 8, 9, 10, 11} {
		immix.Line{Start: b.Start.Add(uintptr(i) * layout.BytesInLine)}.SetMarkEpoch(space.Plane(), epoch)
	}
	// Lines 12..LinesInBlock-1 stay occupied too, so the only hole is
	// the 4,5,6,7 run.
	for i := 12; i < layout.LinesInBlock; i++ {
		immix.Line{Start: b.Start.Add(uintptr(i) * layout.BytesInLine)}.SetMarkEpoch(space.Plane(), epoch)
	}

	start, end, next, ok := space.FindHole(b, 0, false)
	require.True(t, ok)
	assert.Equal(t, b.Start.Add(5*layout.BytesInLine), start)
	assert.Equal(t, b.Start.Add(8*layout.BytesInLine), end)
	assert.Equal(t, 8, next)
}

// Scenario 6: flooding a field barrier with exactly twice CAPACITY
// distinct-slot writes fills the inc buffer twice; each fill flushes
// mid-stream on reaching CAPACITY, so the final Flush has nothing left
// to send, and the sum of every edge the sink ever saw equals the
// number of writes actually logged.
func TestScenarioBarrierBufferOverflow(t *testing.T) {
	space := newScenarioSpace(t, false)
	alloc := immix.NewAllocator(space, false)

	target, err := alloc.Alloc(64, 8)
	require.NoError(t, err)

	var incBatches [][]address.Address
	sink := &captureIncsSink{record: func(objs []address.Address) {
		incBatches = append(incBatches, append([]address.Address(nil), objs...))
	}}
	b := barrier.NewFieldLogBarrier(space.Plane(), sink, func() bool { return false })

	const n = 2 * barrier.Capacity
	slots := make([]address.Address, n)
	for i := 0; i < n; i++ {
		addr, err := alloc.Alloc(8, 8)
		require.NoError(t, err)
		slots[i] = addr
		*wordAt(addr) = 0
	}
	for _, slot := range slots {
		b.Write(slot, target)
	}
	b.Flush()

	require.Len(t, incBatches, 2)
	assert.Len(t, incBatches[0], barrier.Capacity)
	assert.Len(t, incBatches[1], barrier.Capacity)

	total := 0
	for _, batch := range incBatches {
		total += len(batch)
	}
	assert.Equal(t, n, total)
}

type captureIncsSink struct{ record func([]address.Address) }

func (c captureIncsSink) ProcessIncs(objs []address.Address) { c.record(objs) }
func (captureIncsSink) ProcessDecs([]address.Address)        {}
func (captureIncsSink) ProcessSATB([]address.Address)        {}
