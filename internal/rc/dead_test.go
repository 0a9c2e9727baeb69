// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/meta"
)

// fakeGraph is a small in-memory object graph for exercising
// process_dead_object's recursive decrement walk without a real
// binding attached.
type fakeGraph struct {
	edges map[address.Address][]address.Address
	large map[address.Address]bool
	freed []address.Address
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{edges: map[address.Address][]address.Address{}, large: map[address.Address]bool{}}
}

func (g *fakeGraph) ForEachEdge(obj address.Address, visit func(child address.Address)) {
	for _, c := range g.edges[obj] {
		visit(c)
	}
}
func (g *fakeGraph) IsLargeObject(obj address.Address) bool { return g.large[obj] }
func (g *fakeGraph) FreeLargeObject(obj address.Address)    { g.freed = append(g.freed, obj) }
func (g *fakeGraph) ClearStraddleBit(obj address.Address)   {}

func TestProcessDeadObjectRecursesThroughChildren(t *testing.T) {
	plane := meta.NewPlane(address.Zero, 4*layout.BytesInChunk)
	table := NewTable(plane)
	graph := newFakeGraph()

	parent := address.Address(layout.BytesInWord)
	child := address.Address(2 * layout.BytesInWord)
	grandchild := address.Address(3 * layout.BytesInWord)
	graph.edges[parent] = []address.Address{child}
	graph.edges[child] = []address.Address{grandchild}

	// child and grandchild are each referenced once, by parent's
	// single edge and child's single edge respectively.
	table.Inc(child)
	table.Inc(grandchild)

	proc := NewDeadProcessor(table, plane, graph, false)
	proc.Process(parent)

	assert.True(t, table.IsDead(child))
	assert.True(t, table.IsDead(grandchild))
}

func TestProcessDeadObjectStopsAtStuckChild(t *testing.T) {
	plane := meta.NewPlane(address.Zero, 4*layout.BytesInChunk)
	table := NewTable(plane)
	graph := newFakeGraph()

	parent := address.Address(layout.BytesInWord)
	child := address.Address(2 * layout.BytesInWord)
	graph.edges[parent] = []address.Address{child}

	for i := uint32(0); i < Max; i++ {
		table.Inc(child)
	}
	require := assert.New(t)
	require.True(table.IsStuck(child))

	proc := NewDeadProcessor(table, plane, graph, false)
	proc.Process(parent)

	// Stuck children are never decremented by process_dead_object.
	require.Equal(Max, table.Count(child))
}

func TestProcessDeadObjectFreesLargeObjects(t *testing.T) {
	plane := meta.NewPlane(address.Zero, 4*layout.BytesInChunk)
	table := NewTable(plane)
	graph := newFakeGraph()

	obj := address.Address(layout.BytesInWord)
	graph.large[obj] = true

	proc := NewDeadProcessor(table, plane, graph, false)
	proc.Process(obj)

	assert.Equal(t, []address.Address{obj}, graph.freed)
}

func TestDrainPossiblyDeadMature(t *testing.T) {
	plane := meta.NewPlane(address.Zero, 4*layout.BytesInChunk)
	table := NewTable(plane)
	graph := newFakeGraph()

	proc := NewDeadProcessor(table, plane, graph, false)
	proc.Process(address.Address(layout.BytesInWord))
	proc.Process(address.Address(layout.BytesInBlock + layout.BytesInWord))

	blocks := proc.DrainPossiblyDeadMature()
	assert.Len(t, blocks, 2)
	assert.Empty(t, proc.DrainPossiblyDeadMature())
}
