// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rc

import (
	"unsafe"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/meta"
	"github.com/lxr-project/lxr/internal/pages"
)

// poisonWord is written over a dead object's first word under debug
// builds, to turn use-after-free into a recognizable crash rather than
// silent corruption.
const poisonWord uint64 = 0xDEADC0DEDEADC0DE

// Graph is the minimal object-graph view process_dead_object needs:
// visiting an object's outgoing edges, telling large objects (LOS)
// apart from Immix-space objects, and freeing LOS storage directly.
// A binding's ObjectModel/Scanning implementation (package binding)
// satisfies this without rc needing to depend on binding.
type Graph interface {
	ForEachEdge(obj address.Address, visit func(child address.Address))
	IsLargeObject(obj address.Address) bool
	FreeLargeObject(obj address.Address)
	ClearStraddleBit(obj address.Address)
}

// DeadProcessor runs process_dead_object and accumulates the
// "possibly dead mature blocks" list, handed out by
// DrainPossiblyDeadMature. The sweeps in package immix do not read it.
type DeadProcessor struct {
	table *Table
	plane *meta.Plane
	graph Graph
	debug bool

	// possiblyDeadMature holds the block base address of every killed
	// Immix-space object, one entry per kill and not deduplicated: a
	// block can appear more than once.
	possiblyDeadMature pages.LFStack[address.Address]
}

// NewDeadProcessor builds a processor over table/plane/graph. debug
// enables the poison-word write.
func NewDeadProcessor(table *Table, plane *meta.Plane, graph Graph, debug bool) *DeadProcessor {
	return &DeadProcessor{table: table, plane: plane, graph: graph, debug: debug}
}

// Process handles one object whose counter just reached zero: it
// recursively decrements non-stuck children, poisons the object's
// storage, and records (or frees) the block it lived in.
func (d *DeadProcessor) Process(obj address.Address) {
	d.graph.ForEachEdge(obj, func(child address.Address) {
		if child.IsZero() || d.table.IsStuck(child) {
			return
		}
		if d.table.Dec(child) == DecKilled {
			d.Process(child)
		}
	})

	if d.debug {
		poisonAt(obj)
	}

	if d.graph.IsLargeObject(obj) {
		d.graph.ClearStraddleBit(obj)
		d.graph.FreeLargeObject(obj)
		return
	}

	d.possiblyDeadMature.Push(immix.BlockOf(obj).Start)
}

// DrainPossiblyDeadMature removes and returns every block base address
// accumulated since the last drain, duplicates included.
func (d *DeadProcessor) DrainPossiblyDeadMature() []address.Address {
	var out []address.Address
	for {
		a, ok := d.possiblyDeadMature.Pop()
		if !ok {
			break
		}
		out = append(out, a)
	}
	return out
}

func poisonAt(obj address.Address) {
	p := (*uint64)(unsafe.Pointer(uintptr(obj)))
	*p = poisonWord
}
