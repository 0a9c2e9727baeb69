// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/pages"
)

func newObj(t *testing.T, offset uintptr) address.Address {
	t.Helper()
	arena := pages.NewByteArena(layout.BytesInChunk)
	return arena.Base().Add(offset)
}

func TestSizeForIncludesHeader(t *testing.T) {
	assert.Equal(t, uintptr(HeaderSize), SizeFor(0))
	assert.Equal(t, uintptr(HeaderSize+16), SizeFor(2))
}

func TestInitScalarStampsHeader(t *testing.T) {
	obj := newObj(t, 0)
	InitScalar(obj, 2)

	assert.Equal(t, SizeFor(2), ObjectModel{}.GetCurrentSize(address.ObjectReferenceFrom(obj)))
	assert.Equal(t, 2, numRefs(obj))
	assert.False(t, Scanning{}.IsObjArray(address.ObjectReferenceFrom(obj)))
}

func TestInitArrayMarksKindArray(t *testing.T) {
	obj := newObj(t, 0)
	InitArray(obj, 3)

	assert.True(t, Scanning{}.IsObjArray(address.ObjectReferenceFrom(obj)))
	assert.Len(t, Scanning{}.ObjArrayData(address.ObjectReferenceFrom(obj)), 3)
}

func TestScanObjectVisitsNonZeroSlots(t *testing.T) {
	obj := newObj(t, 0)
	InitScalar(obj, 2)
	child := newObj(t, 4096)
	InitScalar(child, 0)
	storeWord(slotAddr(obj, 0), uint64(child))

	var visited []address.ObjectReference
	Scanning{}.ScanObject(address.ObjectReferenceFrom(obj), func(slot address.Address, target address.ObjectReference) {
		visited = append(visited, target)
	})

	require.Len(t, visited, 1)
	assert.Equal(t, child, visited[0].ToAddress())
}

func TestForEachEdgeAdaptsScanObject(t *testing.T) {
	obj := newObj(t, 0)
	InitScalar(obj, 1)
	child := newObj(t, 4096)
	InitScalar(child, 0)
	storeWord(slotAddr(obj, 0), uint64(child))

	var edges []address.Address
	Scanning{}.ForEachEdge(obj, func(c address.Address) { edges = append(edges, c) })
	assert.Equal(t, []address.Address{child}, edges)
}

func TestRootsAddAndClearStackRoots(t *testing.T) {
	r := &Roots{}
	obj := newObj(t, 0)
	ref := address.ObjectReferenceFrom(obj)
	r.AddStackRoot(ref)
	r.AddGlobalRoot(ref)

	s := Scanning{Roots: r}
	var stackSeen, globalSeen []address.ObjectReference
	s.ScanThreadRoots(func(t address.ObjectReference) { stackSeen = append(stackSeen, t) })
	s.ScanVMSpecificRoots(func(t address.ObjectReference) { globalSeen = append(globalSeen, t) })
	assert.Len(t, stackSeen, 1)
	assert.Len(t, globalSeen, 1)

	r.ClearStackRoots()
	stackSeen = nil
	s.ScanThreadRoots(func(t address.ObjectReference) { stackSeen = append(stackSeen, t) })
	assert.Empty(t, stackSeen)
}

func TestActivePlanRegisterAndMutators(t *testing.T) {
	a := &ActivePlan{}
	a.Register(1)
	a.Register(2)

	handles := a.Mutators()
	require.Len(t, handles, 2)
	assert.Equal(t, 1, handles[0].ID())
	assert.Equal(t, 2, handles[1].ID())
}
