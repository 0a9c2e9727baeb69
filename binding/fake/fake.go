// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fake is a synthetic VM binding: a minimal object model with a
// fixed header layout, used by cmd/lxrdemo and by tests that need a
// working binding.VM without a real language runtime attached. Not
// grounded on the teacher ; the
// header layout below is this package's own invention, kept as small
// as the core's interfaces allow.
package fake

import (
	"sync"
	"unsafe"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/binding"
	"github.com/lxr-project/lxr/internal/meta"
)

// Object header layout, word-granular:
//
//	word 0: kind (kindScalar or kindArray)
//	word 1: total size in bytes, including header
//	word 2: reference count (number of slots that follow)
//	word 3..: reference slots
const (
	kindScalar uint64 = 0
	kindArray  uint64 = 1

	offKind    = 0
	offSize    = 8
	offNumRefs = 16
	offSlots   = 24
)

func wordAt(a address.Address) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(a)))
}

func loadWord(a address.Address) uint64  { return *wordAt(a) }
func storeWord(a address.Address, v uint64) { *wordAt(a) = v }

// HeaderSize is the fixed object-header overhead every allocation
// carries ahead of its reference slots.
const HeaderSize = offSlots

// SizeFor returns the total allocation size for an object with numRefs
// reference slots.
func SizeFor(numRefs int) uintptr {
	return HeaderSize + uintptr(numRefs)*8
}

// InitScalar stamps a freshly allocated, zeroed region as a scalar
// object with the given reference slots (already zero, to be filled in
// by the caller through the write barrier).
func InitScalar(obj address.Address, numRefs int) {
	storeWord(obj, kindScalar)
	storeWord(obj.Add(offSize), uint64(SizeFor(numRefs)))
	storeWord(obj.Add(offNumRefs), uint64(numRefs))
}

// InitArray stamps a freshly allocated region as a reference array.
func InitArray(obj address.Address, numRefs int) {
	storeWord(obj, kindArray)
	storeWord(obj.Add(offSize), uint64(SizeFor(numRefs)))
	storeWord(obj.Add(offNumRefs), uint64(numRefs))
}

func numRefs(obj address.Address) int { return int(loadWord(obj.Add(offNumRefs))) }

func slotAddr(obj address.Address, i int) address.Address {
	return obj.Add(offSlots + uintptr(i)*8)
}

// ObjectModel implements binding.ObjectModel over the header layout
// above. References and addresses coincide: an object's reference IS
// its header address, so RefToAddress is the identity conversion.
type ObjectModel struct{}

func (ObjectModel) RefToAddress(o address.ObjectReference) address.Address { return o.ToAddress() }

func (ObjectModel) GetCurrentSize(o address.ObjectReference) uintptr {
	return uintptr(loadWord(o.ToAddress().Add(offSize)))
}

func (ObjectModel) GlobalLogBitSpec() meta.Spec { return meta.UnlogBitSpec }
func (ObjectModel) LocalMarkBitSpec() meta.Spec { return meta.MarkBitSpec }

// Roots is a mutable registry of root references a test or demo
// program can populate directly, standing in for real stack/global
// scanning.
type Roots struct {
	mu        sync.Mutex
	stack     []address.ObjectReference
	vmGlobals []address.ObjectReference
}

func (r *Roots) AddStackRoot(ref address.ObjectReference) {
	r.mu.Lock()
	r.stack = append(r.stack, ref)
	r.mu.Unlock()
}

func (r *Roots) AddGlobalRoot(ref address.ObjectReference) {
	r.mu.Lock()
	r.vmGlobals = append(r.vmGlobals, ref)
	r.mu.Unlock()
}

func (r *Roots) ClearStackRoots() {
	r.mu.Lock()
	r.stack = r.stack[:0]
	r.mu.Unlock()
}

// Scanning implements binding.Scanning over the header layout and a
// Roots registry.
type Scanning struct {
	Roots *Roots
}

func (s Scanning) ScanObject(o address.ObjectReference, visit func(slot address.Address, target address.ObjectReference)) {
	obj := o.ToAddress()
	n := numRefs(obj)
	for i := 0; i < n; i++ {
		slot := slotAddr(obj, i)
		v := address.Address(loadWord(slot))
		if v.IsZero() {
			continue
		}
		visit(slot, address.ObjectReferenceFrom(v))
	}
}

func (s Scanning) ScanThreadRoots(visit func(target address.ObjectReference)) {
	s.Roots.mu.Lock()
	roots := append([]address.ObjectReference(nil), s.Roots.stack...)
	s.Roots.mu.Unlock()
	for _, r := range roots {
		visit(r)
	}
}

func (s Scanning) ScanVMSpecificRoots(visit func(target address.ObjectReference)) {
	s.Roots.mu.Lock()
	roots := append([]address.ObjectReference(nil), s.Roots.vmGlobals...)
	s.Roots.mu.Unlock()
	for _, r := range roots {
		visit(r)
	}
}

func (s Scanning) IsObjArray(o address.ObjectReference) bool {
	return loadWord(o.ToAddress().Add(offKind)) == kindArray
}

func (s Scanning) ObjArrayData(o address.ObjectReference) []address.Address {
	obj := o.ToAddress()
	n := numRefs(obj)
	out := make([]address.Address, n)
	for i := 0; i < n; i++ {
		out[i] = slotAddr(obj, i)
	}
	return out
}

// ForEachEdge adapts ScanObject to the internal/rc.Graph shape, which
// works in raw addresses rather than ObjectReference.
func (s Scanning) ForEachEdge(obj address.Address, visit func(child address.Address)) {
	s.ScanObject(address.ObjectReferenceFrom(obj), func(_ address.Address, target address.ObjectReference) {
		visit(target.ToAddress())
	})
}

// IsLargeObject always reports false: this package never allocates
// through a large-object space, only through the Immix allocator.
func (s Scanning) IsLargeObject(obj address.Address) bool { return false }
func (s Scanning) FreeLargeObject(obj address.Address)    {}
func (s Scanning) ClearStraddleBit(obj address.Address)   {}

// ObjectSize reads the header's stamped size word directly, standing
// in for ObjectModel.GetCurrentSize wherever a caller only has a raw
// address rather than an ObjectReference (the mark closure's Evacuate
// path).
func (s Scanning) ObjectSize(obj address.Address) uintptr {
	return uintptr(loadWord(obj.Add(offSize)))
}

// Collection implements binding.Collection with no real thread
// coordination: callers run single-threaded demo/test code, so
// StopAllMutators/ResumeMutators are no-ops and weak refs are unused.
type Collection struct{}

func (Collection) StopAllMutators()          {}
func (Collection) ResumeMutators()           {}
func (Collection) ProcessWeakRefs(int)       {}

// ActivePlan implements binding.ActivePlan over a fixed, test-supplied
// handle list.
type ActivePlan struct {
	mu       sync.Mutex
	mutators []mutatorHandle
}

type mutatorHandle struct{ id int }

func (h mutatorHandle) ID() int { return h.id }

func (a *ActivePlan) Register(id int) {
	a.mu.Lock()
	a.mutators = append(a.mutators, mutatorHandle{id: id})
	a.mu.Unlock()
}

func (a *ActivePlan) Mutators() []binding.MutatorHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]binding.MutatorHandle, len(a.mutators))
	for i, m := range a.mutators {
		out[i] = m
	}
	return out
}
