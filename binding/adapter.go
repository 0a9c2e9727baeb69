// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binding

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/plan"
)

// PlanAdapter turns a VM's Collection/ActivePlan/Scanning capabilities
// into the narrow plan.Mutators/plan.RootScanner views package plan
// needs to populate a pause, so a binding never has to depend on
// package plan's internal packet-building details directly.
type PlanAdapter struct {
	VM       VM
	Mutators func() []MutatorHandle
}

// NewPlanAdapter builds an adapter over vm, sourcing the live mutator
// list from vm.ActivePlan.
func NewPlanAdapter(vm VM) *PlanAdapter {
	return &PlanAdapter{VM: vm, Mutators: vm.ActivePlan.Mutators}
}

func (a *PlanAdapter) StopAll()   { a.VM.Collection.StopAllMutators() }
func (a *PlanAdapter) ResumeAll() { a.VM.Collection.ResumeMutators() }

func (a *PlanAdapter) ForEach(visit func(mutatorID int)) {
	for _, h := range a.Mutators() {
		visit(h.ID())
	}
}

// ScanStackRoots and ScanVMRoots adapt VM.Scanning's ObjectReference-
// typed root callbacks to plan.RootScanner's raw-address callbacks
// (the plan package's tracing closure works in bare addresses, since
// not every root is known to be a fully-initialized object header
// until the scan visits it).
func (a *PlanAdapter) ScanStackRoots(enqueue func(obj uintptr)) {
	a.VM.Scanning.ScanThreadRoots(func(target address.ObjectReference) {
		enqueue(uintptr(target.ToAddress()))
	})
}

func (a *PlanAdapter) ScanVMRoots(enqueue func(obj uintptr)) {
	a.VM.Scanning.ScanVMSpecificRoots(func(target address.ObjectReference) {
		enqueue(uintptr(target.ToAddress()))
	})
}

var _ plan.Mutators = (*PlanAdapter)(nil)
var _ plan.RootScanner = (*PlanAdapter)(nil)
