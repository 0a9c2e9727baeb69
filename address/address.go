// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package address defines the raw address and object-reference types
// shared by every other package in the collector core. See spec.md §3
// "Address / ObjectReference".
package address

import "fmt"

// Address is a raw machine-word pointer into the heap arena. Unlike an
// ObjectReference it need not point at an object header: it may be a
// field address, a block boundary, or a line boundary.
type Address uintptr

// Zero is the nil address.
const Zero Address = 0

// IsZero reports whether a is the nil address.
func (a Address) IsZero() bool { return a == Zero }

// Add returns a+n. Arithmetic on a bare Address is allowed; arithmetic
// on an ObjectReference is not.
func (a Address) Add(n uintptr) Address { return a + Address(n) }

// Sub returns a-n.
func (a Address) Sub(n uintptr) Address { return a - Address(n) }

// Diff returns a-b as a signed offset.
func (a Address) Diff(b Address) uintptr { return uintptr(a - b) }

// AlignDown rounds a down to the nearest multiple of align, which must
// be a power of two.
func (a Address) AlignDown(align uintptr) Address {
	return Address(uintptr(a) &^ (align - 1))
}

// AlignUp rounds a up to the nearest multiple of align, which must be
// a power of two.
func (a Address) AlignUp(align uintptr) Address {
	return Address((uintptr(a) + align - 1) &^ (align - 1))
}

// IsAligned reports whether a is a multiple of align.
func (a Address) IsAligned(align uintptr) bool {
	return uintptr(a)&(align-1) == 0
}

func (a Address) String() string { return fmt.Sprintf("0x%x", uintptr(a)) }

// ObjectReference is a non-null Address pointing at the header of a
// live (or, transiently during tracing, grey/white) object. Unlike
// Address, arithmetic on an ObjectReference is forbidden by
// construction: the type exposes no Add/Sub methods, only conversions
// to and from Address via ToAddress/ObjectReferenceFrom.
type ObjectReference struct {
	addr Address
}

// ObjectReferenceFrom converts an Address, known to point at an object
// header, into an ObjectReference. Callers at the binding boundary
// (see package binding) are the only legitimate callers.
func ObjectReferenceFrom(a Address) ObjectReference {
	return ObjectReference{addr: a}
}

// ToAddress returns the address this reference points at.
func (o ObjectReference) ToAddress() Address { return o.addr }

// IsNull reports whether o is the null reference.
func (o ObjectReference) IsNull() bool { return o.addr.IsZero() }

func (o ObjectReference) String() string { return o.addr.String() }

// Equal reports whether two object references point at the same
// address.
func (o ObjectReference) Equal(other ObjectReference) bool { return o.addr == other.addr }
