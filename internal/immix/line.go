// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/meta"
)

// lineEpochNone is the stored value of a line no trace has marked yet.
// A marked line stores the mark state, 1 or 2, of the trace that
// marked it.
const (
	lineEpochNone uint32 = 0
)

// Line is a stateless handle onto one 256-byte line, analogous to
// Block.
type Line struct {
	Start address.Address
}

// LineOf returns the handle for the line containing addr.
func LineOf(addr address.Address) Line {
	return Line{Start: layout.LineAlign(addr)}
}

// Index returns the line's 0-based index within its containing block.
func (l Line) Index() int {
	return layout.LineIndexInBlock(l.Start)
}

// MarkEpoch returns the line's recorded mark-epoch byte.
func (l Line) MarkEpoch(p *meta.Plane) uint32 {
	return p.LineMark.LoadAtomic(l.Start)
}

// SetMarkEpoch records epoch as the line's current state, called when
// an object is mark-lined during tracing // the object").
func (l Line) SetMarkEpoch(p *meta.Plane, epoch uint32) {
	p.LineMark.StoreAtomic(l.Start, epoch)
}

// IsMarked reports whether the line's epoch matches currentEpoch,
// i.e. it has been touched by the in-progress (or about-to-start)
// trace.
func (l Line) IsMarked(p *meta.Plane, currentEpoch uint32) bool {
	return l.MarkEpoch(p) == currentEpoch
}

// MarkLinesForObject marks every line an object of the given size
// overlaps, starting at obj. Called once an object is confirmed live
//.
func MarkLinesForObject(p *meta.Plane, obj address.Address, size uintptr, epoch uint32) {
	start := layout.LineAlign(obj)
	end := obj.Add(size)
	for l := start; uintptr(l) < uintptr(end); l = l.Add(layout.BytesInLine) {
		Line{Start: l}.SetMarkEpoch(p, epoch)
	}
}
