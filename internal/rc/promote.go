// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rc

import (
	"sync/atomic"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/meta"
)

// PromotionGraph is the narrow view Promote needs of an object: its
// non-null, non-stuck children, for re-enqueuing increments.
type PromotionGraph interface {
	ForEachEdge(obj address.Address, visit func(child address.Address))
}

// SurvivalPredictor tracks nursery survival volume; a simple
// exponentially-weighted moving average feeding the plan's
// ShouldForceFullCollection decision. Grounded on
// runtime/mheap.go's gcController pacer: a single running estimate
// updated once per cycle rather than recomputed from a full history.
type SurvivalPredictor struct {
	promotedBytes uint64 // atomic: accumulated this cycle
	ewma          uint64 // bytes/cycle estimate, fixed-point x1000
}

// RecordPromotion adds n bytes to the in-progress cycle's promotion
// volume.
func (p *SurvivalPredictor) RecordPromotion(n uintptr) {
	atomic.AddUint64(&p.promotedBytes, uint64(n))
}

// EndCycle folds the cycle's promoted volume into the running
// estimate and resets the counter, called from plan.EndOfGC.
func (p *SurvivalPredictor) EndCycle() {
	observed := atomic.SwapUint64(&p.promotedBytes, 0)
	prev := atomic.LoadUint64(&p.ewma)
	// alpha = 0.25, fixed-point x1000: new = 0.25*observed + 0.75*prev
	next := (observed*250 + prev*750) / 1000
	atomic.StoreUint64(&p.ewma, next)
}

// Estimate returns the current predicted survival volume in bytes.
func (p *SurvivalPredictor) Estimate() uint64 {
	return atomic.LoadUint64(&p.ewma)
}

// Promote runs the promotion steps for an object whose Inc call
// returned IncPromoted: mark its containing nursery block
// in-place-promoted (or, if copied, the new copy's block), unlog its
// interior words so future field writes re-enter the barrier slow
// path, record the promotion volume, and re-enqueue increments for
// every live child.
func Promote(plane *meta.Plane, table *Table, predictor *SurvivalPredictor, obj address.Address, size uintptr, graph PromotionGraph, enqueueInc func(address.Address)) {
	block := immix.BlockOf(obj)
	if block.State(plane) == immix.StateNursery {
		block.SetState(plane, immix.StateMarked)
	}
	plane.Unlog.ZeroRange(obj, obj.Add(size))
	if predictor != nil {
		predictor.RecordPromotion(size)
	}
	graph.ForEachEdge(obj, func(child address.Address) {
		if child.IsZero() || table.IsStuck(child) {
			return
		}
		enqueueInc(child)
	})
}
