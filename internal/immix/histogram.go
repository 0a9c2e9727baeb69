// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import "sync"

// Histogram buckets reusable blocks by their occupancy (number of
// marked/used lines out of layout.LinesInBlock) at the moment a
// line-marked sweep recycles them, the "update histogram" step of
// spec.md §4.3.4. Neither the survival predictor nor the defrag policy
// reads it; plan.release resets it before each sweep.
type Histogram struct {
	mu      sync.Mutex
	buckets []uint64 // buckets[occupiedLines] += 1
}

// NewHistogram builds an empty histogram sized for blocks of lines
// lines each.
func NewHistogram(lines int) *Histogram {
	return &Histogram{buckets: make([]uint64, lines+1)}
}

// Record adds one observation of a block recycled with occupiedLines
// still in use.
func (h *Histogram) Record(occupiedLines int) {
	h.mu.Lock()
	if occupiedLines >= 0 && occupiedLines < len(h.buckets) {
		h.buckets[occupiedLines]++
	}
	h.mu.Unlock()
}

// Reset clears all observations, done at the start of every GC cycle
// so the histogram reflects only the most recent sweep.
func (h *Histogram) Reset() {
	h.mu.Lock()
	for i := range h.buckets {
		h.buckets[i] = 0
	}
	h.mu.Unlock()
}

// Snapshot returns a copy of the current bucket counts.
func (h *Histogram) Snapshot() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint64, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// MedianOccupancy returns the bucket index at which the cumulative
// observation count reaches half of the total, a cheap proxy for "how
// full is a typical reusable block right now".
func (h *Histogram) MedianOccupancy() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total uint64
	for _, c := range h.buckets {
		total += c
	}
	if total == 0 {
		return 0
	}
	var cum uint64
	half := (total + 1) / 2
	for i, c := range h.buckets {
		cum += c
		if cum >= half {
			return i
		}
	}
	return len(h.buckets) - 1
}
