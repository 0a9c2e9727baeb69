// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package defrag chooses which blocks become defrag sources for a
// FullTraceDefrag pause // LXR_DEFRAG_* configuration table). Grounded on
// internal/immix/histogram.go for candidate ranking and
// runtime/mheap.go's reclaim credit-accounting pattern (spend a fixed
// per-pause budget, carry the remainder) for the N/M/COALESCE_M
// throttle.
package defrag

import (
	"sort"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/config"
	"github.com/lxr-project/lxr/internal/layout"
)

// Candidate is one reusable block considered for the collection set,
// ranked by how many lines are still in use (lower is a better
// defrag target: less to copy, more to reclaim).
type Candidate struct {
	Block         address.Address
	OccupiedLines int
}

// Policy selects a collection set from this cycle's reusable-block
// candidates.
type Policy interface {
	Name() string
	SelectCollectionSet(candidates []Candidate, cfg config.Config) []address.Address
}

// ForKind returns the configured policy implementation.
func ForKind(kind config.DefragPolicyKind) Policy {
	switch kind {
	case config.DefragNone:
		return NoDefrag{}
	case config.DefragSimpleIncremental:
		return SimpleIncrementalDefrag{}
	case config.DefragSimpleIncremental2:
		return SimpleIncrementalDefrag{coalesce: true}
	case config.DefragSimpleIncremental3:
		return SimpleIncrementalDefrag{coalesce: true, eager: true}
	default:
		return SimpleIncrementalDefrag{}
	}
}

// NoDefrag never selects a collection set. Outside an emergency
// collection every full trace runs as FullTraceFast; an emergency
// collection still runs FullTraceDefrag, with an empty collection set.
type NoDefrag struct{}

func (NoDefrag) Name() string { return "NoDefrag" }
func (NoDefrag) SelectCollectionSet([]Candidate, config.Config) []address.Address { return nil }

// SimpleIncrementalDefrag selects up to LXR_DEFRAG_N blocks below the
// liveness threshold, spending at most LXR_DEFRAG_M of them per
// increment (i.e. per call) so a single pause's copy cost stays
// bounded; coalesce (LXR_DEFRAG_POLICY=SimpleIncrementalDefrag2/3)
// orders the selection by address so adjacent blocks sit next to each
// other. eager is set only by LXR_DEFRAG_POLICY=SimpleIncrementalDefrag3
// and drops the LXR_DEFRAG_M cap, so all N blocks are selected in one
// call; the LXR_EAGER_DEFRAG_SELECTION setting does not affect it.
type SimpleIncrementalDefrag struct {
	coalesce bool
	eager    bool
}

func (d SimpleIncrementalDefrag) Name() string {
	switch {
	case d.eager:
		return "SimpleIncrementalDefrag3"
	case d.coalesce:
		return "SimpleIncrementalDefrag2"
	default:
		return "SimpleIncrementalDefrag"
	}
}

func (d SimpleIncrementalDefrag) SelectCollectionSet(candidates []Candidate, cfg config.Config) []address.Address {
	threshold := (cfg.DefragBlockLivenessPercent * layout.LinesInBlock) / 100

	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.OccupiedLines <= threshold {
			eligible = append(eligible, c)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].OccupiedLines < eligible[j].OccupiedLines
	})

	n := cfg.DefragN
	if n <= 0 || n > len(eligible) {
		n = len(eligible)
	}
	if !d.eager && cfg.DefragM > 0 && cfg.DefragM < n {
		n = cfg.DefragM
	}
	eligible = eligible[:n]

	selected := make([]address.Address, 0, n)
	for _, c := range eligible {
		selected = append(selected, c.Block)
	}

	if d.coalesce && cfg.DefragCoalesceM > 0 {
		selected = coalesceAdjacent(selected, cfg.DefragCoalesceM)
	}
	return selected
}

// coalesceAdjacent returns the selection sorted by block address, so
// contiguous blocks are adjacent in the returned slice. It does not
// group or split runs: maxRun (LXR_DEFRAG_COALESCE_M) only gates
// whether the caller coalesces at all and is not applied here.
func coalesceAdjacent(blocks []address.Address, maxRun int) []address.Address {
	if len(blocks) < 2 {
		return blocks
	}
	sorted := make([]address.Address, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
