// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lxrdemo drives the collector core against the synthetic
// object model in package binding/fake, standing in for a real VM
// binding. Not grounded on the teacher, which ships no CLI of its own;
// grounded on the pack's convention (seen across the retrieval set) of
// a cobra root command with a long-running "serve" mode that exposes
// prometheus metrics over HTTP.
package main

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/binding"
	"github.com/lxr-project/lxr/binding/fake"
	"github.com/lxr-project/lxr/config"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/meta"
	"github.com/lxr-project/lxr/internal/pages"
	"github.com/lxr-project/lxr/internal/rc"
	"github.com/lxr-project/lxr/internal/sched"
	"github.com/lxr-project/lxr/log"
	"github.com/lxr-project/lxr/metrics"
	mutatorpkg "github.com/lxr-project/lxr/mutator"
	"github.com/lxr-project/lxr/plan"
)

var (
	heapMiB int
	debug   bool
	workers int
)

func main() {
	root := &cobra.Command{
		Use:   "lxrdemo",
		Short: "Drives the LXR collector core against a synthetic object graph",
	}
	root.PersistentFlags().IntVar(&heapMiB, "heap-mib", 16, "heap arena size in MiB")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging and poison-word writes")
	root.PersistentFlags().IntVar(&workers, "workers", 4, "number of GC worker goroutines")

	root.AddCommand(runCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var cycles int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Allocate a synthetic object graph and run a few collection cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDemo()
			d.allocateGraph(2000)
			for i := 0; i < cycles; i++ {
				kind := d.plan.ScheduleCollection(false)
				d.log.Infow("scheduled collection", "cycle", i, "kind", kind.String())
				start := time.Now()
				d.runPause(kind)
				d.metrics.ObservePause(kind.String(), time.Since(start).Seconds())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 3, "number of collection cycles to run")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve prometheus metrics while idling",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDemo()
			d.allocateGraph(2000)
			http.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
			d.log.Infow("serving metrics", "addr", addr)
			return http.ListenAndServe(addr, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address for the metrics endpoint")
	return cmd
}

// demo bundles every collaborator a cmd/lxrdemo run needs, wired the
// way a real binding would wire package plan against its own object
// model.
type demo struct {
	log       *log.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics

	plane     *meta.Plane
	space     *immix.Space
	scheduler *sched.Scheduler
	plan      *plan.Plan
	adapter   *binding.PlanAdapter

	mutator *binding.Mutator
	roots   *fake.Roots
}

func newDemo() *demo {
	logger := log.New(debug)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalw("invalid configuration", "err", err)
	}

	arena := pages.NewByteArena(uintptr(heapMiB) << 20)
	pager := pages.NewPageResource(arena, logger)
	pl := meta.NewPlane(arena.Base(), arena.Capacity())
	space := immix.NewSpace(pager, pl, cfg.RefCount, 64, logger)
	rcTable := rc.NewTable(pl)

	scheduler := sched.NewScheduler(workers, logger)
	scheduler.Start()

	p := plan.New(space, scheduler, rcTable, cfg, logger)

	roots := &fake.Roots{}
	objGraph := fake.Scanning{Roots: roots}
	dead := rc.NewDeadProcessor(rcTable, pl, objGraph, cfg.Debug || debug)
	sink := mutatorpkg.NewSink(rcTable, dead, scheduler, p.Predictor, space, objGraph)
	p.SetRootSink(func(obj uintptr) {
		sink.ProcessSATB([]address.Address{address.Address(obj)})
	})
	p.SetDefragModeSink(sink.SetDefragMode)

	mut := binding.NewMutator(0, p, sink)

	activePlan := &fake.ActivePlan{}
	activePlan.Register(mut.ID())

	vm := binding.VM{
		ObjectModel: fake.ObjectModel{},
		Scanning:    objGraph,
		Collection:  fake.Collection{},
		ActivePlan:  activePlan,
	}
	adapter := binding.NewPlanAdapter(vm)

	return &demo{
		log:       logger,
		registry:  reg,
		metrics:   m,
		plane:     pl,
		space:     space,
		scheduler: scheduler,
		plan:      p,
		adapter:   adapter,
		mutator:   mut,
		roots:     roots,
	}
}

// allocateGraph allocates n scalar objects, chaining each one's single
// reference slot to the previous object and registering the last one
// as a stack root, exercising the field-log write barrier on every
// link.
func (d *demo) allocateGraph(n int) {
	var prev address.Address
	for i := 0; i < n; i++ {
		addr, err := d.mutator.Alloc(fake.SizeFor(1), 8, 0, binding.Default)
		if err != nil {
			d.log.Warnw("allocation failed", "err", err)
			return
		}
		fake.InitScalar(addr, 1)
		d.mutator.PostAlloc(addr, fake.SizeFor(1), binding.Default)
		if !prev.IsZero() {
			slot := addr.Add(fake.HeaderSize)
			d.mutator.WriteBarrier(addr, slot, prev)
		}
		prev = addr
		d.metrics.AllocatedBytesTotal.Add(float64(fake.SizeFor(1)))
	}
	if !prev.IsZero() {
		d.roots.AddStackRoot(address.ObjectReferenceFrom(prev))
	}
	d.mutator.Flush()
}

// runPause populates the scheduler for kind and blocks until every
// bucket through Final has drained, i.e. until the pause's Final
// packet has already run EndOfGC.
func (d *demo) runPause(kind plan.Kind) {
	d.plan.Populate(kind, d.adapter, d.adapter, nil)
	for !d.scheduler.AllDrained() {
		runtime.Gosched()
	}
}
