// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-project/lxr/log"
)

func TestSchedulerRunsPushedPacketsToCompletion(t *testing.T) {
	s := NewScheduler(4, log.Nop())
	s.Start()
	defer s.Shutdown()

	var wg sync.WaitGroup
	var ran int32
	var mu sync.Mutex
	n := 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		s.Bucket(Unconstrained).Push(PacketFunc(func(w *Worker) {
			mu.Lock()
			ran++
			mu.Unlock()
			wg.Done()
		}))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("packets did not all run in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, n, ran)
}

func TestSchedulerAdvancesStagesInOrder(t *testing.T) {
	s := NewScheduler(2, log.Nop())
	s.Start()
	defer s.Shutdown()

	var mu sync.Mutex
	var order []Stage
	done := make(chan struct{})

	s.Bucket(Unconstrained).Push(PacketFunc(func(w *Worker) {
		mu.Lock()
		order = append(order, Unconstrained)
		mu.Unlock()
	}))
	s.Bucket(Prepare).Push(PacketFunc(func(w *Worker) {
		mu.Lock()
		order = append(order, Prepare)
		mu.Unlock()
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stage never advanced to Prepare")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, Unconstrained, order[0])
	assert.Equal(t, Prepare, order[1])
}

func TestSchedulerAllDrainedAfterPausePopulatesAndCompletes(t *testing.T) {
	s := NewScheduler(2, log.Nop())
	s.Start()
	defer s.Shutdown()

	done := make(chan struct{})
	s.Bucket(Final).Push(PacketFunc(func(w *Worker) { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Final bucket packet never ran")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !s.AllDrained() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never reported AllDrained")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedulerPostponedWorkIsDrainedOnce(t *testing.T) {
	s := NewScheduler(1, log.Nop())

	s.PostponeWork(PacketFunc(func(w *Worker) {}))
	s.PostponePrioritized(PacketFunc(func(w *Worker) {}), 0)
	s.PostponeAll([]Packet{PacketFunc(func(w *Worker) {}), PacketFunc(func(w *Worker) {})})

	drained := s.DrainPostponed()
	assert.Len(t, drained, 4)
	assert.Empty(t, s.DrainPostponed())
}

func TestSchedulerResetForPauseReopensBuckets(t *testing.T) {
	s := NewScheduler(1, log.Nop())
	s.Bucket(Unconstrained).TryActivate()
	assert.True(t, s.Bucket(Unconstrained).IsOpen())

	s.ResetForPause()
	assert.False(t, s.Bucket(Unconstrained).IsOpen())
	assert.Equal(t, Unconstrained, s.currentStage())
}
