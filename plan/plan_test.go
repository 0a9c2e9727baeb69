// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-project/lxr/config"
	"github.com/lxr-project/lxr/internal/immix"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/internal/meta"
	"github.com/lxr-project/lxr/internal/pages"
	"github.com/lxr-project/lxr/internal/rc"
	"github.com/lxr-project/lxr/internal/sched"
	"github.com/lxr-project/lxr/log"
)

func newTestPlan(t *testing.T, cfg config.Config) *Plan {
	t.Helper()
	arena := pages.NewByteArena(4 * layout.BytesInChunk)
	pager := pages.NewPageResource(arena, log.Nop())
	plane := meta.NewPlane(arena.Base(), arena.Capacity())
	space := immix.NewSpace(pager, plane, cfg.RefCount, 16, log.Nop())
	scheduler := sched.NewScheduler(2, log.Nop())
	table := rc.NewTable(plane)
	return New(space, scheduler, table, cfg, log.Nop())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NotInGC", NotInGC.String())
	assert.Equal(t, "FullTraceDefrag", FullTraceDefrag.String())
	assert.Equal(t, "Invalid", Kind(999).String())
}

func TestScheduleCollectionDefaultsToRefCount(t *testing.T) {
	p := newTestPlan(t, config.Default())
	kind := p.ScheduleCollection(false)
	assert.Equal(t, RefCount, kind)
	assert.Equal(t, RefCount, p.State())
	assert.EqualValues(t, 1, p.Epoch())
}

func TestScheduleCollectionHonorsConcurrentMarkingRequest(t *testing.T) {
	cfg := config.Default()
	cfg.ConcurrentMarking = true
	p := newTestPlan(t, cfg)

	kind := p.ScheduleCollection(true)
	assert.Equal(t, InitialMark, kind)
}

func TestScheduleCollectionFinalMarkFollowsConcurrentMarkingState(t *testing.T) {
	cfg := config.Default()
	cfg.ConcurrentMarking = true
	p := newTestPlan(t, cfg)
	p.setState(ConcurrentMarkingState)

	kind := p.ScheduleCollection(false)
	assert.Equal(t, FinalMark, kind)
}

func TestScheduleCollectionEmergencyForcesFullTrace(t *testing.T) {
	p := newTestPlan(t, config.Default())
	p.RequestEmergencyCollection()

	kind := p.ScheduleCollection(false)
	assert.Contains(t, []Kind{FullTraceFast, FullTraceDefrag}, kind)
}

func TestScheduleCollectionForcedFullRequest(t *testing.T) {
	p := newTestPlan(t, config.Default())
	p.RequestFullCollection()

	kind := p.ScheduleCollection(false)
	assert.Contains(t, []Kind{FullTraceFast, FullTraceDefrag}, kind)
}

func TestScheduleCollectionWithoutRefCountAlwaysFullTraces(t *testing.T) {
	cfg := config.Default()
	cfg.RefCount = false
	p := newTestPlan(t, cfg)

	kind := p.ScheduleCollection(false)
	assert.Contains(t, []Kind{FullTraceFast, FullTraceDefrag}, kind)
}

func TestScheduleCollectionGrowthAboveThresholdForcesFullTrace(t *testing.T) {
	cfg := config.Default()
	cfg.CycleTriggerThreshold = 100
	p := newTestPlan(t, cfg)
	p.RecordAllocation(200)

	kind := p.ScheduleCollection(false)
	assert.Contains(t, []Kind{FullTraceFast, FullTraceDefrag}, kind)
}

func TestChooseFullTraceKindAlternatesFastAndDefrag(t *testing.T) {
	cfg := config.Default()
	cfg.DefragPolicy = config.DefragSimpleIncremental
	p := newTestPlan(t, cfg)

	first := p.chooseFullTraceKind(false)
	assert.Equal(t, FullTraceDefrag, first)
	second := p.chooseFullTraceKind(false)
	assert.Equal(t, FullTraceFast, second)
}

func TestChooseFullTraceKindNoDefragAlwaysFast(t *testing.T) {
	cfg := config.Default()
	cfg.DefragPolicy = config.DefragNone
	p := newTestPlan(t, cfg)

	assert.Equal(t, FullTraceFast, p.chooseFullTraceKind(false))
	assert.Equal(t, FullTraceFast, p.chooseFullTraceKind(false))
}

func TestChooseFullTraceKindEmergencyAlwaysDefrags(t *testing.T) {
	cfg := config.Default()
	cfg.DefragPolicy = config.DefragSimpleIncremental
	p := newTestPlan(t, cfg)
	p.chooseFullTraceKind(false)
	p.chooseFullTraceKind(false)

	assert.Equal(t, FullTraceDefrag, p.chooseFullTraceKind(true))
}

func TestTriggerNoEvacAndResetOnSchedule(t *testing.T) {
	p := newTestPlan(t, config.Default())
	p.TriggerNoEvac()
	assert.True(t, p.NoEvac())

	p.ScheduleCollection(false)
	assert.False(t, p.NoEvac())
}

func TestShouldForceFullCollectionPredictorThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.CycleTriggerThreshold = 1000
	p := newTestPlan(t, cfg)

	assert.False(t, p.ShouldForceFullCollection())
	p.Predictor.RecordPromotion(3000)
	p.Predictor.EndCycle()
	assert.True(t, p.ShouldForceFullCollection())
}

func TestRegisterAndUnregisterFlushHook(t *testing.T) {
	p := newTestPlan(t, config.Default())
	called := false
	p.RegisterFlushHook(1, func() { called = true })

	p.flushHooksMu.Lock()
	hook := p.flushHooks[1]
	p.flushHooksMu.Unlock()
	require.NotNil(t, hook)
	hook()
	assert.True(t, called)

	p.UnregisterFlushHook(1)
	p.flushHooksMu.Lock()
	_, ok := p.flushHooks[1]
	p.flushHooksMu.Unlock()
	assert.False(t, ok)
}
