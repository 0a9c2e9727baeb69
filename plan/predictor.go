// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

// ShouldForceFullCollection reports whether the predicted nursery
// survival volume is large enough, relative to the configured cycle
// threshold, that an upcoming RefCount pause should be escalated to a
// full trace early rather than waiting for rcBytesGrowth to cross
// CYCLE_TRIGGER_THRESHOLD on its own, using an EWMA survival-ratio
// predictor. Grounded on runtime/mheap.go's gcController.revise()
// pacer call, which likewise nudges the next collection's timing off
// a running allocation-rate estimate rather than a hard watermark
// alone.
func (p *Plan) ShouldForceFullCollection() bool {
	if p.Config.CycleTriggerThreshold == 0 {
		return false
	}
	estimate := p.Predictor.Estimate()
	return estimate*2 >= p.Config.CycleTriggerThreshold
}
