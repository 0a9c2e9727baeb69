// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "sync"

// Stage names the ordered bucket sequence, omitting whichever stages a
// given pause kind doesn't populate.
type Stage int

const (
	Unconstrained Stage = iota
	Prepare
	PreClosure
	Closure
	SoftRefClosure
	WeakRefClosure
	FinalRefClosure
	PhantomRefClosure
	CalculateForwarding
	SecondRoots
	RefForwarding
	FinalizableForwarding
	Compact
	RCProcessDecs
	RCReleaseNursery
	RCFullHeapRelease
	PostClosure
	RefClosure
	Release
	Final

	numStages
)

var stageNames = [numStages]string{
	Unconstrained:        "Unconstrained",
	Prepare:              "Prepare",
	PreClosure:           "PreClosure",
	Closure:              "Closure",
	SoftRefClosure:       "SoftRefClosure",
	WeakRefClosure:       "WeakRefClosure",
	FinalRefClosure:      "FinalRefClosure",
	PhantomRefClosure:    "PhantomRefClosure",
	CalculateForwarding:  "CalculateForwarding",
	SecondRoots:          "SecondRoots",
	RefForwarding:        "RefForwarding",
	FinalizableForwarding: "FinalizableForwarding",
	Compact:              "Compact",
	RCProcessDecs:        "RCProcessDecs",
	RCReleaseNursery:     "RCReleaseNursery",
	RCFullHeapRelease:    "RCFullHeapRelease",
	PostClosure:          "PostClosure",
	RefClosure:           "RefClosure",
	Release:              "Release",
	Final:                "Final",
}

func (s Stage) String() string {
	if s < 0 || s >= numStages {
		return "Invalid"
	}
	return stageNames[s]
}

// Bucket holds one stage's work: a LIFO deque (the common case) plus
// an optional prioritized FIFO for work that must run before ordinary
// packets within the same stage.
type Bucket struct {
	stage Stage
	owner *Scheduler

	mu          sync.Mutex
	deque       []Packet
	prioritized *priorityQueue
	opened      bool

	// canOpen reports whether the bucket is allowed to open, evaluated
	// lazily by the scheduler against live state (e.g. "all mutator
	// buffers flushed"). nil means "always open once reached in stage
	// order".
	canOpen func() bool
}

func newBucket(stage Stage, owner *Scheduler) *Bucket {
	return &Bucket{stage: stage, owner: owner, prioritized: newPriorityQueue()}
}

// SetCanOpen installs the activation predicate for this pause: the
// bucket activates once the predicate becomes true.
func (b *Bucket) SetCanOpen(f func() bool) {
	b.mu.Lock()
	b.canOpen = f
	b.mu.Unlock()
}

// TryActivate evaluates canOpen and marks the bucket opened if it
// passes (or if no predicate was installed).
func (b *Bucket) TryActivate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return true
	}
	if b.canOpen == nil || b.canOpen() {
		b.opened = true
		return true
	}
	return false
}

// IsOpen reports whether the bucket has been activated.
func (b *Bucket) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// Push adds a packet to the LIFO deque.
func (b *Bucket) Push(p Packet) {
	b.mu.Lock()
	b.deque = append(b.deque, p)
	b.mu.Unlock()
	if b.owner != nil {
		b.owner.notifyOne()
	}
}

// PushPrioritized adds a packet to the bucket's prioritized lane.
func (b *Bucket) PushPrioritized(p Packet, priority int) {
	b.mu.Lock()
	b.prioritized.push(p, priority)
	b.mu.Unlock()
	if b.owner != nil {
		b.owner.notifyOne()
	}
}

// PushAll adds a batch of packets at once, notifying every parked
// worker.
func (b *Bucket) PushAll(ps []Packet) {
	if len(ps) == 0 {
		return
	}
	b.mu.Lock()
	b.deque = append(b.deque, ps...)
	b.mu.Unlock()
	if b.owner != nil {
		b.owner.notifyAll()
	}
}

// PopPrioritized pops from the prioritized lane first, matching the
// worker's "current bucket prioritized" step of the pop_any order.
func (b *Bucket) PopPrioritized() (Packet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prioritized.pop()
}

// PopNormal pops from the LIFO deque.
func (b *Bucket) PopNormal() (Packet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.deque)
	if n == 0 {
		return nil, false
	}
	p := b.deque[n-1]
	b.deque[n-1] = nil
	b.deque = b.deque[:n-1]
	return p, true
}

// Len reports the total number of queued packets across both lanes.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.deque) + b.prioritized.Len()
}

// Drained reports whether the bucket is open and has no queued work
//.
func (b *Bucket) Drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened && len(b.deque) == 0 && b.prioritized.Len() == 0
}

// reset clears the bucket for reuse in the next pause.
func (b *Bucket) reset() {
	b.mu.Lock()
	b.deque = nil
	b.prioritized = newPriorityQueue()
	b.opened = false
	b.canOpen = nil
	b.mu.Unlock()
}
