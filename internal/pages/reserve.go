// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pages

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// CopyReserve bounds the number of blocks concurrently committed to
// evacuation copies, so a burst of opportunistic copying // §4.3.3) can't outrun the clean-page supply. Grounded on
// runtime/sema.go's semaphore primitive (which itself backs
// sync.Mutex/sync.WaitGroup in the teacher); built on
// golang.org/x/sync/semaphore rather than reimplementing the
// wait-queue, since the *policy* (bound N concurrent copy reservations)
// is the thing worth grounding, not the underlying parking mechanism.
type CopyReserve struct {
	sem *semaphore.Weighted
	cap int64
}

// NewCopyReserve bounds concurrent copy reservations to maxBlocks.
func NewCopyReserve(maxBlocks int64) *CopyReserve {
	return &CopyReserve{sem: semaphore.NewWeighted(maxBlocks), cap: maxBlocks}
}

// TryAcquire attempts to reserve one block of copy headroom without
// blocking. Used by the evacuation fast path // "if... copy reserve is exhausted, ...return in place").
func (r *CopyReserve) TryAcquire() bool {
	return r.sem.TryAcquire(1)
}

// Acquire blocks until a block of copy headroom is available or ctx is
// done.
func (r *CopyReserve) Acquire(ctx context.Context) error {
	return r.sem.Acquire(ctx, 1)
}

// Release returns one block of copy headroom.
func (r *CopyReserve) Release() {
	r.sem.Release(1)
}

// Capacity returns the configured maximum.
func (r *CopyReserve) Capacity() int64 { return r.cap }
