// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pages

import (
	"sync"
	"sync/atomic"

	"github.com/lxr-project/lxr/address"
	"github.com/lxr-project/lxr/internal/layout"
	"github.com/lxr-project/lxr/log"
)

// LocalCapacity is the size of a worker-local free-block ring
//.
const LocalCapacity = 256

// BlockArray is a worker-local free-block ring. It has a single owner
// (one GC worker or one mutator) and needs no internal locking,
// mirroring runtime/mfixalloc.go's per-P-cache design philosophy
// (amortize contention by keeping a private cache, only touching
// shared state on overflow/underflow).
type BlockArray struct {
	items [LocalCapacity]address.Address
	n     int
}

// Push appends a to the array, returning false if it is already full
// (the caller must then flush to the global pool).
func (b *BlockArray) Push(a address.Address) bool {
	if b.n >= LocalCapacity {
		return false
	}
	b.items[b.n] = a
	b.n++
	return true
}

// Pop removes and returns the most recently pushed block.
func (b *BlockArray) Pop() (address.Address, bool) {
	if b.n == 0 {
		return address.Zero, false
	}
	b.n--
	return b.items[b.n], true
}

// Len reports how many blocks are cached locally.
func (b *BlockArray) Len() int { return b.n }

// Full reports whether the array has no more room.
func (b *BlockArray) Full() bool { return b.n == LocalCapacity }

// reset empties the array and returns its previous contents, used when
// handing the whole array off to the global overflow pool.
func (b *BlockArray) reset() []address.Address {
	out := make([]address.Address, b.n)
	copy(out, b.items[:b.n])
	b.n = 0
	return out
}

// fill replaces the array's contents with up to LocalCapacity entries
// from src, returning any leftover that didn't fit.
func (b *BlockArray) fill(src []address.Address) []address.Address {
	n := copy(b.items[:], src)
	b.n = n
	return src[n:]
}

// PageResource hands out and reclaims fixed-size blocks, never partial
// blocks. Allocation path: (1) pop worker-local; (2)
// steal from global overflow; (3) grow by reserving one chunk from the
// Arena, carving it into blocks, publishing all-but-one to global.
type PageResource struct {
	arena Arena
	log   *log.Logger

	// overflow holds []address.Address batches of free blocks pushed whole by FlushWorker or
	// by the chunk-growth path; popped whole to refill a worker's
	// local array. Grounded on runtime/lfstack.go (see lfstack.go in
	// this package).
	overflow LFStack[[]address.Address]

	// growMu serializes chunk reservation; spec.md §4.2 calls for
	// SeqCst ordering on "the bump highwater CAS that grows space" —
	// a mutex around the single growth path gives the same total
	// order without a separate atomic counter, since Reserve() itself
	// already serializes via the arena's own lock.
	growMu sync.Mutex

	chunksReserved uint64
	blocksHandedOut uint64

	// allMu guards allBlocks, the lifetime record of every block address
	// ever carved from a reserved chunk. A full-heap sweep 	// §4.3.4) needs to visit blocks regardless of which worker-local
	// array or overflow batch currently holds them, so growth publishes
	// here in addition to the free-list bookkeeping above.
	allMu     sync.Mutex
	allBlocks []address.Address
}

// NewPageResource constructs a page resource over arena.
func NewPageResource(arena Arena, logger *log.Logger) *PageResource {
	return &PageResource{arena: arena, log: logger}
}

// AllocBlock returns a fresh block for the caller's worker-local
// array, or an error if the arena cannot grow
// further.
func (p *PageResource) AllocBlock(local *BlockArray) (address.Address, error) {
	if a, ok := local.Pop(); ok {
		return a, nil
	}
	if batch, ok := p.overflow.Pop(); ok {
		leftover := local.fill(batch)
		if len(leftover) > 0 {
			// More than LocalCapacity came back in one batch; push the
			// remainder back to the global pool rather than drop it.
			p.overflow.Push(leftover)
		}
		a, ok := local.Pop()
		if ok {
			atomic.AddUint64(&p.blocksHandedOut, 1)
			return a, nil
		}
	}
	return p.grow(local)
}

// grow reserves one chunk from the arena, carves it into blocks,
// returns one to the caller and publishes the rest to the global
// overflow pool.
func (p *PageResource) grow(local *BlockArray) (address.Address, error) {
	p.growMu.Lock()
	defer p.growMu.Unlock()

	// Re-check the local array: another goroutine may have flushed
	// blocks here while we waited for growMu.
	if a, ok := local.Pop(); ok {
		return a, nil
	}

	base, err := p.arena.Reserve()
	if err != nil {
		return address.Zero, err
	}
	atomic.AddUint64(&p.chunksReserved, 1)

	blocks := make([]address.Address, 0, layout.BlocksInChunk)
	for i := 0; i < layout.BlocksInChunk; i++ {
		blocks = append(blocks, base.Add(uintptr(i)*layout.BytesInBlock))
	}

	p.allMu.Lock()
	p.allBlocks = append(p.allBlocks, blocks...)
	p.allMu.Unlock()

	first := blocks[0]
	rest := blocks[1:]
	leftover := local.fill(rest)
	if len(leftover) > 0 {
		p.overflow.Push(leftover)
	}
	atomic.AddUint64(&p.blocksHandedOut, 1)
	if p.log != nil {
		p.log.Debugw("grew page resource", "chunk", base.String(), "blocks", layout.BlocksInChunk)
	}
	return first, nil
}

// ReleaseBlock returns a block to the caller's worker-local array,
// flushing the whole array to global overflow if it's full.
func (p *PageResource) ReleaseBlock(local *BlockArray, a address.Address) {
	if !local.Push(a) {
		p.overflow.Push(local.reset())
		local.Push(a)
	}
}

// ReleaseBlockGlobal pushes a single block directly to the global
// overflow pool, bypassing any worker-local array. Used by callers
// (e.g. a stop-the-world sweep) that reclaim blocks without an
// associated worker-local cache.
func (p *PageResource) ReleaseBlockGlobal(a address.Address) {
	p.overflow.Push([]address.Address{a})
}

// FlushWorker force-drains local to the global overflow pool: used at
// end-of-pause and worker shutdown // drain").
func (p *PageResource) FlushWorker(local *BlockArray) {
	if local.Len() == 0 {
		return
	}
	p.overflow.Push(local.reset())
}

// Stats returns lifetime counters for diagnostics/metrics.
func (p *PageResource) Stats() (chunksReserved, blocksHandedOut uint64) {
	return atomic.LoadUint64(&p.chunksReserved), atomic.LoadUint64(&p.blocksHandedOut)
}

// AllBlocks returns every block address this resource has ever carved
// out of the arena, in reservation order, regardless of current state
// or which free list (if any) currently holds it. Used by a full sweep
// to visit the whole heap.
func (p *PageResource) AllBlocks() []address.Address {
	p.allMu.Lock()
	defer p.allMu.Unlock()
	out := make([]address.Address, len(p.allBlocks))
	copy(out, p.allBlocks)
	return out
}
