// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistogramMedianOccupancy(t *testing.T) {
	h := NewHistogram(128)
	h.Record(10)
	h.Record(10)
	h.Record(100)

	assert.Equal(t, 10, h.MedianOccupancy())

	snap := h.Snapshot()
	assert.Equal(t, uint64(2), snap[10])
	assert.Equal(t, uint64(1), snap[100])

	h.Reset()
	assert.Equal(t, 0, h.MedianOccupancy())
}

func TestHistogramEmptyMedianIsZero(t *testing.T) {
	h := NewHistogram(128)
	assert.Equal(t, 0, h.MedianOccupancy())
}
