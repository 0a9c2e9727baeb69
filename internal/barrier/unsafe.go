// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"unsafe"

	"github.com/lxr-project/lxr/address"
)

// wordPtr views addr as a pointer to the 8-byte word stored there.
// This is the one place barrier code reaches past the metadata plane
// into raw heap contents, needed to read/write the pointer a field
// write is actually touching.
func wordPtr(addr address.Address) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr))
}
