//go:build !nounsafe && !gccgo && !appengine

/**
 * Reed-Solomon Coding over 8-bit values.
 *
 * Copyright 2024, The stripefs Authors
 */

package erasure

import "unsafe"

// AllocAligned allocates 'fragments' slices, with 'each' bytes.
// Each slice will start on a 64 byte aligned boundary.
func AllocAligned(fragments, each int) [][]byte {
	eachAligned := ((each + 63) / 64) * 64
	total := make([]byte, eachAligned*fragments+63)
	align := uint(uintptr(unsafe.Pointer(&total[0]))) & 63
	if align > 0 {
		total = total[64-align:]
	}
	res := make([][]byte, fragments)
	for i := range res {
		res[i] = total[:each:eachAligned]
		total = total[eachAligned:]
	}
	return res
}
