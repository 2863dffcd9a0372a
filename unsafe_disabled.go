//go:build nounsafe || gccgo || appengine

/**
 * Reed-Solomon Coding over 8-bit values.
 *
 * Copyright 2024, The stripefs Authors
 */

package erasure

// AllocAligned allocates 'fragments' slices, with 'each' bytes.
// Alignment is not guaranteed without the unsafe package.
func AllocAligned(fragments, each int) [][]byte {
	eachAligned := ((each + 63) / 64) * 64
	total := make([]byte, eachAligned*fragments)
	res := make([][]byte, fragments)
	for i := range res {
		res[i] = total[:each:eachAligned]
		total = total[eachAligned:]
	}
	return res
}
