// Copyright 2024, The stripefs Authors, see LICENSE for details.

package erasure

import (
	"runtime"
)

// Option allows to override processing parameters.
type Option func(*options)

type options struct {
	maxGoroutines int
	minSplitSize  int
	fragmentSize  int
	perRound      int

	useCauchy      bool
	fastOneParity  bool
	inversionCache bool
}

var defaultOptions = options{
	maxGoroutines:  384,
	minSplitSize:   -1,
	fastOneParity:  false,
	inversionCache: true,
}

func init() {
	if runtime.GOMAXPROCS(0) <= 1 {
		defaultOptions.maxGoroutines = 1
	}
}

// WithMaxGoroutines is the maximum number of goroutines for encoding and
// recovery. Jobs will be split into this many parts, unless each
// goroutine would have to process less than minSplitSize bytes (set with
// WithMinSplitSize). For the best speed, keep this well above the
// GOMAXPROCS number for more fine grained scheduling.
// If n <= 0, it is ignored.
func WithMaxGoroutines(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxGoroutines = n
		}
	}
}

// WithAutoGoroutines will adjust the number of goroutines for optimal
// speed with a specific fragment size. Send in the fragment size you
// expect to use; other sizes will work, but may not run at the optimal
// speed. Overwrites WithMaxGoroutines. If fragmentSize <= 0, it is
// ignored.
func WithAutoGoroutines(fragmentSize int) Option {
	return func(o *options) {
		o.fragmentSize = fragmentSize
	}
}

// WithMinSplitSize is the minimum fragment size in bytes per goroutine.
// By default this is set by evaluating the CPU cache size.
func WithMinSplitSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minSplitSize = n
		}
	}
}

// WithCauchyMatrix will make the codec build a Cauchy style matrix
// instead of the default Vandermonde derived one. Both keep the data
// fragments unchanged and recover from any parity-count losses; the
// parity bytes they produce differ, so all fragments of a stripe must
// be encoded and recovered with the same choice.
func WithCauchyMatrix() Option {
	return func(o *options) {
		o.useCauchy = true
	}
}

// WithFastOneParityMatrix will swap the parity row for an all-ones row
// when there is exactly one parity fragment, reducing encoding to a pure
// XOR. The option is ignored for other parity counts.
func WithFastOneParityMatrix() Option {
	return func(o *options) {
		o.fastOneParity = true
	}
}

// WithInversionCache controls the reuse of inverted decode matrices.
// Recovering the same erasure pattern twice then skips the matrix
// inversion. Enabled by default.
func WithInversionCache(enabled bool) Option {
	return func(o *options) {
		o.inversionCache = enabled
	}
}
