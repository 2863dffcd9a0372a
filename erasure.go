/**
 * Reed-Solomon Coding over 8-bit values.
 *
 * Copyright 2024, The stripefs Authors
 */

// Package erasure implements a systematic Reed-Solomon erasure codec
// over GF(2^8) for stripes of equal-size fragments.
//
// A stripe holds k data fragments followed by m parity fragments, at
// most 32 of each. Encode computes the parity from the data; any k of
// the k+m fragments are enough for Recover to rebuild the rest. The
// codec is systematic: data fragments are stored unmodified, so readers
// holding the complete data never touch the codec.
//
// A Codec is immutable after New and safe for concurrent use.
package erasure

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Codec encodes parity for stripes of data fragments and recovers
// erased fragments from the survivors.
type Codec interface {
	// Encode computes the parity fragments for a stripe of data
	// fragments.
	//
	// data must hold exactly the codec's number of data fragments and
	// parity exactly its number of parity fragments. Every fragment
	// must be the same size. The parity buffers are overwritten in
	// place; their previous contents are never read. The data
	// fragments are not modified.
	Encode(data, parity [][]byte) error

	// Verify returns true if the parity fragments match the data
	// fragments. The arrays are validated like Encode, but the parity
	// must carry real contents. No fragments are modified.
	Verify(data, parity [][]byte) (bool, error)

	// Recover rebuilds the fragments flagged in erased.
	//
	// input and output both hold one entry per slot of the stripe: k
	// data fragments followed by m parity fragments. Input entries at
	// erased slots are ignored and never read. Non-erased entries of
	// zero length are treated as fragments known to consist entirely
	// of zeros; all remaining entries must carry fragments of equal
	// size.
	//
	// Every erased slot needs a pre-allocated buffer of the fragment
	// size in output. Erased data fragments are written first, then
	// erased parity fragments, both in ascending slot order. Output
	// entries at non-erased slots are left untouched.
	//
	// At most the codec's parity count may be flagged, or
	// ErrTooManyErased is returned. The rebuilt fragments are
	// byte-identical to the originals, but integrity is not verified;
	// use Verify on a complete stripe for that.
	Recover(input [][]byte, erased SlotSet, output [][]byte) error
}

// Stripe bounds. MaxFragments is also the SlotSet capacity.
const (
	MaxDataFragments   = 32
	MaxParityFragments = 32
	MaxFragments       = MaxDataFragments + MaxParityFragments
)

// ErrInvFragmentNum will be returned by New, if you attempt to create a
// Codec with less than one data fragment or a negative number of parity
// fragments.
var ErrInvFragmentNum = errors.New("cannot create Codec with less than one data fragment or negative parity fragments")

// ErrMaxFragmentNum will be returned by New, if you attempt to create a
// Codec with more than MaxDataFragments data fragments or more than
// MaxParityFragments parity fragments.
var ErrMaxFragmentNum = errors.New("cannot create Codec with more than 32 data or 32 parity fragments")

// ErrTooFewFragments is returned if too few fragments were given to
// Encode, Verify or Recover: an array has the wrong number of entries,
// or fewer fragments than needed survive.
var ErrTooFewFragments = errors.New("too few fragments given")

// ErrTooManyErased is returned by Recover when more slots are flagged
// erased than there are parity fragments.
var ErrTooManyErased = errors.New("more fragments erased than parity count")

// ErrFragmentSize is returned if the fragment sizes in one call are not
// all the same, or a required buffer is missing.
var ErrFragmentSize = errors.New("fragment sizes do not match")

// ErrNoData is returned when every fragment in the call is zero length,
// so no fragment size can be determined.
var ErrNoData = errors.New("no fragment data")

// ErrInvalidInput is returned by Recover when the erased set flags a
// slot outside the stripe. Errors carry detail; match with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// reedSolomon holds the generator matrix for a specific distribution of
// data and parity fragments. Construct with New.
type reedSolomon struct {
	dataFragments   int
	parityFragments int
	totalFragments  int
	m               matrix
	parity          [][]byte
	inversions      *inversionCache
	o               options
}

// buildMatrix creates the generator matrix for the given number of data
// fragments and total fragments.
//
// The top square of the matrix is guaranteed to be an identity matrix,
// which means that the data fragments are unchanged after encoding.
func buildMatrix(dataFragments, totalFragments int) (matrix, error) {
	// Start with a Vandermonde matrix. This matrix would work, in
	// theory, but doesn't have the property that the data fragments
	// are unchanged after encoding.
	vm, err := vandermonde(totalFragments, dataFragments)
	if err != nil {
		return nil, err
	}

	// Multiply by the inverse of the top square of the matrix. This
	// will make the top square be the identity matrix, but preserve
	// the property that any square subset of rows is invertible.
	top, err := vm.SubMatrix(0, 0, dataFragments, dataFragments)
	if err != nil {
		return nil, err
	}

	topInv, err := top.Invert()
	if err != nil {
		return nil, err
	}

	return vm.Multiply(topInv)
}

// buildMatrixCauchy creates the top square of the matrix to be the
// identity matrix and the bottom a Cauchy block filled with
// 1/(r XOR c). Any square subset of rows stays invertible.
func buildMatrixCauchy(dataFragments, totalFragments int) (matrix, error) {
	result, err := newMatrix(totalFragments, dataFragments)
	if err != nil {
		return nil, err
	}
	for r, row := range result {
		for c := range row {
			switch {
			case r < dataFragments:
				if c == r {
					result[r][c] = 1
				}
			default:
				result[r][c] = invTable[byte(r^c)]
			}
		}
	}
	return result, nil
}

// buildXorMatrix can be used to build a matrix with pure XOR operations
// if there is only one parity fragment.
func buildXorMatrix(dataFragments, totalFragments int) (matrix, error) {
	if dataFragments+1 != totalFragments {
		return nil, errors.New("internal error")
	}
	result, err := newMatrix(totalFragments, dataFragments)
	if err != nil {
		return nil, err
	}
	for r, row := range result {
		// Set up identity matrix for upper square.
		if r < dataFragments {
			result[r][r] = 1
			continue
		}
		// Set all values to 1 (XOR).
		for c := range row {
			result[r][c] = 1
		}
	}
	return result, nil
}

// New creates a new Codec for the given number of data fragments and
// parity fragments and initializes its generator matrix. You can reuse
// the codec: it is stateless between calls and safe for concurrent use.
//
// dataFragments must be 1..MaxDataFragments and parityFragments
// 0..MaxParityFragments.
func New(dataFragments, parityFragments int, opts ...Option) (Codec, error) {
	r := reedSolomon{
		dataFragments:   dataFragments,
		parityFragments: parityFragments,
		totalFragments:  dataFragments + parityFragments,
		o:               defaultOptions,
	}
	for _, opt := range opts {
		opt(&r.o)
	}
	if dataFragments < 1 || parityFragments < 0 {
		return nil, ErrInvFragmentNum
	}
	if dataFragments > MaxDataFragments || parityFragments > MaxParityFragments {
		return nil, ErrMaxFragmentNum
	}

	var err error
	switch {
	case r.o.fastOneParity && parityFragments == 1:
		r.m, err = buildXorMatrix(dataFragments, r.totalFragments)
	case r.o.useCauchy:
		r.m, err = buildMatrixCauchy(dataFragments, r.totalFragments)
	default:
		r.m, err = buildMatrix(dataFragments, r.totalFragments)
	}
	if err != nil {
		return nil, err
	}

	// Calculate what we want per round.
	r.o.perRound = cpuid.CPU.Cache.L2
	if r.o.perRound < 128<<10 {
		r.o.perRound = 128 << 10
	}

	divide := parityFragments + 1
	if divide < 2 {
		divide = 2
	}
	r.o.perRound /= divide
	// Align to 64 bytes.
	r.o.perRound = ((r.o.perRound + 63) / 64) * 64

	if r.o.minSplitSize <= 0 {
		if cpuid.CPU.ThreadsPerCore > 1 || runtime.GOMAXPROCS(0) > runtime.NumCPU() {
			// If multiple threads per core, make sure they don't
			// contend for cache.
			r.o.minSplitSize = r.o.perRound
		} else {
			r.o.minSplitSize = r.o.perRound / 2
		}
	}

	if r.o.fragmentSize > 0 {
		p := runtime.GOMAXPROCS(0)
		if p == 1 || r.o.fragmentSize <= r.o.minSplitSize*2 {
			// Not worth it.
			r.o.maxGoroutines = 1
		} else {
			g := r.o.fragmentSize / r.o.perRound
			// Overprovision by a factor of 2.
			if g < p*2 && g > 0 {
				g = p * 2
			}
			g += p
			if g < r.o.maxGoroutines {
				r.o.maxGoroutines = g
			}
		}
	}
	if r.o.maxGoroutines <= 0 {
		r.o.maxGoroutines = 1
	}

	if r.o.inversionCache {
		r.inversions = newInversionCache()
	}

	r.parity = make([][]byte, parityFragments)
	for i := range r.parity {
		r.parity[i] = r.m[dataFragments+i]
	}

	return &r, nil
}

func (r *reedSolomon) Encode(data, parity [][]byte) error {
	if len(data) != r.dataFragments || len(parity) != r.parityFragments {
		return ErrTooFewFragments
	}

	size := fragmentSize(data)
	if size == 0 {
		size = fragmentSize(parity)
	}
	if size == 0 {
		return ErrNoData
	}
	if err := checkFragments(data, size); err != nil {
		return err
	}
	if err := checkFragments(parity, size); err != nil {
		return err
	}

	// Do the coding.
	r.codeSomeFragments(r.parity, data, parity, size)
	return nil
}

func (r *reedSolomon) Verify(data, parity [][]byte) (bool, error) {
	if len(data) != r.dataFragments || len(parity) != r.parityFragments {
		return false, ErrTooFewFragments
	}

	size := fragmentSize(data)
	if size == 0 {
		size = fragmentSize(parity)
	}
	if size == 0 {
		return false, ErrNoData
	}
	if err := checkFragments(data, size); err != nil {
		return false, err
	}
	if err := checkFragments(parity, size); err != nil {
		return false, err
	}

	// Do the checking.
	return r.checkSomeFragments(r.parity, data, parity, size), nil
}

func (r *reedSolomon) Recover(input [][]byte, erased SlotSet, output [][]byte) error {
	if len(input) != r.totalFragments || len(output) != r.totalFragments {
		return ErrTooFewFragments
	}
	if over := erased &^ ((SlotSet(1) << uint(r.totalFragments)) - 1); over != 0 {
		return fmt.Errorf("erased slots %v outside the %d fragment stripe: %w", over, r.totalFragments, ErrInvalidInput)
	}
	if erased.Count() > r.parityFragments {
		return ErrTooManyErased
	}

	// The fragment size comes from the first real input. When every
	// usable input is zero treated, the requested output buffers carry
	// it instead.
	size := 0
	for i, in := range input {
		if erased.Test(i) || len(in) == 0 {
			continue
		}
		if size == 0 {
			size = len(in)
		} else if len(in) != size {
			return ErrFragmentSize
		}
	}
	if erased == 0 {
		if size == 0 {
			return ErrNoData
		}
		// Nothing flagged, nothing to do.
		return nil
	}
	for e := 0; e < r.totalFragments; e++ {
		if !erased.Test(e) {
			continue
		}
		if size == 0 {
			size = len(output[e])
			if size == 0 {
				return ErrNoData
			}
		}
		if len(output[e]) != size {
			return ErrFragmentSize
		}
	}

	// Rebuild erased data fragments from an inverted square selection
	// of the generator first; erased parity is then plain re-encoding
	// of the completed data stripe.
	if dataMask := (SlotSet(1) << uint(r.dataFragments)) - 1; erased&dataMask != 0 {
		decode, subInputs, err := r.decodeMatrix(input, erased)
		if err != nil {
			return err
		}
		outputs := make([][]byte, 0, r.parityFragments)
		matrixRows := make([][]byte, 0, r.parityFragments)
		for e := 0; e < r.dataFragments; e++ {
			if !erased.Test(e) {
				continue
			}
			outputs = append(outputs, output[e][:size])
			matrixRows = append(matrixRows, decode[e])
		}
		r.codeSomeFragments(matrixRows, subInputs, outputs, size)
	}

	if erased>>uint(r.dataFragments) != 0 {
		sources := make([][]byte, r.dataFragments)
		for i := range sources {
			if erased.Test(i) {
				sources[i] = output[i][:size]
			} else {
				// Surviving input; zero length stays zero treated.
				sources[i] = input[i]
			}
		}
		outputs := make([][]byte, 0, r.parityFragments)
		matrixRows := make([][]byte, 0, r.parityFragments)
		for e := r.dataFragments; e < r.totalFragments; e++ {
			if !erased.Test(e) {
				continue
			}
			outputs = append(outputs, output[e][:size])
			matrixRows = append(matrixRows, r.parity[e-r.dataFragments])
		}
		r.codeSomeFragments(matrixRows, sources, outputs, size)
	}
	return nil
}

// decodeMatrix returns the inverted decode matrix for the erasure
// pattern and the selected input fragments feeding it.
//
// Selection walks the slots in ascending order and keeps the first k
// that are not erased. Zero-treated entries are selected like any
// usable fragment: their generator rows are as good as any, and their
// empty buffers simply contribute nothing to the accumulation.
func (r *reedSolomon) decodeMatrix(input [][]byte, erased SlotSet) (matrix, [][]byte, error) {
	subInputs := make([][]byte, r.dataFragments)
	selected := make([]int, r.dataFragments)
	cnt := 0
	for i := 0; i < r.totalFragments && cnt < r.dataFragments; i++ {
		if erased.Test(i) {
			continue
		}
		subInputs[cnt] = input[i]
		selected[cnt] = i
		cnt++
	}
	if cnt < r.dataFragments {
		return nil, nil, ErrTooFewFragments
	}

	if r.inversions != nil {
		if decode := r.inversions.get(erased); decode != nil {
			return decode, subInputs, nil
		}
	}

	subMatrix, err := newMatrix(r.dataFragments, r.dataFragments)
	if err != nil {
		return nil, nil, err
	}
	for row, i := range selected {
		copy(subMatrix[row], r.m[i])
	}

	// Invert, so we can go from the encoded fragments back to the
	// original data. The inverse maps back to the data fragments only;
	// parity is re-encoded from those afterwards.
	decode, err := subMatrix.Invert()
	if err != nil {
		return nil, nil, err
	}
	if r.inversions != nil {
		r.inversions.insert(erased, decode)
	}
	return decode, subInputs, nil
}

// codeSomeFragments multiplies a subset of rows from a coding matrix by
// a full set of input fragments to produce some output fragments.
// 'matrixRows' are the rows from the matrix to use. 'inputs' holds one
// fragment per matrix column; zero-length entries are fragments known
// to be all zeros and contribute nothing. 'outputs' receives the
// computed fragments.
func (r *reedSolomon) codeSomeFragments(matrixRows, inputs, outputs [][]byte, byteCount int) {
	if len(outputs) == 0 {
		return
	}
	if byteCount > r.o.minSplitSize && r.o.maxGoroutines > 1 {
		r.codeSomeFragmentsP(matrixRows, inputs, outputs, byteCount)
		return
	}
	r.codeFragmentRange(matrixRows, inputs, outputs, 0, byteCount)
}

// codeFragmentRange runs the coding over the byte range [start, stop)
// of every fragment.
func (r *reedSolomon) codeFragmentRange(matrixRows, inputs, outputs [][]byte, start, stop int) {
	for iRow, out := range outputs {
		out = out[start:stop]
		row := matrixRows[iRow]
		first := true
		for c, in := range inputs {
			if len(in) == 0 {
				continue
			}
			if first {
				galMulSlice(row[c], in[start:stop], out, &r.o)
				first = false
			} else {
				galMulSliceXor(row[c], in[start:stop], out, &r.o)
			}
		}
		if first {
			// Every input was zero treated.
			memclr(out)
		}
	}
}

// codeSomeFragmentsP is the same as codeSomeFragments, but splits the
// workload into goroutine sized byte ranges.
func (r *reedSolomon) codeSomeFragmentsP(matrixRows, inputs, outputs [][]byte, byteCount int) {
	var wg sync.WaitGroup
	gor := r.o.maxGoroutines

	do := byteCount / gor
	if do < r.o.minSplitSize {
		do = r.o.minSplitSize
	}
	// Make sizes divisible by 64 so ranges stay cache line separated.
	do = (do + 63) & (^63)

	start := 0
	for start < byteCount {
		stop := start + do
		if stop > byteCount {
			stop = byteCount
		}
		wg.Add(1)
		go func(start, stop int) {
			r.codeFragmentRange(matrixRows, inputs, outputs, start, stop)
			wg.Done()
		}(start, stop)
		start = stop
	}
	wg.Wait()
}

// checkSomeFragments is mostly the same as codeSomeFragments, except it
// recodes into scratch buffers and compares with what is there.
func (r *reedSolomon) checkSomeFragments(matrixRows, inputs, toCheck [][]byte, byteCount int) bool {
	if len(toCheck) == 0 {
		return true
	}
	outputs := AllocAligned(len(toCheck), byteCount)
	r.codeSomeFragments(matrixRows, inputs, outputs, byteCount)
	for i, calc := range outputs {
		if !bytes.Equal(calc, toCheck[i][:byteCount]) {
			return false
		}
	}
	return true
}

// checkFragments will check if every fragment has the expected size.
func checkFragments(fragments [][]byte, size int) error {
	for _, f := range fragments {
		if len(f) != size {
			return ErrFragmentSize
		}
	}
	return nil
}

// fragmentSize returns the size of a single fragment. The first
// non-zero size is returned, or 0 if all fragments are size 0.
func fragmentSize(fragments [][]byte) int {
	for _, f := range fragments {
		if len(f) != 0 {
			return len(f)
		}
	}
	return 0
}
