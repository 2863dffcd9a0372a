/**
 * 8-bit Galois Field arithmetic
 *
 * Copyright 2024, The stripefs Authors
 */

package erasure

import "encoding/binary"

// The field is GF(2^8) with the polynomial x^8 + x^4 + x^3 + x^2 + 1,
// generated by 2. Every table below is filled in by init and never
// written again.
const fieldPolynomial = 0x11d

var (
	// expTable[i] is 2 to the i'th power. Doubled up so the sum of two
	// logs can index it without a reduction mod 255.
	expTable [512]byte

	// logTable[a] is the discrete logarithm of a. Entry 0 is meaningless.
	logTable [256]byte

	// mulTable[c][b] is the product of c and b. Row c is the per-scalar
	// lookup table the region kernels walk.
	mulTable [256][256]byte

	// invTable[a] is the multiplicative inverse of a. Entry 0 is
	// meaningless.
	invTable [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		expTable[i] = byte(x)
		logTable[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= fieldPolynomial
		}
	}
	for i := 255; i < len(expTable); i++ {
		expTable[i] = expTable[i-255]
	}
	for a := 1; a < 256; a++ {
		logA := int(logTable[a])
		invTable[a] = expTable[255-logA]
		for b := 1; b < 256; b++ {
			mulTable[a][b] = expTable[logA+int(logTable[b])]
		}
	}
}

// galAdd adds a and b. Subtraction is the same operation.
func galAdd(a, b byte) byte {
	return a ^ b
}

func galMultiply(a, b byte) byte {
	return mulTable[a][b]
}

// galDivide divides a by b. Division by zero panics.
func galDivide(a, b byte) byte {
	if a == 0 {
		return 0
	}
	if b == 0 {
		panic("Argument 'divisor' is 0")
	}
	logResult := int(logTable[a]) - int(logTable[b])
	if logResult < 0 {
		logResult += 255
	}
	return expTable[logResult]
}

// galOneOver is the multiplicative inverse, same as galDivide(1, a).
// The inverse of zero panics.
func galOneOver(a byte) byte {
	if a == 0 {
		panic("Argument 'divisor' is 0")
	}
	return invTable[a]
}

// galExp raises a to the n'th power. a^0 is 1 for every a including 0.
func galExp(a byte, n int) byte {
	if n == 0 {
		return 1
	}
	if a == 0 {
		return 0
	}
	logResult := int(logTable[a]) * n
	for logResult >= 255 {
		logResult -= 255
	}
	return expTable[logResult]
}

// galMulSlice sets out[i] = c * in[i] over the whole region.
func galMulSlice(c byte, in, out []byte, o *options) {
	out = out[:len(in)]
	if c == 1 {
		copy(out, in)
		return
	}
	mt := mulTable[c][:256]
	for n, input := range in {
		out[n] = mt[input]
	}
}

// galMulSliceXor sets out[i] ^= c * in[i] over the whole region. This is
// the multiply-accumulate the coding loops are built from.
func galMulSliceXor(c byte, in, out []byte, o *options) {
	out = out[:len(in)]
	if c == 1 {
		sliceXor(in, out, o)
		return
	}
	mt := mulTable[c][:256]
	for n, input := range in {
		out[n] ^= mt[input]
	}
}

// sliceXor sets out[i] ^= in[i], a word at a time.
func sliceXor(in, out []byte, _ *options) {
	out = out[:len(in)]
	for len(out) >= 32 {
		inS := in[:32]
		v0 := binary.LittleEndian.Uint64(out[:8]) ^ binary.LittleEndian.Uint64(inS[:8])
		v1 := binary.LittleEndian.Uint64(out[8:16]) ^ binary.LittleEndian.Uint64(inS[8:16])
		v2 := binary.LittleEndian.Uint64(out[16:24]) ^ binary.LittleEndian.Uint64(inS[16:24])
		v3 := binary.LittleEndian.Uint64(out[24:32]) ^ binary.LittleEndian.Uint64(inS[24:32])
		binary.LittleEndian.PutUint64(out[:8], v0)
		binary.LittleEndian.PutUint64(out[8:16], v1)
		binary.LittleEndian.PutUint64(out[16:24], v2)
		binary.LittleEndian.PutUint64(out[24:32], v3)
		in = in[32:]
		out = out[32:]
	}
	for n, input := range in {
		out[n] ^= input
	}
}

func memclr(s []byte) {
	for i := range s {
		s[i] = 0
	}
}
