package erasure_test

import (
	"bytes"
	"fmt"
	"math/rand"

	"github.com/stripefs/erasure"
)

func fillRandom(p []byte) {
	for i := 0; i < len(p); i += 7 {
		val := rand.Int63()
		for j := 0; i+j < len(p) && j < 7; j++ {
			p[i+j] = byte(val)
			val >>= 8
		}
	}
}

// Simple example of how to use all functions of the Codec.
// Note that all error checks have been removed to keep it short.
func ExampleNew() {
	// Create a codec with 4 data and 2 parity fragments.
	codec, _ := erasure.New(4, 2)

	// Create a stripe of random data.
	data := make([][]byte, 4)
	for i := range data {
		data[i] = make([]byte, 1024)
		fillRandom(data[i])
	}
	parity := [][]byte{make([]byte, 1024), make([]byte, 1024)}

	// Encode the parity fragments.
	_ = codec.Encode(data, parity)

	// Verify the stripe.
	ok, _ := codec.Verify(data, parity)
	if ok {
		fmt.Println("ok")
	}

	// Data fragment 1 and parity fragment 5 are lost.
	var erased erasure.SlotSet
	erased.Set(1)
	erased.Set(5)

	// Survivors keep their slots; erased entries are ignored.
	input := [][]byte{data[0], nil, data[2], data[3], parity[0], nil}

	// Recover writes only to the erased slots.
	output := make([][]byte, 6)
	output[1] = make([]byte, 1024)
	output[5] = make([]byte, 1024)
	_ = codec.Recover(input, erased, output)

	if bytes.Equal(output[1], data[1]) && bytes.Equal(output[5], parity[1]) {
		fmt.Println("ok")
	}
	// Output: ok
	// ok
}

// Fragments known to hold only zeros do not have to be materialized:
// a nil entry at a surviving slot is treated as a fragment of zeros.
func ExampleCodec_Recover() {
	codec, err := erasure.New(3, 2)
	if err != nil {
		panic(err)
	}

	// Fragment 0 of this stripe is all zeros and was never stored.
	data := [][]byte{
		make([]byte, 8),
		{1, 2, 3, 4, 5, 6, 7, 8},
		{9, 10, 11, 12, 13, 14, 15, 16},
	}
	parity := [][]byte{make([]byte, 8), make([]byte, 8)}
	if err := codec.Encode(data, parity); err != nil {
		panic(err)
	}

	// Fragment 1 is lost. Slot 0 stays nil: it is known to be zero.
	var erased erasure.SlotSet
	erased.Set(1)
	input := [][]byte{nil, nil, data[2], parity[0], parity[1]}
	output := make([][]byte, 5)
	output[1] = make([]byte, 8)
	if err := codec.Recover(input, erased, output); err != nil {
		panic(err)
	}
	fmt.Println(output[1])
	// Output: [1 2 3 4 5 6 7 8]
}
