// Copyright 2024, The stripefs Authors, see LICENSE for details.

package erasure

import (
	"math/bits"
	"strconv"
	"strings"
)

// SlotSet is a fixed-capacity set of fragment slot indices, used to tell
// Recover which slots of a stripe are erased. Callers typically keep a
// second, independent SlotSet to track fragments known to be all zeros.
//
// The zero value is the empty set. A SlotSet is a plain value; copies
// are independent and comparison with == works.
type SlotSet uint64

// slotSetBits is the capacity of a SlotSet. It matches MaxFragments.
const slotSetBits = 64

func checkSlot(i int) {
	if i < 0 || i >= slotSetBits {
		panic("slot " + strconv.Itoa(i) + " out of range")
	}
}

// Set flags slot i. Panics if i is outside 0..63.
func (s *SlotSet) Set(i int) {
	checkSlot(i)
	*s |= 1 << uint(i)
}

// Clear unflags slot i. Panics if i is outside 0..63.
func (s *SlotSet) Clear(i int) {
	checkSlot(i)
	*s &^= 1 << uint(i)
}

// Test reports whether slot i is flagged. Panics if i is outside 0..63.
func (s SlotSet) Test(i int) bool {
	checkSlot(i)
	return s&(1<<uint(i)) != 0
}

// Count returns the number of flagged slots.
func (s SlotSet) Count() int {
	return bits.OnesCount64(uint64(s))
}

// Reset unflags every slot.
func (s *SlotSet) Reset() {
	*s = 0
}

// String returns the flagged slots in ascending order.
//
// Example: {0, 2, 5}
func (s SlotSet) String() string {
	out := make([]string, 0, s.Count())
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, strconv.Itoa(bits.TrailingZeros64(v)))
	}
	return "{" + strings.Join(out, ", ") + "}"
}
