/**
 * Unit tests for SlotSet
 *
 * Copyright 2024, The stripefs Authors
 */

package erasure

import "testing"

func TestSlotSet(t *testing.T) {
	var s SlotSet
	if s.Count() != 0 {
		t.Fatal("zero value is not empty")
	}
	s.Set(0)
	s.Set(5)
	s.Set(63)
	if !s.Test(0) || !s.Test(5) || !s.Test(63) {
		t.Fatal("flagged slots do not test true")
	}
	if s.Test(1) || s.Test(62) {
		t.Fatal("unflagged slots test true")
	}
	if s.Count() != 3 {
		t.Fatal("expected 3 flagged slots, got", s.Count())
	}
	s.Set(5)
	if s.Count() != 3 {
		t.Fatal("setting a slot twice changed the count")
	}
	s.Clear(5)
	if s.Test(5) || s.Count() != 2 {
		t.Fatal("clear did not unflag the slot")
	}
	s.Clear(1)
	if s.Count() != 2 {
		t.Fatal("clearing an unflagged slot changed the count")
	}
	s.Reset()
	if s != 0 || s.Count() != 0 {
		t.Fatal("reset did not empty the set")
	}
}

func TestSlotSetString(t *testing.T) {
	var s SlotSet
	if got := s.String(); got != "{}" {
		t.Fatalf("empty set: got %q", got)
	}
	s.Set(0)
	s.Set(2)
	s.Set(5)
	if got := s.String(); got != "{0, 2, 5}" {
		t.Fatalf("got %q", got)
	}
}

func TestSlotSetRange(t *testing.T) {
	for _, i := range []int{-1, 64, 1000} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("no panic for slot %d", i)
				}
			}()
			var s SlotSet
			s.Set(i)
		}()
	}
}
