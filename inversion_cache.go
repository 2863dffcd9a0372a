// Copyright 2024, The stripefs Authors, see LICENSE for details.

package erasure

import "sync"

// inversionCache memoizes inverted decode matrices keyed by the erasure
// pattern that produced them. Row selection depends only on the erased
// slots, so recovering the same pattern always needs the same inverse.
// The stripe is capped at 64 slots, which makes the SlotSet value itself
// the key. Safe for concurrent use.
type inversionCache struct {
	mu sync.RWMutex
	m  map[SlotSet]matrix
}

func newInversionCache() *inversionCache {
	return &inversionCache{m: make(map[SlotSet]matrix)}
}

func (c *inversionCache) get(erased SlotSet) matrix {
	c.mu.RLock()
	decode := c.m[erased]
	c.mu.RUnlock()
	return decode
}

func (c *inversionCache) insert(erased SlotSet, decode matrix) {
	c.mu.Lock()
	c.m[erased] = decode
	c.mu.Unlock()
}
