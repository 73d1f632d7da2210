// Package casclock issues CAS tokens for document stores.
//
// A CAS is derived from the wall clock in nanoseconds but never repeats and
// never goes backwards within one Clock, so every committed write of a key
// gets a CAS different from the one it replaced.
package casclock

import (
	"sync/atomic"
	"time"
)

// Clock issues strictly increasing CAS values. The zero value is ready to use.
type Clock struct {
	last atomic.Uint64
	now  func() time.Time
}

// New returns a Clock that reads time from now. A nil now uses time.Now.
func New(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next returns a CAS greater than every value previously returned or observed.
func (c *Clock) Next() uint64 {
	for {
		prev := c.last.Load()
		next := uint64(c.wall().UnixNano())
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Observe raises the clock so that Next never returns a value <= cas. Stores
// call it for CAS values loaded from disk.
func (c *Clock) Observe(cas uint64) {
	for {
		prev := c.last.Load()
		if cas <= prev || c.last.CompareAndSwap(prev, cas) {
			return
		}
	}
}

func (c *Clock) wall() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}
