package sim

import "sync/atomic"

// Clock is the simulation cycle counter. Only the Country advances it;
// agents and locations read it.
type Clock struct {
	cycle atomic.Uint32
}

// NewClock returns a clock at cycle 0.
func NewClock() *Clock {
	return &Clock{}
}

// Current returns the current cycle.
func (c *Clock) Current() uint32 {
	return c.cycle.Load()
}

func (c *Clock) advance() uint32 {
	return c.cycle.Add(1)
}
