// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package simulate

import "sync/atomic"

// Clock is a manually-advanced implementation of auction.Clock, letting a
// scripted simulation control block production and wall-clock time
// precisely instead of waiting on a real chain.
type Clock struct {
	block atomic.Uint64
	now   atomic.Int64
}

// NewClock constructs a Clock starting at the given block and unix time.
func NewClock(startBlock uint64, startUnix int64) *Clock {
	c := &Clock{}
	c.block.Store(startBlock)
	c.now.Store(startUnix)
	return c
}

// CurrentBlock implements auction.Clock.
func (c *Clock) CurrentBlock() uint64 { return c.block.Load() }

// NowUnix implements auction.Clock.
func (c *Clock) NowUnix() int64 { return c.now.Load() }

// AdvanceBlocks moves the clock forward by n blocks.
func (c *Clock) AdvanceBlocks(n uint64) { c.block.Add(n) }

// AdvanceSeconds moves the wall clock forward by n seconds.
func (c *Clock) AdvanceSeconds(n int64) { c.now.Add(n) }
