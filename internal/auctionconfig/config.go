// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package auctionconfig holds the engine's single tunable-parameter set:
// auction duration, grace period, and penalty curve coefficients. A Store
// validates and atomically replaces the active Config, the way the teacher's
// Swapper.Config is validated once at construction and held immutable.
package auctionconfig

import (
	"sync/atomic"

	"github.com/fasttransfer/matchingengine/dex"
)

// BpsDenominator is the fixed-point denominator: 1_000_000 == 100%.
const BpsDenominator = 1_000_000

// Config is the singleton auction parameter set.
type Config struct {
	// AuctionDuration is the number of blocks during which bids are
	// accepted, counted from the initial bid's block.
	AuctionDuration uint32
	// AuctionGracePeriod is the number of blocks, inclusive of
	// AuctionDuration, within which the winner may execute penalty-free.
	AuctionGracePeriod uint32
	// PenaltyBlocks is the number of blocks over which the penalty ramps
	// from InitialPenaltyBps to 100%.
	PenaltyBlocks uint32
	// UserPenaltyRewardBps is the share of the penalty total paid to the
	// end user, in [0, BpsDenominator].
	UserPenaltyRewardBps uint32
	// InitialPenaltyBps is the starting point of the penalty ramp, in [0,
	// BpsDenominator]. No penalty is charged up to AuctionDuration +
	// AuctionGracePeriod blocks; the first block after that is charged
	// InitialPenaltyBps plus one PenaltyBlocks-th of the span to 100%.
	InitialPenaltyBps uint32
}

// Validate checks the invariants from the data model: grace period strictly
// exceeds duration, both bps values are within range, and duration is
// positive.
func (c *Config) Validate() error {
	if c.AuctionDuration == 0 {
		return dex.NewError(dex.InvalidAuctionDuration, "auction_duration must be > 0")
	}
	if c.AuctionGracePeriod <= c.AuctionDuration {
		return dex.NewError(dex.InvalidAuctionGracePeriod, "auction_grace_period must exceed auction_duration")
	}
	if c.UserPenaltyRewardBps > BpsDenominator {
		return dex.NewError(dex.UserPenaltyTooLarge, "user_penalty_reward_bps exceeds 1_000_000")
	}
	if c.InitialPenaltyBps > BpsDenominator {
		return dex.NewError(dex.InitialPenaltyTooLarge, "initial_penalty_bps exceeds 1_000_000")
	}
	return nil
}

// Store holds the currently active Config behind an atomic pointer so reads
// never block on a concurrent SetConfig.
type Store struct {
	cur atomic.Pointer[Config]
}

// NewStore constructs a Store, validating and installing the initial
// config.
func NewStore(initial *Config) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	cp := *initial
	s.cur.Store(&cp)
	return s, nil
}

// SetConfig validates cfg and atomically replaces the active config.
func (s *Store) SetConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cp := *cfg
	s.cur.Store(&cp)
	return nil
}

// GetConfig returns a copy of the active config.
func (s *Store) GetConfig() Config {
	return *s.cur.Load()
}
