// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package auction implements the core settlement state machine: a short,
// sealed-parameter English auction over fast cross-chain transfer orders,
// reconciled against a slower finalized transfer.
package auction

import (
	"math/big"
	"sync/atomic"

	"github.com/fasttransfer/matchingengine/dex"
)

// Status is the tagged variant of an auction's lifecycle. The tag, not a
// nullable struct, is the source of truth: an absent map entry and a record
// with Status == StatusNone must be treated identically.
type Status uint8

const (
	StatusNone Status = iota
	StatusActive
	StatusCompleted
	StatusSettled
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// LiveAuctionData is the per-digest auction record. Fields marked immutable
// are fixed at place_initial_bid time and never change afterward.
type LiveAuctionData struct {
	Status Status

	// StartBlock is the block number of the initial bid. Immutable once
	// set.
	StartBlock uint64
	// InitialBidder paid the gas to open the auction. Immutable.
	InitialBidder dex.UniversalAddress
	// HighestBidder is the current best bidder; equals InitialBidder
	// until improved.
	HighestBidder dex.UniversalAddress
	// Amount is the user principal (order AmountIn). Immutable.
	Amount *big.Int
	// SecurityDeposit equals the order's MaxFee, posted by the initial
	// bidder and handed between bidders on each improvement. Immutable.
	SecurityDeposit *big.Int
	// BidPrice is the current best fee bid, monotonically decreasing.
	BidPrice *big.Int
}

// clone returns a deep copy safe to hand to callers outside the store's
// lock.
func (a *LiveAuctionData) clone() *LiveAuctionData {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Amount != nil {
		cp.Amount = new(big.Int).Set(a.Amount)
	}
	if a.SecurityDeposit != nil {
		cp.SecurityDeposit = new(big.Int).Set(a.SecurityDeposit)
	}
	if a.BidPrice != nil {
		cp.BidPrice = new(big.Int).Set(a.BidPrice)
	}
	return &cp
}

// AuctionStarted is emitted from place_initial_bid.
type AuctionStarted struct {
	Digest dex.Digest
	Amount *big.Int
	FeeBid *big.Int
	Bidder dex.UniversalAddress
}

// NewBid is emitted from improve_bid.
type NewBid struct {
	Digest dex.Digest
	NewBid *big.Int
	OldBid *big.Int
	Bidder dex.UniversalAddress
}

// Settled is emitted whenever a digest reaches a terminal disbursement,
// either from execute_fast_order (Status becomes Completed) or
// execute_slow_and_reconcile (Status becomes Settled).
type Settled struct {
	Digest   dex.Digest
	Status   Status
	Sequence uint64
}

// EventSink receives engine events for broadcast to subscribers. All
// methods must not block; a slow subscriber must not stall the engine.
type EventSink interface {
	AuctionStarted(AuctionStarted)
	NewBid(NewBid)
	Settled(Settled)
}

// NopEventSink discards all events.
type NopEventSink struct{}

func (NopEventSink) AuctionStarted(AuctionStarted) {}
func (NopEventSink) NewBid(NewBid)                 {}
func (NopEventSink) Settled(Settled)               {}

// FeeRecipientStore holds the engine's current fee recipient behind an
// atomic pointer, so the admin API can rotate it without pausing the
// engine, the same way auctionconfig.Store swaps Config.
type FeeRecipientStore struct {
	cur atomic.Pointer[dex.UniversalAddress]
}

// NewFeeRecipientStore constructs a FeeRecipientStore holding addr.
func NewFeeRecipientStore(addr dex.UniversalAddress) *FeeRecipientStore {
	s := &FeeRecipientStore{}
	s.cur.Store(&addr)
	return s
}

// Get returns the current fee recipient address.
func (s *FeeRecipientStore) Get() dex.UniversalAddress {
	return *s.cur.Load()
}

// Set atomically replaces the fee recipient address.
func (s *FeeRecipientStore) Set(addr dex.UniversalAddress) {
	s.cur.Store(&addr)
}
