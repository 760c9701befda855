// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package auction

import (
	"encoding/gob"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/fasttransfer/matchingengine/dex"
)

var log dex.Logger = btclog.Disabled

// SetLogger installs the subsystem logger.
func SetLogger(l dex.Logger) {
	log = l
}

// Store is the authoritative keyed map of live auctions, guaranteeing at
// most one record per digest. It additionally tracks the fast-fill
// redemption set, since both regions are mutated under the same lock by the
// engine's entry points, which are themselves serialized per process.
type Store struct {
	mtx       sync.Mutex
	auctions  map[dex.Digest]*LiveAuctionData
	redeemed  map[dex.Digest]bool
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		auctions: make(map[dex.Digest]*LiveAuctionData),
		redeemed: make(map[dex.Digest]bool),
	}
}

// Get returns a copy of the current record for digest, or a zero-value
// (StatusNone) record if absent.
func (s *Store) Get(digest dex.Digest) *LiveAuctionData {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	cur := s.auctions[digest]
	if cur == nil {
		return &LiveAuctionData{Status: StatusNone}
	}
	return cur.clone()
}

// Transact is the engine's sole write primitive: it holds the store lock for
// the duration of fn, which observes the current record for digest (a
// StatusNone placeholder if absent) and may itself perform the ledger
// transfers the transaction requires before returning the new record. This
// makes each exported Engine method a single atomic section end to end —
// the read-decide-transfer-write sequence never interleaves with another
// transaction on any digest, which is what spec.md §5 means by "strictly
// serial per block": there is exactly one active transaction at a time.
// fn must return a non-nil record (or an error); it may modify cur in place
// and return it, and whatever it returns is stored as the digest's record.
func (s *Store) Transact(digest dex.Digest, fn func(cur *LiveAuctionData) (*LiveAuctionData, error)) (*LiveAuctionData, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	cur := s.auctions[digest]
	if cur == nil {
		cur = &LiveAuctionData{Status: StatusNone}
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	s.auctions[digest] = next
	return next, nil
}

// MarkFastFillRedeemed inserts digest into the fast-fill ledger, returning
// false if it was already present (invariant T7).
func (s *Store) MarkFastFillRedeemed(digest dex.Digest) (inserted bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.redeemed[digest] {
		return false
	}
	s.redeemed[digest] = true
	return true
}

// gobState is the on-disk snapshot format, following the teacher's
// Swapper.saveState/restoreState durability convenience: a process restart
// should not lose in-flight auctions. This changes no settlement semantics.
type gobState struct {
	Auctions map[dex.Digest]*gobAuction
	Redeemed map[dex.Digest]bool
}

type gobAuction struct {
	Status          Status
	StartBlock      uint64
	InitialBidder   dex.UniversalAddress
	HighestBidder   dex.UniversalAddress
	Amount          string
	SecurityDeposit string
	BidPrice        string
}

func toGob(a *LiveAuctionData) *gobAuction {
	g := &gobAuction{
		Status:        a.Status,
		StartBlock:    a.StartBlock,
		InitialBidder: a.InitialBidder,
		HighestBidder: a.HighestBidder,
	}
	if a.Amount != nil {
		g.Amount = a.Amount.String()
	}
	if a.SecurityDeposit != nil {
		g.SecurityDeposit = a.SecurityDeposit.String()
	}
	if a.BidPrice != nil {
		g.BidPrice = a.BidPrice.String()
	}
	return g
}

func fromGob(g *gobAuction) (*LiveAuctionData, error) {
	a := &LiveAuctionData{
		Status:        g.Status,
		StartBlock:    g.StartBlock,
		InitialBidder: g.InitialBidder,
		HighestBidder: g.HighestBidder,
		Amount:        new(big.Int),
		SecurityDeposit: new(big.Int),
		BidPrice:      new(big.Int),
	}
	for _, pair := range []struct {
		dst **big.Int
		src string
	}{{&a.Amount, g.Amount}, {&a.SecurityDeposit, g.SecurityDeposit}, {&a.BidPrice, g.BidPrice}} {
		if pair.src == "" {
			continue
		}
		v, ok := new(big.Int).SetString(pair.src, 10)
		if !ok {
			return nil, fmt.Errorf("auction store: corrupt integer %q in snapshot", pair.src)
		}
		*pair.dst = v
	}
	return a, nil
}

// SaveState writes the store's contents to path, following the teacher's
// save-on-shutdown convention.
func (s *Store) SaveState(path string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	state := &gobState{
		Auctions: make(map[dex.Digest]*gobAuction, len(s.auctions)),
		Redeemed: make(map[dex.Digest]bool, len(s.redeemed)),
	}
	for d, a := range s.auctions {
		state.Auctions[d] = toGob(a)
	}
	for d := range s.redeemed {
		state.Redeemed[d] = true
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("auction store: create snapshot: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(state); err != nil {
		return fmt.Errorf("auction store: encode snapshot: %w", err)
	}
	log.Infof("auction store: saved %d live auctions to %s", len(state.Auctions), path)
	return nil
}

// RestoreState loads a snapshot written by SaveState. A missing file is not
// an error; the store simply starts empty.
func (s *Store) RestoreState(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auction store: open snapshot: %w", err)
	}
	defer f.Close()

	var state gobState
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return fmt.Errorf("auction store: decode snapshot: %w", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	for d, g := range state.Auctions {
		a, err := fromGob(g)
		if err != nil {
			return err
		}
		s.auctions[d] = a
	}
	for d := range state.Redeemed {
		s.redeemed[d] = true
	}
	log.Infof("auction store: restored %d live auctions from %s", len(state.Auctions), path)
	return nil
}
