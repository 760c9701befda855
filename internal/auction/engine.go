// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package auction

import (
	"context"
	"math/big"

	"github.com/fasttransfer/matchingengine/dex"
	"github.com/fasttransfer/matchingengine/internal/auctionconfig"
	"github.com/fasttransfer/matchingengine/internal/codec"
	"github.com/fasttransfer/matchingengine/internal/settlement"
)

// EndpointRegistry is the engine's view of the authoritative chain_id ->
// router address map, including the admin mutator used to populate it.
type EndpointRegistry interface {
	EndpointOf(chain dex.ChainID) (dex.UniversalAddress, bool)
	AddEndpoint(chain dex.ChainID, router dex.UniversalAddress) error
}

// Clock supplies the block number and wall-clock time the engine applies
// its transactions against. Block-number comparisons use CurrentBlock() at
// apply time; deadlines use NowUnix().
type Clock interface {
	CurrentBlock() uint64
	NowUnix() int64
}

// Engine is the auction state machine described in spec.md §4.4. Every
// exported method runs its state transition inside a single Store.Transact
// critical section, so it either fully applies — ledger transfers and all —
// or returns an error with no state written. Callers are expected to honor
// the host's own serialization (spec.md §5): concurrent calls targeting the
// same digest from independent goroutines are safe, but two calls racing to
// open the same digest's auction will have one of them observe the other's
// committed result, never a torn state.
type Engine struct {
	LocalChainID dex.ChainID
	SelfAddress  dex.UniversalAddress // this process's own universal address, for redeem_fast_fill authentication
	FeeRecipient *FeeRecipientStore

	Store     *Store
	Config    *auctionconfig.Store
	Endpoints EndpointRegistry
	Messaging settlement.MessagingSubstrate
	Transport settlement.BurnAndMintTransport
	Ledger    settlement.TokenLedger
	Sink      *settlement.Sink
	Clock     Clock
	Events    EventSink
	Token     string
}

func (e *Engine) events() EventSink {
	if e.Events == nil {
		return NopEventSink{}
	}
	return e.Events
}

// verifiedOrder bundles the result of verifying and decoding a fast message.
type verifiedOrder struct {
	digest       dex.Digest
	emitterChain dex.ChainID
	emitterAddr  dex.UniversalAddress
	order        *codec.FastMarketOrder
}

func (e *Engine) verifyFastMessage(ctx context.Context, raw []byte) (*verifiedOrder, error) {
	emitterChain, emitterAddr, digest, payload, err := e.Messaging.Verify(ctx, raw)
	if err != nil {
		return nil, dex.NewError(dex.InvalidMessage, err.Error())
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	order, ok := decoded.(*codec.FastMarketOrder)
	if !ok {
		return nil, dex.NewError(dex.NotFastMarketOrder, "")
	}
	return &verifiedOrder{digest: digest, emitterChain: emitterChain, emitterAddr: emitterAddr, order: order}, nil
}

// authenticateRouterPath checks that the emitter matches the registered
// source router and that the order's target chain has a registered router.
func (e *Engine) authenticateRouterPath(v *verifiedOrder) error {
	srcRouter, ok := e.Endpoints.EndpointOf(v.emitterChain)
	if !ok || srcRouter != v.emitterAddr {
		return dex.NewError(dex.InvalidSourceRouter, "")
	}
	if _, ok := e.Endpoints.EndpointOf(v.order.TargetChain); !ok {
		return dex.NewError(dex.InvalidTargetRouter, "")
	}
	return nil
}

// PlaceInitialBid implements spec.md §4.4.1. If an auction already exists
// for the message's digest, it is routed to ImproveBid instead, per the
// racing-bid guidance in step 4 — the caller must never see a second record
// created for the same digest (invariant T3).
func (e *Engine) PlaceInitialBid(ctx context.Context, fastMessageBytes []byte, feeBid *big.Int, caller dex.UniversalAddress) (*LiveAuctionData, error) {
	v, err := e.verifyFastMessage(ctx, fastMessageBytes)
	if err != nil {
		return nil, err
	}
	if err := e.authenticateRouterPath(v); err != nil {
		return nil, err
	}
	order := v.order

	var started *AuctionStarted
	var improved *NewBid
	rec, err := e.Store.Transact(v.digest, func(cur *LiveAuctionData) (*LiveAuctionData, error) {
		if cur.Status != StatusNone {
			next, nb, err := e.improveLocked(ctx, cur, feeBid, caller)
			if err != nil {
				return nil, err
			}
			nb.Digest = v.digest
			improved = nb
			return next, nil
		}

		if order.Deadline != 0 && e.Clock.NowUnix() >= int64(order.Deadline) {
			return nil, dex.NewError(dex.DeadlineExceeded, "")
		}
		if feeBid.Cmp(order.MaxFee) > 0 {
			return nil, dex.NewError(dex.BidPriceTooHigh, "")
		}

		custody := new(big.Int).Add(order.AmountIn, order.MaxFee)
		if err := e.Ledger.TransferFrom(ctx, caller, custody); err != nil {
			return nil, err
		}

		next := &LiveAuctionData{
			Status:          StatusActive,
			StartBlock:      e.Clock.CurrentBlock(),
			InitialBidder:   caller,
			HighestBidder:   caller,
			Amount:          new(big.Int).Set(order.AmountIn),
			SecurityDeposit: new(big.Int).Set(order.MaxFee),
			BidPrice:        new(big.Int).Set(feeBid),
		}
		started = &AuctionStarted{Digest: v.digest, Amount: next.Amount, FeeBid: next.BidPrice, Bidder: caller}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	if started != nil {
		e.events().AuctionStarted(*started)
	}
	if improved != nil {
		e.events().NewBid(*improved)
	}
	return rec.clone(), nil
}

// improveLocked applies the §4.4.2 bid-improvement checks and ledger
// transfer to cur, which is already the record under the store lock. It is
// shared by ImproveBid and PlaceInitialBid's racing-bid fallback.
func (e *Engine) improveLocked(ctx context.Context, cur *LiveAuctionData, feeBid *big.Int, caller dex.UniversalAddress) (*LiveAuctionData, *NewBid, error) {
	if cur.Status != StatusActive {
		return nil, nil, dex.NewError(dex.AuctionNotActive, "")
	}
	cfg := e.Config.GetConfig()
	elapsed := e.Clock.CurrentBlock() - cur.StartBlock
	if elapsed > uint64(cfg.AuctionDuration) {
		return nil, nil, dex.NewError(dex.AuctionPeriodExpired, "")
	}
	if feeBid.Cmp(cur.BidPrice) >= 0 {
		return nil, nil, dex.NewError(dex.OfferPriceNotImproved, "")
	}

	total := new(big.Int).Add(cur.Amount, cur.SecurityDeposit)
	if err := e.Ledger.TransferFromTo(ctx, caller, cur.HighestBidder, total); err != nil {
		return nil, nil, err
	}

	oldBid := cur.BidPrice
	cur.BidPrice = new(big.Int).Set(feeBid)
	cur.HighestBidder = caller
	return cur, &NewBid{Digest: dex.Digest{}, NewBid: feeBid, OldBid: oldBid, Bidder: caller}, nil
}

// ImproveBid implements spec.md §4.4.2.
func (e *Engine) ImproveBid(ctx context.Context, digest dex.Digest, feeBid *big.Int, caller dex.UniversalAddress) (*LiveAuctionData, error) {
	var ev *NewBid
	rec, err := e.Store.Transact(digest, func(cur *LiveAuctionData) (*LiveAuctionData, error) {
		next, nb, err := e.improveLocked(ctx, cur, feeBid, caller)
		if err != nil {
			return nil, err
		}
		nb.Digest = digest
		ev = nb
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	e.events().NewBid(*ev)
	return rec.clone(), nil
}

// ExecuteFastOrder implements spec.md §4.4.3.
func (e *Engine) ExecuteFastOrder(ctx context.Context, fastMessageBytes []byte, caller dex.UniversalAddress) (uint64, error) {
	v, err := e.verifyFastMessage(ctx, fastMessageBytes)
	if err != nil {
		return 0, err
	}
	order := v.order
	cfg := e.Config.GetConfig()

	var sequence uint64
	var settled *Settled
	_, err = e.Store.Transact(v.digest, func(cur *LiveAuctionData) (*LiveAuctionData, error) {
		if cur.Status != StatusActive {
			return nil, dex.NewError(dex.AuctionNotActive, "")
		}

		currentBlock := e.Clock.CurrentBlock()
		blocksElapsed := uint32(currentBlock - cur.StartBlock)
		if blocksElapsed <= cfg.AuctionDuration {
			return nil, dex.NewError(dex.AuctionPeriodNotExpired, "")
		}

		var userAmount *big.Int
		switch {
		case blocksElapsed <= cfg.AuctionGracePeriod:
			if caller != cur.HighestBidder {
				return nil, dex.NewError(dex.NotHighestBidder, "")
			}
			refund := new(big.Int).Add(cur.BidPrice, cur.SecurityDeposit)
			if err := e.Ledger.Pay(ctx, cur.HighestBidder, refund); err != nil {
				return nil, err
			}
			userAmount = new(big.Int).Sub(cur.Amount, cur.BidPrice)
			userAmount.Sub(userAmount, order.InitAuctionFee)

		default:
			penalty, userReward := Penalty(&cfg, cur.SecurityDeposit, blocksElapsed)
			if err := e.Ledger.Pay(ctx, caller, penalty); err != nil {
				return nil, err
			}
			refund := new(big.Int).Add(cur.BidPrice, cur.SecurityDeposit)
			refund.Sub(refund, penalty)
			refund.Sub(refund, userReward)
			if err := e.Ledger.Pay(ctx, cur.HighestBidder, refund); err != nil {
				return nil, err
			}
			userAmount = new(big.Int).Sub(cur.Amount, cur.BidPrice)
			userAmount.Sub(userAmount, order.InitAuctionFee)
			userAmount.Add(userAmount, userReward)
		}

		mintRecipient, _ := e.Endpoints.EndpointOf(order.TargetChain)
		seq, err := e.Sink.SendToDestination(ctx, userAmount, v.emitterChain, order, mintRecipient)
		if err != nil {
			return nil, err
		}
		sequence = seq

		if err := e.Ledger.Pay(ctx, cur.InitialBidder, order.InitAuctionFee); err != nil {
			return nil, err
		}

		cur.Status = StatusCompleted
		settled = &Settled{Digest: v.digest, Status: StatusCompleted, Sequence: sequence}
		return cur, nil
	})
	if err != nil {
		return 0, err
	}
	if settled != nil {
		e.events().Settled(*settled)
	}
	return sequence, nil
}

// ExecuteSlowAndReconcile implements spec.md §4.4.4.
func (e *Engine) ExecuteSlowAndReconcile(ctx context.Context, fastMessageBytes []byte, attestedBurn []byte, caller dex.UniversalAddress) error {
	fastEmitterChain, fastEmitterAddr, digest, fastPayload, err := e.Messaging.Verify(ctx, fastMessageBytes)
	if err != nil {
		return dex.NewError(dex.InvalidMessage, err.Error())
	}
	decodedOrder, err := codec.Decode(fastPayload)
	if err != nil {
		return err
	}
	order, ok := decodedOrder.(*codec.FastMarketOrder)
	if !ok {
		return dex.NewError(dex.NotFastMarketOrder, "")
	}

	cctpSourceChain, cctpSourceEmitter, cctpSequence, slowPayload, err := e.Transport.Redeem(ctx, attestedBurn)
	if err != nil {
		return dex.NewError(dex.InvalidMessage, err.Error())
	}

	if fastEmitterChain != dex.ChainID(cctpSourceChain) || order.SlowEmitter != cctpSourceEmitter || order.SlowSequence != cctpSequence {
		return dex.NewError(dex.VaaMismatch, "")
	}

	decodedSlow, err := codec.Decode(slowPayload)
	if err != nil {
		return err
	}
	slow, ok := decodedSlow.(*codec.SlowOrderResponse)
	if !ok {
		return dex.NewError(dex.MalformedPayload, "expected SlowOrderResponse")
	}

	cfg := e.Config.GetConfig()
	currentBlock := e.Clock.CurrentBlock()

	var settled *Settled
	_, err = e.Store.Transact(digest, func(cur *LiveAuctionData) (*LiveAuctionData, error) {
		switch cur.Status {
		case StatusNone:
			v := &verifiedOrder{digest: digest, emitterChain: fastEmitterChain, emitterAddr: fastEmitterAddr, order: order}
			if err := e.authenticateRouterPath(v); err != nil {
				return nil, err
			}
			destAmount := new(big.Int).Sub(order.AmountIn, slow.BaseFee)
			mintRecipient, _ := e.Endpoints.EndpointOf(order.TargetChain)
			seq, err := e.Sink.SendToDestination(ctx, destAmount, fastEmitterChain, order, mintRecipient)
			if err != nil {
				return nil, err
			}
			if err := e.Ledger.Pay(ctx, e.FeeRecipient.Get(), slow.BaseFee); err != nil {
				return nil, err
			}
			cur.Status = StatusSettled
			settled = &Settled{Digest: digest, Status: StatusSettled, Sequence: seq}
			return cur, nil

		case StatusActive:
			blocksElapsed := uint32(currentBlock - cur.StartBlock)
			penalty, userReward := Penalty(&cfg, cur.SecurityDeposit, blocksElapsed)

			toCaller := new(big.Int).Add(penalty, slow.BaseFee)
			if err := e.Ledger.Pay(ctx, caller, toCaller); err != nil {
				return nil, err
			}

			refund := new(big.Int).Add(cur.Amount, cur.SecurityDeposit)
			refund.Sub(refund, penalty)
			refund.Sub(refund, userReward)
			if err := e.Ledger.Pay(ctx, cur.HighestBidder, refund); err != nil {
				return nil, err
			}

			destAmount := new(big.Int).Sub(cur.Amount, slow.BaseFee)
			destAmount.Add(destAmount, userReward)
			mintRecipient, _ := e.Endpoints.EndpointOf(order.TargetChain)
			seq, err := e.Sink.SendToDestination(ctx, destAmount, fastEmitterChain, order, mintRecipient)
			if err != nil {
				return nil, err
			}

			cur.Status = StatusSettled
			settled = &Settled{Digest: digest, Status: StatusSettled, Sequence: seq}
			return cur, nil

		case StatusCompleted:
			if err := e.Ledger.Pay(ctx, cur.HighestBidder, cur.Amount); err != nil {
				return nil, err
			}
			cur.Status = StatusSettled
			settled = &Settled{Digest: digest, Status: StatusSettled}
			return cur, nil

		default:
			return nil, dex.NewError(dex.InvalidAuctionStatus, "")
		}
	})
	if err != nil {
		return err
	}
	if settled != nil {
		e.events().Settled(*settled)
	}
	return nil
}

// RedeemFastFill implements spec.md §4.4.5.
func (e *Engine) RedeemFastFill(ctx context.Context, fastFillMessageBytes []byte, caller dex.UniversalAddress) (*codec.FastFill, error) {
	emitterChain, emitterAddr, digest, payload, err := e.Messaging.Verify(ctx, fastFillMessageBytes)
	if err != nil {
		return nil, dex.NewError(dex.InvalidMessage, err.Error())
	}
	if emitterChain != e.LocalChainID || emitterAddr != e.SelfAddress {
		return nil, dex.NewError(dex.InvalidEmitterForFastFill, "")
	}
	localRouter, ok := e.Endpoints.EndpointOf(e.LocalChainID)
	if !ok || caller != localRouter {
		return nil, dex.NewError(dex.InvalidSourceRouter, "")
	}

	decoded, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	ff, ok := decoded.(*codec.FastFill)
	if !ok {
		return nil, dex.NewError(dex.MalformedPayload, "expected FastFill")
	}
	if !e.Store.MarkFastFillRedeemed(digest) {
		return nil, dex.NewError(dex.FastFillAlreadyRedeemed, "")
	}
	if err := e.Ledger.Pay(ctx, caller, ff.FillAmount); err != nil {
		return nil, err
	}
	return ff, nil
}

// AddEndpoint registers a router address for chain, delegating to the
// underlying registry. Exposed directly on Engine so the admin API can
// treat the engine as its single collaborator.
func (e *Engine) AddEndpoint(chain dex.ChainID, router dex.UniversalAddress) error {
	return e.Endpoints.AddEndpoint(chain, router)
}

// SetConfig validates and installs cfg as the engine's active auction
// parameter set.
func (e *Engine) SetConfig(cfg *auctionconfig.Config) error {
	return e.Config.SetConfig(cfg)
}

// GetConfig returns a copy of the engine's active auction parameter set.
func (e *Engine) GetConfig() auctionconfig.Config {
	return e.Config.GetConfig()
}

// SetFeeRecipient atomically replaces the address credited with the slow
// path's base fee.
func (e *Engine) SetFeeRecipient(addr dex.UniversalAddress) {
	e.FeeRecipient.Set(addr)
}
