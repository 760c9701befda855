// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/fasttransfer/matchingengine/dex"
	"github.com/fasttransfer/matchingengine/internal/auction"
	"github.com/fasttransfer/matchingengine/internal/codec"
	"github.com/fasttransfer/matchingengine/internal/simulate"
)

// harness bundles the live Engine and its in-memory settlement
// collaborators, the set a scripted scenario needs to drive the state
// machine and inspect the result.
type harness struct {
	engine        *auction.Engine
	ledger        *simulate.Ledger
	messaging     *simulate.Messaging
	transport     *simulate.Transport
	clock         *simulate.Clock
	localRouter   dex.UniversalAddress
	remoteRouter  dex.UniversalAddress
	localChainID  dex.ChainID
	remoteChainID dex.ChainID
}

func addr(b byte) dex.UniversalAddress {
	var a dex.UniversalAddress
	a[31] = b
	return a
}

func digest(b byte) dex.Digest {
	var d dex.Digest
	d[31] = b
	return d
}

// order builds a representative cross-chain fast order and returns it with
// the digest the loopback messaging substrate assigns to it as built. Each
// disc gives the order its own slow sequence, so scenarios sharing one
// auction store never collide.
func (h *harness) order(disc byte) (*codec.FastMarketOrder, dex.Digest) {
	o := &codec.FastMarketOrder{
		AmountIn:        big.NewInt(50_000_000_000),
		MinAmountOut:    big.NewInt(49_000_000_000),
		TargetChain:     h.remoteChainID,
		MaxFee:          big.NewInt(1_000_000),
		InitAuctionFee:  big.NewInt(100),
		Redeemer:        addr(0x01),
		Sender:          addr(0x02),
		RefundAddress:   addr(0x03),
		SlowSequence:    uint64(disc),
		RedeemerMessage: []byte("enginesim"),
	}
	payload, _ := codec.EncodeFastMarketOrder(o)
	return o, dex.HashPayload(payload)
}

// fastMessage wraps an encoded order as though it had arrived over the
// attested messaging substrate from the remote chain's router.
func (h *harness) fastMessage(order *codec.FastMarketOrder) ([]byte, error) {
	payload, err := codec.EncodeFastMarketOrder(order)
	if err != nil {
		return nil, err
	}
	return simulate.Emit(h.remoteChainID, h.remoteRouter, payload), nil
}

// slowBurn hand-packs an attested burn the way the canonical bridge would
// deliver the finalized transfer, independent of this process's own
// Transport so the slow path can race the fast path honestly. The source
// domain must equal the fast message's emitter chain (spec.md §4.4.4 step
// 3's pair check), not the order's own destination_domain field.
func slowBurn(sourceChain dex.ChainID, order *codec.FastMarketOrder, payload []byte) []byte {
	out := make([]byte, 4+32+8+len(payload))
	binary.BigEndian.PutUint32(out, uint32(sourceChain))
	copy(out[4:36], order.SlowEmitter[:])
	binary.BigEndian.PutUint64(out[36:44], order.SlowSequence)
	copy(out[44:], payload)
	return out
}

func runScenarios(ctx context.Context, name string, h *harness) error {
	scenarios := map[string]func(context.Context, *harness) error{
		"happy-path":        scenarioHappyPath,
		"grace-liquidation": scenarioGraceLiquidation,
		"full-liquidation":  scenarioFullLiquidation,
		"racing-bids":       scenarioRacingBids,
		"slow-wins":         scenarioSlowWins,
		"deadline-exceeded": scenarioDeadlineExceeded,
	}
	if name == "all" {
		order := []string{"happy-path", "grace-liquidation", "full-liquidation", "racing-bids", "slow-wins", "deadline-exceeded"}
		for _, n := range order {
			fmt.Printf("=== scenario: %s ===\n", n)
			if err := scenarios[n](ctx, h); err != nil {
				return fmt.Errorf("scenario %s: %w", n, err)
			}
		}
		return nil
	}
	fn, ok := scenarios[name]
	if !ok {
		return fmt.Errorf("unknown scenario %q", name)
	}
	fmt.Printf("=== scenario: %s ===\n", name)
	return fn(ctx, h)
}

// scenarioHappyPath: an initial bid, one improvement, settlement inside the
// grace window. The highest bidder collects its bid plus its own deposit.
func scenarioHappyPath(ctx context.Context, h *harness) error {
	order, dig := h.order(0x01)
	msg, err := h.fastMessage(order)
	if err != nil {
		return err
	}
	alice, bob := addr(0x10), addr(0x11)
	h.ledger.Fund(alice, big.NewInt(100_000_000_000))
	h.ledger.Fund(bob, big.NewInt(100_000_000_000))

	if _, err := h.engine.PlaceInitialBid(ctx, msg, big.NewInt(500_000), alice); err != nil {
		return err
	}
	h.clock.AdvanceBlocks(1)
	if _, err := h.engine.ImproveBid(ctx, dig, big.NewInt(400_000), bob); err != nil {
		return err
	}
	h.clock.AdvanceBlocks(2)
	seq, err := h.engine.ExecuteFastOrder(ctx, msg, bob)
	if err != nil {
		return err
	}
	fmt.Printf("fast order settled, mint sequence %d, bob balance %s\n", seq, h.ledger.Balance(bob))
	return nil
}

// scenarioGraceLiquidation: settlement lands after the grace window, within
// the ramp, so the highest bidder's deposit is partially consumed.
func scenarioGraceLiquidation(ctx context.Context, h *harness) error {
	order, dig := h.order(0x02)
	msg, err := h.fastMessage(order)
	if err != nil {
		return err
	}
	alice, bob, carol := addr(0x10), addr(0x11), addr(0x12)
	for _, p := range []dex.UniversalAddress{alice, bob, carol} {
		h.ledger.Fund(p, big.NewInt(100_000_000_000))
	}

	if _, err := h.engine.PlaceInitialBid(ctx, msg, big.NewInt(500_000), alice); err != nil {
		return err
	}
	h.clock.AdvanceBlocks(1)
	if _, err := h.engine.ImproveBid(ctx, dig, big.NewInt(400_000), bob); err != nil {
		return err
	}
	h.clock.AdvanceBlocks(8) // elapsed 9, two blocks past the grace window
	seq, err := h.engine.ExecuteFastOrder(ctx, msg, carol)
	if err != nil {
		return err
	}
	fmt.Printf("fast order settled late, mint sequence %d, carol balance %s\n", seq, h.ledger.Balance(carol))
	return nil
}

// scenarioFullLiquidation: settlement lands past the penalty ramp entirely,
// consuming the full deposit.
func scenarioFullLiquidation(ctx context.Context, h *harness) error {
	order, dig := h.order(0x03)
	msg, err := h.fastMessage(order)
	if err != nil {
		return err
	}
	alice, bob, carol := addr(0x10), addr(0x11), addr(0x12)
	for _, p := range []dex.UniversalAddress{alice, bob, carol} {
		h.ledger.Fund(p, big.NewInt(100_000_000_000))
	}

	if _, err := h.engine.PlaceInitialBid(ctx, msg, big.NewInt(500_000), alice); err != nil {
		return err
	}
	h.clock.AdvanceBlocks(1)
	if _, err := h.engine.ImproveBid(ctx, dig, big.NewInt(400_000), bob); err != nil {
		return err
	}
	h.clock.AdvanceBlocks(19) // elapsed 20, past the full penalty ramp
	seq, err := h.engine.ExecuteFastOrder(ctx, msg, carol)
	if err != nil {
		return err
	}
	fmt.Printf("fast order settled after full liquidation, mint sequence %d, carol balance %s\n", seq, h.ledger.Balance(carol))
	return nil
}

// scenarioRacingBids: a tie bid is rejected; only a strict improvement wins
// the auction.
func scenarioRacingBids(ctx context.Context, h *harness) error {
	order, dig := h.order(0x04)
	msg, err := h.fastMessage(order)
	if err != nil {
		return err
	}
	alice, bob := addr(0x10), addr(0x11)
	h.ledger.Fund(alice, big.NewInt(100_000_000_000))
	h.ledger.Fund(bob, big.NewInt(100_000_000_000))

	if _, err := h.engine.PlaceInitialBid(ctx, msg, big.NewInt(500_000), alice); err != nil {
		return err
	}
	if _, err := h.engine.ImproveBid(ctx, dig, big.NewInt(500_000), bob); err == nil {
		return fmt.Errorf("expected a tie bid to be rejected")
	}
	if _, err := h.engine.ImproveBid(ctx, dig, big.NewInt(450_000), bob); err != nil {
		return err
	}
	fmt.Println("tie bid rejected, strict improvement accepted")
	return nil
}

// scenarioSlowWins: the canonical transfer finalizes before any fast bid is
// placed; the order settles directly from the slow path.
func scenarioSlowWins(ctx context.Context, h *harness) error {
	order, dig := h.order(0x05)
	msg, err := h.fastMessage(order)
	if err != nil {
		return err
	}
	slow := &codec.SlowOrderResponse{BaseFee: big.NewInt(1000)}
	slowPayload, err := codec.EncodeSlowOrderResponse(slow)
	if err != nil {
		return err
	}
	burn := slowBurn(h.remoteChainID, order, slowPayload)

	if err := h.engine.ExecuteSlowAndReconcile(ctx, msg, burn, addr(0x99)); err != nil {
		return err
	}
	rec := h.engine.Store.Get(dig)
	fmt.Printf("slow path settled directly, status %v\n", rec.Status)
	return nil
}

// scenarioDeadlineExceeded: an order whose deadline has already passed is
// rejected before any state is written.
func scenarioDeadlineExceeded(ctx context.Context, h *harness) error {
	order, _ := h.order(0x06)
	order.Deadline = uint32(h.clock.NowUnix())
	msg, err := h.fastMessage(order)
	if err != nil {
		return err
	}
	_, _, dig, _, err := h.messaging.Verify(ctx, msg)
	if err != nil {
		return err
	}
	if _, err := h.engine.PlaceInitialBid(ctx, msg, big.NewInt(500_000), addr(0x10)); err == nil {
		return fmt.Errorf("expected DeadlineExceeded")
	}
	rec := h.engine.Store.Get(dig)
	fmt.Printf("expired order rejected, status %v\n", rec.Status)
	return nil
}
