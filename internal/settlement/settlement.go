// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package settlement adapts the engine's internal accounting to the two
// external settlement primitives named in spec.md's out-of-scope section:
// the burn-and-mint transport (for cross-chain delivery) and a local
// same-chain "fast fill" message emission. Both collaborators are opaque
// interfaces here; the engine never constructs a chain client itself.
package settlement

import (
	"context"
	"math/big"

	"github.com/fasttransfer/matchingengine/dex"
	"github.com/fasttransfer/matchingengine/internal/codec"
)

// TokenLedger is the fungible settlement asset ledger. The engine custodies
// funds here on behalf of bidders between place_initial_bid and
// disbursement.
type TokenLedger interface {
	// TransferFrom moves amount from payer into engine custody. It must
	// fail atomically (no partial transfer) and the engine must not write
	// state until this succeeds.
	TransferFrom(ctx context.Context, payer dex.UniversalAddress, amount *big.Int) error
	// TransferFromTo moves amount directly between two non-engine
	// parties, used by improve_bid so the engine's own custody is never
	// touched on a bid replacement (invariant T1 is then structural, not
	// observational).
	TransferFromTo(ctx context.Context, from, to dex.UniversalAddress, amount *big.Int) error
	// Pay disburses amount from engine custody to recipient.
	Pay(ctx context.Context, recipient dex.UniversalAddress, amount *big.Int) error
}

// MessagingSubstrate verifies attested cross-chain payloads. It is the
// out-of-scope "attested messaging substrate" of spec.md §1.
type MessagingSubstrate interface {
	// Verify authenticates raw and returns the emitter chain/address, the
	// message digest, and the decoded payload bytes.
	Verify(ctx context.Context, raw []byte) (emitterChain dex.ChainID, emitterAddress dex.UniversalAddress, digest dex.Digest, payload []byte, err error)
	// PublishLocal emits a same-chain message (used for FastFill) and
	// returns its sequence number.
	PublishLocal(ctx context.Context, payload []byte) (sequence uint64, err error)
}

// BurnAndMintTransport is the out-of-scope canonical transport: burns a
// stablecoin here and produces an attested message that mints on the
// target chain, or redeems an already-attested burn.
type BurnAndMintTransport interface {
	// Transfer burns amount of token, bound for targetChain, crediting
	// mintRecipient there, carrying auxPayload for the destination's own
	// Fill processing.
	Transfer(ctx context.Context, token string, amount *big.Int, targetChain dex.ChainID, mintRecipient dex.UniversalAddress, auxPayload []byte) (sequence uint64, err error)
	// Redeem consumes an attested burn and returns the originating
	// domain, sender, sequence, and payload, crediting the minted amount
	// to engine custody.
	Redeem(ctx context.Context, attestedBurn []byte) (sourceDomain uint32, sender dex.UniversalAddress, sequence uint64, payload []byte, err error)
}

// Sink is the thin settlement adapter described in spec.md §4.6: exactly
// one outbound message per fast execution, either a local FastFill or a
// burn-and-mint transfer.
type Sink struct {
	LocalChainID dex.ChainID
	Messaging    MessagingSubstrate
	Transport    BurnAndMintTransport
	Token        string
}

// SendToDestination delivers userAmount for order, emitting a local
// FastFill if the order targets this chain, or invoking the burn-and-mint
// transport otherwise. It returns the resulting sequence number.
func (s *Sink) SendToDestination(ctx context.Context, userAmount *big.Int, sourceChain dex.ChainID, order *codec.FastMarketOrder, mintRecipient dex.UniversalAddress) (uint64, error) {
	fill := codec.Fill{
		SourceChain:     sourceChain,
		OrderSender:     order.Sender,
		Redeemer:        order.Redeemer,
		RedeemerMessage: order.RedeemerMessage,
	}

	if order.TargetChain == s.LocalChainID {
		ff := &codec.FastFill{Fill: fill, FillAmount: userAmount}
		raw, err := codec.EncodeFastFill(ff)
		if err != nil {
			return 0, err
		}
		return s.Messaging.PublishLocal(ctx, raw)
	}

	raw, err := codec.EncodeFill(&fill)
	if err != nil {
		return 0, err
	}
	return s.Transport.Transfer(ctx, s.Token, userAmount, order.TargetChain, mintRecipient, raw)
}
