// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package settlement

import (
	"context"
	"math/big"
	"testing"

	"github.com/fasttransfer/matchingengine/dex"
	"github.com/fasttransfer/matchingengine/internal/codec"
)

func addr(b byte) dex.UniversalAddress {
	var a dex.UniversalAddress
	a[31] = b
	return a
}

type recordingMessaging struct {
	published []byte
	seq       uint64
}

func (m *recordingMessaging) Verify(_ context.Context, _ []byte) (dex.ChainID, dex.UniversalAddress, dex.Digest, []byte, error) {
	return 0, dex.UniversalAddress{}, dex.Digest{}, nil, nil
}

func (m *recordingMessaging) PublishLocal(_ context.Context, payload []byte) (uint64, error) {
	m.published = payload
	m.seq = 42
	return m.seq, nil
}

type recordingTransport struct {
	token         string
	amount        *big.Int
	targetChain   dex.ChainID
	mintRecipient dex.UniversalAddress
	auxPayload    []byte
	seq           uint64
}

func (t *recordingTransport) Transfer(_ context.Context, token string, amount *big.Int, targetChain dex.ChainID, mintRecipient dex.UniversalAddress, auxPayload []byte) (uint64, error) {
	t.token = token
	t.amount = amount
	t.targetChain = targetChain
	t.mintRecipient = mintRecipient
	t.auxPayload = auxPayload
	t.seq = 7
	return t.seq, nil
}

func (t *recordingTransport) Redeem(_ context.Context, _ []byte) (uint32, dex.UniversalAddress, uint64, []byte, error) {
	return 0, dex.UniversalAddress{}, 0, nil, nil
}

func baseOrder(targetChain dex.ChainID) *codec.FastMarketOrder {
	return &codec.FastMarketOrder{
		AmountIn:        big.NewInt(1_000_000),
		MinAmountOut:    big.NewInt(900_000),
		TargetChain:     targetChain,
		MaxFee:          big.NewInt(1000),
		InitAuctionFee:  big.NewInt(10),
		Sender:          addr(1),
		Redeemer:        addr(2),
		RefundAddress:   addr(3),
		RedeemerMessage: []byte("redeem me"),
	}
}

func TestSendToDestinationLocalEmitsFastFill(t *testing.T) {
	messaging := &recordingMessaging{}
	transport := &recordingTransport{}
	sink := &Sink{LocalChainID: 1, Messaging: messaging, Transport: transport, Token: "USDC"}

	order := baseOrder(1) // targets the sink's own chain
	seq, err := sink.SendToDestination(context.Background(), big.NewInt(950_000), 2, order, addr(9))
	if err != nil {
		t.Fatal(err)
	}
	if seq != 42 {
		t.Errorf("seq: got %d want 42", seq)
	}
	if transport.seq != 0 {
		t.Errorf("expected transport not to be invoked, got seq %d", transport.seq)
	}

	decoded, err := codec.DecodeFastFill(messaging.published[1:])
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Fill.SourceChain != 2 || decoded.Fill.OrderSender != order.Sender || decoded.Fill.Redeemer != order.Redeemer {
		t.Errorf("fast fill fields: got %+v", decoded.Fill)
	}
	if decoded.FillAmount.Cmp(big.NewInt(950_000)) != 0 {
		t.Errorf("fill amount: got %v want 950000", decoded.FillAmount)
	}
}

func TestSendToDestinationRemoteUsesBurnAndMint(t *testing.T) {
	messaging := &recordingMessaging{}
	transport := &recordingTransport{}
	sink := &Sink{LocalChainID: 1, Messaging: messaging, Transport: transport, Token: "USDC"}

	order := baseOrder(2) // targets a different chain than the sink's own
	mintRecipient := addr(9)
	seq, err := sink.SendToDestination(context.Background(), big.NewInt(950_000), 1, order, mintRecipient)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 7 {
		t.Errorf("seq: got %d want 7", seq)
	}
	if messaging.seq != 0 {
		t.Errorf("expected local messaging not to be invoked, got seq %d", messaging.seq)
	}
	if transport.token != "USDC" || transport.targetChain != 2 || transport.mintRecipient != mintRecipient {
		t.Errorf("transport call: got token=%s targetChain=%v mintRecipient=%v", transport.token, transport.targetChain, transport.mintRecipient)
	}
	if transport.amount.Cmp(big.NewInt(950_000)) != 0 {
		t.Errorf("transport amount: got %v want 950000", transport.amount)
	}

	decoded, err := codec.DecodeFill(transport.auxPayload[1:])
	if err != nil {
		t.Fatal(err)
	}
	if decoded.SourceChain != 1 || decoded.OrderSender != order.Sender || decoded.Redeemer != order.Redeemer {
		t.Errorf("fill fields: got %+v", decoded)
	}
	if string(decoded.RedeemerMessage) != string(order.RedeemerMessage) {
		t.Errorf("redeemer message: got %q want %q", decoded.RedeemerMessage, order.RedeemerMessage)
	}
}
