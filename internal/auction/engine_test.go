// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package auction

import (
	"context"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/fasttransfer/matchingengine/dex"
	"github.com/fasttransfer/matchingengine/internal/auctionconfig"
	"github.com/fasttransfer/matchingengine/internal/codec"
	"github.com/fasttransfer/matchingengine/internal/registry"
	"github.com/fasttransfer/matchingengine/internal/settlement"
)

// --- test fixtures: a minimal stand-in for the attested messaging
// substrate and burn-and-mint transport. Neither implements real
// cryptographic verification; they deterministically encode/decode the
// tuples the real substrate would authenticate out of band. ---

const (
	localChainID  dex.ChainID = 1
	remoteChainID dex.ChainID = 2
)

func addrOf(b byte) dex.UniversalAddress {
	var a dex.UniversalAddress
	a[31] = b
	return a
}

func digestOf(b byte) dex.Digest {
	var d dex.Digest
	d[31] = b
	return d
}

// fastWrapper packs (emitterChain, emitterAddr, digest, payload) for the
// fake messaging substrate.
func wrapFast(chain dex.ChainID, addr dex.UniversalAddress, digest dex.Digest, payload []byte) []byte {
	out := make([]byte, 2+32+32+len(payload))
	binary.BigEndian.PutUint16(out, uint16(chain))
	copy(out[2:34], addr[:])
	copy(out[34:66], digest[:])
	copy(out[66:], payload)
	return out
}

type fakeMessaging struct {
	seq uint64
}

func (m *fakeMessaging) Verify(_ context.Context, raw []byte) (dex.ChainID, dex.UniversalAddress, dex.Digest, []byte, error) {
	chain := dex.ChainID(binary.BigEndian.Uint16(raw))
	var addr dex.UniversalAddress
	copy(addr[:], raw[2:34])
	var digest dex.Digest
	copy(digest[:], raw[34:66])
	payload := raw[66:]
	return chain, addr, digest, payload, nil
}

func (m *fakeMessaging) PublishLocal(_ context.Context, _ []byte) (uint64, error) {
	m.seq++
	return m.seq, nil
}

// burnWrapper packs (sourceDomain, sender, sequence, payload) for the fake
// burn-and-mint transport.
func wrapBurn(domain uint32, sender dex.UniversalAddress, sequence uint64, payload []byte) []byte {
	out := make([]byte, 4+32+8+len(payload))
	binary.BigEndian.PutUint32(out, domain)
	copy(out[4:36], sender[:])
	binary.BigEndian.PutUint64(out[36:44], sequence)
	copy(out[44:], payload)
	return out
}

type fakeTransport struct {
	seq uint64
}

func (t *fakeTransport) Transfer(_ context.Context, _ string, _ *big.Int, _ dex.ChainID, _ dex.UniversalAddress, _ []byte) (uint64, error) {
	t.seq++
	return t.seq, nil
}

func (t *fakeTransport) Redeem(_ context.Context, attestedBurn []byte) (uint32, dex.UniversalAddress, uint64, []byte, error) {
	domain := binary.BigEndian.Uint32(attestedBurn)
	var sender dex.UniversalAddress
	copy(sender[:], attestedBurn[4:36])
	seq := binary.BigEndian.Uint64(attestedBurn[36:44])
	payload := attestedBurn[44:]
	return domain, sender, seq, payload, nil
}

type fakeLedger struct {
	balances map[dex.UniversalAddress]*big.Int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[dex.UniversalAddress]*big.Int)}
}

func (l *fakeLedger) get(addr dex.UniversalAddress) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	b := big.NewInt(0)
	l.balances[addr] = b
	return b
}

func (l *fakeLedger) TransferFrom(_ context.Context, payer dex.UniversalAddress, amount *big.Int) error {
	l.get(payer).Sub(l.get(payer), amount)
	return nil
}

func (l *fakeLedger) TransferFromTo(_ context.Context, from, to dex.UniversalAddress, amount *big.Int) error {
	l.get(from).Sub(l.get(from), amount)
	l.get(to).Add(l.get(to), amount)
	return nil
}

func (l *fakeLedger) Pay(_ context.Context, recipient dex.UniversalAddress, amount *big.Int) error {
	l.get(recipient).Add(l.get(recipient), amount)
	return nil
}

type fakeClock struct {
	block uint64
	now   int64
}

func (c *fakeClock) CurrentBlock() uint64 { return c.block }
func (c *fakeClock) NowUnix() int64       { return c.now }

// testHarness bundles a fully wired Engine with fakes for the scenario
// tests in spec.md §8.
type testHarness struct {
	engine    *Engine
	ledger    *fakeLedger
	clock     *fakeClock
	messaging *fakeMessaging
	transport *fakeTransport
	reg       *registry.Registry
	cfgStore  *auctionconfig.Store
}

func newHarness(t *testing.T, cfg *auctionconfig.Config) *testHarness {
	t.Helper()
	reg := registry.New()
	if err := reg.AddEndpoint(localChainID, addrOf(0xAA)); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddEndpoint(remoteChainID, addrOf(0xBB)); err != nil {
		t.Fatal(err)
	}
	cfgStore, err := auctionconfig.NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ledger := newFakeLedger()
	clock := &fakeClock{block: 1000}
	messaging := &fakeMessaging{}
	transport := &fakeTransport{}

	sink := &settlement.Sink{
		LocalChainID: localChainID,
		Messaging:    messaging,
		Transport:    transport,
		Token:        "USDC",
	}

	engine := &Engine{
		LocalChainID: localChainID,
		SelfAddress:  addrOf(0xAA),
		FeeRecipient: NewFeeRecipientStore(addrOf(0xFE)),
		Store:        NewStore(),
		Config:       cfgStore,
		Endpoints:    reg,
		Messaging:    messaging,
		Transport:    transport,
		Ledger:       ledger,
		Sink:         sink,
		Clock:        clock,
		Events:       NopEventSink{},
		Token:        "USDC",
	}

	return &testHarness{engine: engine, ledger: ledger, clock: clock, messaging: messaging, transport: transport, reg: reg, cfgStore: cfgStore}
}

func scenarioConfig() *auctionconfig.Config {
	return &auctionconfig.Config{
		AuctionDuration:      2,
		AuctionGracePeriod:   5,
		PenaltyBlocks:        10,
		InitialPenaltyBps:    250_000,
		UserPenaltyRewardBps: 250_000,
	}
}

func baseOrder() *codec.FastMarketOrder {
	return &codec.FastMarketOrder{
		AmountIn:        big.NewInt(50_000_000_000),
		MinAmountOut:    big.NewInt(49_000_000_000),
		TargetChain:     remoteChainID,
		MaxFee:          big.NewInt(1_000_000),
		InitAuctionFee:  big.NewInt(100),
		Redeemer:        addrOf(0x01),
		Sender:          addrOf(0x02),
		RefundAddress:   addrOf(0x03),
		RedeemerMessage: []byte("hello"),
	}
}

func fastMessageBytes(t *testing.T, digest dex.Digest, order *codec.FastMarketOrder) []byte {
	t.Helper()
	payload, err := codec.EncodeFastMarketOrder(order)
	if err != nil {
		t.Fatalf("encode order: %v", err)
	}
	return wrapFast(remoteChainID, addrOf(0xBB), digest, payload)
}

func TestHappyFastPath(t *testing.T) {
	h := newHarness(t, scenarioConfig())
	order := baseOrder()
	digest := digestOf(1)
	alice, bob := addrOf(0x10), addrOf(0x11)

	msg := fastMessageBytes(t, digest, order)

	if _, err := h.engine.PlaceInitialBid(context.Background(), msg, big.NewInt(500_000), alice); err != nil {
		t.Fatalf("place initial bid: %v", err)
	}

	h.clock.block++ // B+1
	if _, err := h.engine.ImproveBid(context.Background(), digest, big.NewInt(400_000), bob); err != nil {
		t.Fatalf("improve bid: %v", err)
	}

	aliceBefore := new(big.Int).Set(h.ledger.get(alice))
	bobBefore := new(big.Int).Set(h.ledger.get(bob))

	h.clock.block += 2 // B+3
	if _, err := h.engine.ExecuteFastOrder(context.Background(), msg, bob); err != nil {
		t.Fatalf("execute fast order: %v", err)
	}

	// Within the auction-grace window the highest bidder collects its fee
	// bid plus its own posted deposit back, no penalty.
	bobDelta := new(big.Int).Sub(h.ledger.get(bob), bobBefore)
	if want := big.NewInt(400_000 + 1_000_000); bobDelta.Cmp(want) != 0 {
		t.Errorf("bob delta: got %v want %v", bobDelta, want)
	}
	// The initial bidder collects the order's init_auction_fee.
	aliceDelta := new(big.Int).Sub(h.ledger.get(alice), aliceBefore)
	if want := big.NewInt(100); aliceDelta.Cmp(want) != 0 {
		t.Errorf("alice delta: got %v want %v", aliceDelta, want)
	}

	rec := h.engine.Store.Get(digest)
	if rec.Status != StatusCompleted {
		t.Errorf("status: got %v want Completed", rec.Status)
	}
}

func TestGracePeriodLiquidation(t *testing.T) {
	h := newHarness(t, scenarioConfig())
	order := baseOrder()
	digest := digestOf(2)
	alice, bob, carol := addrOf(0x10), addrOf(0x11), addrOf(0x12)
	for _, p := range []dex.UniversalAddress{alice, bob, carol} {
		h.ledger.get(p).Add(h.ledger.get(p), big.NewInt(1_000_000_000_000))
	}

	msg := fastMessageBytes(t, digest, order)
	if _, err := h.engine.PlaceInitialBid(context.Background(), msg, big.NewInt(500_000), alice); err != nil {
		t.Fatalf("place initial bid: %v", err)
	}
	h.clock.block++
	if _, err := h.engine.ImproveBid(context.Background(), digest, big.NewInt(400_000), bob); err != nil {
		t.Fatalf("improve bid: %v", err)
	}

	h.clock.block += 8 // B+9, elapsed = 9, over = 2
	bobBefore := new(big.Int).Set(h.ledger.get(bob))
	carolBefore := new(big.Int).Set(h.ledger.get(carol))
	if _, err := h.engine.ExecuteFastOrder(context.Background(), msg, carol); err != nil {
		t.Fatalf("execute fast order: %v", err)
	}

	// penalty bps = 250_000 + 750_000*2/10 = 400_000; total=400_000;
	// user_reward=100_000; penalty=300_000. bob's refund is bid_price +
	// deposit - total = 400_000 + 1_000_000 - 400_000 = 1_000_000.
	bobDelta := new(big.Int).Sub(h.ledger.get(bob), bobBefore)
	if bobDelta.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("bob delta: got %v want 1000000", bobDelta)
	}
	carolDelta := new(big.Int).Sub(h.ledger.get(carol), carolBefore)
	if carolDelta.Cmp(big.NewInt(300_000)) != 0 {
		t.Errorf("carol delta: got %v want 300000", carolDelta)
	}
}

func TestFullPenaltyLiquidation(t *testing.T) {
	h := newHarness(t, scenarioConfig())
	order := baseOrder()
	digest := digestOf(3)
	alice, bob, carol := addrOf(0x10), addrOf(0x11), addrOf(0x12)
	for _, p := range []dex.UniversalAddress{alice, bob, carol} {
		h.ledger.get(p).Add(h.ledger.get(p), big.NewInt(1_000_000_000_000))
	}

	msg := fastMessageBytes(t, digest, order)
	if _, err := h.engine.PlaceInitialBid(context.Background(), msg, big.NewInt(500_000), alice); err != nil {
		t.Fatalf("place initial bid: %v", err)
	}
	h.clock.block++
	if _, err := h.engine.ImproveBid(context.Background(), digest, big.NewInt(400_000), bob); err != nil {
		t.Fatalf("improve bid: %v", err)
	}

	h.clock.block += 19 // B+20, elapsed=20, over=13 >= 10 -> scaled_bps caps at 100%
	bobBefore := new(big.Int).Set(h.ledger.get(bob))
	carolBefore := new(big.Int).Set(h.ledger.get(carol))
	if _, err := h.engine.ExecuteFastOrder(context.Background(), msg, carol); err != nil {
		t.Fatalf("execute fast order: %v", err)
	}

	// total = deposit = 1_000_000; user_reward = 250_000; penalty = 750_000.
	// bob's refund is bid_price + deposit - total = 400_000 + 1_000_000 -
	// 1_000_000 = 400_000; the deposit itself is fully consumed but the bid
	// price is still returned.
	bobDelta := new(big.Int).Sub(h.ledger.get(bob), bobBefore)
	if bobDelta.Cmp(big.NewInt(400_000)) != 0 {
		t.Errorf("bob delta: got %v want 400000", bobDelta)
	}
	carolDelta := new(big.Int).Sub(h.ledger.get(carol), carolBefore)
	if carolDelta.Cmp(big.NewInt(750_000)) != 0 {
		t.Errorf("carol delta: got %v want 750000", carolDelta)
	}
}

func TestSlowBeatsFast(t *testing.T) {
	h := newHarness(t, scenarioConfig())
	order := baseOrder()
	digest := digestOf(5)

	slow := &codec.SlowOrderResponse{BaseFee: big.NewInt(1000)}
	slowPayload, err := codec.EncodeSlowOrderResponse(slow)
	if err != nil {
		t.Fatal(err)
	}
	// The attested burn's source domain must equal the fast message's
	// emitter chain (spec.md §4.4.4 step 3's pair check), not the order's
	// own destination_domain field.
	burn := wrapBurn(uint32(remoteChainID), order.SlowEmitter, order.SlowSequence, slowPayload)
	msg := fastMessageBytes(t, digest, order)

	if err := h.engine.ExecuteSlowAndReconcile(context.Background(), msg, burn, addrOf(0x99)); err != nil {
		t.Fatalf("execute slow and reconcile: %v", err)
	}

	rec := h.engine.Store.Get(digest)
	if rec.Status != StatusSettled {
		t.Fatalf("status: got %v want Settled", rec.Status)
	}
	if got := h.ledger.get(addrOf(0xFE)); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("fee recipient balance: got %v want 1000", got)
	}

	// Re-entry: a place_initial_bid on the now-Settled digest must fail
	// (invariant T6).
	if _, err := h.engine.PlaceInitialBid(context.Background(), msg, big.NewInt(1), addrOf(0x10)); err == nil {
		t.Fatal("expected place_initial_bid on settled digest to fail")
	}
}

func TestDeadlineExceeded(t *testing.T) {
	h := newHarness(t, scenarioConfig())
	h.clock.now = 1_700_000_000
	order := baseOrder()
	order.Deadline = uint32(h.clock.now) // now == deadline -> exceeded per spec (now >= deadline)
	digest := digestOf(6)
	msg := fastMessageBytes(t, digest, order)

	before := h.engine.Store.Get(digest)
	if _, err := h.engine.PlaceInitialBid(context.Background(), msg, big.NewInt(500_000), addrOf(0x10)); err == nil {
		t.Fatal("expected DeadlineExceeded error")
	}
	after := h.engine.Store.Get(digest)
	if after.Status != before.Status {
		t.Fatalf("state written on failed transaction: before %v after %v", before.Status, after.Status)
	}
}

func TestTieBidNotAccepted(t *testing.T) {
	h := newHarness(t, scenarioConfig())
	order := baseOrder()
	digest := digestOf(7)
	msg := fastMessageBytes(t, digest, order)

	if _, err := h.engine.PlaceInitialBid(context.Background(), msg, big.NewInt(500_000), addrOf(0x10)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.ImproveBid(context.Background(), digest, big.NewInt(500_000), addrOf(0x11)); err == nil {
		t.Fatal("expected a tie bid to be rejected (strict improvement only)")
	}
}

func TestRedeemFastFillOnce(t *testing.T) {
	h := newHarness(t, scenarioConfig())
	ff := &codec.FastFill{
		Fill: codec.Fill{
			SourceChain: remoteChainID,
			Redeemer:    addrOf(0x01),
		},
		FillAmount: big.NewInt(5000),
	}
	payload, err := codec.EncodeFastFill(ff)
	if err != nil {
		t.Fatal(err)
	}
	digest := digestOf(8)
	msg := wrapFast(localChainID, addrOf(0xAA), digest, payload)

	caller := addrOf(0xAA) // local router
	if _, err := h.engine.RedeemFastFill(context.Background(), msg, caller); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if _, err := h.engine.RedeemFastFill(context.Background(), msg, caller); err == nil {
		t.Fatal("expected second redeem to fail with FastFillAlreadyRedeemed")
	}
}
