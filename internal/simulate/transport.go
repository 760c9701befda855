// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package simulate

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/fasttransfer/matchingengine/dex"
)

// Transport is a loopback stand-in for the canonical burn-and-mint
// transport. Transfer records the burn and hands back the sequence number;
// a scripted actor later retrieves the raw attested burn with Pending and
// feeds it to execute_slow_and_reconcile.
type Transport struct {
	mtx     sync.Mutex
	seq     uint64
	pending map[uint64][]byte
	domain  uint32
	sender  dex.UniversalAddress
}

// NewTransport constructs a Transport that will attribute every burn to
// (domain, sender) as its originating source, the way a real CCTP-style
// domain/sender pair identifies an emitter.
func NewTransport(domain uint32, sender dex.UniversalAddress) *Transport {
	return &Transport{domain: domain, sender: sender, pending: make(map[uint64][]byte)}
}

// Transfer implements settlement.BurnAndMintTransport.
func (t *Transport) Transfer(_ context.Context, _ string, _ *big.Int, _ dex.ChainID, _ dex.UniversalAddress, auxPayload []byte) (uint64, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.seq++
	seq := t.seq
	out := make([]byte, 4+32+8+len(auxPayload))
	binary.BigEndian.PutUint32(out, t.domain)
	copy(out[4:36], t.sender[:])
	binary.BigEndian.PutUint64(out[36:44], seq)
	copy(out[44:], auxPayload)
	t.pending[seq] = out
	return seq, nil
}

// Pending returns the raw attested burn previously produced by Transfer.
func (t *Transport) Pending(seq uint64) ([]byte, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	b, ok := t.pending[seq]
	return b, ok
}

// Redeem implements settlement.BurnAndMintTransport.
func (t *Transport) Redeem(_ context.Context, attestedBurn []byte) (uint32, dex.UniversalAddress, uint64, []byte, error) {
	var sender dex.UniversalAddress
	if len(attestedBurn) < 44 {
		return 0, sender, 0, nil, dex.NewError(dex.MalformedPayload, "attested burn shorter than loopback envelope")
	}
	domain := binary.BigEndian.Uint32(attestedBurn)
	copy(sender[:], attestedBurn[4:36])
	seq := binary.BigEndian.Uint64(attestedBurn[36:44])
	payload := attestedBurn[44:]
	return domain, sender, seq, payload, nil
}
