// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package simulate

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/fasttransfer/matchingengine/dex"
)

// Messaging is a loopback stand-in for the attested messaging substrate: it
// performs no cryptographic verification, trusting whatever (chain,
// address, payload) tuple Emit was given. Good enough to drive the engine's
// state machine through a scripted simulation.
type Messaging struct {
	mtx sync.Mutex
	seq uint64
}

// NewMessaging constructs an empty Messaging substrate.
func NewMessaging() *Messaging {
	return &Messaging{}
}

// Emit packages (emitterChain, emitterAddress, payload) as if it had been
// attested by the substrate, computing the digest the way HashPayload would
// for a real attestation.
func Emit(emitterChain dex.ChainID, emitterAddress dex.UniversalAddress, payload []byte) []byte {
	digest := dex.HashPayload(payload)
	out := make([]byte, 2+32+32+len(payload))
	binary.BigEndian.PutUint16(out, uint16(emitterChain))
	copy(out[2:34], emitterAddress[:])
	copy(out[34:66], digest[:])
	copy(out[66:], payload)
	return out
}

// Verify implements settlement.MessagingSubstrate.
func (m *Messaging) Verify(_ context.Context, raw []byte) (dex.ChainID, dex.UniversalAddress, dex.Digest, []byte, error) {
	var addr dex.UniversalAddress
	var digest dex.Digest
	if len(raw) < 66 {
		return 0, addr, digest, nil, dex.NewError(dex.MalformedPayload, "message shorter than loopback envelope")
	}
	chain := dex.ChainID(binary.BigEndian.Uint16(raw))
	copy(addr[:], raw[2:34])
	copy(digest[:], raw[34:66])
	payload := raw[66:]
	return chain, addr, digest, payload, nil
}

// PublishLocal implements settlement.MessagingSubstrate.
func (m *Messaging) PublishLocal(_ context.Context, _ []byte) (uint64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.seq++
	return m.seq, nil
}
