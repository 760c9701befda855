// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID is a Wormhole-style chain identifier. 0 is never a valid chain.
type ChainID uint16

// UniversalAddress is a 32-byte, chain-agnostic address, wide enough to hold
// any supported chain's native address representation. EVM addresses are
// left-padded with zero bytes into the low 20 bytes.
type UniversalAddress [32]byte

// Digest is the cryptographic digest of an attested cross-chain message. It
// is the engine's sole per-order identity.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the address is the zero value, i.e. unset.
func (a UniversalAddress) IsZero() bool {
	return a == UniversalAddress{}
}

func (a UniversalAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// EVMAddressToUniversal left-pads a 20-byte EVM address into a
// UniversalAddress.
func EVMAddressToUniversal(addr common.Address) UniversalAddress {
	var u UniversalAddress
	copy(u[12:], addr.Bytes())
	return u
}

// UniversalToEVMAddress extracts the low 20 bytes as an EVM address. The
// caller should only do this for chains known to be EVM-based; the high 12
// bytes are discarded without validation.
func UniversalToEVMAddress(u UniversalAddress) common.Address {
	var addr common.Address
	copy(addr[:], u[12:])
	return addr
}

// UniversalAddressFromHex parses a 0x-prefixed, 32-byte hex string into a
// UniversalAddress.
func UniversalAddressFromHex(s string) (UniversalAddress, error) {
	var a UniversalAddress
	b, err := hex.DecodeString(trim0x(s))
	if err != nil {
		return a, NewError(MalformedPayload, "invalid hex address: "+err.Error())
	}
	if len(b) != len(a) {
		return a, NewError(MalformedPayload, fmt.Sprintf("address must be %d bytes, got %d", len(a), len(b)))
	}
	copy(a[:], b)
	return a, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DigestFromBytes copies exactly 32 bytes into a Digest, erroring otherwise.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != len(d) {
		return d, NewError(MalformedPayload, fmt.Sprintf("digest must be %d bytes, got %d", len(d), len(b)))
	}
	copy(d[:], b)
	return d, nil
}
