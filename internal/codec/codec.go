// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package codec encodes and decodes the engine's wire payloads: the four
// message bodies carried inside attested cross-chain messages. All integers
// are big-endian; every payload is prefixed with a one-byte discriminant and
// decoding rejects trailing bytes.
package codec

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/fasttransfer/matchingengine/dex"
)

// Discriminant identifies the payload type of an encoded message.
type Discriminant byte

// Wire discriminants, fixed once chosen.
const (
	DiscFastMarketOrder   Discriminant = 0x11
	DiscSlowOrderResponse Discriminant = 0x14
	DiscFill              Discriminant = 0x01
	DiscFastFill          Discriminant = 0x0C
)

const (
	u16Len  = 2
	u32Len  = 4
	u64Len  = 8
	u128Len = 16
	bz32Len = 32
)

// FastMarketOrder is the presigned, speed-optimized order message.
type FastMarketOrder struct {
	AmountIn          *big.Int
	MinAmountOut      *big.Int
	TargetChain       dex.ChainID
	DestinationDomain uint32
	Redeemer          dex.UniversalAddress
	Sender            dex.UniversalAddress
	RefundAddress     dex.UniversalAddress
	SlowEmitter       dex.UniversalAddress
	SlowSequence      uint64
	MaxFee            *big.Int
	InitAuctionFee    *big.Int
	Deadline          uint32 // unix seconds; 0 = no deadline
	RedeemerMessage   []byte
}

// SlowOrderResponse is the finalized-transfer reconciliation payload.
type SlowOrderResponse struct {
	BaseFee *big.Int
}

// Fill describes a destination-chain settlement instruction.
type Fill struct {
	SourceChain     dex.ChainID
	OrderSender     dex.UniversalAddress
	Redeemer        dex.UniversalAddress
	RedeemerMessage []byte
}

// FastFill wraps a Fill with the amount actually delivered by the fast path,
// emitted locally when an order's target chain is this engine's own chain.
type FastFill struct {
	Fill       Fill
	FillAmount *big.Int
}

func putUint128(buf []byte, v *big.Int) error {
	if v == nil {
		return dex.NewError(dex.MalformedPayload, "nil u128 value")
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return dex.NewError(dex.MalformedPayload, "value out of u128 range")
	}
	b := v.Bytes()
	copy(buf[u128Len-len(b):], b)
	return nil
}

func getUint128(buf []byte) *big.Int {
	return new(big.Int).SetBytes(buf[:u128Len])
}

// EncodeFastMarketOrder serializes order per the wire table in §6.
func EncodeFastMarketOrder(o *FastMarketOrder) ([]byte, error) {
	msgLen := len(o.RedeemerMessage)
	out := make([]byte, 1+u128Len+u128Len+u16Len+u32Len+bz32Len*3+bz32Len+u64Len+u128Len+u128Len+u32Len+u32Len+msgLen)
	i := 0
	out[i] = byte(DiscFastMarketOrder)
	i++
	if err := putUint128(out[i:i+u128Len], o.AmountIn); err != nil {
		return nil, err
	}
	i += u128Len
	if err := putUint128(out[i:i+u128Len], o.MinAmountOut); err != nil {
		return nil, err
	}
	i += u128Len
	binary.BigEndian.PutUint16(out[i:i+u16Len], uint16(o.TargetChain))
	i += u16Len
	binary.BigEndian.PutUint32(out[i:i+u32Len], o.DestinationDomain)
	i += u32Len
	copy(out[i:i+bz32Len], o.Redeemer[:])
	i += bz32Len
	copy(out[i:i+bz32Len], o.Sender[:])
	i += bz32Len
	copy(out[i:i+bz32Len], o.RefundAddress[:])
	i += bz32Len
	copy(out[i:i+bz32Len], o.SlowEmitter[:])
	i += bz32Len
	binary.BigEndian.PutUint64(out[i:i+u64Len], o.SlowSequence)
	i += u64Len
	if err := putUint128(out[i:i+u128Len], o.MaxFee); err != nil {
		return nil, err
	}
	i += u128Len
	if err := putUint128(out[i:i+u128Len], o.InitAuctionFee); err != nil {
		return nil, err
	}
	i += u128Len
	binary.BigEndian.PutUint32(out[i:i+u32Len], o.Deadline)
	i += u32Len
	binary.BigEndian.PutUint32(out[i:i+u32Len], uint32(msgLen))
	i += u32Len
	copy(out[i:], o.RedeemerMessage)
	return out, nil
}

// DecodeFastMarketOrder parses the discriminant-stripped body of a
// FastMarketOrder, rejecting trailing bytes.
func DecodeFastMarketOrder(body []byte) (*FastMarketOrder, error) {
	fixedLen := u128Len + u128Len + u16Len + u32Len + bz32Len*4 + u64Len + u128Len + u128Len + u32Len + u32Len
	if len(body) < fixedLen {
		return nil, dex.NewError(dex.MalformedPayload, "FastMarketOrder too short")
	}
	o := &FastMarketOrder{}
	i := 0
	o.AmountIn = getUint128(body[i:])
	i += u128Len
	o.MinAmountOut = getUint128(body[i:])
	i += u128Len
	o.TargetChain = dex.ChainID(binary.BigEndian.Uint16(body[i:]))
	i += u16Len
	o.DestinationDomain = binary.BigEndian.Uint32(body[i:])
	i += u32Len
	copy(o.Redeemer[:], body[i:i+bz32Len])
	i += bz32Len
	copy(o.Sender[:], body[i:i+bz32Len])
	i += bz32Len
	copy(o.RefundAddress[:], body[i:i+bz32Len])
	i += bz32Len
	copy(o.SlowEmitter[:], body[i:i+bz32Len])
	i += bz32Len
	o.SlowSequence = binary.BigEndian.Uint64(body[i:])
	i += u64Len
	o.MaxFee = getUint128(body[i:])
	i += u128Len
	o.InitAuctionFee = getUint128(body[i:])
	i += u128Len
	o.Deadline = binary.BigEndian.Uint32(body[i:])
	i += u32Len
	msgLen := binary.BigEndian.Uint32(body[i:])
	i += u32Len
	if uint32(len(body)-i) != msgLen {
		return nil, dex.NewError(dex.MalformedPayload, "FastMarketOrder redeemer_message length mismatch")
	}
	o.RedeemerMessage = append([]byte(nil), body[i:]...)
	return o, nil
}

// EncodeSlowOrderResponse serializes a SlowOrderResponse.
func EncodeSlowOrderResponse(r *SlowOrderResponse) ([]byte, error) {
	out := make([]byte, 1+u128Len)
	out[0] = byte(DiscSlowOrderResponse)
	if err := putUint128(out[1:], r.BaseFee); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeSlowOrderResponse parses the discriminant-stripped body.
func DecodeSlowOrderResponse(body []byte) (*SlowOrderResponse, error) {
	if len(body) != u128Len {
		return nil, dex.NewError(dex.MalformedPayload, "SlowOrderResponse length mismatch")
	}
	return &SlowOrderResponse{BaseFee: getUint128(body)}, nil
}

// EncodeFill serializes a Fill.
func EncodeFill(f *Fill) ([]byte, error) {
	msgLen := len(f.RedeemerMessage)
	out := make([]byte, 1+u16Len+bz32Len*2+u32Len+msgLen)
	i := 0
	out[i] = byte(DiscFill)
	i++
	binary.BigEndian.PutUint16(out[i:], uint16(f.SourceChain))
	i += u16Len
	copy(out[i:i+bz32Len], f.OrderSender[:])
	i += bz32Len
	copy(out[i:i+bz32Len], f.Redeemer[:])
	i += bz32Len
	binary.BigEndian.PutUint32(out[i:], uint32(msgLen))
	i += u32Len
	copy(out[i:], f.RedeemerMessage)
	return out, nil
}

func decodeFillBody(body []byte) (*Fill, int, error) {
	fixedLen := u16Len + bz32Len*2 + u32Len
	if len(body) < fixedLen {
		return nil, 0, dex.NewError(dex.MalformedPayload, "Fill too short")
	}
	f := &Fill{}
	i := 0
	f.SourceChain = dex.ChainID(binary.BigEndian.Uint16(body[i:]))
	i += u16Len
	copy(f.OrderSender[:], body[i:i+bz32Len])
	i += bz32Len
	copy(f.Redeemer[:], body[i:i+bz32Len])
	i += bz32Len
	msgLen := binary.BigEndian.Uint32(body[i:])
	i += u32Len
	if uint32(len(body)-i) < msgLen {
		return nil, 0, dex.NewError(dex.MalformedPayload, "Fill redeemer_message length mismatch")
	}
	f.RedeemerMessage = append([]byte(nil), body[i:i+int(msgLen)]...)
	i += int(msgLen)
	return f, i, nil
}

// DecodeFill parses the discriminant-stripped body, rejecting trailing
// bytes.
func DecodeFill(body []byte) (*Fill, error) {
	f, n, err := decodeFillBody(body)
	if err != nil {
		return nil, err
	}
	if n != len(body) {
		return nil, dex.NewError(dex.MalformedPayload, "Fill has trailing bytes")
	}
	return f, nil
}

// EncodeFastFill serializes a FastFill: fill_amount followed by the inline
// Fill fields.
func EncodeFastFill(ff *FastFill) ([]byte, error) {
	fillBytes, err := EncodeFill(&ff.Fill)
	if err != nil {
		return nil, err
	}
	// Drop the inline Fill's own discriminant; FastFill carries its own.
	fillBody := fillBytes[1:]
	out := make([]byte, 1+u128Len+len(fillBody))
	out[0] = byte(DiscFastFill)
	if err := putUint128(out[1:1+u128Len], ff.FillAmount); err != nil {
		return nil, err
	}
	copy(out[1+u128Len:], fillBody)
	return out, nil
}

// DecodeFastFill parses the discriminant-stripped body.
func DecodeFastFill(body []byte) (*FastFill, error) {
	if len(body) < u128Len {
		return nil, dex.NewError(dex.MalformedPayload, "FastFill too short")
	}
	amount := getUint128(body)
	fill, n, err := decodeFillBody(body[u128Len:])
	if err != nil {
		return nil, err
	}
	if u128Len+n != len(body) {
		return nil, dex.NewError(dex.MalformedPayload, "FastFill has trailing bytes")
	}
	return &FastFill{Fill: *fill, FillAmount: amount}, nil
}

// Decode dispatches on the leading discriminant byte and returns the
// decoded payload as one of *FastMarketOrder, *SlowOrderResponse, *Fill, or
// *FastFill.
func Decode(raw []byte) (any, error) {
	if len(raw) < 1 {
		return nil, dex.NewError(dex.MalformedPayload, "empty payload")
	}
	switch Discriminant(raw[0]) {
	case DiscFastMarketOrder:
		return DecodeFastMarketOrder(raw[1:])
	case DiscSlowOrderResponse:
		return DecodeSlowOrderResponse(raw[1:])
	case DiscFill:
		return DecodeFill(raw[1:])
	case DiscFastFill:
		return DecodeFastFill(raw[1:])
	default:
		return nil, dex.NewError(dex.MalformedPayload, fmt.Sprintf("unknown discriminant 0x%02x", raw[0]))
	}
}
