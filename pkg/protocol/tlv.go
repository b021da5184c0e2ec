package protocol

import "encoding/binary"

// TLV type domains (spec §3.2).
const (
	TLVTypeMarketDataMin = 1
	TLVTypeMarketDataMax = 19
	TLVTypeSignalMin      = 20
	TLVTypeSignalMax      = 39
	TLVTypeExecutionMin   = 40
	TLVTypeExecutionMax   = 79
	TLVTypeVendorMin      = 80
	TLVTypeVendorMax      = 254
	extendedMarker        = 255
)

// Concrete TLV type numbers used by this core.
const (
	TLVTypeTrade             uint8 = 1
	TLVTypePoolSwap          uint8 = 2
	TLVTypeQuote             uint8 = 3
	TLVTypeArbitrageSignal   uint8 = 20
	TLVTypeOpportunity       uint8 = 21
)

// expectedTLVSize declares, for known-fixed-size types, the exact payload
// length parsing must enforce. Types absent from this map are treated as
// variable-length (no size check beyond fitting within the remaining bytes).
var expectedTLVSize = map[uint8]int{
	TLVTypeTrade:           24,
	TLVTypePoolSwap:        PoolSwapTLVSize,
	TLVTypeQuote:           QuoteTLVSize,
	TLVTypeArbitrageSignal: ArbitrageSignalTLVSize,
	TLVTypeOpportunity:     OpportunityTLVSize,
}

// TLVEntry is a single decoded (type, payload) pair to feed the builder.
type TLVEntry struct {
	Type    uint8
	Payload []byte
}

// TLV is a zero-copy view into a parsed payload: Payload aliases the
// original buffer and must not be retained past the buffer's lifetime
// without copying.
type TLV struct {
	Type    uint8
	Payload []byte
	Offset  int // byte offset of this TLV's discriminator within the payload
}

// tlvHeaderSize returns the on-wire header size (discriminator through
// length) for a payload of the given length: 2 bytes standard, 5 extended.
func tlvHeaderSize(payloadLen int) int {
	if payloadLen > 255 {
		return 5
	}
	return 2
}

// EncodedSize returns the number of bytes e occupies on the wire, including
// its TLV header.
func (e TLVEntry) EncodedSize() int {
	return tlvHeaderSize(len(e.Payload)) + len(e.Payload)
}

// encodeTLV appends e's wire encoding to buf and returns the result.
func encodeTLV(buf []byte, e TLVEntry) []byte {
	if len(e.Payload) <= 255 {
		buf = append(buf, e.Type, uint8(len(e.Payload)))
	} else {
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(e.Payload)))
		buf = append(buf, extendedMarker, 0, e.Type, lenBuf[0], lenBuf[1])
	}
	return append(buf, e.Payload...)
}

// ParseTLVs walks payload and invokes fn for each TLV in order. It stops
// early (without error) if fn returns false. No payload bytes are copied —
// each TLV.Payload is a subslice of payload itself.
func ParseTLVs(payload []byte, fn func(TLV) bool) error {
	offset := 0
	for offset < len(payload) {
		discriminator := payload[offset]

		var tlvType uint8
		var length int
		var headerLen int

		if discriminator == extendedMarker {
			if offset+5 > len(payload) {
				return &InvalidExtendedTLVError{Offset: offset, Reason: "truncated extended header"}
			}
			reserved := payload[offset+1]
			if reserved != 0 {
				return &InvalidExtendedTLVError{Offset: offset, Reason: "reserved byte not zero"}
			}
			tlvType = payload[offset+2]
			length = int(binary.LittleEndian.Uint16(payload[offset+3 : offset+5]))
			headerLen = 5
		} else {
			if offset+2 > len(payload) {
				return &TruncatedTLVError{Offset: offset}
			}
			tlvType = discriminator
			length = int(payload[offset+1])
			headerLen = 2
		}

		dataStart := offset + headerLen
		dataEnd := dataStart + length
		if dataEnd > len(payload) {
			return &TruncatedTLVError{Offset: offset}
		}

		if expected, ok := expectedTLVSize[tlvType]; ok && expected != length {
			return &PayloadSizeMismatchError{Type: tlvType, Expected: expected, Got: length}
		}

		if !fn(TLV{Type: tlvType, Payload: payload[dataStart:dataEnd], Offset: offset}) {
			return nil
		}

		offset = dataEnd
	}
	return nil
}

// CollectTLVs is a convenience wrapper over ParseTLVs that materializes the
// full ordered sequence. Prefer ParseTLVs on hot paths to avoid the slice
// allocation.
func CollectTLVs(payload []byte) ([]TLV, error) {
	var out []TLV
	err := ParseTLVs(payload, func(t TLV) bool {
		out = append(out, t)
		return true
	})
	return out, err
}

// FindTLV returns the payload slice of the first TLV of the given type, or
// (nil, false) if none is present. O(n) scan; supports both encodings.
func FindTLV(payload []byte, tlvType uint8) ([]byte, bool) {
	var found []byte
	ok := false
	_ = ParseTLVs(payload, func(t TLV) bool {
		if t.Type == tlvType {
			found = t.Payload
			ok = true
			return false
		}
		return true
	})
	return found, ok
}
