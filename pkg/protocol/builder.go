package protocol

import "github.com/flashmesh/arbcore/internal/clock"

// Builder accumulates TLV entries and assembles a framed message. The zero
// value is not usable; construct with NewBuilder.
type Builder struct {
	domain  RelayDomain
	source  SourceType
	entries []TLVEntry
	maxPayload int
}

// NewBuilder starts a frame for the given domain and source identity.
// maxPayload bounds the assembled TLV payload; pass 0 to use
// DefaultMaxPayloadSize.
func NewBuilder(domain RelayDomain, source SourceType, maxPayload int) *Builder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	return &Builder{domain: domain, source: source, maxPayload: maxPayload}
}

// Add appends one TLV entry. The builder chooses standard or extended
// encoding per-entry based on payload length at Build time.
func (b *Builder) Add(tlvType uint8, payload []byte) *Builder {
	b.entries = append(b.entries, TLVEntry{Type: tlvType, Payload: payload})
	return b
}

// payloadSize returns the total encoded size of all accumulated TLVs.
func (b *Builder) payloadSize() int {
	n := 0
	for _, e := range b.entries {
		n += e.EncodedSize()
	}
	return n
}

// Build assembles the full frame: header followed by concatenated TLVs,
// with sequence left at 0 (the relay assigns the final value on forward)
// and checksum computed over the complete frame.
func (b *Builder) Build() ([]byte, error) {
	payloadSize := b.payloadSize()
	if payloadSize > b.maxPayload {
		return nil, &PayloadTooLargeError{Max: b.maxPayload, Got: payloadSize}
	}

	frame := make([]byte, HeaderSize, HeaderSize+payloadSize)
	h := NewHeader(b.domain, b.source, clock.NowNs())
	h.PayloadSize = uint32(payloadSize)
	PutHeader(frame[:HeaderSize], h)

	for _, e := range b.entries {
		frame = encodeTLV(frame, e)
	}

	WriteChecksum(frame)
	return frame, nil
}

// BuildInto is the zero-copy variant: it writes the framed message directly
// into dst (which must be at least HeaderSize+payloadSize bytes) without any
// intermediate allocation, and returns the number of bytes written. The TLV
// payload bytes passed to Add are referenced, not copied, until this call
// writes them into dst.
func (b *Builder) BuildInto(dst []byte) (int, error) {
	payloadSize := b.payloadSize()
	if payloadSize > b.maxPayload {
		return 0, &PayloadTooLargeError{Max: b.maxPayload, Got: payloadSize}
	}
	total := HeaderSize + payloadSize
	if len(dst) < total {
		return 0, &MessageTooSmallError{Need: total, Got: len(dst)}
	}

	h := NewHeader(b.domain, b.source, clock.NowNs())
	h.PayloadSize = uint32(payloadSize)
	PutHeader(dst[:HeaderSize], h)

	offset := HeaderSize
	for _, e := range b.entries {
		if len(e.Payload) <= 255 {
			dst[offset] = e.Type
			dst[offset+1] = uint8(len(e.Payload))
			offset += 2
		} else {
			dst[offset] = extendedMarker
			dst[offset+1] = 0
			dst[offset+2] = e.Type
			dst[offset+3] = uint8(len(e.Payload))
			dst[offset+4] = uint8(len(e.Payload) >> 8)
			offset += 5
		}
		offset += copy(dst[offset:], e.Payload)
	}

	WriteChecksum(dst[:total])
	return total, nil
}
