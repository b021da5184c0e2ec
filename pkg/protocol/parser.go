package protocol

// Frame is a parsed view over a single wire message: a Header plus the
// backing buffer. It holds no copies — TLVs() walks the original bytes.
type Frame struct {
	Header Header
	buf    []byte // full frame: header + payload
}

// Parse validates frame and returns a Frame view over it. It performs the
// same checks as ParseHeader (magic, size, checksum) but not
// ValidateSemantics — callers that care about domain/source validity call
// that explicitly, matching the relay's two-stage validation (spec §4.C).
func Parse(frame []byte) (Frame, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Header: h, buf: frame}, nil
}

// Payload returns the TLV payload slice, aliasing the original buffer.
func (f Frame) Payload() []byte {
	return f.Header.Payload(f.buf)
}

// TLVs walks the frame's payload, invoking fn for each TLV in order.
func (f Frame) TLVs(fn func(TLV) bool) error {
	return ParseTLVs(f.Payload(), fn)
}

// Find returns the first TLV of the given type in the frame's payload.
func (f Frame) Find(tlvType uint8) ([]byte, bool) {
	return FindTLV(f.Payload(), tlvType)
}

// Bytes returns the full underlying frame buffer (header + payload).
func (f Frame) Bytes() []byte {
	return f.buf
}
