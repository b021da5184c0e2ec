package protocol

import (
	"encoding/binary"
	"hash/crc32"
)

// Header is the fixed 32-byte frame header (spec §3.1). Field order matches
// the wire layout exactly — do not reorder; offsets are load-bearing.
//
//	offset  size  field
//	0       4     magic
//	4       1     relay_domain
//	5       1     version
//	6       1     source
//	7       1     flags
//	8       8     sequence
//	16      8     timestamp
//	24      4     payload_size
//	28      4     checksum
type Header struct {
	Magic        uint32
	RelayDomain  RelayDomain
	Version      uint8
	Source       SourceType
	Flags        uint8
	Sequence     uint64
	Timestamp    uint64
	PayloadSize  uint32
	Checksum     uint32
}

const checksumOffset = 28

// NewHeader builds a header with magic, version, and timestamp populated.
// Sequence is left at 0 — the relay assigns the final value on forward.
func NewHeader(domain RelayDomain, source SourceType, timestampNs uint64) Header {
	return Header{
		Magic:       MagicNumber,
		RelayDomain: domain,
		Version:     ProtocolVersion,
		Source:      source,
		Timestamp:   timestampNs,
	}
}

// PutHeader serializes h into the first HeaderSize bytes of buf. buf must be
// at least HeaderSize bytes. The checksum field is written as given — callers
// finalize it afterward with WriteChecksum.
func PutHeader(buf []byte, h Header) {
	_ = buf[HeaderSize-1] // bounds check hint
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = uint8(h.RelayDomain)
	buf[5] = h.Version
	buf[6] = uint8(h.Source)
	buf[7] = h.Flags
	binary.LittleEndian.PutUint64(buf[8:16], h.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[24:28], h.PayloadSize)
	binary.LittleEndian.PutUint32(buf[28:32], h.Checksum)
}

// WriteChecksum computes CRC32 over frame (with the checksum field treated
// as zero) and writes it into frame[28:32]. frame must be the full message
// (header + payload).
func WriteChecksum(frame []byte) {
	binary.LittleEndian.PutUint32(frame[checksumOffset:checksumOffset+4], 0)
	frame[checksumOffset], frame[checksumOffset+1] = 0, 0
	binary.LittleEndian.PutUint32(frame[checksumOffset:checksumOffset+4], computeChecksum(frame))
}

func computeChecksum(frame []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(frame[:checksumOffset])
	h.Write(frame[checksumOffset+4:])
	return h.Sum32()
}

// ParseHeader validates and decodes the first HeaderSize bytes of frame,
// then verifies the CRC32 checksum over the full frame (header + payload).
// It never copies payload bytes; the returned Header's fields are scalars.
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, &MessageTooSmallError{Need: HeaderSize, Got: len(frame)}
	}

	magic := binary.LittleEndian.Uint32(frame[0:4])
	if magic != MagicNumber {
		return Header{}, &InvalidMagicError{Expected: MagicNumber, Actual: magic}
	}

	h := Header{
		Magic:       magic,
		RelayDomain: RelayDomain(frame[4]),
		Version:     frame[5],
		Source:      SourceType(frame[6]),
		Flags:       frame[7],
		Sequence:    binary.LittleEndian.Uint64(frame[8:16]),
		Timestamp:   binary.LittleEndian.Uint64(frame[16:24]),
		PayloadSize: binary.LittleEndian.Uint32(frame[24:28]),
		Checksum:    binary.LittleEndian.Uint32(frame[28:32]),
	}

	need := HeaderSize + int(h.PayloadSize)
	if len(frame) < need {
		return Header{}, &MessageTooSmallError{Need: need, Got: len(frame)}
	}

	calculated := computeChecksum(frame[:need])
	if calculated != h.Checksum {
		return Header{}, &ChecksumMismatchError{Expected: h.Checksum, Calculated: calculated}
	}

	return h, nil
}

// ValidateSemantics checks relay_domain and source against the registered
// enumerations. ParseHeader deliberately does not call this — structural
// validity (magic, checksum, size) and semantic validity (known domain,
// known source) are distinct failure classes per spec §7.
func (h Header) ValidateSemantics() error {
	if !h.RelayDomain.Valid() {
		return &InvalidRelayDomainError{Domain: uint8(h.RelayDomain)}
	}
	if !h.Source.Valid() {
		return &UnknownSourceError{Source: uint8(h.Source)}
	}
	return nil
}

// Payload returns the TLV payload slice of frame, given a header already
// parsed from it. No copy is made.
func (h Header) Payload(frame []byte) []byte {
	return frame[HeaderSize : HeaderSize+int(h.PayloadSize)]
}
