// Package ringbuf implements the lock-free single-producer multi-consumer
// shared-memory ring transport (spec §3.5, §4.B): a memory-mapped file
// holding a header (capacity, element size, write sequence, up to 16 reader
// cursors) followed by a contiguous array of fixed-size slots.
//
// One Writer owns a ring file exclusively. Any number of Readers attach
// independently, each claiming one cursor slot. Writes never block; a slow
// reader that falls behind by more than capacity slots observes Lagged on
// its next Read and resynchronizes to the current head.
package ringbuf

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// MaxReaders bounds the number of concurrently attached reader cursors.
	MaxReaders = 16

	headerMagic uint32 = 0x52494e47 // "RING"
)

// ringHeader mirrors the mmap'd header layout exactly. Every field that
// participates in the writer/reader handshake is an atomic type so ordinary
// Load/Store calls carry the acquire/release semantics spec §4.B requires,
// without a separate memory-fence API.
type ringHeader struct {
	magic         atomic.Uint32
	_pad0         uint32
	capacity      atomic.Uint64
	elementSize   atomic.Uint64
	writeSequence atomic.Uint64               // release-stored by the writer, acquire-loaded by readers
	readerCursors [MaxReaders]atomic.Uint64    // release-stored by each reader
	readerActive  [MaxReaders]atomic.Uint32    // 1 if slot is claimed, 0 if free
}

const headerSize = int(unsafe.Sizeof(ringHeader{}))

// ResourceError wraps a fatal creation/mapping failure (spec §4.B,
// "Creation failures abort the producer").
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("ringbuf: %s: %v", e.Op, e.Err) }
func (e *ResourceError) Unwrap() error { return e.Err }

// Lagged is returned by Read when the writer has overwritten slots the
// reader had not yet consumed. It is a value, not an error: the read still
// succeeds, just with dropped records.
type Lagged struct {
	Dropped uint64
}

func (l Lagged) Error() string {
	return fmt.Sprintf("ringbuf: reader lagged, dropped %d records", l.Dropped)
}

// mapping is the shared mmap'd region plus the file handle that backs it,
// acquired under a scoped guard so munmap always runs on every exit path.
type mapping struct {
	file   *os.File
	data   []byte
	header *ringHeader
}

func (m *mapping) close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
	}
	if m.file != nil {
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func slotAlignment(elementSize uint32) uint32 {
	switch {
	case elementSize%8 == 0:
		return 8
	case elementSize%4 == 0:
		return 4
	case elementSize%2 == 0:
		return 2
	default:
		return 1
	}
}

// alignedHeaderSize rounds headerSize up to a multiple of the slot
// alignment so the data region that follows is naturally aligned (spec
// §3.5 invariant).
func alignedHeaderSize(elementSize uint32) int {
	align := int(slotAlignment(elementSize))
	if align <= 1 {
		return headerSize
	}
	rem := headerSize % align
	if rem == 0 {
		return headerSize
	}
	return headerSize + (align - rem)
}

func slotOffset(dataOffset int, idx uint64, elementSize uint32) int {
	return dataOffset + int(idx)*int(elementSize)
}

func readHeader(data []byte) *ringHeader {
	return (*ringHeader)(unsafe.Pointer(&data[0]))
}
