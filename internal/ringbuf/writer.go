package ringbuf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Writer is the single producer for a ring file. Exactly one Writer may
// hold a given path open at a time — the file is created exclusively.
type Writer struct {
	m           *mapping
	dataOffset  int
	capacity    uint64
	elementSize uint32
	notifyFd    int // eventfd signaled after every write / write_batch
}

// Create creates a new ring file at path with the given capacity (slot
// count) and elementSize (bytes per slot), mmaps it, and initializes the
// header. The file is world-readable so readers in other processes can
// attach. A prior file at path is unlinked first (spec §6.2, idempotent
// bind).
func Create(path string, capacity int, elementSize uint32) (*Writer, error) {
	if capacity <= 0 {
		return nil, &ResourceError{Op: "create", Err: fmt.Errorf("capacity must be > 0")}
	}
	if elementSize == 0 {
		return nil, &ResourceError{Op: "create", Err: fmt.Errorf("elementSize must be > 0")}
	}

	_ = os.Remove(path)

	dataOffset := alignedHeaderSize(elementSize)
	totalSize := int64(dataOffset) + int64(capacity)*int64(elementSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &ResourceError{Op: "create", Err: err}
	}
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, &ResourceError{Op: "truncate", Err: err}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, &ResourceError{Op: "mmap", Err: err}
	}

	h := readHeader(data)
	h.magic.Store(headerMagic)
	h.capacity.Store(uint64(capacity))
	h.elementSize.Store(uint64(elementSize))
	h.writeSequence.Store(0)
	for i := range h.readerCursors {
		h.readerCursors[i].Store(0)
		h.readerActive[i].Store(0)
	}

	notifyFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		os.Remove(path)
		return nil, &ResourceError{Op: "eventfd", Err: err}
	}

	return &Writer{
		m:           &mapping{file: f, data: data, header: h},
		dataOffset:  dataOffset,
		capacity:    uint64(capacity),
		elementSize: elementSize,
		notifyFd:    notifyFd,
	}, nil
}

// Close releases the mapping and file handle. It never removes the ring
// file — removal is an explicit administrative action, not implicit in
// Close. A later Create at the same path unlinks the old file and starts a
// fresh ring.
func (w *Writer) Close() error {
	if w.notifyFd != 0 {
		unix.Close(w.notifyFd)
	}
	return w.m.close()
}

// Write copies record into the next slot and publishes it. record must be
// exactly elementSize bytes. The writer never blocks: if the slowest
// reader's cursor lags by more than capacity, the oldest unread slot is
// overwritten and that reader's next Read reports Lagged.
func (w *Writer) Write(record []byte) error {
	if uint32(len(record)) != w.elementSize {
		return fmt.Errorf("ringbuf: record size %d != element size %d", len(record), w.elementSize)
	}
	seq := w.m.header.writeSequence.Load()
	idx := seq % w.capacity
	off := slotOffset(w.dataOffset, idx, w.elementSize)
	copy(w.m.data[off:off+int(w.elementSize)], record)

	// Release-ordered publish: the atomic Store is the release fence —
	// no reader observes the new slot contents before this store is
	// visible, because Acquire-loading write_sequence happens-before any
	// read of the slot it advances past.
	w.m.header.writeSequence.Store(seq + 1)
	w.signal()
	return nil
}

// WriteBatch writes each of records in order, signaling readers once at
// the end instead of after every record.
func (w *Writer) WriteBatch(records [][]byte) error {
	for _, r := range records {
		if uint32(len(r)) != w.elementSize {
			return fmt.Errorf("ringbuf: record size %d != element size %d", len(r), w.elementSize)
		}
	}
	seq := w.m.header.writeSequence.Load()
	for _, r := range records {
		idx := seq % w.capacity
		off := slotOffset(w.dataOffset, idx, w.elementSize)
		copy(w.m.data[off:off+int(w.elementSize)], r)
		seq++
	}
	w.m.header.writeSequence.Store(seq)
	w.signal()
	return nil
}

func (w *Writer) signal() {
	var buf [8]byte
	buf[0] = 1
	unix.Write(w.notifyFd, buf[:])
}

// ResetReader reclaims a dead reader's cursor slot (administrative
// operation, spec §4.B: "a dead reader simply stops advancing its cursor;
// its slot is reclaimed by an administrative reset operation, not by the
// writer" during normal operation — this is that operation, invoked by an
// operator or supervisor, not called implicitly from Write).
func (w *Writer) ResetReader(readerID int) error {
	if readerID < 0 || readerID >= MaxReaders {
		return fmt.Errorf("ringbuf: reader id %d out of range", readerID)
	}
	w.m.header.readerActive[readerID].Store(0)
	w.m.header.readerCursors[readerID].Store(0)
	return nil
}

// Path-level helper: NotifyFD exposes the eventfd for tests/tools that want
// to observe writer activity directly.
func (w *Writer) NotifyFD() int { return w.notifyFd }
