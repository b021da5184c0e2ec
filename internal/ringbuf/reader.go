package ringbuf

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Reader attaches to an existing ring file and tracks its own consumption
// cursor in a dedicated header slot. Multiple Readers may attach to the
// same ring concurrently; each claims a distinct slot up to MaxReaders.
type Reader struct {
	m           *mapping
	dataOffset  int
	elementSize uint32
	id          int
	cursor      uint64 // local shadow of header.readerCursors[id]
	notifyFd    int    // writer's eventfd as passed to AttachNotify, read-only use
}

// Open attaches to the ring file at path, claiming readerID as this
// reader's cursor slot. readerID must be stable across restarts of the
// same logical consumer so its lag is tracked correctly; a fresh consumer
// should pick an id no other attached reader uses; this package does not
// allocate ids.
func Open(path string, readerID int) (*Reader, error) {
	if readerID < 0 || readerID >= MaxReaders {
		return nil, &ResourceError{Op: "open", Err: fmt.Errorf("reader id %d out of range", readerID)}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &ResourceError{Op: "open", Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &ResourceError{Op: "stat", Err: err}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &ResourceError{Op: "mmap", Err: err}
	}

	h := readHeader(data)
	if h.magic.Load() != headerMagic {
		unix.Munmap(data)
		f.Close()
		return nil, &ResourceError{Op: "open", Err: fmt.Errorf("bad ring header magic")}
	}

	elementSize := uint32(h.elementSize.Load())
	dataOffset := alignedHeaderSize(elementSize)

	// A reader's cursor always starts at 0, not at the current write head:
	// per spec §8.3 scenario #5, attaching after writes have already
	// happened must catch the reader up on whatever the ring still holds
	// and report a Lagged for whatever it no longer can, not silently skip
	// straight to the head as if nothing had been written yet.
	const startCursor = uint64(0)
	h.readerCursors[readerID].Store(startCursor)
	h.readerActive[readerID].Store(1)

	return &Reader{
		m:           &mapping{file: f, data: data, header: h},
		dataOffset:  dataOffset,
		elementSize: elementSize,
		id:          readerID,
		cursor:      startCursor,
	}, nil
}

// Close releases the mapping. It does not mark the reader slot inactive —
// that is ResetReader's job, an explicit administrative action. Opening
// the same readerID again starts its cursor at 0, as Open always does.
func (r *Reader) Close() error {
	return r.m.close()
}

// Read returns all slots newly written since the last Read, in order, as
// views aliasing the mmap'd region — copy before Write advances past them
// again if the caller retains them past its next Read call. If the writer
// has advanced far enough to overwrite slots this reader had not consumed,
// Read returns the records it could still recover plus a Lagged error
// reporting how many were dropped.
func (r *Reader) Read() ([][]byte, error) {
	capacity := r.m.header.capacity.Load()
	head := r.m.header.writeSequence.Load() // acquire-load: happens-after every slot write below it

	if head == r.cursor {
		return nil, nil
	}

	start := r.cursor
	var dropped uint64
	if head-start > capacity {
		dropped = (head - start) - capacity
		start = head - capacity
	}

	out := make([][]byte, 0, head-start)
	for seq := start; seq < head; seq++ {
		idx := seq % capacity
		off := slotOffset(r.dataOffset, idx, r.elementSize)
		out = append(out, r.m.data[off:off+int(r.elementSize)])
	}

	r.cursor = head
	r.m.header.readerCursors[r.id].Store(head)

	if dropped > 0 {
		return out, Lagged{Dropped: dropped}
	}
	return out, nil
}

// Wait blocks until the writer signals new data or timeout elapses (0 means
// no timeout). It is advisory: a spurious wakeup with nothing new to read
// is not an error, callers just call Read and get nil.
func (r *Reader) Wait(timeout time.Duration) error {
	if r.notifyFd == 0 {
		if timeout <= 0 {
			return nil
		}
		time.Sleep(timeout)
		return nil
	}

	pfd := []unix.PollFd{{Fd: int32(r.notifyFd), Events: unix.POLLIN}}
	ms := -1
	if timeout > 0 {
		ms = int(timeout.Milliseconds())
	}
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		return &ResourceError{Op: "poll", Err: err}
	}
	if n > 0 {
		var buf [8]byte
		unix.Read(r.notifyFd, buf[:])
	}
	return nil
}

// AttachNotify shares the writer's eventfd with this reader so Wait can
// block on it instead of polling. Readers in the same process as the
// writer can pass Writer.NotifyFD() directly; cross-process readers
// without fd-passing fall back to Wait's timeout-sleep behavior.
func (r *Reader) AttachNotify(fd int) {
	r.notifyFd = fd
}

// Lag reports how far this reader's cursor trails the current write head.
func (r *Reader) Lag() uint64 {
	head := r.m.header.writeSequence.Load()
	if head < r.cursor {
		return 0
	}
	return head - r.cursor
}
