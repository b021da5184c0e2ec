package collector

import (
	"sync"

	"github.com/flashmesh/arbcore/internal/ringbuf"
)

// RingPublisher writes frames onto a shared-memory ring instead of dialing
// a relay domain socket — the lower-latency alternative transport named in
// spec §2/§4.B ("collectors construct TLV messages, publish them either by
// writing frames into a shared ring ... or by connecting to a relay domain
// socket"), for a collector colocated on the same host as its relay.
type RingPublisher struct {
	mu sync.Mutex
	w  *ringbuf.Writer
}

// NewRingPublisher creates (or recreates) a ring file at path sized for
// capacity frames of up to elementSize bytes each. Exactly one
// RingPublisher should own a given ring file at a time, per the ring's
// single-writer contract.
func NewRingPublisher(path string, capacity int, elementSize uint32) (*RingPublisher, error) {
	w, err := ringbuf.Create(path, capacity, elementSize)
	if err != nil {
		return nil, err
	}
	return &RingPublisher{w: w}, nil
}

// Publish writes frame onto the ring.
func (p *RingPublisher) Publish(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Write(frame)
}

// Close releases the ring mapping.
func (p *RingPublisher) Close() error {
	return p.w.Close()
}
