package relay

import (
	"time"

	"github.com/flashmesh/arbcore/internal/ringbuf"
)

// RunRingIngest is the shared-memory alternative to accepting publisher
// socket connections (spec §2: "collectors construct TLV messages, publish
// them either by writing frames into a shared ring ... or by connecting to
// a relay domain socket"). It attaches to the ring at path as readerID and
// feeds every record through the same processFrame pipeline a socket
// publisher's frames go through, so ring-sourced and socket-sourced
// traffic are validated, sequenced, and routed identically.
func (s *Server) RunRingIngest(path string, readerID int) error {
	r, err := ringbuf.Open(path, readerID)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		select {
		case <-s.closed:
			return nil
		default:
		}

		records, err := r.Read()
		if err != nil {
			if lagged, ok := err.(ringbuf.Lagged); ok {
				s.logger.Warn("ring ingest lagged", "path", path, "dropped", lagged.Dropped)
			} else {
				return err
			}
		}

		for _, rec := range records {
			s.processFrame(append([]byte(nil), rec...))
		}

		if len(records) == 0 {
			if err := r.Wait(time.Second); err != nil {
				return err
			}
		}
	}
}
