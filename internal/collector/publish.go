package collector

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/flashmesh/arbcore/internal/relay"
)

// Publisher maintains a long-lived connection to a relay domain's Unix
// socket and republishes frames onto it. A failed write drops the
// connection and the next Publish dials again.
type Publisher struct {
	socketPath string
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewPublisher returns a Publisher targeting the relay listening at
// socketPath. Dial is lazy: the first Publish call establishes the
// connection.
func NewPublisher(socketPath string, logger *slog.Logger) *Publisher {
	return &Publisher{
		socketPath: socketPath,
		logger:     logger.With("component", "collector_publisher"),
	}
}

// Run dials the relay, retrying a failed dial with exponential backoff
// (capped at maxReconnectWait), then holds the connection until ctx is
// cancelled and closes it. It does not dial again after a later failure;
// Publish re-dials on its next call instead. Publish can be called
// concurrently with Run.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := p.dial(); err != nil {
			p.logger.Warn("relay connection failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxReconnectWait {
				backoff = maxReconnectWait
			}
			continue
		}
		backoff = time.Second

		<-ctx.Done()
		p.mu.Lock()
		if p.conn != nil {
			p.conn.Close()
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

func (p *Publisher) dial() error {
	conn, err := net.Dial("unix", p.socketPath)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	return nil
}

// Publish writes frame to the relay connection, dialing it first if no
// connection exists yet. A write failure drops the stale connection so the
// next call re-dials.
func (p *Publisher) Publish(frame []byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		if err := p.dial(); err != nil {
			return err
		}
		p.mu.Lock()
		conn = p.conn
		p.mu.Unlock()
	}

	if err := relay.WriteFrame(conn, frame); err != nil {
		p.mu.Lock()
		if p.conn == conn {
			p.conn = nil
		}
		p.mu.Unlock()
		conn.Close()
		return err
	}
	return nil
}
