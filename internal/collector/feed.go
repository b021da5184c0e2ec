// Package collector adapts external venue market-data feeds into the wire
// protocol's QuoteTLV frames, publishing them onto the market-data
// relay. Each venue gets a thin collector on top of feed, a WebSocket
// reconnect/ping loop adapted from the teacher's exchange.WSFeed
// (internal/exchange/ws.go): same exponential backoff (1s -> 30s max),
// same read-deadline-triggers-reconnect pattern, generalized from the
// teacher's four typed Polymarket event channels down to a single
// onMessage callback since every venue here produces one kind of event
// (a top-of-book tick) worth forwarding.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// feed manages one WebSocket connection with auto-reconnect and a single
// dispatch callback. onConnect, if non-nil, sends the venue's subscribe
// message right after dialing (and again on every reconnect).
type feed struct {
	venue     string
	url       string
	onConnect func(*websocket.Conn) error
	onMessage func([]byte)
	logger    *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

func newFeed(venue, url string, onConnect func(*websocket.Conn) error, onMessage func([]byte), logger *slog.Logger) *feed {
	return &feed{
		venue:     venue,
		url:       url,
		onConnect: onConnect,
		onMessage: onMessage,
		logger:    logger.With("component", "collector", "venue", venue),
	}
}

// Run connects and maintains the WebSocket connection, reconnecting with
// exponential backoff until ctx is cancelled.
func (f *feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("collector feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close closes the underlying connection, if any.
func (f *feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if f.onConnect != nil {
		if err := f.onConnect(conn); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	f.logger.Info("collector feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.onMessage(msg)
	}
}

func (f *feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.connMu.Unlock()
			if err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}
