// Package relay implements the domain-partitioned publish-subscribe fabric
// (spec §4.C): one Server per RelayDomain, bound to its own Unix domain
// socket, forwarding validated frames from publishers to subscribers by
// topic.
//
// Connections speak 4-byte little-endian length-prefixed frames; each
// frame's payload must be a valid protocol.Header + TLV message. A
// connection's role (publisher vs subscriber) is inferred from its first
// message — a data frame makes it a publisher, a subscription control
// message (WriteSubscribeTopics) makes it a subscriber — matching the
// teacher's pattern of keeping
// connection state machines small and inferred rather than negotiated.
package relay

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/flashmesh/arbcore/pkg/protocol"
)

// BackpressurePolicy controls what a subscriber's queue does when full.
type BackpressurePolicy int

const (
	// DropOldest evicts the head of the queue to make room for the new
	// frame. Default for the market-data domain.
	DropOldest BackpressurePolicy = iota
	// Disconnect closes the subscriber connection instead of dropping a
	// frame silently. Default for signal and execution domains.
	Disconnect
)

// TopicStrategy extracts a routing topic from an inbound frame.
type TopicStrategy int

const (
	// TopicConstant routes every frame on this relay to one shared topic.
	TopicConstant TopicStrategy = iota
	// TopicBySource routes by the frame header's Source field.
	TopicBySource
	// TopicByField routes by a field extracted from the first recognized
	// TLV in the payload (e.g. venue id, instrument id).
	TopicByField
)

// Topic is an opaque routing key. "" is reserved for the wildcard "all"
// subscription.
type Topic string

const WildcardTopic Topic = ""

// FieldExtractor pulls a topic value out of a parsed frame for
// TopicByField routing. Returns ok=false if no recognized TLV is present,
// in which case the frame falls back to the wildcard topic.
type FieldExtractor func(protocol.Frame) (Topic, bool)

// Metrics holds the per-relay counters named in spec §4.C, updated with
// relaxed atomics since exact ordering across counters is never required,
// only eventual externally-scraped consistency.
type Metrics struct {
	MessagesReceived       atomic.Uint64
	MessagesRouted         atomic.Uint64
	MessagesDropped        atomic.Uint64
	ValidationFailures     atomic.Uint64
	DomainMismatches       atomic.Uint64
	SubscriberSlowDisconnects atomic.Uint64
	StaleUpdates           atomic.Uint64
}

// Snapshot is a read-only point-in-time copy of Metrics for external
// scrapers (spec: "Metrics are read-only views for external scrapers").
type Snapshot struct {
	MessagesReceived          uint64 `json:"messages_received"`
	MessagesRouted            uint64 `json:"messages_routed"`
	MessagesDropped           uint64 `json:"messages_dropped"`
	ValidationFailures        uint64 `json:"validation_failures"`
	DomainMismatches          uint64 `json:"domain_mismatches"`
	SubscriberSlowDisconnects uint64 `json:"subscriber_slow_disconnects"`
	TopicSubscriberCounts     map[string]int `json:"topic_subscriber_counts"`
}

func (m *Metrics) snapshot(topicCounts map[string]int) Snapshot {
	return Snapshot{
		MessagesReceived:          m.MessagesReceived.Load(),
		MessagesRouted:            m.MessagesRouted.Load(),
		MessagesDropped:           m.MessagesDropped.Load(),
		ValidationFailures:        m.ValidationFailures.Load(),
		DomainMismatches:          m.DomainMismatches.Load(),
		SubscriberSlowDisconnects: m.SubscriberSlowDisconnects.Load(),
		TopicSubscriberCounts:     topicCounts,
	}
}

// TransportNotReady is returned by operations attempted before Bind.
type TransportNotReady struct{}

func (TransportNotReady) Error() string { return "relay: transport not ready, call Bind first" }

// FrameOversize is returned when an inbound length prefix exceeds MaxFrameSize.
type FrameOversize struct {
	Max, Got uint32
}

func (e FrameOversize) Error() string {
	return fmt.Sprintf("relay: frame size %d exceeds max %d", e.Got, e.Max)
}

// SubscriberOverflow is observable via the SubscriberSlowDisconnects /
// MessagesDropped counters when drop-oldest fires; it is not returned from
// any exported call (spec: "observable via counters"), documented here as
// the named condition those counters report.
type SubscriberOverflow struct{}

func (SubscriberOverflow) Error() string { return "relay: subscriber queue overflow" }

const maxFrameSizeDefault = 256 * 1024
const outboundQueueSizeDefault = 256

// Config configures one domain's Server.
type Config struct {
	Domain             protocol.RelayDomain
	SocketPath         string
	StrictValidation   bool // false = lenient: forward with warning on TLV walk failure; header/checksum failures are always dropped
	Backpressure       BackpressurePolicy
	Topic              TopicStrategy
	FieldExtractor     FieldExtractor // required when Topic == TopicByField
	MaxFrameSize       uint32         // 0 = maxFrameSizeDefault
	OutboundQueueSize  int            // 0 = outboundQueueSizeDefault
	AuditLog           *slog.Logger   // non-nil enables per-frame audit logging (execution relay)
}

// Server is one domain's relay instance.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	metrics Metrics

	listener net.Listener

	seqMu  sync.Mutex
	seqBySource map[protocol.SourceType]uint64

	subsMu sync.RWMutex
	subs   map[*subscriber]struct{}
	byTopic map[Topic]map[*subscriber]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

type subscriber struct {
	conn   net.Conn
	queue  chan []byte
	topics map[Topic]struct{}
	writeErr atomic.Bool
}

// NewServer constructs a Server for cfg.Domain. It does not bind the
// socket; call Run to bind and serve.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = maxFrameSizeDefault
	}
	if cfg.OutboundQueueSize == 0 {
		cfg.OutboundQueueSize = outboundQueueSizeDefault
	}
	return &Server{
		cfg:         cfg,
		logger:      logger.With("component", "relay", "domain", cfg.Domain.String()),
		seqBySource: make(map[protocol.SourceType]uint64),
		subs:        make(map[*subscriber]struct{}),
		byTopic:     make(map[Topic]map[*subscriber]struct{}),
		closed:      make(chan struct{}),
	}
}

// Metrics returns a read-only snapshot of this server's counters.
func (s *Server) Metrics() Snapshot {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	counts := make(map[string]int, len(s.byTopic))
	for t, set := range s.byTopic {
		counts[string(t)] = len(set)
	}
	return s.metrics.snapshot(counts)
}

// Run binds the domain socket (removing a stale file first, per §6.2's
// idempotent bind requirement) and serves connections until Close is
// called.
func (s *Server) Run() error {
	_ = os.Remove(s.cfg.SocketPath)

	l, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("relay: bind %s: %w", s.cfg.SocketPath, err)
	}
	s.listener = l
	s.logger.Info("relay bound", "socket", s.cfg.SocketPath)

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("relay: accept: %w", err)
			}
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting connections and disconnects all subscribers.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.subsMu.Lock()
		for sub := range s.subs {
			sub.conn.Close()
		}
		s.subsMu.Unlock()
	})
	return err
}
