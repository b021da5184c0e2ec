package relay

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/flashmesh/arbcore/pkg/protocol"
)

// subscribeSentinel is a length-prefix value that can never occur for a
// real frame (frames are bounded by MaxFrameSize, far below this) and so
// unambiguously marks a subscription-topic control message instead of a
// protocol frame. A connection that sends this as its first 4 bytes is
// identified as a subscriber (spec: "Explicit identification ... is also
// accepted") without needing to read a whole frame first.
const subscribeSentinel uint32 = 0xFFFFFFFF

// readFrame reads one length-prefixed frame from r, enforcing maxSize.
// Returns io.EOF when the connection closes cleanly between frames.
func readFrame(r *bufio.Reader, maxSize uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == subscribeSentinel {
		return nil, errSubscribeControl
	}
	if n > maxSize {
		return nil, FrameOversize{Max: maxSize, Got: n}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

var errSubscribeControl = errors.New("relay: subscription control message")

// readSubscribeTopics reads the topic list following a subscribeSentinel
// marker: a 4-byte count, then for each topic a 2-byte length and the
// UTF-8 bytes.
func readSubscribeTopics(r *bufio.Reader) ([]Topic, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	topics := make([]Topic, 0, count)
	for i := uint32(0); i < count; i++ {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		n := binary.LittleEndian.Uint16(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		topics = append(topics, Topic(buf))
	}
	return topics, nil
}

// writeFrame writes payload as a length-prefixed frame to w.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads a single length-prefixed protocol frame from br. Client-side
// helper for subscriber processes reading forwarded frames off a relay
// connection.
func ReadFrame(br *bufio.Reader, maxFrameSize uint32) ([]byte, error) {
	return readFrame(br, maxFrameSize)
}

// WriteFrame writes a single length-prefixed protocol frame to w. Client-side
// helper for processes (collectors, the strategy engine) publishing into a
// relay domain's Unix socket.
func WriteFrame(w io.Writer, frame []byte) error {
	return writeFrame(w, frame)
}

// WriteSubscribeTopics writes a subscription control message for topics
// onto conn. Client-side helper for processes attaching as subscribers.
func WriteSubscribeTopics(w io.Writer, topics []Topic) error {
	var sentinelBuf [4]byte
	binary.LittleEndian.PutUint32(sentinelBuf[:], subscribeSentinel)
	if _, err := w.Write(sentinelBuf[:]); err != nil {
		return err
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(topics)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, t := range topics {
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(t)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write([]byte(t)); err != nil {
			return err
		}
	}
	return nil
}

// handleConn is the per-connection goroutine: it reads the first message
// to infer role, then either drains further frames as a publisher or
// pumps its outbound queue as a subscriber.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	first, err := readFrame(br, s.cfg.MaxFrameSize)
	if err != nil {
		if errors.Is(err, errSubscribeControl) {
			topics, terr := readSubscribeTopics(br)
			if terr != nil {
				s.logger.Warn("malformed subscribe control message", "error", terr)
				return
			}
			s.runSubscriber(conn, br, topics)
			return
		}
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("connection closed before first frame", "error", err)
		}
		return
	}

	// First activity was a data frame: this connection is a publisher.
	s.processFrame(first)
	s.runPublisher(conn, br)
}

func (s *Server) runPublisher(conn net.Conn, br *bufio.Reader) {
	for {
		frame, err := readFrame(br, s.cfg.MaxFrameSize)
		if err != nil {
			if errors.Is(err, errSubscribeControl) {
				s.logger.Warn("publisher connection sent subscribe control, disconnecting")
				return
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("publisher read error, disconnecting", "error", err)
			}
			return
		}
		s.processFrame(frame)
	}
}

func (s *Server) runSubscriber(conn net.Conn, br *bufio.Reader, topics []Topic) {
	sub := &subscriber{
		conn:   conn,
		queue:  make(chan []byte, s.cfg.OutboundQueueSize),
		topics: make(map[Topic]struct{}, len(topics)),
	}
	if len(topics) == 0 {
		sub.topics[WildcardTopic] = struct{}{}
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	s.registerSubscriber(sub)
	defer s.unregisterSubscriber(sub)

	// Drain any further reads to detect disconnect, but a subscriber sends
	// nothing more of substance after its initial topic registration.
	go func() {
		var discard [64]byte
		for {
			if _, err := br.Read(discard[:]); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for payload := range sub.queue {
		if err := writeFrame(conn, payload); err != nil {
			return
		}
	}
}

// processFrame runs the per-frame pipeline from spec §4.C steps 1-5.
func (s *Server) processFrame(raw []byte) {
	s.metrics.MessagesReceived.Add(1)

	h, err := protocol.ParseHeader(raw)
	if err != nil {
		s.metrics.ValidationFailures.Add(1)
		s.metrics.MessagesDropped.Add(1)
		return
	}
	if h.RelayDomain != s.cfg.Domain {
		s.metrics.DomainMismatches.Add(1)
		s.metrics.MessagesDropped.Add(1)
		return
	}

	// ParseHeader already validated the checksum; "lenient" mode here
	// means TLV structural walk failures forward-with-warning instead of
	// dropping, per the domain policy table.
	frame, ferr := protocol.Parse(raw)
	if ferr != nil {
		s.metrics.ValidationFailures.Add(1)
		s.metrics.MessagesDropped.Add(1)
		return
	}
	if tlvErr := frame.TLVs(func(protocol.TLV) bool { return true }); tlvErr != nil {
		s.metrics.ValidationFailures.Add(1)
		if s.cfg.StrictValidation {
			s.metrics.MessagesDropped.Add(1)
			return
		}
		s.logger.Warn("forwarding frame with TLV validation warning", "error", tlvErr)
	}

	seq := s.nextSequence(h.Source)
	out := append([]byte(nil), raw...)
	binary.LittleEndian.PutUint64(out[headerSequenceOffset:headerSequenceOffset+8], seq)
	protocol.WriteChecksum(out)

	topic := s.extractTopic(h, frame)

	if s.cfg.AuditLog != nil {
		s.cfg.AuditLog.Info("relay frame",
			"domain", s.cfg.Domain.String(),
			"source", h.Source.String(),
			"sequence", seq,
			"topic", string(topic),
		)
	}

	s.route(topic, out)
}

const headerSequenceOffset = 8

func (s *Server) nextSequence(source protocol.SourceType) uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.seqBySource[source]
	s.seqBySource[source] = seq + 1
	return seq
}

func (s *Server) extractTopic(h protocol.Header, frame protocol.Frame) Topic {
	switch s.cfg.Topic {
	case TopicBySource:
		return Topic(h.Source.String())
	case TopicByField:
		if s.cfg.FieldExtractor != nil {
			if t, ok := s.cfg.FieldExtractor(frame); ok {
				return t
			}
		}
		return WildcardTopic
	default:
		return WildcardTopic
	}
}
