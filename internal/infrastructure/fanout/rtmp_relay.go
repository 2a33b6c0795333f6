package fanout

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"go.uber.org/zap"
)

// Frame tags on the relay wire.
const (
	relayFrameVideo byte = 1
	relayFrameAudio byte = 2
)

// relayHandshake opens a relay session. The relay terminates our framing and
// republishes to the platform's RTMP ingest.
type relayHandshake struct {
	RTMPURL   string `json:"rtmpUrl"`
	StreamKey string `json:"streamKey"`
	Platform  string `json:"platform"`
}

type relayHandshakeAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RTMPRelayTransport proxies the composite stream to platforms without WHIP
// support through an intermediary relay. The relay speaks a simple framed
// protocol: one JSON handshake line carrying the RTMP target, then
// length-prefixed media frames.
type RTMPRelayTransport struct {
	relayAddr   string
	dialTimeout time.Duration
	logger      *zap.SugaredLogger
}

func NewRTMPRelayTransport(relayAddr string, logger *zap.SugaredLogger) *RTMPRelayTransport {
	return &RTMPRelayTransport{
		relayAddr:   relayAddr,
		dialTimeout: 10 * time.Second,
		logger:      logger,
	}
}

func (t *RTMPRelayTransport) Method() domain.ProtocolMethod { return domain.MethodRTMPRelay }

func (t *RTMPRelayTransport) Start(ctx context.Context, dest domain.Destination, output ports.CompositeOutput) (ports.TransportHandle, error) {
	dialer := &net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.relayAddr)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", t.relayAddr, err)
	}

	if err := t.handshake(conn, dest); err != nil {
		conn.Close()
		return nil, err
	}

	sink := &relaySink{
		name:   fmt.Sprintf("relay-%s", dest.ID),
		writer: bufio.NewWriterSize(conn, 1<<16),
		conn:   conn,
	}
	output.Attach(sink)

	t.logger.Infow("relay session established",
		"destination_id", dest.ID,
		"platform", dest.Platform,
		"relay", t.relayAddr,
	)

	return &relayHandle{output: output, sink: sink}, nil
}

func (t *RTMPRelayTransport) handshake(conn net.Conn, dest domain.Destination) error {
	enc := json.NewEncoder(conn)
	err := enc.Encode(relayHandshake{
		RTMPURL:   dest.Credentials.RTMPURL,
		StreamKey: dest.Credentials.StreamKey,
		Platform:  string(dest.Platform),
	})
	if err != nil {
		return fmt.Errorf("send relay handshake: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(t.dialTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var ack relayHandshakeAck
	if err := json.NewDecoder(conn).Decode(&ack); err != nil {
		return fmt.Errorf("read relay handshake ack: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("relay rejected session: %s", ack.Error)
	}
	return nil
}

// relaySink frames composite media onto the relay connection. Each frame is
// [1 byte tag][8 byte seq][4 byte length][payload].
type relaySink struct {
	name string

	mu     sync.Mutex
	writer *bufio.Writer
	conn   net.Conn
	closed bool
}

func (s *relaySink) Name() string { return s.name }

func (s *relaySink) WriteVideo(frame *domain.VideoFrame) error {
	return s.writeFrame(relayFrameVideo, frame.Seq, frame.Data)
}

func (s *relaySink) WriteAudio(frame *domain.AudioFrame) error {
	payload := make([]byte, len(frame.Samples)*8)
	for i, sample := range frame.Samples {
		binary.BigEndian.PutUint64(payload[i*8:], math.Float64bits(sample))
	}
	return s.writeFrame(relayFrameAudio, frame.Seq, payload)
}

func (s *relaySink) writeFrame(tag byte, seq uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var header [13]byte
	header[0] = tag
	binary.BigEndian.PutUint64(header[1:], seq)
	binary.BigEndian.PutUint32(header[9:], uint32(len(payload)))

	if _, err := s.writer.Write(header[:]); err != nil {
		return fmt.Errorf("write relay frame header: %w", err)
	}
	if _, err := s.writer.Write(payload); err != nil {
		return fmt.Errorf("write relay frame payload: %w", err)
	}
	// Media is latency-sensitive; flush per frame.
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush relay frame: %w", err)
	}
	return nil
}

func (s *relaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.writer.Flush()
	return s.conn.Close()
}

type relayHandle struct {
	output ports.CompositeOutput
	sink   *relaySink
}

func (h *relayHandle) Stop(ctx context.Context) error {
	h.output.Detach(h.sink.Name())
	return h.sink.Close()
}
