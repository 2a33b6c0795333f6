package webrtc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// IngestConfig carries transport settings for participant ingestion.
type IngestConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// PLIInterval is how often a keyframe is requested from each publisher.
	PLIInterval time.Duration
	SampleRate  int
}

// IngestService terminates publisher peer connections and turns each remote
// participant into registry sources. One session per participant; closing a
// session cancels any in-flight negotiation for that id and removes the
// participant everywhere.
type IngestService struct {
	cfg      IngestConfig
	registry ports.SourceRegistry
	mixer    ports.AudioMixer
	quality  ports.QualityMonitor

	mu       sync.RWMutex
	sessions map[domain.ParticipantID]*ingestSession

	logger *zap.SugaredLogger
}

// ingestSession is one participant's publisher connection.
type ingestSession struct {
	participantID domain.ParticipantID
	pc            *webrtc.PeerConnection
	video         *RemoteVideoSource
	audio         *RemoteAudioSource
	stats         *transportStats
	cancel        context.CancelFunc
	registered    bool
	xrOnce        sync.Once
}

func NewIngestService(
	cfg IngestConfig,
	registry ports.SourceRegistry,
	mixer ports.AudioMixer,
	quality ports.QualityMonitor,
	logger *zap.SugaredLogger,
) *IngestService {
	if cfg.PLIInterval <= 0 {
		cfg.PLIInterval = 3 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	s := &IngestService{
		cfg:      cfg,
		registry: registry,
		mixer:    mixer,
		quality:  quality,
		sessions: make(map[domain.ParticipantID]*ingestSession),
		logger:   logger,
	}
	// A registry removal from any path tears the peer connection down too.
	registry.OnRemove(func(id domain.ParticipantID) {
		s.closeSession(id, false)
	})
	return s
}

// HandleOffer answers a publisher offer. The participant appears in the
// registry once the connection reaches the connected state, not before.
func (s *IngestService) HandleOffer(
	ctx context.Context,
	participantID domain.ParticipantID,
	displayName string,
	role domain.Role,
	offer webrtc.SessionDescription,
) (webrtc.SessionDescription, error) {
	s.mu.Lock()
	if _, exists := s.sessions[participantID]; exists {
		s.mu.Unlock()
		return webrtc.SessionDescription{}, fmt.Errorf("participant %s already has an ingest session", participantID)
	}
	s.mu.Unlock()

	pc, err := s.createPeerConnection()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create peer connection: %w", err)
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return webrtc.SessionDescription{}, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	session := &ingestSession{
		participantID: participantID,
		pc:            pc,
		video:         NewRemoteVideoSource(),
		audio:         NewRemoteAudioSource(s.cfg.SampleRate),
		stats:         newTransportStats(),
		cancel:        cancel,
	}

	s.mu.Lock()
	s.sessions[participantID] = session
	s.mu.Unlock()

	pc.OnTrack(s.handleTrack(sessCtx, session))
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.handleConnectionState(session, displayName, role, state)
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		s.closeSession(participantID, true)
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.closeSession(participantID, true)
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.closeSession(participantID, true)
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}

	s.logger.Infow("ingest session negotiating",
		"participant_id", participantID,
		"display_name", displayName,
		"role", role,
	)
	return answer, nil
}

// AddICECandidate feeds a trickled candidate into the session's connection.
func (s *IngestService) AddICECandidate(participantID domain.ParticipantID, candidate webrtc.ICECandidateInit) error {
	s.mu.RLock()
	session, ok := s.sessions[participantID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrParticipantNotFound
	}
	return session.pc.AddICECandidate(candidate)
}

// StopSession cancels the session, including any in-flight negotiation.
func (s *IngestService) StopSession(participantID domain.ParticipantID) {
	s.closeSession(participantID, true)
}

// Stats exposes the session's transport sample source.
func (s *IngestService) Stats(participantID domain.ParticipantID) (ports.StatsSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[participantID]; ok {
		return session.stats, true
	}
	return nil, false
}

func (s *IngestService) createPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   s.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if s.cfg.PortRange.Min > 0 && s.cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(s.cfg.PortRange.Min, s.cfg.PortRange.Max)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

func (s *IngestService) handleTrack(ctx context.Context, session *ingestSession) func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	return func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.logger.Infow("ingest track started",
			"participant_id", session.participantID,
			"track_id", track.ID(),
			"kind", track.Kind(),
			"codec", track.Codec().MimeType,
		)

		go s.readRTCP(session, receiver)
		session.xrOnce.Do(func() {
			go s.reportReceiverTime(ctx, session)
		})

		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go s.requestKeyframes(ctx, session, track.SSRC())
		}
		go s.readTrack(ctx, session, track)
	}
}

// readTrack drains RTP from one remote track, keeping per-packet transport
// statistics and rebuilding the carried media. Video frames close on the
// marker bit; audio decodes packet by packet. Rebuilt media lands in the
// session's sources, where the compositor and mixer pick it up.
func (s *IngestService) readTrack(ctx context.Context, session *ingestSession, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	packet := &rtp.Packet{}
	isVideo := track.Kind() == webrtc.RTPCodecTypeVideo
	var assembler frameAssembler

	for {
		if ctx.Err() != nil {
			return
		}
		n, _, err := track.Read(buf)
		if err != nil {
			s.logger.Warnw("ingest track read ended",
				"participant_id", session.participantID,
				"track_id", track.ID(),
				"error", err,
			)
			return
		}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			s.logger.Warnw("bad RTP packet",
				"participant_id", session.participantID,
				"track_id", track.ID(),
				"error", err,
			)
			continue
		}
		session.stats.observePacket(packet, n, track.Codec().ClockRate)

		if !isVideo {
			session.audio.Deliver(decodeAudioPayload(packet.Payload))
			continue
		}
		payload, seq, complete := assembler.push(packet)
		if !complete {
			continue
		}
		frame, err := decodeVideoPayload(payload, seq)
		if err != nil {
			s.logger.Debugw("dropping undecodable video frame",
				"participant_id", session.participantID,
				"error", err,
			)
			continue
		}
		session.video.Deliver(frame)
	}
}

// requestKeyframes sends a PLI on a fixed interval so a joining composite
// viewer never waits long for a decodable frame.
func (s *IngestService) requestKeyframes(ctx context.Context, session *ingestSession, ssrc webrtc.SSRC) {
	ticker := time.NewTicker(s.cfg.PLIInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := session.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)},
			})
			if err != nil {
				s.logger.Debugw("PLI write failed",
					"participant_id", session.participantID,
					"error", err,
				)
				return
			}
		}
	}
}

// reportReceiverTime publishes RFC 3611 receiver reference time blocks on a
// fixed cadence so the publisher can answer with a DLRR block; readRTCP
// closes the round-trip measurement from that answer.
func (s *IngestService) reportReceiverTime(ctx context.Context, session *ingestSession) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := &rtcp.ExtendedReport{
				Reports: []rtcp.ReportBlock{
					&rtcp.ReceiverReferenceTimeReportBlock{
						XRHeader:     rtcp.XRHeader{BlockType: rtcp.ReceiverReferenceTimeReportBlockType},
						NTPTimestamp: ntpTime(time.Now()),
					},
				},
			}
			if err := session.pc.WriteRTCP([]rtcp.Packet{report}); err != nil {
				return
			}
		}
	}
}

func (s *IngestService) readRTCP(session *ingestSession, receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.SenderReport:
				session.stats.observeSenderReport(p)
			case *rtcp.ExtendedReport:
				for _, block := range p.Reports {
					dlrr, ok := block.(*rtcp.DLRRReportBlock)
					if !ok {
						continue
					}
					now := uint32(ntpTime(time.Now()) >> 16)
					for _, r := range dlrr.Reports {
						if rtt, ok := dlrrRoundTrip(r, now); ok {
							session.stats.setRTT(rtt)
						}
					}
				}
			}
		}
	}
}

func (s *IngestService) handleConnectionState(session *ingestSession, displayName string, role domain.Role, state webrtc.PeerConnectionState) {
	s.logger.Infow("ingest connection state changed",
		"participant_id", session.participantID,
		"state", state,
	)

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.registerParticipant(session, displayName, role)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		s.closeSession(session.participantID, true)
	}
}

func (s *IngestService) registerParticipant(session *ingestSession, displayName string, role domain.Role) {
	s.mu.Lock()
	if session.registered {
		s.mu.Unlock()
		return
	}
	session.registered = true
	s.mu.Unlock()

	err := s.registry.Add(&domain.ParticipantStream{
		ID:           session.participantID,
		DisplayName:  displayName,
		Role:         role,
		VideoEnabled: true,
		AudioEnabled: true,
		VideoTrack:   session.video,
		AudioTrack:   session.audio,
		Quality:      domain.QualityUnknown,
	})
	if err != nil {
		s.logger.Errorw("participant registration failed",
			"participant_id", session.participantID,
			"error", err,
		)
		return
	}
	s.mixer.AddSource(session.participantID, session.audio)
	s.quality.Track(session.participantID, session.stats)
}

// closeSession tears one session down. removeFromRegistry is false when the
// teardown was triggered by a registry removal, which already did that part.
func (s *IngestService) closeSession(participantID domain.ParticipantID, removeFromRegistry bool) {
	s.mu.Lock()
	session, ok := s.sessions[participantID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, participantID)
	registered := session.registered
	s.mu.Unlock()

	session.cancel()
	if session.pc != nil {
		if err := session.pc.Close(); err != nil {
			s.logger.Warnw("peer connection close error",
				"participant_id", participantID,
				"error", err,
			)
		}
	}

	if registered {
		s.mixer.RemoveSource(participantID)
		s.quality.Untrack(participantID)
		if removeFromRegistry {
			if err := s.registry.Remove(participantID); err != nil {
				s.logger.Debugw("registry removal skipped",
					"participant_id", participantID,
					"error", err,
				)
			}
		}
	}
	s.logger.Infow("ingest session closed", "participant_id", participantID)
}

// transportStats keeps RFC 3550 style receive statistics for one peer and
// satisfies the quality monitor's sample source.
type transportStats struct {
	mu             sync.Mutex
	packets        uint64
	bytes          uint64
	lost           uint64
	highestSeq     uint16
	seqInitialized bool
	jitter         float64
	lastTransit    float64
	frames         uint64
	lastSampleAt   time.Time
	lastFrames     uint64
	lastBytes      uint64
	rttMs          float64
	lastSRAt       time.Time
}

func newTransportStats() *transportStats {
	return &transportStats{lastSampleAt: time.Now()}
}

func (t *transportStats) observePacket(p *rtp.Packet, size int, clockRate uint32) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.packets++
	t.bytes += uint64(size)

	if !t.seqInitialized {
		t.highestSeq = p.SequenceNumber
		t.seqInitialized = true
	} else {
		gap := p.SequenceNumber - t.highestSeq
		if gap > 1 && gap < 1<<15 {
			t.lost += uint64(gap - 1)
		}
		if gap >= 1 && gap < 1<<15 {
			t.highestSeq = p.SequenceNumber
		}
	}

	// Interarrival jitter in RTP clock units, RFC 3550 §6.4.1.
	if clockRate > 0 {
		arrival := float64(now.UnixNano()) / 1e9 * float64(clockRate)
		transit := arrival - float64(p.Timestamp)
		if t.lastTransit != 0 {
			d := math.Abs(transit - t.lastTransit)
			t.jitter += (d - t.jitter) / 16
		}
		t.lastTransit = transit

		// The marker bit closes one video frame.
		if p.Marker {
			t.frames++
		}
	}
}

func (t *transportStats) observeSenderReport(sr *rtcp.SenderReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSRAt = time.Now()
}

const ntpEpochOffset = 2208988800 // seconds from 1900 to the Unix epoch

// ntpTime renders t in the 64-bit NTP format RTCP reports use.
func ntpTime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(float64(t.Nanosecond()) / 1e9 * (1 << 32))
	return secs<<32 | frac
}

// dlrrRoundTrip derives the round trip from one DLRR entry: the publisher
// echoes our reference time (LastRR) plus its holding delay (DLRR), both in
// 1/65536 second units against the middle 32 NTP bits.
func dlrrRoundTrip(report rtcp.DLRRReport, now uint32) (time.Duration, bool) {
	if report.LastRR == 0 {
		return 0, false
	}
	delay := now - report.LastRR - report.DLRR
	if delay >= 1<<31 {
		// Wrapped negative: the clocks disagree, skip the sample.
		return 0, false
	}
	return time.Duration(uint64(delay) * uint64(time.Second) >> 16), true
}

// setRTT records a round-trip estimate from the transport layer.
func (t *transportStats) setRTT(rtt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rttMs = float64(rtt.Milliseconds())
}

func (t *transportStats) Stats() domain.ConnectionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(t.lastSampleAt).Seconds()

	var bitrateKbps int
	var frameRate float64
	if elapsed > 0 {
		bitrateKbps = int(float64(t.bytes-t.lastBytes) * 8 / 1000 / elapsed)
		frameRate = float64(t.frames-t.lastFrames) / elapsed
	}

	var lossPct float64
	total := t.packets + t.lost
	if total > 0 {
		lossPct = float64(t.lost) / float64(total) * 100
	}

	t.lastSampleAt = now
	t.lastFrames = t.frames
	t.lastBytes = t.bytes

	return domain.ConnectionStats{
		PacketLossPct: lossPct,
		JitterMs:      t.jitter / 90, // 90 kHz video clock to ms
		RTTMs:         t.rttMs,
		BitrateKbps:   bitrateKbps,
		FrameRate:     frameRate,
	}
}
