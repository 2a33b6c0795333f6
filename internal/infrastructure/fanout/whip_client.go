package fanout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

// WHIPTransport pushes the composite stream to a platform ingest endpoint
// through an HTTP-negotiated session: one POST of the SDP offer, bearer-token
// authenticated, answered in the response body, with the session resource URL
// in the Location header. DELETE on that resource ends the session.
type WHIPTransport struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewWHIPTransport(logger *zap.SugaredLogger) *WHIPTransport {
	return &WHIPTransport{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (t *WHIPTransport) Method() domain.ProtocolMethod { return domain.MethodWHIP }

func (t *WHIPTransport) Start(ctx context.Context, dest domain.Destination, output ports.CompositeOutput) (ports.TransportHandle, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video", "stagecast-video",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create video track: %w", err)
	}
	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "stagecast-audio",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(videoTrack); err != nil {
		pc.Close()
		return nil, err
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	answerSDP, resourceURL, err := t.postOffer(ctx, dest.Credentials.WHIPURL, dest.Credentials.BearerToken, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return nil, err
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		t.deleteResource(context.Background(), resourceURL, dest.Credentials.BearerToken)
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	sink := &whipSink{
		name:       fmt.Sprintf("whip-%s", dest.ID),
		videoTrack: videoTrack,
		audioTrack: audioTrack,
	}
	output.Attach(sink)

	t.logger.Infow("whip session established",
		"destination_id", dest.ID,
		"platform", dest.Platform,
		"resource", resourceURL,
	)

	return &whipHandle{
		transport:   t,
		output:      output,
		sink:        sink,
		pc:          pc,
		resourceURL: resourceURL,
		token:       dest.Credentials.BearerToken,
	}, nil
}

// postOffer performs the WHIP POST exchange and returns the SDP answer plus
// the absolute session resource URL.
func (t *WHIPTransport) postOffer(ctx context.Context, endpoint, token, offerSDP string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", "", fmt.Errorf("build whip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("whip post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("whip endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read whip answer: %w", err)
	}

	resource := resp.Header.Get("Location")
	if resource != "" {
		base, err := url.Parse(endpoint)
		if err == nil {
			if ref, err := url.Parse(resource); err == nil {
				resource = base.ResolveReference(ref).String()
			}
		}
	}
	return string(answer), resource, nil
}

func (t *WHIPTransport) deleteResource(ctx context.Context, resourceURL, token string) {
	if resourceURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resourceURL, nil)
	if err != nil {
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Warnw("whip session delete failed", "resource", resourceURL, "error", err)
		return
	}
	resp.Body.Close()
}

// whipSink feeds composite frames into the session's outbound tracks.
type whipSink struct {
	name       string
	videoTrack *webrtc.TrackLocalStaticSample
	audioTrack *webrtc.TrackLocalStaticSample

	mu     sync.Mutex
	closed bool
}

func (s *whipSink) Name() string { return s.name }

func (s *whipSink) WriteVideo(frame *domain.VideoFrame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.videoTrack.WriteSample(media.Sample{
		Data:     frame.Data,
		Duration: time.Second / 30,
	})
}

func (s *whipSink) WriteAudio(frame *domain.AudioFrame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	payload := make([]byte, len(frame.Samples)*2)
	for i, sample := range frame.Samples {
		v := int16(sample * 32767)
		payload[i*2] = byte(v)
		payload[i*2+1] = byte(v >> 8)
	}
	duration := time.Duration(len(frame.Samples)) * time.Second / time.Duration(frame.SampleRate)
	return s.audioTrack.WriteSample(media.Sample{Data: payload, Duration: duration})
}

func (s *whipSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// whipHandle tears one WHIP session down: detach the sink, DELETE the
// session resource, close the connection.
type whipHandle struct {
	transport   *WHIPTransport
	output      ports.CompositeOutput
	sink        *whipSink
	pc          *webrtc.PeerConnection
	resourceURL string
	token       string
}

func (h *whipHandle) Stop(ctx context.Context) error {
	h.output.Detach(h.sink.Name())
	h.sink.Close()
	h.transport.deleteResource(ctx, h.resourceURL, h.token)
	if err := h.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}
