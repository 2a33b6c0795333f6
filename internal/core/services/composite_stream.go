package services

import (
	"sync"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"go.uber.org/zap"
)

// CompositeStream is the single combined video+audio output. The compositor
// and mixer publish into it; fanout transports, the recorder and the preview
// feed attach as named sinks. A failing sink is logged and skipped, never
// allowed to stall the publishers.
type CompositeStream struct {
	mu    sync.RWMutex
	sinks map[string]ports.CompositeSink

	ready   bool
	readyCh chan struct{}

	logger *zap.SugaredLogger
}

func NewCompositeStream(logger *zap.SugaredLogger) *CompositeStream {
	return &CompositeStream{
		sinks:   make(map[string]ports.CompositeSink),
		readyCh: make(chan struct{}),
		logger:  logger,
	}
}

// MarkReady signals late subscribers that the rendering surface is
// initialized and frames are flowing. Idempotent.
func (s *CompositeStream) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return
	}
	s.ready = true
	close(s.readyCh)
	s.logger.Info("composite stream ready")
}

func (s *CompositeStream) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// ReadyNotify returns a channel closed once the stream is ready.
func (s *CompositeStream) ReadyNotify() <-chan struct{} {
	return s.readyCh
}

func (s *CompositeStream) Attach(sink ports.CompositeSink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sinks[sink.Name()] = sink
	s.logger.Infow("sink attached", "sink", sink.Name(), "sink_count", len(s.sinks))
}

func (s *CompositeStream) Detach(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sinks[name]; !ok {
		return
	}
	delete(s.sinks, name)
	s.logger.Infow("sink detached", "sink", name, "sink_count", len(s.sinks))
}

// PublishVideo broadcasts one captured frame to all sinks.
func (s *CompositeStream) PublishVideo(frame *domain.VideoFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name, sink := range s.sinks {
		if err := sink.WriteVideo(frame); err != nil {
			s.logger.Errorw("failed to write video frame to sink",
				"sink", name, "seq", frame.Seq, "error", err)
		}
	}
}

// PublishAudio broadcasts one mixed audio block to all sinks.
func (s *CompositeStream) PublishAudio(frame *domain.AudioFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name, sink := range s.sinks {
		if err := sink.WriteAudio(frame); err != nil {
			s.logger.Errorw("failed to write audio frame to sink",
				"sink", name, "seq", frame.Seq, "error", err)
		}
	}
}
