package ports

import "stagecast/internal/core/domain"

// CompositeSink consumes the composite output. Fanout transports, the
// recorder and the preview feed are all sinks on the same stream.
type CompositeSink interface {
	Name() string
	WriteVideo(frame *domain.VideoFrame) error
	WriteAudio(frame *domain.AudioFrame) error
	Close() error
}

// CompositeOutput is the single combined video+audio output. Late subscribers
// learn about readiness through ReadyNotify rather than polling.
type CompositeOutput interface {
	Attach(sink CompositeSink)
	Detach(name string)
	Ready() bool
	ReadyNotify() <-chan struct{}
}

// StatsSource yields transport statistics for one peer connection.
type StatsSource interface {
	Stats() domain.ConnectionStats
}
