package webrtc

import (
	"sync"

	"stagecast/internal/core/domain"
)

// RemoteVideoSource holds the most recent decoded frame for one remote
// participant. The decode pipeline pushes frames in through Deliver; the
// compositor pulls the latest out once per render cycle. A frame that never
// arrives reads as camera-off for that cycle.
type RemoteVideoSource struct {
	mu     sync.RWMutex
	latest *domain.VideoFrame
}

func NewRemoteVideoSource() *RemoteVideoSource {
	return &RemoteVideoSource{}
}

// Deliver replaces the current frame.
func (s *RemoteVideoSource) Deliver(frame *domain.VideoFrame) {
	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
}

func (s *RemoteVideoSource) Latest() (*domain.VideoFrame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, false
	}
	return s.latest, true
}

// RemoteAudioSource buffers decoded PCM for one remote participant between
// mixer pulls. The ring is bounded; overflow drops the oldest samples so a
// stalled mixer never grows memory.
type RemoteAudioSource struct {
	mu   sync.Mutex
	ring []float64
	head int
	size int
}

func NewRemoteAudioSource(sampleRate int) *RemoteAudioSource {
	// Half a second of headroom.
	return &RemoteAudioSource{ring: make([]float64, sampleRate/2)}
}

// Deliver appends decoded samples, evicting the oldest on overflow.
func (s *RemoteAudioSource) Deliver(samples []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range samples {
		idx := (s.head + s.size) % len(s.ring)
		s.ring[idx] = v
		if s.size < len(s.ring) {
			s.size++
		} else {
			s.head = (s.head + 1) % len(s.ring)
		}
	}
}

// ReadSamples moves up to len(buf) buffered samples into buf and reports how
// many were available.
func (s *RemoteAudioSource) ReadSamples(buf []float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(buf)
	if n > s.size {
		n = s.size
	}
	for i := 0; i < n; i++ {
		buf[i] = s.ring[(s.head+i)%len(s.ring)]
	}
	s.head = (s.head + n) % len(s.ring)
	s.size -= n
	return n
}
