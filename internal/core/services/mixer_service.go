package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/tasks"

	"go.uber.org/zap"
)

// mixBlockDuration is the cadence of the mix bus.
const mixBlockDuration = 20 * time.Millisecond

type mixInput struct {
	source   domain.AudioSource
	gain     float64
	enabled  bool
	analyzer *LevelAnalyzer
	buf      []float64
}

// mixerService maintains one mix bus. Adding or removing a source is O(1)
// and never interrupts the bus for other sources; each source carries its own
// analyzer whose lifecycle matches the source's.
type mixerService struct {
	mu     sync.RWMutex
	inputs map[domain.ParticipantID]*mixInput

	sampleRate   int
	blockSamples int
	threshold    float64
	smoothing    float64

	publish func(*domain.AudioFrame)
	seq     atomic.Uint64
	ready   atomic.Bool
	started time.Time

	loop   *tasks.Task
	logger *zap.SugaredLogger
}

// MixerConfig carries the audio calibration from config.
type MixerConfig struct {
	SampleRate        int
	SpeakingThreshold float64
	Smoothing         float64
}

func NewMixerService(cfg MixerConfig, publish func(*domain.AudioFrame), logger *zap.SugaredLogger) ports.AudioMixer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &mixerService{
		inputs:       make(map[domain.ParticipantID]*mixInput),
		sampleRate:   cfg.SampleRate,
		blockSamples: cfg.SampleRate * int(mixBlockDuration/time.Millisecond) / 1000,
		threshold:    cfg.SpeakingThreshold,
		smoothing:    cfg.Smoothing,
		publish:      publish,
		logger:       logger,
	}
}

func (m *mixerService) AddSource(id domain.ParticipantID, src domain.AudioSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs[id] = &mixInput{
		source:   src,
		gain:     1.0,
		enabled:  true,
		analyzer: NewLevelAnalyzer(m.threshold, m.smoothing),
		buf:      make([]float64, m.blockSamples),
	}
	m.logger.Infow("audio source added", "participant_id", id)
}

func (m *mixerService) RemoveSource(id domain.ParticipantID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inputs[id]; !ok {
		return
	}
	// Dropping the input releases its analyzer with it; nothing else holds
	// a reference, so no analysis state outlives the source.
	delete(m.inputs, id)
	m.logger.Infow("audio source removed", "participant_id", id)
}

func (m *mixerService) SetGain(id domain.ParticipantID, gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in, ok := m.inputs[id]; ok {
		if gain < 0 {
			gain = 0
		}
		in.gain = gain
	}
}

func (m *mixerService) SetEnabled(id domain.ParticipantID, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in, ok := m.inputs[id]; ok {
		in.enabled = enabled
		if !enabled {
			in.analyzer.Reset()
		}
	}
}

func (m *mixerService) Speaking(id domain.ParticipantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if in, ok := m.inputs[id]; ok {
		return in.analyzer.Speaking()
	}
	return false
}

func (m *mixerService) Level(id domain.ParticipantID) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if in, ok := m.inputs[id]; ok {
		return in.analyzer.Level()
	}
	return 0
}

func (m *mixerService) Start(ctx context.Context) error {
	if m.ready.Load() {
		return nil
	}
	m.started = time.Now()
	m.loop = tasks.Every(ctx, mixBlockDuration, func(ctx context.Context, tick int) {
		m.MixOnce()
	})
	m.ready.Store(true)
	m.logger.Infow("audio mixer started",
		"sample_rate", m.sampleRate,
		"block_samples", m.blockSamples,
	)
	return nil
}

func (m *mixerService) Stop() {
	if !m.ready.CompareAndSwap(true, false) {
		return
	}
	if m.loop != nil {
		m.loop.Cancel()
	}
	m.logger.Info("audio mixer stopped")
}

func (m *mixerService) Ready() bool {
	return m.ready.Load()
}

// MixOnce pulls one block from every enabled source, feeds each source's
// analyzer, and publishes the combined block. Sources with nothing buffered
// contribute silence for the block.
func (m *mixerService) MixOnce() *domain.AudioFrame {
	m.mu.RLock()
	mixed := make([]float64, m.blockSamples)
	for _, in := range m.inputs {
		if !in.enabled {
			continue
		}
		for i := range in.buf {
			in.buf[i] = 0
		}
		n := in.source.ReadSamples(in.buf)
		in.analyzer.Process(in.buf[:m.blockSamples])
		for i := 0; i < n && i < m.blockSamples; i++ {
			mixed[i] += in.buf[i] * in.gain
		}
	}
	m.mu.RUnlock()

	// Hard clip; per-source gain is the operator's headroom control.
	for i, s := range mixed {
		if s > 1 {
			mixed[i] = 1
		} else if s < -1 {
			mixed[i] = -1
		}
	}

	frame := &domain.AudioFrame{
		SampleRate: m.sampleRate,
		Samples:    mixed,
		Seq:        m.seq.Add(1),
		PTS:        time.Since(m.started),
	}
	if m.publish != nil {
		m.publish(frame)
	}
	return frame
}
