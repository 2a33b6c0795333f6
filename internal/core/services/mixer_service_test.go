package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// constantSource yields a constant sample value.
type constantSource struct {
	value float64
}

func (s *constantSource) ReadSamples(buf []float64) int {
	for i := range buf {
		buf[i] = s.value
	}
	return len(buf)
}

// silentSource has nothing buffered.
type silentSource struct{}

func (silentSource) ReadSamples(buf []float64) int { return 0 }

func newTestMixer(t *testing.T) *mixerService {
	t.Helper()
	cfg := MixerConfig{SampleRate: 48000, SpeakingThreshold: SpeakingThreshold, Smoothing: LevelSmoothing}
	return NewMixerService(cfg, nil, zaptest.NewLogger(t).Sugar()).(*mixerService)
}

func TestMixer_CombinesEnabledSources(t *testing.T) {
	m := newTestMixer(t)
	m.AddSource("a", &constantSource{value: 0.25})
	m.AddSource("b", &constantSource{value: 0.25})

	frame := m.MixOnce()
	require.NotEmpty(t, frame.Samples)
	assert.InDelta(t, 0.5, frame.Samples[0], 1e-9)
}

func TestMixer_GainAndDisable(t *testing.T) {
	m := newTestMixer(t)
	m.AddSource("a", &constantSource{value: 0.5})
	m.AddSource("b", &constantSource{value: 0.5})

	m.SetGain("a", 0.5)
	m.SetEnabled("b", false)

	frame := m.MixOnce()
	assert.InDelta(t, 0.25, frame.Samples[0], 1e-9)
}

func TestMixer_OutputClipped(t *testing.T) {
	m := newTestMixer(t)
	m.AddSource("a", &constantSource{value: 0.9})
	m.AddSource("b", &constantSource{value: 0.9})

	frame := m.MixOnce()
	assert.Equal(t, 1.0, frame.Samples[0])
}

func TestMixer_RemoveSourceDoesNotInterruptBus(t *testing.T) {
	m := newTestMixer(t)
	m.AddSource("a", &constantSource{value: 0.3})
	m.AddSource("b", &constantSource{value: 0.2})

	m.RemoveSource("b")
	frame := m.MixOnce()
	assert.InDelta(t, 0.3, frame.Samples[0], 1e-9)

	// Removing an unknown source is a no-op.
	m.RemoveSource("ghost")
}

func TestMixer_SpeakingClassification(t *testing.T) {
	m := newTestMixer(t)
	loud := &constantSource{value: 0.5}
	m.AddSource("a", loud)

	// One cycle above threshold flips speaking on.
	m.MixOnce()
	assert.True(t, m.Speaking("a"))
	assert.Greater(t, m.Level("a"), 0.0)

	// One cycle below threshold flips it back off.
	loud.value = 0.0
	m.MixOnce()
	assert.False(t, m.Speaking("a"))
}

func TestMixer_MutedSourceNotSpeaking(t *testing.T) {
	m := newTestMixer(t)
	m.AddSource("a", &constantSource{value: 0.5})
	m.MixOnce()
	require.True(t, m.Speaking("a"))

	m.SetEnabled("a", false)
	assert.False(t, m.Speaking("a"))
	assert.Zero(t, m.Level("a"))
}

func TestMixer_SilentSourceContributesSilence(t *testing.T) {
	m := newTestMixer(t)
	m.AddSource("a", silentSource{})
	m.AddSource("b", &constantSource{value: 0.4})

	frame := m.MixOnce()
	assert.InDelta(t, 0.4, frame.Samples[0], 1e-9)
	assert.False(t, m.Speaking("a"))
}

func TestMixer_FrameSequenceIncreases(t *testing.T) {
	m := newTestMixer(t)
	m.AddSource("a", &constantSource{value: 0.1})

	f1 := m.MixOnce()
	f2 := m.MixOnce()
	assert.Equal(t, f1.Seq+1, f2.Seq)
	assert.Equal(t, 48000, f1.SampleRate)
}

func TestLevelAnalyzer_SmoothedLevel(t *testing.T) {
	a := NewLevelAnalyzer(SpeakingThreshold, LevelSmoothing)

	block := make([]float64, 960)
	for i := range block {
		block[i] = 1.0
	}
	a.Process(block)
	// First cycle: level = (1-0.8) * 1.0
	assert.InDelta(t, 0.2, a.Level(), 1e-9)
	assert.True(t, a.Speaking())

	a.Process(make([]float64, 960))
	assert.InDelta(t, 0.16, a.Level(), 1e-9)
	assert.False(t, a.Speaking())
}
