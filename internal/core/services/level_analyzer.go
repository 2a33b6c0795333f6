package services

import (
	"math"
	"sync"
)

// Speaking detection constants. One calibrated threshold in the normalized
// 0-1 energy domain (equivalent to the empirical 10/255) used by every call
// site; the smoothed level feeds UI meters only.
const (
	SpeakingThreshold = 0.04
	LevelSmoothing    = 0.8
)

// LevelAnalyzer computes a 0-1 speaking-activity level for one audio source.
// Process is called once per mix cycle with the samples the mixer pulled.
// Classification uses the cycle's instantaneous energy so the speaking flag
// flips within one cycle of the input crossing the threshold and reverts
// within one cycle of it dropping back.
type LevelAnalyzer struct {
	mu        sync.RWMutex
	smoothing float64
	threshold float64
	level     float64
	speaking  bool
}

func NewLevelAnalyzer(threshold, smoothing float64) *LevelAnalyzer {
	if threshold <= 0 {
		threshold = SpeakingThreshold
	}
	if smoothing <= 0 || smoothing >= 1 {
		smoothing = LevelSmoothing
	}
	return &LevelAnalyzer{
		smoothing: smoothing,
		threshold: threshold,
	}
}

// Process folds one block of samples into the analyzer state.
func (a *LevelAnalyzer) Process(samples []float64) {
	energy := rms(samples)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.level = a.smoothing*a.level + (1-a.smoothing)*energy
	a.speaking = energy >= a.threshold
}

// Reset clears analyzer state, used when a source is muted.
func (a *LevelAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.level = 0
	a.speaking = false
}

// Level returns the smoothed 0-1 activity level.
func (a *LevelAnalyzer) Level() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.level
}

// Speaking returns the current speech classification.
func (a *LevelAnalyzer) Speaking() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.speaking
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
