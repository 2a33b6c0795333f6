package services

import (
	"context"
	"math"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/tasks"

	"go.uber.org/zap"
)

// Score penalty caps per metric. The score starts at 100 and each metric
// subtracts up to its cap.
const (
	lossPenaltyCap   = 40.0
	jitterPenaltyCap = 20.0
	rttPenaltyCap    = 30.0
	fpsPenaltyCap    = 10.0

	// Full penalty is reached at these metric values.
	lossFullAt   = 10.0  // percent
	jitterFullAt = 100.0 // ms
	rttFullAt    = 500.0 // ms
	targetFPS    = 30.0
)

// Level thresholds on the 0-100 score.
const (
	excellentFloor = 85
	goodFloor      = 65
	fairFloor      = 40
)

// qualityService samples transport statistics for every tracked peer on a
// fixed interval, scores each sample, and pushes reports to subscribers.
// Subscriber sends never block the sampling loop; a full channel drops the
// report for that subscriber.
type qualityService struct {
	interval time.Duration

	mu      sync.RWMutex
	sources map[domain.ParticipantID]ports.StatsSource
	latest  map[domain.ParticipantID]domain.QualityReport
	subs    []chan domain.QualityReport

	loop    *tasks.Task
	started bool
	logger  *zap.SugaredLogger
}

func NewQualityService(interval time.Duration, logger *zap.SugaredLogger) ports.QualityMonitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &qualityService{
		interval: interval,
		sources:  make(map[domain.ParticipantID]ports.StatsSource),
		latest:   make(map[domain.ParticipantID]domain.QualityReport),
		logger:   logger,
	}
}

func (q *qualityService) Track(id domain.ParticipantID, src ports.StatsSource) {
	q.mu.Lock()
	q.sources[id] = src
	q.mu.Unlock()
	q.logger.Infow("quality tracking started", "participant_id", id)
}

func (q *qualityService) Untrack(id domain.ParticipantID) {
	q.mu.Lock()
	delete(q.sources, id)
	delete(q.latest, id)
	q.mu.Unlock()
}

func (q *qualityService) Subscribe(buffer int) <-chan domain.QualityReport {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.QualityReport, buffer)
	q.mu.Lock()
	q.subs = append(q.subs, ch)
	q.mu.Unlock()
	return ch
}

func (q *qualityService) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.loop = tasks.Every(ctx, q.interval, func(ctx context.Context, tick int) {
		q.SampleOnce()
	})
	q.logger.Infow("quality monitor started", "interval", q.interval)
}

func (q *qualityService) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	loop := q.loop
	q.loop = nil
	q.mu.Unlock()

	if loop != nil {
		loop.Cancel()
	}
}

// Latest returns the most recent report for one peer.
func (q *qualityService) Latest(id domain.ParticipantID) (domain.QualityReport, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	r, ok := q.latest[id]
	return r, ok
}

// SampleOnce polls every tracked source, scores the samples, and fans the
// reports out to subscribers.
func (q *qualityService) SampleOnce() []domain.QualityReport {
	q.mu.RLock()
	tracked := make(map[domain.ParticipantID]ports.StatsSource, len(q.sources))
	for id, src := range q.sources {
		tracked[id] = src
	}
	q.mu.RUnlock()

	now := time.Now()
	reports := make([]domain.QualityReport, 0, len(tracked))
	for id, src := range tracked {
		stats := src.Stats()
		score := ScoreConnection(stats)
		reports = append(reports, domain.QualityReport{
			ParticipantID: id,
			Stats:         stats,
			Score:         score,
			Level:         LevelForScore(score),
			SampledAt:     now,
		})
	}

	q.mu.Lock()
	for _, r := range reports {
		q.latest[r.ParticipantID] = r
	}
	subs := make([]chan domain.QualityReport, len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	for _, r := range reports {
		for _, ch := range subs {
			select {
			case ch <- r:
			default:
				// Slow subscriber; drop rather than stall the sampler.
			}
		}
	}
	return reports
}

// ScoreConnection maps one transport sample to a 0-100 score. Packet loss
// costs up to 40 points, jitter up to 20, round-trip time up to 30, and
// frame-rate shortfall against the render target up to 10.
func ScoreConnection(s domain.ConnectionStats) int {
	score := 100.0
	score -= penalty(s.PacketLossPct, lossFullAt, lossPenaltyCap)
	score -= penalty(s.JitterMs, jitterFullAt, jitterPenaltyCap)
	score -= penalty(s.RTTMs, rttFullAt, rttPenaltyCap)

	if s.FrameRate > 0 && s.FrameRate < targetFPS {
		score -= (targetFPS - s.FrameRate) / targetFPS * fpsPenaltyCap
	}

	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// penalty scales linearly from 0 at value 0 to cap at fullAt and beyond.
func penalty(value, fullAt, cap float64) float64 {
	if value <= 0 {
		return 0
	}
	if value >= fullAt {
		return cap
	}
	return value / fullAt * cap
}

// LevelForScore buckets a score into the operator-facing quality level.
func LevelForScore(score int) domain.QualityLevel {
	switch {
	case score >= excellentFloor:
		return domain.QualityExcellent
	case score >= goodFloor:
		return domain.QualityGood
	case score >= fairFloor:
		return domain.QualityFair
	default:
		return domain.QualityPoor
	}
}
