package domain

import "time"

// ConnectionStats is one transport sample for a peer connection.
type ConnectionStats struct {
	PacketLossPct float64
	JitterMs      float64
	RTTMs         float64
	BitrateKbps   int
	FrameRate     float64
}

// QualityLevel buckets the 0-100 connection score.
type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityFair      QualityLevel = "fair"
	QualityPoor      QualityLevel = "poor"
	QualityUnknown   QualityLevel = "unknown"
)

// QualityReport is one scored sample pushed to subscribers.
type QualityReport struct {
	ParticipantID ParticipantID
	Stats         ConnectionStats
	Score         int
	Level         QualityLevel
	SampledAt     time.Time
}
