package monitoring

import (
	"context"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes studio metrics. Frame and participant counts
// are sampled straight from the owning services; destination status and
// per-peer quality arrive through observer callbacks.
type PrometheusCollector struct {
	recordedBytesTotal prometheus.Counter
	recordingsTotal    prometheus.Counter

	destinationStatus *prometheus.GaugeVec
	peerQualityScore  *prometheus.GaugeVec
	peerPacketLoss    *prometheus.GaugeVec
}

func NewPrometheusCollector(compositor ports.Compositor, registry ports.SourceRegistry) *PrometheusCollector {
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "stagecast_frames_rendered_total",
		Help: "Total number of composite frames rendered",
	}, func() float64 {
		rendered, _ := compositor.Stats()
		return float64(rendered)
	})

	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "stagecast_frames_dropped_total",
		Help: "Total number of composite ticks skipped because a render was still in flight",
	}, func() float64 {
		_, dropped := compositor.Stats()
		return float64(dropped)
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "stagecast_participants_connected",
		Help: "Number of currently connected participants",
	}, func() float64 {
		return float64(len(registry.Snapshot()))
	})

	return &PrometheusCollector{
		recordedBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stagecast_recorded_bytes_total",
			Help: "Total bytes written to finished recordings",
		}),

		recordingsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stagecast_recordings_total",
			Help: "Total number of finished recordings",
		}),

		destinationStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stagecast_destination_status",
			Help: "Per-destination connection state (1 for the current status label)",
		}, []string{"destination_id", "platform", "status"}),

		peerQualityScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stagecast_peer_quality_score",
			Help: "Connection quality score per participant (0-100)",
		}, []string{"participant_id"}),

		peerPacketLoss: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stagecast_peer_packet_loss_pct",
			Help: "Packet loss percentage per participant",
		}, []string{"participant_id"}),
	}
}

// ObserveBroadcast registers the live-state gauge. Separate from the
// constructor because the orchestrator is built after the collector.
func (p *PrometheusCollector) ObserveBroadcast(broadcast ports.BroadcastOrchestrator) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "stagecast_broadcast_live",
		Help: "1 while a broadcast is live, 0 otherwise",
	}, func() float64 {
		if broadcast.Session().State == domain.BroadcastLive {
			return 1
		}
		return 0
	})
}

// RecordDestinationStatus is the fanout status-change observer.
func (p *PrometheusCollector) RecordDestinationStatus(dest domain.Destination) {
	for _, status := range domain.AllDestinationStatuses() {
		if status == dest.Status {
			continue
		}
		p.destinationStatus.DeleteLabelValues(string(dest.ID), string(dest.Platform), string(status))
	}
	p.destinationStatus.WithLabelValues(string(dest.ID), string(dest.Platform), string(dest.Status)).Set(1)
}

// RecordQualityReport is the quality monitor subscriber.
func (p *PrometheusCollector) RecordQualityReport(report domain.QualityReport) {
	p.peerQualityScore.WithLabelValues(string(report.ParticipantID)).Set(float64(report.Score))
	p.peerPacketLoss.WithLabelValues(string(report.ParticipantID)).Set(report.Stats.PacketLossPct)
}

// RecordParticipantLeft is the registry removal hook.
func (p *PrometheusCollector) RecordParticipantLeft(id domain.ParticipantID) {
	p.peerQualityScore.DeleteLabelValues(string(id))
	p.peerPacketLoss.DeleteLabelValues(string(id))
}

func (p *PrometheusCollector) RecordFinishedRecording(rec *domain.FinishedRecording) {
	p.recordingsTotal.Inc()
	p.recordedBytesTotal.Add(float64(rec.SizeBytes))
}

// InstrumentedCatalog wraps a recording catalog so every finished recording
// is counted as it is saved.
type InstrumentedCatalog struct {
	inner     ports.RecordingCatalog
	collector *PrometheusCollector
}

func NewInstrumentedCatalog(inner ports.RecordingCatalog, collector *PrometheusCollector) ports.RecordingCatalog {
	return &InstrumentedCatalog{inner: inner, collector: collector}
}

func (c *InstrumentedCatalog) Save(ctx context.Context, rec *domain.FinishedRecording) error {
	if err := c.inner.Save(ctx, rec); err != nil {
		return err
	}
	c.collector.RecordFinishedRecording(rec)
	return nil
}

func (c *InstrumentedCatalog) Get(ctx context.Context, id domain.RecordingID) (*domain.FinishedRecording, error) {
	return c.inner.Get(ctx, id)
}

func (c *InstrumentedCatalog) List(ctx context.Context) ([]*domain.FinishedRecording, error) {
	return c.inner.List(ctx)
}

func (c *InstrumentedCatalog) Delete(ctx context.Context, id domain.RecordingID) error {
	return c.inner.Delete(ctx, id)
}
