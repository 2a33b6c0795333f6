package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/tasks"

	"go.uber.org/zap"
)

// CompositorConfig carries the studio canvas parameters from config.
type CompositorConfig struct {
	Width         int
	Height        int
	FrameRate     int
	SocialCardTTL time.Duration
	DefaultLayout domain.LayoutID
}

// compositorService owns the fixed-cadence render loop. Each cycle takes one
// atomic snapshot of the source registry and the overlay stack, computes the
// layout once, and runs a single draw sequence that produces both the
// captured output frame and the operator preview. There is exactly one
// rendering path; the only divergence is the teleprompter layer, which is
// drawn onto the preview raster alone.
type compositorService struct {
	cfg      CompositorConfig
	registry ports.SourceRegistry
	mixer    ports.AudioMixer
	overlays *overlayController
	output   *CompositeStream

	mu             sync.RWMutex
	selectedLayout domain.LayoutID

	capture *Canvas
	preview *Canvas

	seq            atomic.Uint64
	framesRendered atomic.Uint64
	framesDropped  atomic.Uint64
	rendering      atomic.Bool
	started        atomic.Bool
	startedAt      time.Time

	previewFrame atomic.Value // *domain.VideoFrame

	loop   *tasks.Task
	logger *zap.SugaredLogger
}

func NewCompositorService(
	cfg CompositorConfig,
	registry ports.SourceRegistry,
	mixer ports.AudioMixer,
	output *CompositeStream,
	logger *zap.SugaredLogger,
) ports.Compositor {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.DefaultLayout == "" {
		cfg.DefaultLayout = domain.LayoutGroup
	}
	return &compositorService{
		cfg:            cfg,
		registry:       registry,
		mixer:          mixer,
		overlays:       newOverlayController(cfg.SocialCardTTL),
		output:         output,
		selectedLayout: cfg.DefaultLayout,
		capture:        NewCanvas(cfg.Width, cfg.Height),
		preview:        NewCanvas(cfg.Width, cfg.Height),
		logger:         logger,
	}
}

func (s *compositorService) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	s.startedAt = time.Now()
	s.overlays.bind(ctx)

	// The rendering surface exists; downstream consumers can subscribe now.
	s.output.MarkReady()

	interval := time.Second / time.Duration(s.cfg.FrameRate)
	s.loop = tasks.Every(ctx, interval, func(ctx context.Context, tick int) {
		// Drop the frame rather than block when a cycle overruns.
		if !s.rendering.CompareAndSwap(false, true) {
			s.framesDropped.Add(1)
			return
		}
		defer s.rendering.Store(false)
		s.RenderOnce()
	})

	s.logger.Infow("compositor started",
		"width", s.cfg.Width,
		"height", s.cfg.Height,
		"frame_rate", s.cfg.FrameRate,
	)
	return nil
}

func (s *compositorService) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	if s.loop != nil {
		s.loop.Cancel()
	}
	s.overlays.stop()
	s.logger.Info("compositor stopped")
}

func (s *compositorService) Output() ports.CompositeOutput {
	return s.output
}

func (s *compositorService) SetLayout(id domain.LayoutID) error {
	if !domain.IsValidLayout(id) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownLayout, id)
	}
	s.mu.Lock()
	s.selectedLayout = id
	s.mu.Unlock()

	s.logger.Infow("layout selected", "layout", id)
	return nil
}

func (s *compositorService) SelectedLayout() domain.LayoutID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedLayout
}

func (s *compositorService) SetOverlay(kind domain.OverlayKind, payload interface{}) error {
	return s.overlays.Set(kind, payload)
}

func (s *compositorService) ClearOverlay(kind domain.OverlayKind) {
	s.overlays.Clear(kind)
}

// PreviewFrame returns the latest preview raster, teleprompter included.
func (s *compositorService) PreviewFrame() *domain.VideoFrame {
	if f, ok := s.previewFrame.Load().(*domain.VideoFrame); ok {
		return f
	}
	return nil
}

// Stats reports rendered and dropped frame counts.
func (s *compositorService) Stats() (rendered, dropped uint64) {
	return s.framesRendered.Load(), s.framesDropped.Load()
}

// RenderOnce runs one full render cycle and publishes the captured frame.
func (s *compositorService) RenderOnce() *domain.VideoFrame {
	participants := s.registry.Snapshot()
	screenActive := s.registry.ScreenShareActive()
	overlay := s.overlays.Snapshot()
	layout := s.SelectedLayout()
	seq := s.seq.Add(1)

	frame := s.renderFrame(seq, layout, participants, screenActive, overlay)
	frame.PTS = time.Duration(seq) * time.Second / time.Duration(s.cfg.FrameRate)

	s.output.PublishVideo(frame)
	s.previewFrame.Store(s.preview.Snapshot(seq))
	s.framesRendered.Add(1)
	return frame
}
