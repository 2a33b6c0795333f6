package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/retry"
	"stagecast/pkg/tasks"
	"stagecast/pkg/tracing"
	"stagecast/pkg/utils"

	"go.uber.org/zap"
)

// BroadcastConfig tunes the go-live sequence.
type BroadcastConfig struct {
	CountdownSeconds int
	IntroClip        domain.VideoSource
	IntroDuration    time.Duration
	PollAttempts     int
	PollInterval     time.Duration
}

// broadcastService sequences go-live and end-broadcast across the compositor,
// the audio mixer, the fanout manager and the platform-provisioning API. The
// ordering inside GoLive is load-bearing: transmission to every destination
// starts before the countdown overlay appears, so platforms buffer the feed
// in their pre-publish state while the operator still sees the countdown.
type broadcastService struct {
	cfg          BroadcastConfig
	compositor   ports.Compositor
	mixer        ports.AudioMixer
	fanout       ports.FanoutManager
	provisioning ports.ProvisioningClient
	recorder     ports.Recorder

	mu        sync.Mutex
	session   domain.BroadcastSession
	countdown *tasks.Task
	intro     *tasks.Task

	logger *zap.SugaredLogger
}

func NewBroadcastService(
	cfg BroadcastConfig,
	compositor ports.Compositor,
	mixer ports.AudioMixer,
	fanout ports.FanoutManager,
	provisioning ports.ProvisioningClient,
	recorder ports.Recorder,
	logger *zap.SugaredLogger,
) ports.BroadcastOrchestrator {
	if cfg.CountdownSeconds < 0 {
		cfg.CountdownSeconds = 0
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &broadcastService{
		cfg:          cfg,
		compositor:   compositor,
		mixer:        mixer,
		fanout:       fanout,
		provisioning: provisioning,
		recorder:     recorder,
		session: domain.BroadcastSession{
			ID:               domain.SessionID(utils.GenerateID("session")),
			State:            domain.BroadcastIdle,
			CountdownSeconds: cfg.CountdownSeconds,
		},
		logger: logger,
	}
}

func (b *broadcastService) Session() domain.BroadcastSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.session
	s.DestinationIDs = append([]domain.DestinationID(nil), b.session.DestinationIDs...)
	return s
}

// GoLive runs the synchronous part of the go-live sequence (validation,
// composite checks, provisioning, fanout start) and arms the countdown. The
// live transition itself happens when the countdown completes. Any failure
// before the countdown leaves the session idle with nothing started.
func (b *broadcastService) GoLive(ctx context.Context, destinationIDs []domain.DestinationID) error {
	b.mu.Lock()
	if b.session.State == domain.BroadcastLive || b.session.State == domain.BroadcastCountdown {
		b.mu.Unlock()
		return domain.ErrAlreadyLive
	}
	if !b.session.State.CanTransition(domain.BroadcastPreparing) {
		state := b.session.State
		b.mu.Unlock()
		return fmt.Errorf("%w: %s -> preparing", domain.ErrInvalidTransition, state)
	}
	b.session.State = domain.BroadcastPreparing
	sessionID := b.session.ID
	b.mu.Unlock()

	ctx, span := tracing.TraceBroadcastStep(ctx, "go_live", string(sessionID))
	defer span.End()

	err := b.prepare(ctx, sessionID, destinationIDs)
	if err != nil {
		tracing.RecordError(ctx, err)
		b.revertToIdle()
		return err
	}

	b.startCountdown(ctx)
	return nil
}

// prepare covers validation through fanout start. On error nothing that was
// not started needs teardown.
func (b *broadcastService) prepare(ctx context.Context, sessionID domain.SessionID, destinationIDs []domain.DestinationID) error {
	// Validate and de-duplicate the selection; drop unknown ids.
	raw := make([]string, len(destinationIDs))
	for i, id := range destinationIDs {
		raw[i] = string(id)
	}
	var valid []domain.DestinationID
	var dests []domain.Destination
	for _, id := range utils.Dedupe(raw) {
		dest, err := b.fanout.Destination(domain.DestinationID(id))
		if err != nil {
			b.logger.Warnw("unknown destination dropped from selection", "destination_id", id)
			continue
		}
		valid = append(valid, dest.ID)
		dests = append(dests, dest)
	}
	if len(valid) == 0 {
		return domain.ErrNoValidDestinations
	}

	// Both producer tracks must exist before anything is fanned out.
	output := b.compositor.Output()
	if output == nil || !output.Ready() || !b.mixer.Ready() {
		return domain.ErrCompositeUnavailable
	}

	b.mu.Lock()
	b.session.DestinationIDs = valid
	b.session.VideoProducerID = utils.GenerateID("prod")
	b.session.AudioProducerID = utils.GenerateID("prod")
	b.mu.Unlock()

	// Platform-side broadcast objects must exist before transmission starts.
	stepCtx, span := tracing.TraceBroadcastStep(ctx, "provision", string(sessionID))
	err := b.provision(stepCtx, sessionID, dests)
	span.End()
	if err != nil {
		return err
	}

	// Transmission starts now; platforms receive frames in their pre-publish
	// state before the countdown overlay ever appears.
	stepCtx, span = tracing.TraceBroadcastStep(ctx, "start_fanout", string(sessionID))
	result, err := b.fanout.StartAll(stepCtx, valid, output)
	span.End()
	if err != nil {
		return err
	}
	if len(result.Failed) == len(valid) {
		return fmt.Errorf("%w: every destination failed to connect", domain.ErrNoValidDestinations)
	}
	if !result.Success {
		b.logger.Warnw("some destinations failed to connect",
			"session_id", sessionID,
			"failed", result.Failed,
		)
	}
	return nil
}

func (b *broadcastService) provision(ctx context.Context, sessionID domain.SessionID, dests []domain.Destination) error {
	if err := b.provisioning.CreateBroadcastObjects(ctx, sessionID, dests); err != nil {
		return fmt.Errorf("create broadcast objects: %w", err)
	}

	cfg := retry.Fixed(b.cfg.PollAttempts, b.cfg.PollInterval)
	err := retry.Do(ctx, cfg, func() error {
		ids, err := b.provisioning.ListDestinations(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return domain.ErrProvisioningTimeout
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvisioningTimeout, err)
	}
	return nil
}

// startCountdown moves to countdown and arms the per-second overlay ticker.
// A zero-length countdown completes immediately but still passes through the
// countdown state.
func (b *broadcastService) startCountdown(ctx context.Context) {
	b.mu.Lock()
	b.session.State = domain.BroadcastCountdown
	remaining := b.cfg.CountdownSeconds
	b.mu.Unlock()

	if remaining == 0 {
		b.goOnAir(ctx)
		return
	}

	if err := b.compositor.SetOverlay(domain.OverlayCountdown, &domain.CountdownOverlay{Remaining: remaining}); err != nil {
		b.logger.Warnw("countdown overlay rejected", "error", err)
	}

	b.mu.Lock()
	b.countdown = tasks.Every(context.Background(), time.Second, func(taskCtx context.Context, tick int) {
		left := remaining - tick
		if left > 0 {
			if err := b.compositor.SetOverlay(domain.OverlayCountdown, &domain.CountdownOverlay{Remaining: left}); err != nil {
				b.logger.Warnw("countdown overlay rejected", "error", err)
			}
			return
		}
		b.compositor.ClearOverlay(domain.OverlayCountdown)
		b.clearCountdownTask()
		b.goOnAir(taskCtx)
	})
	b.mu.Unlock()
}

func (b *broadcastService) clearCountdownTask() {
	b.mu.Lock()
	task := b.countdown
	b.countdown = nil
	b.mu.Unlock()
	if task != nil {
		go task.Cancel()
	}
}

// goOnAir runs the moment the countdown completes: intro clip, best-effort
// platform visibility flips, the live transition, and recording auto-start.
func (b *broadcastService) goOnAir(ctx context.Context) {
	b.mu.Lock()
	if !b.session.State.CanTransition(domain.BroadcastLive) {
		state := b.session.State
		b.mu.Unlock()
		b.logger.Warnw("on-air skipped, broadcast no longer in countdown", "state", state)
		return
	}
	sessionID := b.session.ID
	destinations := append([]domain.DestinationID(nil), b.session.DestinationIDs...)
	b.mu.Unlock()

	// Intro clip plays full-frame with no gap after the countdown. Media
	// errors are logged and skipped; the broadcast proceeds without it.
	b.playIntro()

	// Platform visibility flips are best-effort: the feed is already live to
	// direct viewers of the ingest, so a failure here is a warning.
	for _, id := range destinations {
		go func(id domain.DestinationID) {
			if err := b.provisioning.TransitionToLive(context.Background(), id); err != nil {
				b.logger.Warnw("platform live transition failed",
					"session_id", sessionID,
					"destination_id", id,
					"error", err,
				)
			}
		}(id)
	}

	b.mu.Lock()
	b.session.State = domain.BroadcastLive
	b.session.StartedAt = time.Now()
	b.mu.Unlock()
	b.logger.Infow("broadcast live", "session_id", sessionID, "destinations", len(destinations))

	if err := b.recorder.Start(ctx); err != nil {
		b.logger.Warnw("recording auto-start failed", "session_id", sessionID, "error", err)
	}
}

func (b *broadcastService) playIntro() {
	if b.cfg.IntroClip == nil {
		return
	}
	err := b.compositor.SetOverlay(domain.OverlayMediaClip, &domain.MediaClipOverlay{
		Source:    b.cfg.IntroClip,
		FullFrame: true,
	})
	if err != nil {
		b.logger.Warnw("intro clip rejected", "error", err)
		return
	}
	duration := b.cfg.IntroDuration
	if duration <= 0 {
		duration = 5 * time.Second
	}
	b.mu.Lock()
	b.intro = tasks.After(context.Background(), duration, func(ctx context.Context) {
		b.compositor.ClearOverlay(domain.OverlayMediaClip)
	})
	b.mu.Unlock()
}

// EndBroadcast tears the session down from countdown or live. Ending during
// the countdown cancels both the countdown and any pending intro playback.
func (b *broadcastService) EndBroadcast(ctx context.Context) error {
	b.mu.Lock()
	if !b.session.State.CanTransition(domain.BroadcastEnding) {
		state := b.session.State
		b.mu.Unlock()
		return fmt.Errorf("%w: state %s", domain.ErrNotLive, state)
	}
	b.session.State = domain.BroadcastEnding
	sessionID := b.session.ID
	countdown := b.countdown
	intro := b.intro
	b.countdown = nil
	b.intro = nil
	b.mu.Unlock()

	ctx, span := tracing.TraceBroadcastStep(ctx, "end_broadcast", string(sessionID))
	defer span.End()

	if countdown != nil {
		countdown.Cancel()
	}
	if intro != nil {
		intro.Cancel()
	}
	b.compositor.ClearOverlay(domain.OverlayCountdown)
	b.compositor.ClearOverlay(domain.OverlayMediaClip)

	if b.recorder.Active() {
		if _, err := b.recorder.Stop(ctx); err != nil {
			b.logger.Warnw("recording stop failed", "session_id", sessionID, "error", err)
		}
	}

	if err := b.fanout.StopAll(ctx); err != nil {
		b.logger.Warnw("fanout stop error", "session_id", sessionID, "error", err)
	}

	if err := b.provisioning.EndBroadcast(ctx, sessionID); err != nil {
		b.logger.Warnw("platform end-broadcast failed", "session_id", sessionID, "error", err)
	}

	b.mu.Lock()
	if b.session.State.CanTransition(domain.BroadcastEnded) {
		b.session.State = domain.BroadcastEnded
	}
	b.mu.Unlock()
	b.logger.Infow("broadcast ended", "session_id", sessionID)

	// Ended is transient; cleanup returns the record to idle for reuse.
	b.mu.Lock()
	if b.session.State.CanTransition(domain.BroadcastIdle) {
		b.session.State = domain.BroadcastIdle
		b.session.DestinationIDs = nil
		b.session.VideoProducerID = ""
		b.session.AudioProducerID = ""
	}
	b.mu.Unlock()
	return nil
}

func (b *broadcastService) revertToIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session.State == domain.BroadcastPreparing {
		b.session.State = domain.BroadcastIdle
		b.session.DestinationIDs = nil
		b.session.VideoProducerID = ""
		b.session.AudioProducerID = ""
	}
}
