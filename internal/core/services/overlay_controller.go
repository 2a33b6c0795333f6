package services

import (
	"context"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/pkg/tasks"
)

// overlayController owns the mutable overlay configuration. The render loop
// never reads it directly; it takes one immutable snapshot per cycle.
type overlayController struct {
	mu    sync.RWMutex
	state domain.OverlayState

	socialTTL  time.Duration
	socialTask *tasks.Task
	ctx        context.Context
}

func newOverlayController(socialTTL time.Duration) *overlayController {
	if socialTTL <= 0 {
		socialTTL = 10 * time.Second
	}
	return &overlayController{
		socialTTL: socialTTL,
		ctx:       context.Background(),
	}
}

// bind attaches the controller to the compositor's lifecycle context so
// pending auto-dismiss timers die with the compositor.
func (o *overlayController) bind(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ctx = ctx
}

// Snapshot returns a value copy of the overlay configuration. Payload
// pointers are shared but treated as immutable by convention; Set always
// replaces whole payloads.
func (o *overlayController) Snapshot() domain.OverlayState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *overlayController) Set(kind domain.OverlayKind, payload interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch kind {
	case domain.OverlayBackground:
		p, ok := payload.(*domain.BackgroundOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.Background = p
	case domain.OverlayMediaClip:
		p, ok := payload.(*domain.MediaClipOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.MediaClip = p
	case domain.OverlayStaticImage:
		p, ok := payload.(*domain.VideoFrame)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.StaticImage = p
	case domain.OverlayLogo:
		p, ok := payload.(*domain.LogoOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.Logo = p
	case domain.OverlayCaption:
		p, ok := payload.(*domain.CaptionOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.Caption = p
	case domain.OverlayBanner:
		p, ok := payload.(*domain.BannerOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.Banner = p
	case domain.OverlayChatPanel:
		p, ok := payload.(*domain.ChatPanelOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.ChatPanel = p
	case domain.OverlayTeleprompter:
		p, ok := payload.(*domain.TeleprompterOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.Teleprompter = p
	case domain.OverlaySocialCard:
		p, ok := payload.(*domain.SocialCardOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		if p.ShownAt.IsZero() {
			p.ShownAt = time.Now()
		}
		o.state.SocialCard = p
		o.scheduleSocialDismissLocked()
	case domain.OverlayCountdown:
		p, ok := payload.(*domain.CountdownOverlay)
		if !ok {
			return domain.ErrInvalidOverlay
		}
		o.state.Countdown = p
	default:
		return domain.ErrInvalidOverlay
	}
	return nil
}

func (o *overlayController) Clear(kind domain.OverlayKind) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch kind {
	case domain.OverlayBackground:
		o.state.Background = nil
	case domain.OverlayMediaClip:
		o.state.MediaClip = nil
	case domain.OverlayStaticImage:
		o.state.StaticImage = nil
	case domain.OverlayLogo:
		o.state.Logo = nil
	case domain.OverlayCaption:
		o.state.Caption = nil
	case domain.OverlayBanner:
		o.state.Banner = nil
	case domain.OverlayChatPanel:
		o.state.ChatPanel = nil
	case domain.OverlayTeleprompter:
		o.state.Teleprompter = nil
	case domain.OverlaySocialCard:
		o.state.SocialCard = nil
		if o.socialTask != nil {
			go o.socialTask.Cancel()
			o.socialTask = nil
		}
	case domain.OverlayCountdown:
		o.state.Countdown = nil
	}
}

// scheduleSocialDismissLocked arms the auto-dismiss timer for the social
// card, replacing any pending one. Caller holds o.mu.
func (o *overlayController) scheduleSocialDismissLocked() {
	if o.socialTask != nil {
		prev := o.socialTask
		go prev.Cancel()
	}
	o.socialTask = tasks.After(o.ctx, o.socialTTL, func(ctx context.Context) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.state.SocialCard = nil
		o.socialTask = nil
	})
}

// stop cancels any pending auto-dismiss timer.
func (o *overlayController) stop() {
	o.mu.Lock()
	task := o.socialTask
	o.socialTask = nil
	o.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}
