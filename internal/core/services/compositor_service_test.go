package services

import (
	"bytes"
	"testing"

	"stagecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stillSource always has the same frame ready.
type stillSource struct {
	frame *domain.VideoFrame
}

func (s *stillSource) Latest() (*domain.VideoFrame, bool) {
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// emptySource never has a frame ready.
type emptySource struct{}

func (emptySource) Latest() (*domain.VideoFrame, bool) { return nil, false }

func solidFrame(w, h int, r, g, b byte) *domain.VideoFrame {
	f := &domain.VideoFrame{Width: w, Height: h, Data: make([]byte, w*h*4)}
	for i := 0; i < len(f.Data); i += 4 {
		f.Data[i] = r
		f.Data[i+1] = g
		f.Data[i+2] = b
		f.Data[i+3] = 255
	}
	return f
}

func newTestCompositor(t *testing.T) *compositorService {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	registry := NewRegistryService(logger)
	mixer := NewMixerService(MixerConfig{SampleRate: 48000, SpeakingThreshold: SpeakingThreshold, Smoothing: LevelSmoothing}, nil, logger)
	output := NewCompositeStream(logger)

	cfg := CompositorConfig{Width: 320, Height: 180, FrameRate: 30, DefaultLayout: domain.LayoutGroup}
	return NewCompositorService(cfg, registry, mixer, output, logger).(*compositorService)
}

func addParticipant(t *testing.T, c *compositorService, id domain.ParticipantID, video domain.VideoSource) {
	t.Helper()
	err := c.registry.Add(&domain.ParticipantStream{
		ID:           id,
		DisplayName:  string(id),
		Role:         RoleOrGuest(id),
		VideoEnabled: video != nil,
		VideoTrack:   video,
	})
	require.NoError(t, err)
}

func RoleOrGuest(id domain.ParticipantID) domain.Role {
	if id == "host" {
		return domain.RoleHost
	}
	return domain.RoleGuest
}

func TestCompositor_ConsecutiveRendersOfUnchangedSceneAreIdentical(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", &stillSource{frame: solidFrame(64, 36, 200, 40, 40)})
	addParticipant(t, c, "g1", nil)

	snapshot := c.registry.Snapshot()
	overlay := c.overlays.Snapshot()

	first := c.renderFrame(1, domain.LayoutGroup, snapshot, false, overlay)
	second := c.renderFrame(1, domain.LayoutGroup, snapshot, false, overlay)
	assert.True(t, bytes.Equal(first.Data, second.Data))
}

func TestCompositor_CameraOffDrawsPlaceholder(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", nil)

	frame := c.RenderOnce()
	require.NotNil(t, frame)

	// Sample well inside the solo box; it must carry the placeholder fill,
	// not the stage background.
	px := samplePixel(frame, frame.Width/2, frame.Height/2)
	assert.Equal(t, [3]byte{placeholderFill.R, placeholderFill.G, placeholderFill.B}, px)
}

func TestCompositor_NotReadySourceFallsBackToPlaceholder(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", emptySource{})

	frame := c.RenderOnce()
	px := samplePixel(frame, frame.Width/2, frame.Height/2)
	assert.Equal(t, [3]byte{placeholderFill.R, placeholderFill.G, placeholderFill.B}, px)
}

func TestCompositor_ReadyVideoIsBlitted(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", &stillSource{frame: solidFrame(64, 36, 10, 220, 10)})

	frame := c.RenderOnce()
	px := samplePixel(frame, frame.Width/2, frame.Height/2)
	assert.Equal(t, [3]byte{10, 220, 10}, px)
}

func TestCompositor_TeleprompterExcludedFromCapture(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", nil)
	require.NoError(t, c.SetOverlay(domain.OverlayTeleprompter, &domain.TeleprompterOverlay{Text: "welcome back everyone"}))

	captured := c.RenderOnce()
	preview := c.PreviewFrame()
	require.NotNil(t, preview)

	// Top strip differs: preview carries the prompter, capture does not.
	assert.False(t, bytes.Equal(captured.Data, preview.Data))
	px := samplePixel(preview, 4, 4)
	assert.Equal(t, [3]byte{promptFill.R, promptFill.G, promptFill.B}, px)
	captPx := samplePixel(captured, 4, 4)
	assert.NotEqual(t, [3]byte{promptFill.R, promptFill.G, promptFill.B}, captPx)
}

func TestCompositor_CountdownTopsBothRasters(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", &stillSource{frame: solidFrame(64, 36, 200, 200, 200)})
	require.NoError(t, c.SetOverlay(domain.OverlayCountdown, &domain.CountdownOverlay{Remaining: 5}))

	captured := c.RenderOnce()
	preview := c.PreviewFrame()

	cx, cy := captured.Width/2, captured.Height/2
	want := [3]byte{countdownFill.R, countdownFill.G, countdownFill.B}
	assert.Equal(t, want, samplePixel(captured, cx, cy-20))
	assert.Equal(t, want, samplePixel(preview, cx, cy-20))
}

func TestCompositor_ChatPanelWithoutBoxDocksRight(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", nil)
	require.NoError(t, c.SetOverlay(domain.OverlayChatPanel, &domain.ChatPanelOverlay{Messages: []string{"hi"}}))

	frame := c.RenderOnce()
	px := samplePixel(frame, frame.Width*3/4-cornerMargin+8, frame.Height/2)
	assert.Equal(t, [3]byte{chatPanelFill.R, chatPanelFill.G, chatPanelFill.B}, px)
}

func TestCompositor_ChatPanelHonorsExplicitBox(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", nil)
	require.NoError(t, c.SetOverlay(domain.OverlayChatPanel, &domain.ChatPanelOverlay{
		Box:      domain.BoundingBox{X: 10, Y: 10, Width: 60, Height: 60},
		Messages: []string{"hi"},
	}))

	frame := c.RenderOnce()
	want := [3]byte{chatPanelFill.R, chatPanelFill.G, chatPanelFill.B}
	assert.Equal(t, want, samplePixel(frame, 40, 50))
	assert.NotEqual(t, want, samplePixel(frame, 100, 50))
}

func TestCompositor_SetLayoutValidates(t *testing.T) {
	c := newTestCompositor(t)
	assert.ErrorIs(t, c.SetLayout("mosaic"), domain.ErrUnknownLayout)
	assert.Equal(t, domain.LayoutGroup, c.SelectedLayout())

	require.NoError(t, c.SetLayout(domain.LayoutSpotlight))
	assert.Equal(t, domain.LayoutSpotlight, c.SelectedLayout())
}

func TestCompositor_BackstageExcludedFromStage(t *testing.T) {
	c := newTestCompositor(t)
	require.NoError(t, c.registry.Add(&domain.ParticipantStream{
		ID:          "lurker",
		DisplayName: "lurker",
		Role:        domain.RoleBackstage,
		VideoTrack:  &stillSource{frame: solidFrame(64, 36, 250, 0, 0)},
	}))

	frame := c.RenderOnce()
	// Nobody on stage: full-canvas placeholder box, no participant video.
	px := samplePixel(frame, frame.Width/2, frame.Height/2)
	assert.NotEqual(t, [3]byte{250, 0, 0}, px)
}

func TestCompositor_OverlayClearRestoresScene(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", nil)

	base := c.RenderOnce()
	require.NoError(t, c.SetOverlay(domain.OverlayCaption, &domain.CaptionOverlay{Text: "hello"}))
	withCaption := c.RenderOnce()
	assert.False(t, bytes.Equal(base.Data, withCaption.Data))

	c.ClearOverlay(domain.OverlayCaption)
	cleared := c.RenderOnce()
	assert.True(t, bytes.Equal(base.Data, cleared.Data))
}

func TestCompositor_FrameSequenceMonotonic(t *testing.T) {
	c := newTestCompositor(t)
	addParticipant(t, c, "host", nil)

	f1 := c.RenderOnce()
	f2 := c.RenderOnce()
	assert.Equal(t, f1.Seq+1, f2.Seq)

	rendered, dropped := c.Stats()
	assert.Equal(t, uint64(2), rendered)
	assert.Zero(t, dropped)
}

func samplePixel(f *domain.VideoFrame, x, y int) [3]byte {
	off := (y*f.Width + x) * 4
	return [3]byte{f.Data[off], f.Data[off+1], f.Data[off+2]}
}
