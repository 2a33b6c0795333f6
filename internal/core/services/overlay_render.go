package services

import (
	"fmt"
	"image/color"

	"stagecast/internal/core/domain"
)

// Draw-order colors. Fixed values keep consecutive renders of an unchanged
// scene byte-identical.
var (
	stageBackground = color.RGBA{R: 18, G: 18, B: 24, A: 255}
	placeholderFill = color.RGBA{R: 44, G: 44, B: 56, A: 255}
	nameTagFill     = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	nameTagText     = color.RGBA{R: 235, G: 235, B: 235, A: 255}
	speakingRing    = color.RGBA{R: 64, G: 200, B: 120, A: 255}
	captionBarFill  = color.RGBA{R: 12, G: 12, B: 12, A: 255}
	captionText     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	bannerFill      = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	chatPanelFill   = color.RGBA{R: 24, G: 24, B: 32, A: 255}
	promptFill      = color.RGBA{R: 10, G: 10, B: 10, A: 255}
	promptText      = color.RGBA{R: 250, G: 230, B: 120, A: 255}
	socialCardFill  = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	socialCardText  = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	countdownFill   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	countdownText   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	nameTagHeight   = 22
	captionBarH     = 48
	bannerWidth     = 360
	bannerHeight    = 44
	cornerMargin    = 16
	promptHeight    = 160
	socialCardWidth = 340
	socialCardH     = 96
	chatLineHeight  = 16
	ringThickness   = 4
)

// renderFrame is the single rendering path. Every layer draws onto the
// capture canvas; at the teleprompter step the capture raster is copied to
// the preview canvas and the teleprompter is drawn there alone, so the
// remaining layers (social card, countdown) land on both surfaces and the
// countdown stays topmost everywhere.
func (s *compositorService) renderFrame(
	seq uint64,
	layout domain.LayoutID,
	participants []domain.ParticipantStream,
	screenActive bool,
	overlay domain.OverlayState,
) *domain.VideoFrame {
	onStage := participants[:0:0]
	for _, p := range participants {
		if p.OnStage() {
			onStage = append(onStage, p)
		}
	}

	result := ComputeLayout(layout, len(onStage), screenActive, s.cfg.Width, s.cfg.Height)

	s.drawBackground(overlay.Background)
	s.drawParticipants(onStage, result.Boxes)
	s.drawScreenShare(onStage, result.ScreenBox)

	if overlay.MediaClip != nil {
		s.drawMediaClip(overlay.MediaClip)
	}
	if overlay.StaticImage != nil {
		s.capture.DrawFrame(overlay.StaticImage, fullCanvasBox(s.cfg.Width, s.cfg.Height))
	}
	if overlay.Logo != nil {
		s.drawLogo(overlay.Logo)
	}
	if overlay.Caption != nil {
		s.drawCaption(overlay.Caption)
	}
	if overlay.Banner != nil {
		s.drawBanner(overlay.Banner)
	}
	if overlay.ChatPanel != nil {
		s.drawChatPanel(overlay.ChatPanel)
	}

	// Fork point: everything below the teleprompter is already identical on
	// both rasters.
	s.preview.CopyFrom(s.capture)
	if overlay.Teleprompter != nil {
		s.drawTeleprompter(s.preview, overlay.Teleprompter)
	}

	if overlay.SocialCard != nil {
		s.drawSocialCard(s.capture, overlay.SocialCard)
		s.drawSocialCard(s.preview, overlay.SocialCard)
	}
	if overlay.Countdown != nil {
		s.drawCountdown(s.capture, overlay.Countdown)
		s.drawCountdown(s.preview, overlay.Countdown)
	}

	return s.capture.Snapshot(seq)
}

func fullCanvasBox(w, h int) domain.BoundingBox {
	return domain.BoundingBox{X: 0, Y: 0, Width: w, Height: h}
}

func (s *compositorService) drawBackground(bg *domain.BackgroundOverlay) {
	if bg == nil {
		s.capture.Fill(stageBackground)
		return
	}
	if bg.Image != nil {
		s.capture.DrawFrame(bg.Image, fullCanvasBox(s.cfg.Width, s.cfg.Height))
		return
	}
	s.capture.Fill(color.RGBA{R: bg.Color[0], G: bg.Color[1], B: bg.Color[2], A: 255})
}

// drawParticipants renders each on-stage participant into its layout box:
// live video when a frame is ready, the avatar when the camera is off, and a
// flat placeholder otherwise. Camera-off speakers get a ring so the operator
// can see who is talking.
func (s *compositorService) drawParticipants(onStage []domain.ParticipantStream, boxes []domain.BoundingBox) {
	for i, p := range onStage {
		if i >= len(boxes) {
			break
		}
		box := boxes[i]

		drewVideo := false
		if p.VideoEnabled && p.VideoTrack != nil {
			if frame, ok := p.VideoTrack.Latest(); ok {
				s.capture.DrawFrame(frame, box)
				drewVideo = true
			}
		}
		if !drewVideo {
			if p.Avatar != nil {
				s.capture.DrawFrame(p.Avatar, box)
			} else {
				s.capture.FillRect(box, placeholderFill)
			}
			if s.mixer.Speaking(p.ID) {
				s.capture.StrokeRect(box, speakingRing, ringThickness)
			}
		}

		s.drawNameTag(box, p.DisplayName)
	}
}

func (s *compositorService) drawNameTag(box domain.BoundingBox, name string) {
	if box.Height < nameTagHeight*2 || name == "" {
		return
	}
	tag := domain.BoundingBox{
		X:      box.X,
		Y:      box.Y + box.Height - nameTagHeight,
		Width:  box.Width,
		Height: nameTagHeight,
	}
	s.capture.FillRect(tag, nameTagFill)
	s.capture.DrawText(tag.X+8, tag.Y+nameTagHeight-7, name, nameTagText)
}

func (s *compositorService) drawScreenShare(onStage []domain.ParticipantStream, screenBox *domain.BoundingBox) {
	if screenBox == nil {
		return
	}
	for _, p := range onStage {
		if !p.ScreenShare || p.VideoTrack == nil {
			continue
		}
		if frame, ok := p.VideoTrack.Latest(); ok {
			s.capture.DrawFrame(frame, *screenBox)
		} else {
			s.capture.FillRect(*screenBox, placeholderFill)
		}
		return
	}
	s.capture.FillRect(*screenBox, placeholderFill)
}

func (s *compositorService) drawMediaClip(clip *domain.MediaClipOverlay) {
	if clip.Source == nil {
		return
	}
	frame, ok := clip.Source.Latest()
	if !ok {
		return
	}
	if clip.FullFrame {
		s.capture.DrawFrame(frame, fullCanvasBox(s.cfg.Width, s.cfg.Height))
		return
	}
	// Centered window covering 80% of the canvas.
	w := s.cfg.Width * 4 / 5
	h := s.cfg.Height * 4 / 5
	s.capture.DrawFrame(frame, domain.BoundingBox{
		X:      (s.cfg.Width - w) / 2,
		Y:      (s.cfg.Height - h) / 2,
		Width:  w,
		Height: h,
	})
}

func (s *compositorService) drawLogo(logo *domain.LogoOverlay) {
	if logo.Image == nil {
		return
	}
	box := cornerBox(logo.Corner, logo.Image.Width, logo.Image.Height, s.cfg.Width, s.cfg.Height)
	s.capture.DrawFrame(logo.Image, box)
}

func (s *compositorService) drawCaption(c *domain.CaptionOverlay) {
	if c.Text == "" {
		return
	}
	bar := domain.BoundingBox{
		X:      0,
		Y:      s.cfg.Height - captionBarH,
		Width:  s.cfg.Width,
		Height: captionBarH,
	}
	s.capture.FillRect(bar, captionBarFill)
	tw := s.capture.TextWidth(c.Text)
	s.capture.DrawText((s.cfg.Width-tw)/2, bar.Y+captionBarH/2+5, c.Text, captionText)
}

func (s *compositorService) drawBanner(b *domain.BannerOverlay) {
	box := cornerBox(b.Corner, bannerWidth, bannerHeight, s.cfg.Width, s.cfg.Height)
	s.capture.FillRect(box, bannerFill)
	s.capture.DrawText(box.X+12, box.Y+bannerHeight/2+5, b.Text, captionText)
}

func (s *compositorService) drawChatPanel(p *domain.ChatPanelOverlay) {
	box := p.Box
	if box.Width <= 0 || box.Height <= 0 {
		// No box supplied: dock the panel on the right edge, clear of the
		// caption bar.
		box = domain.BoundingBox{
			X:      s.cfg.Width*3/4 - cornerMargin,
			Y:      cornerMargin,
			Width:  s.cfg.Width / 4,
			Height: s.cfg.Height - captionBarH - 2*cornerMargin,
		}
	}
	s.capture.FillRect(box, chatPanelFill)

	maxLines := box.Height / chatLineHeight
	msgs := p.Messages
	if len(msgs) > maxLines {
		msgs = msgs[len(msgs)-maxLines:]
	}
	for i, msg := range msgs {
		s.capture.DrawText(box.X+6, box.Y+(i+1)*chatLineHeight-3, msg, nameTagText)
	}
}

func (s *compositorService) drawTeleprompter(target *Canvas, t *domain.TeleprompterOverlay) {
	strip := domain.BoundingBox{X: 0, Y: 0, Width: s.cfg.Width, Height: promptHeight}
	target.FillRect(strip, promptFill)

	lines := splitPromptLines(t.Text, s.cfg.Width/8)
	start := t.Offset
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	y := 24
	for _, line := range lines[start:] {
		if y > promptHeight-8 {
			break
		}
		target.DrawText(16, y, line, promptText)
		y += 20
	}
}

func (s *compositorService) drawSocialCard(target *Canvas, card *domain.SocialCardOverlay) {
	box := domain.BoundingBox{
		X:      s.cfg.Width - socialCardWidth - cornerMargin,
		Y:      cornerMargin,
		Width:  socialCardWidth,
		Height: socialCardH,
	}
	target.FillRect(box, socialCardFill)
	target.DrawText(box.X+12, box.Y+24, card.Author, socialCardText)
	for i, line := range splitPromptLines(card.Text, (socialCardWidth-24)/7) {
		if i >= 3 {
			break
		}
		target.DrawText(box.X+12, box.Y+44+i*18, line, socialCardText)
	}
}

func (s *compositorService) drawCountdown(target *Canvas, c *domain.CountdownOverlay) {
	label := fmt.Sprintf("LIVE IN %d", c.Remaining)
	tw := target.TextWidth(label)
	box := domain.BoundingBox{
		X:      (s.cfg.Width - tw) / 2 - 24,
		Y:      s.cfg.Height/2 - 30,
		Width:  tw + 48,
		Height: 60,
	}
	target.FillRect(box, countdownFill)
	target.StrokeRect(box, countdownText, 2)
	target.DrawText((s.cfg.Width-tw)/2, s.cfg.Height/2+5, label, countdownText)
}

func cornerBox(corner domain.Corner, w, h, canvasW, canvasH int) domain.BoundingBox {
	box := domain.BoundingBox{Width: w, Height: h}
	switch corner {
	case domain.CornerTopLeft:
		box.X, box.Y = cornerMargin, cornerMargin
	case domain.CornerTopRight:
		box.X, box.Y = canvasW-w-cornerMargin, cornerMargin
	case domain.CornerBottomLeft:
		box.X, box.Y = cornerMargin, canvasH-h-cornerMargin
	default:
		box.X, box.Y = canvasW-w-cornerMargin, canvasH-h-cornerMargin
	}
	return box
}

// splitPromptLines breaks text into display lines of at most width runes,
// splitting on existing newlines first.
func splitPromptLines(text string, width int) []string {
	if width < 8 {
		width = 8
	}
	var lines []string
	line := make([]rune, 0, width)
	for _, r := range text {
		if r == '\n' || len(line) >= width {
			lines = append(lines, string(line))
			line = line[:0]
			if r == '\n' {
				continue
			}
		}
		line = append(line, r)
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return lines
}
