package domain

import "time"

// OverlayKind is the closed set of overlay variants. The compositor draws
// variants in one fixed global order so preview and captured output are
// always identical.
type OverlayKind string

const (
	OverlayBackground   OverlayKind = "background"
	OverlayMediaClip    OverlayKind = "media_clip"
	OverlayStaticImage  OverlayKind = "static_image"
	OverlayLogo         OverlayKind = "logo"
	OverlayCaption      OverlayKind = "caption"
	OverlayBanner       OverlayKind = "banner"
	OverlayChatPanel    OverlayKind = "chat_panel"
	OverlayTeleprompter OverlayKind = "teleprompter"
	OverlaySocialCard   OverlayKind = "social_card"
	OverlayCountdown    OverlayKind = "countdown"
)

// Corner anchors banners and the logo.
type Corner string

const (
	CornerTopLeft     Corner = "top_left"
	CornerTopRight    Corner = "top_right"
	CornerBottomLeft  Corner = "bottom_left"
	CornerBottomRight Corner = "bottom_right"
)

type CaptionOverlay struct {
	Text string
}

type BannerOverlay struct {
	Text   string
	Corner Corner
}

type ChatPanelOverlay struct {
	Box      BoundingBox
	Messages []string
}

type SocialCardOverlay struct {
	Author  string
	Text    string
	ShownAt time.Time
}

type TeleprompterOverlay struct {
	Text   string
	Offset int
}

type CountdownOverlay struct {
	Remaining int
}

type LogoOverlay struct {
	Image  *VideoFrame
	Corner Corner
}

type BackgroundOverlay struct {
	Color [3]byte
	Image *VideoFrame
}

type MediaClipOverlay struct {
	Source    VideoSource
	FullFrame bool
}

// OverlayState is the full overlay configuration. The compositor receives one
// immutable snapshot per render cycle; nil fields are not drawn.
type OverlayState struct {
	Background   *BackgroundOverlay
	MediaClip    *MediaClipOverlay
	StaticImage  *VideoFrame
	Logo         *LogoOverlay
	Caption      *CaptionOverlay
	Banner       *BannerOverlay
	ChatPanel    *ChatPanelOverlay
	Teleprompter *TeleprompterOverlay
	SocialCard   *SocialCardOverlay
	Countdown    *CountdownOverlay
}
