package http

import (
	stderrors "errors"
	"net/http"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/errors"
	"stagecast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// StudioHandler is the operator-facing control API. Every mutating endpoint
// goes through AuthMiddleware; errors flow to ErrorHandlerMiddleware.
type StudioHandler struct {
	broadcast  ports.BroadcastOrchestrator
	compositor ports.Compositor
	registry   ports.SourceRegistry
	mixer      ports.AudioMixer
	fanout     ports.FanoutManager
	recorder   ports.Recorder
	quality    ports.QualityMonitor
	catalog    ports.RecordingCatalog
}

func NewStudioHandler(
	broadcast ports.BroadcastOrchestrator,
	compositor ports.Compositor,
	registry ports.SourceRegistry,
	mixer ports.AudioMixer,
	fanout ports.FanoutManager,
	recorder ports.Recorder,
	quality ports.QualityMonitor,
	catalog ports.RecordingCatalog,
) *StudioHandler {
	return &StudioHandler{
		broadcast:  broadcast,
		compositor: compositor,
		registry:   registry,
		mixer:      mixer,
		fanout:     fanout,
		recorder:   recorder,
		quality:    quality,
		catalog:    catalog,
	}
}

func (h *StudioHandler) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(auth)
	{
		api.POST("/broadcast/start", h.StartBroadcast)
		api.POST("/broadcast/end", h.EndBroadcast)
		api.GET("/session", h.GetSession)

		api.PUT("/layout", h.SetLayout)
		api.PUT("/overlays/:kind", h.SetOverlay)
		api.DELETE("/overlays/:kind", h.ClearOverlay)

		api.GET("/sources", h.ListSources)
		api.PATCH("/sources/:id", h.UpdateSource)
		api.DELETE("/sources/:id", h.RemoveSource)

		api.POST("/destinations", h.AddDestination)
		api.GET("/destinations", h.ListDestinations)
		api.DELETE("/destinations/:id", h.RemoveDestination)

		api.POST("/recordings/start", h.StartRecording)
		api.POST("/recordings/pause", h.PauseRecording)
		api.POST("/recordings/resume", h.ResumeRecording)
		api.POST("/recordings/stop", h.StopRecording)
		api.GET("/recordings", h.ListRecordings)
	}
}

type startBroadcastRequest struct {
	DestinationIDs []string `json:"destination_ids" binding:"required,min=1"`
}

func (h *StudioHandler) StartBroadcast(c *gin.Context) {
	var req startBroadcastRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	ids := make([]domain.DestinationID, 0, len(req.DestinationIDs))
	for _, id := range req.DestinationIDs {
		ids = append(ids, domain.DestinationID(id))
	}

	if err := h.broadcast.GoLive(c.Request.Context(), ids); err != nil {
		switch {
		case stderrors.Is(err, domain.ErrAlreadyLive):
			c.Error(errors.NewAlreadyLiveError())
		case stderrors.Is(err, domain.ErrNoValidDestinations):
			c.Error(errors.NewNoDestinationsError())
		case stderrors.Is(err, domain.ErrCompositeUnavailable):
			c.Error(errors.WrapError(err, errors.ErrCodeInternal, "composite stream unavailable", http.StatusServiceUnavailable))
		case stderrors.Is(err, domain.ErrProvisioningTimeout):
			c.Error(errors.WrapError(err, errors.ErrCodeProvisioning, "platform provisioning timed out", http.StatusBadGateway))
		default:
			c.Error(errors.WrapError(err, errors.ErrCodeProvisioning, "failed to go live", http.StatusBadGateway))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": h.sessionView()})
}

func (h *StudioHandler) EndBroadcast(c *gin.Context) {
	if err := h.broadcast.EndBroadcast(c.Request.Context()); err != nil {
		if stderrors.Is(err, domain.ErrNotLive) {
			c.Error(errors.NewAppError(errors.ErrCodeNotLive, "no broadcast in progress", http.StatusConflict))
			return
		}
		c.Error(errors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": h.sessionView()})
}

func (h *StudioHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session":   h.sessionView(),
		"recording": h.recorder.Session(),
		"layout":    h.compositor.SelectedLayout(),
	})
}

func (h *StudioHandler) sessionView() gin.H {
	session := h.broadcast.Session()
	return gin.H{
		"id":                session.ID,
		"state":             session.State,
		"started_at":        session.StartedAt,
		"destination_ids":   session.DestinationIDs,
		"countdown_seconds": session.CountdownSeconds,
	}
}

type setLayoutRequest struct {
	Layout string `json:"layout" binding:"required"`
}

func (h *StudioHandler) SetLayout(c *gin.Context) {
	var req setLayoutRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := h.compositor.SetLayout(domain.LayoutID(req.Layout)); err != nil {
		c.Error(errors.NewInvalidInputError("unknown layout: " + req.Layout))
		return
	}

	c.JSON(http.StatusOK, gin.H{"layout": req.Layout})
}

type overlayRequest struct {
	Text     string   `json:"text"`
	Corner   string   `json:"corner"`
	Author   string   `json:"author"`
	Messages []string `json:"messages"`
	Offset   int      `json:"offset"`
	Color    [3]byte  `json:"color"`
	Box      struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"box"`
}

// overlayPayload builds the typed payload for JSON-expressible overlay kinds.
// Image-backed overlays (logo, static image, media clips) are configured at
// startup, not over the wire.
func overlayPayload(kind domain.OverlayKind, req overlayRequest) (interface{}, bool) {
	corner := domain.Corner(req.Corner)
	if corner == "" {
		corner = domain.CornerTopRight
	}

	switch kind {
	case domain.OverlayCaption:
		return &domain.CaptionOverlay{Text: req.Text}, true
	case domain.OverlayBanner:
		return &domain.BannerOverlay{Text: req.Text, Corner: corner}, true
	case domain.OverlayChatPanel:
		return &domain.ChatPanelOverlay{
			Box: domain.BoundingBox{
				X:      req.Box.X,
				Y:      req.Box.Y,
				Width:  req.Box.Width,
				Height: req.Box.Height,
			},
			Messages: req.Messages,
		}, true
	case domain.OverlayTeleprompter:
		return &domain.TeleprompterOverlay{Text: req.Text, Offset: req.Offset}, true
	case domain.OverlaySocialCard:
		return &domain.SocialCardOverlay{Author: req.Author, Text: req.Text}, true
	case domain.OverlayBackground:
		return &domain.BackgroundOverlay{Color: req.Color}, true
	default:
		return nil, false
	}
}

func (h *StudioHandler) SetOverlay(c *gin.Context) {
	kind := domain.OverlayKind(c.Param("kind"))

	var req overlayRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	payload, ok := overlayPayload(kind, req)
	if !ok {
		c.Error(errors.NewInvalidInputError("unsupported overlay kind: " + string(kind)))
		return
	}

	if err := h.compositor.SetOverlay(kind, payload); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"overlay": kind})
}

func (h *StudioHandler) ClearOverlay(c *gin.Context) {
	kind := domain.OverlayKind(c.Param("kind"))
	h.compositor.ClearOverlay(kind)
	c.JSON(http.StatusOK, gin.H{"overlay": kind})
}

type sourceView struct {
	ID           string              `json:"id"`
	DisplayName  string              `json:"display_name"`
	Role         string              `json:"role"`
	VideoEnabled bool                `json:"video_enabled"`
	AudioEnabled bool                `json:"audio_enabled"`
	ScreenShare  bool                `json:"screen_share"`
	Quality      domain.QualityLevel `json:"quality"`
	Score        int                 `json:"score"`
	AudioLevel   float64             `json:"audio_level"`
}

func (h *StudioHandler) ListSources(c *gin.Context) {
	participants := h.registry.Snapshot()

	views := make([]sourceView, 0, len(participants))
	for _, p := range participants {
		view := sourceView{
			ID:           string(p.ID),
			DisplayName:  p.DisplayName,
			Role:         string(p.Role),
			VideoEnabled: p.VideoEnabled,
			AudioEnabled: p.AudioEnabled,
			ScreenShare:  p.ScreenShare,
			Quality:      p.Quality,
			AudioLevel:   h.mixer.Level(p.ID),
		}
		if report, ok := h.quality.Latest(p.ID); ok {
			view.Score = report.Score
			view.Quality = report.Level
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"sources": views})
}

type updateSourceRequest struct {
	VideoEnabled *bool    `json:"video_enabled"`
	AudioEnabled *bool    `json:"audio_enabled"`
	Role         *string  `json:"role"`
	Gain         *float64 `json:"gain"`
}

func (h *StudioHandler) UpdateSource(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))

	var req updateSourceRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if req.VideoEnabled != nil {
		if err := h.registry.SetVideoEnabled(id, *req.VideoEnabled); err != nil {
			c.Error(errors.NewNotFoundError("source"))
			return
		}
	}
	if req.AudioEnabled != nil {
		if err := h.registry.SetAudioEnabled(id, *req.AudioEnabled); err != nil {
			c.Error(errors.NewNotFoundError("source"))
			return
		}
		h.mixer.SetEnabled(id, *req.AudioEnabled)
	}
	if req.Role != nil {
		if err := h.registry.SetRole(id, domain.Role(*req.Role)); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}
	if req.Gain != nil {
		h.mixer.SetGain(id, *req.Gain)
	}

	source, err := h.registry.Get(id)
	if err != nil {
		c.Error(errors.NewNotFoundError("source"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"source": sourceView{
		ID:           string(source.ID),
		DisplayName:  source.DisplayName,
		Role:         string(source.Role),
		VideoEnabled: source.VideoEnabled,
		AudioEnabled: source.AudioEnabled,
		ScreenShare:  source.ScreenShare,
		Quality:      source.Quality,
	}})
}

func (h *StudioHandler) RemoveSource(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))

	if err := h.registry.Remove(id); err != nil {
		c.Error(errors.NewNotFoundError("source"))
		return
	}

	c.Status(http.StatusNoContent)
}

type addDestinationRequest struct {
	Platform    string `json:"platform" binding:"required"`
	RTMPURL     string `json:"rtmp_url"`
	StreamKey   string `json:"stream_key"`
	WHIPURL     string `json:"whip_url"`
	BearerToken string `json:"bearer_token"`
}

type destinationView struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	LastError   string `json:"last_error,omitempty"`
	ConnectedAt string `json:"connected_at,omitempty"`
}

func destinationToView(d domain.Destination) destinationView {
	view := destinationView{
		ID:        string(d.ID),
		Platform:  string(d.Platform),
		Method:    string(d.Method),
		Status:    string(d.Status),
		LastError: d.LastError,
	}
	if !d.ConnectedAt.IsZero() {
		view.ConnectedAt = d.ConnectedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return view
}

func (h *StudioHandler) AddDestination(c *gin.Context) {
	var req addDestinationRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if req.RTMPURL != "" {
		if err := validation.ValidateIngestURL(req.RTMPURL); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}
	if req.WHIPURL != "" {
		if err := validation.ValidateIngestURL(req.WHIPURL); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}

	dest, err := h.fanout.AddDestination(domain.Platform(req.Platform), domain.Credentials{
		RTMPURL:     req.RTMPURL,
		StreamKey:   req.StreamKey,
		WHIPURL:     req.WHIPURL,
		BearerToken: req.BearerToken,
	})
	if err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"destination": destinationToView(*dest)})
}

func (h *StudioHandler) ListDestinations(c *gin.Context) {
	destinations := h.fanout.ListDestinations()

	views := make([]destinationView, 0, len(destinations))
	for _, d := range destinations {
		views = append(views, destinationToView(d))
	}

	c.JSON(http.StatusOK, gin.H{"destinations": views})
}

func (h *StudioHandler) RemoveDestination(c *gin.Context) {
	id := domain.DestinationID(c.Param("id"))

	if err := h.fanout.RemoveDestination(c.Request.Context(), id); err != nil {
		c.Error(errors.NewNotFoundError("destination"))
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *StudioHandler) StartRecording(c *gin.Context) {
	if err := h.recorder.Start(c.Request.Context()); err != nil {
		switch {
		case stderrors.Is(err, domain.ErrRecordingActive):
			c.Error(errors.NewConflictError("recording already active"))
		case stderrors.Is(err, domain.ErrCompositeUnavailable):
			c.Error(errors.WrapError(err, errors.ErrCodeInternal, "composite stream unavailable", http.StatusServiceUnavailable))
		default:
			c.Error(errors.NewInternalError(err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"recording": h.recorder.Session()})
}

func (h *StudioHandler) PauseRecording(c *gin.Context) {
	if err := h.recorder.Pause(); err != nil {
		c.Error(errors.NewConflictError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": h.recorder.Session()})
}

func (h *StudioHandler) ResumeRecording(c *gin.Context) {
	if err := h.recorder.Resume(); err != nil {
		c.Error(errors.NewConflictError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": h.recorder.Session()})
}

func (h *StudioHandler) StopRecording(c *gin.Context) {
	finished, err := h.recorder.Stop(c.Request.Context())
	if err != nil {
		if stderrors.Is(err, domain.ErrRecordingNotActive) {
			c.Error(errors.NewConflictError("no recording in progress"))
			return
		}
		c.Error(errors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"recording": finished})
}

func (h *StudioHandler) ListRecordings(c *gin.Context) {
	recordings, err := h.catalog.List(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"recordings": recordings})
}
