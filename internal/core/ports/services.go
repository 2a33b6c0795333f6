package ports

import (
	"context"

	"stagecast/internal/core/domain"
)

// SourceRegistry tracks every live input source. It is the sole mutator of
// participant existence and state; consumers work from Snapshot copies.
type SourceRegistry interface {
	Add(p *domain.ParticipantStream) error
	Remove(id domain.ParticipantID) error
	Get(id domain.ParticipantID) (domain.ParticipantStream, error)
	SetVideoEnabled(id domain.ParticipantID, enabled bool) error
	SetAudioEnabled(id domain.ParticipantID, enabled bool) error
	SetRole(id domain.ParticipantID, role domain.Role) error
	SetQuality(id domain.ParticipantID, level domain.QualityLevel) error
	Snapshot() []domain.ParticipantStream
	ScreenShareActive() bool
	// OnRemove registers a cleanup hook run on every removal path.
	OnRemove(fn func(domain.ParticipantID))
}

// AudioMixer combines enabled audio sources into one mixed output track.
type AudioMixer interface {
	AddSource(id domain.ParticipantID, src domain.AudioSource)
	RemoveSource(id domain.ParticipantID)
	SetGain(id domain.ParticipantID, gain float64)
	SetEnabled(id domain.ParticipantID, enabled bool)
	Speaking(id domain.ParticipantID) bool
	Level(id domain.ParticipantID) float64
	Start(ctx context.Context) error
	Stop()
	Ready() bool
}

// Compositor owns the render loop and the overlay stack.
type Compositor interface {
	Start(ctx context.Context) error
	Stop()
	Output() CompositeOutput
	SetLayout(id domain.LayoutID) error
	SelectedLayout() domain.LayoutID
	SetOverlay(kind domain.OverlayKind, payload interface{}) error
	ClearOverlay(kind domain.OverlayKind)
	Stats() (rendered, dropped uint64)
}

// FanoutResult reports the outcome of starting all destinations.
type FanoutResult struct {
	Success bool
	Failed  []domain.DestinationID
}

// FanoutManager owns per-destination connection state machines.
type FanoutManager interface {
	AddDestination(platform domain.Platform, creds domain.Credentials) (*domain.Destination, error)
	RemoveDestination(ctx context.Context, id domain.DestinationID) error
	Destination(id domain.DestinationID) (domain.Destination, error)
	ListDestinations() []domain.Destination
	StartAll(ctx context.Context, ids []domain.DestinationID, output CompositeOutput) (FanoutResult, error)
	StopAll(ctx context.Context) error
	OnStatusChange(fn func(domain.Destination))
}

// BroadcastOrchestrator sequences go-live and end-broadcast.
type BroadcastOrchestrator interface {
	GoLive(ctx context.Context, destinationIDs []domain.DestinationID) error
	EndBroadcast(ctx context.Context) error
	Session() domain.BroadcastSession
}

// Recorder captures the composite stream to disk, independent of broadcast
// state.
type Recorder interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop(ctx context.Context) (*domain.FinishedRecording, error)
	Session() domain.RecordingSession
	Active() bool
}

// QualityMonitor samples transport statistics per peer and pushes scored
// reports to subscribers.
type QualityMonitor interface {
	Track(id domain.ParticipantID, src StatsSource)
	Untrack(id domain.ParticipantID)
	Subscribe(buffer int) <-chan domain.QualityReport
	Latest(id domain.ParticipantID) (domain.QualityReport, bool)
	Start(ctx context.Context)
	Stop()
}

// TransportHandle is one live destination connection.
type TransportHandle interface {
	Stop(ctx context.Context) error
}

// DestinationTransport opens one protocol leg (WHIP or RTMP relay) for a
// destination and attaches it to the composite output.
type DestinationTransport interface {
	Method() domain.ProtocolMethod
	Start(ctx context.Context, dest domain.Destination, output CompositeOutput) (TransportHandle, error)
}

// ProvisioningClient is the external platform-broadcast-provisioning API.
type ProvisioningClient interface {
	CreateBroadcastObjects(ctx context.Context, sessionID domain.SessionID, destinations []domain.Destination) error
	ListDestinations(ctx context.Context, sessionID domain.SessionID) ([]domain.DestinationID, error)
	TransitionToLive(ctx context.Context, destinationID domain.DestinationID) error
	EndBroadcast(ctx context.Context, sessionID domain.SessionID) error
}

// AuthService issues and validates operator tokens for the control API.
type AuthService interface {
	IssueToken(operatorID string) (string, error)
	ValidateToken(token string) (string, error)
}
