package domain

import "time"

type ParticipantID string
type SessionID string
type DestinationID string
type RecordingID string

// Role controls whether a participant appears in the composite frame.
// Backstage participants are captured but excluded until promoted.
type Role string

const (
	RoleHost      Role = "host"
	RoleGuest     Role = "guest"
	RoleBackstage Role = "backstage"
)

// ParticipantStream is one live input source. The source registry is the sole
// mutator; every other component works from per-frame read snapshots.
type ParticipantStream struct {
	ID           ParticipantID
	DisplayName  string
	Role         Role
	VideoEnabled bool
	AudioEnabled bool
	VideoTrack   VideoSource
	AudioTrack   AudioSource
	Avatar       *VideoFrame
	ScreenShare  bool
	Quality      QualityLevel
	JoinedAt     time.Time
}

// OnStage reports whether the participant is drawn into the composite frame.
func (p *ParticipantStream) OnStage() bool {
	return p.Role == RoleHost || p.Role == RoleGuest
}
