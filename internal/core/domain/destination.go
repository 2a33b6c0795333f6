package domain

import "time"

// Platform is the external streaming service a destination points at.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformTwitch   Platform = "twitch"
	PlatformFacebook Platform = "facebook"
	PlatformLinkedIn Platform = "linkedin"
	PlatformCustom   Platform = "custom"
)

// whipCapable lists platforms that accept an HTTP-negotiated push session.
// Every other platform is reached through the RTMP relay.
var whipCapable = map[Platform]bool{
	PlatformYouTube: true,
	PlatformTwitch:  true,
}

// SupportsWHIP reports whether the platform accepts WHIP ingest.
func (p Platform) SupportsWHIP() bool {
	return whipCapable[p]
}

// ProtocolMethod is the wire method used to reach a destination. Selection is
// derived from platform capability, never operator choice.
type ProtocolMethod string

const (
	MethodWHIP      ProtocolMethod = "whip"
	MethodRTMPRelay ProtocolMethod = "rtmp-relay"
)

// MethodFor returns the protocol method for the platform.
func MethodFor(p Platform) ProtocolMethod {
	if p.SupportsWHIP() {
		return MethodWHIP
	}
	return MethodRTMPRelay
}

// DestinationStatus is the per-destination connection lifecycle. Transitions
// only ever move forward within one connection; ending a broadcast resets a
// stopped record to pending so the next session can select it again.
type DestinationStatus string

const (
	DestinationPending    DestinationStatus = "pending"
	DestinationConnecting DestinationStatus = "connecting"
	DestinationConnected  DestinationStatus = "connected"
	DestinationFailed     DestinationStatus = "failed"
	DestinationStopped    DestinationStatus = "stopped"
)

var destinationTransitions = map[DestinationStatus][]DestinationStatus{
	DestinationPending:    {DestinationConnecting, DestinationStopped},
	DestinationConnecting: {DestinationConnected, DestinationFailed, DestinationStopped},
	DestinationConnected:  {DestinationFailed, DestinationStopped},
	DestinationFailed:     {DestinationStopped},
	DestinationStopped:    {},
}

// AllDestinationStatuses lists every lifecycle status in order.
func AllDestinationStatuses() []DestinationStatus {
	return []DestinationStatus{
		DestinationPending,
		DestinationConnecting,
		DestinationConnected,
		DestinationFailed,
		DestinationStopped,
	}
}

// CanTransition reports whether a status change is legal.
func (s DestinationStatus) CanTransition(to DestinationStatus) bool {
	for _, next := range destinationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Credentials carries exactly the fields the selected method needs.
type Credentials struct {
	RTMPURL     string
	StreamKey   string
	WHIPURL     string
	BearerToken string
}

// Destination is one fanout target. Status transitions are owned solely by
// the fanout manager.
type Destination struct {
	ID          DestinationID
	Platform    Platform
	Method      ProtocolMethod
	Credentials Credentials
	Status      DestinationStatus
	LastError   string
	ConnectedAt time.Time
}
