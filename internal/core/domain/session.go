package domain

import "time"

// BroadcastState is the orchestrator state machine.
type BroadcastState string

const (
	BroadcastIdle      BroadcastState = "idle"
	BroadcastPreparing BroadcastState = "preparing"
	BroadcastCountdown BroadcastState = "countdown"
	BroadcastLive      BroadcastState = "live"
	BroadcastEnding    BroadcastState = "ending"
	BroadcastEnded     BroadcastState = "ended"
)

var broadcastTransitions = map[BroadcastState][]BroadcastState{
	BroadcastIdle:      {BroadcastPreparing},
	BroadcastPreparing: {BroadcastCountdown, BroadcastIdle},
	BroadcastCountdown: {BroadcastLive, BroadcastEnding},
	BroadcastLive:      {BroadcastEnding},
	BroadcastEnding:    {BroadcastEnded},
	BroadcastEnded:     {BroadcastIdle},
}

// CanTransition reports whether a broadcast state change is legal.
func (s BroadcastState) CanTransition(to BroadcastState) bool {
	for _, next := range broadcastTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// BroadcastSession is the single per-studio broadcast lifecycle record.
// No destination may be connected while State is idle.
type BroadcastSession struct {
	ID                SessionID
	State             BroadcastState
	StartedAt         time.Time
	VideoProducerID   string
	AudioProducerID   string
	DestinationIDs    []DestinationID
	CountdownSeconds  int
}

// RecordingState is the recorder lifecycle, independent of broadcast state.
type RecordingState string

const (
	RecordingIdle    RecordingState = "idle"
	RecordingActive  RecordingState = "active"
	RecordingPaused  RecordingState = "paused"
	RecordingStopped RecordingState = "stopped"
)

// RecordingSession tracks an in-progress capture of the composite stream.
type RecordingSession struct {
	ID        RecordingID
	State     RecordingState
	StartedAt time.Time
	Elapsed   time.Duration
}

// FinishedRecording is the result of stopping a recording. The binary payload
// lives at Path for the session; only metadata is durable.
type FinishedRecording struct {
	ID        RecordingID
	Path      string
	Duration  time.Duration
	SizeBytes int64
	EndedAt   time.Time
}
