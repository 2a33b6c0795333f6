package domain

import "errors"

var (
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrDestinationNotFound  = errors.New("destination not found")
	ErrRecordingNotFound    = errors.New("recording not found")
	ErrNoValidDestinations  = errors.New("no valid destinations selected")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrAlreadyLive          = errors.New("broadcast session is already live")
	ErrNotLive              = errors.New("broadcast session is not live")
	ErrCompositeUnavailable = errors.New("composite stream unavailable")
	ErrRecordingActive      = errors.New("recording already active")
	ErrRecordingNotActive   = errors.New("recording not active")
	ErrProvisioningTimeout  = errors.New("platform broadcast objects not provisioned in time")
	ErrUnknownLayout        = errors.New("unknown layout id")
	ErrInvalidCredentials   = errors.New("destination credentials incomplete for method")
	ErrInvalidOverlay       = errors.New("invalid overlay payload")
)
