package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GenerateParticipantID generates a unique participant ID
func GenerateParticipantID() string {
	return GenerateID("part")
}

// GenerateDestinationID generates a unique destination ID
func GenerateDestinationID() string {
	return GenerateID("dest")
}

// GenerateSessionID generates a unique broadcast session ID
func GenerateSessionID() string {
	return GenerateID("session")
}

// GenerateRecordingID generates a unique recording ID
func GenerateRecordingID() string {
	return GenerateID("rec")
}
