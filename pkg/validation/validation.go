package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// StreamKeyRegex validates platform stream key format
	StreamKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateParticipantID validates a participant identifier
func ValidateParticipantID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("participant id is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("participant id is too long (max 64 characters)")
	}
	if !ParticipantIDRegex.MatchString(id) {
		return fmt.Errorf("participant id can only contain letters, numbers, underscores and hyphens")
	}
	return nil
}

// ValidateDisplayName validates a participant display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("display name is too long (max 100 characters)")
	}
	return nil
}

// ValidateStreamKey validates a platform stream key
func ValidateStreamKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("stream key is required")
	}
	if len(key) > 256 {
		return fmt.Errorf("stream key is too long (max 256 characters)")
	}
	if !StreamKeyRegex.MatchString(key) {
		return fmt.Errorf("stream key can only contain letters, numbers, underscores and hyphens")
	}
	return nil
}

// ValidateIngestURL validates an RTMP or WHIP ingest endpoint
func ValidateIngestURL(urlStr string) error {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return fmt.Errorf("url is required")
	}
	if len(urlStr) > 2048 {
		return fmt.Errorf("url is too long (max 2048 characters)")
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url format")
	}

	switch parsed.Scheme {
	case "rtmp", "rtmps", "http", "https":
	default:
		return fmt.Errorf("url scheme must be rtmp, rtmps, http or https")
	}

	if parsed.Host == "" {
		return fmt.Errorf("url must have a host")
	}

	return nil
}

// ValidateFrameRate validates a compositor frame rate
func ValidateFrameRate(fps int) error {
	if fps < 1 {
		return fmt.Errorf("frame rate must be at least 1")
	}
	if fps > 60 {
		return fmt.Errorf("frame rate is too high (max 60)")
	}
	return nil
}

// ValidateCanvasSize validates compositor canvas dimensions
func ValidateCanvasSize(width, height int) error {
	if width < 16 || height < 16 {
		return fmt.Errorf("canvas must be at least 16x16")
	}
	if width > 3840 || height > 2160 {
		return fmt.Errorf("canvas is too large (max 3840x2160)")
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("canvas dimensions must be even")
	}
	return nil
}

// ValidateNonEmptyString validates that a string is not empty
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length in runes
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s is too short (min %d characters)", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
