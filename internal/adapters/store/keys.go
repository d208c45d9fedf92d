package store

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionID returns a random session id: a UUID in hex without dashes.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSampleKey returns a time-ordered child key for a sample.
func NewSampleKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// reservedSegment is the sibling of session ids under the root.
const reservedSegment = "predictions"

// ValidSession reports whether id can be used as a path segment.
func ValidSession(id string) bool {
	return id != "" && id != reservedSegment && !strings.ContainsAny(id, "/#+ ")
}
