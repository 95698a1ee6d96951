package models

import (
	"time"

	"github.com/google/uuid"
)

// StudyImage is metadata for a frame captured by the edge device. The blob
// itself lives on disk under the configured storage path; EventID is nil for
// frames not tied to a specific state change.
type StudyImage struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  uuid.UUID  `json:"session_id"`
	EventID    *uuid.UUID `json:"event_id"`
	FilePath   string     `json:"-"`
	CapturedAt time.Time  `json:"captured_at"`
}
