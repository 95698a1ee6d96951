package models

import (
	"time"

	"github.com/google/uuid"
)

// StudySession is one bounded period of monitored study activity for an
// owner. Duration counters are zero while the session is active and are
// frozen when it ends; active sessions report durations computed on demand.
type StudySession struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	StartTime             time.Time  `json:"start_time"`
	EndTime               *time.Time `json:"end_time"`
	AllowedObjects        []string   `json:"allowed_objects"`
	TotalDurationSec      int        `json:"total_duration_sec"`
	StudyDurationSec      int        `json:"study_duration_sec"`
	DistractedDurationSec int        `json:"distracted_duration_sec"`
	AwayDurationSec       int        `json:"away_duration_sec"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Ended reports whether the session has been closed.
func (s *StudySession) Ended() bool {
	return s.EndTime != nil
}

type StartSessionRequest struct {
	AllowedObjects []string `json:"allowed_objects"`
}

type UpdateObjectsRequest struct {
	AllowedObjects []string `json:"allowed_objects"`
}

// SessionConfig is the lightweight payload the edge device polls for.
type SessionConfig struct {
	SessionID      uuid.UUID `json:"session_id"`
	AllowedObjects []string  `json:"allowed_objects"`
}
