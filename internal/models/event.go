package models

import (
	"time"

	"github.com/google/uuid"
)

// StudyEvent is a discrete state observation recorded by the edge detector.
// Timestamps are unique within a session and never mutated after insert.
type StudyEvent struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state"`
	Confidence *float64  `json:"confidence,omitempty"`
}

type AppendEventRequest struct {
	SessionID  string   `json:"session"`
	Timestamp  string   `json:"timestamp"`
	State      string   `json:"state"`
	Confidence *float64 `json:"confidence"`
}

// TimelineItem is one entry of a session's timeline view: the event plus the
// URL of the frame captured alongside it, when one exists.
type TimelineItem struct {
	Time       time.Time `json:"time"`
	State      string    `json:"state"`
	Confidence *float64  `json:"confidence"`
	ImageURL   *string   `json:"image_url"`
}
