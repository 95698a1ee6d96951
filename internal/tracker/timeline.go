package tracker

import (
	"errors"
	"sort"
	"time"

	"studytrack-backend/internal/models"
)

var (
	// ErrTimelineClosed is returned when appending to the timeline of an
	// ended session.
	ErrTimelineClosed = errors.New("timeline is closed")

	// ErrDuplicateTimestamp is returned when an event at the same instant
	// already exists in the timeline.
	ErrDuplicateTimestamp = errors.New("event with identical timestamp already recorded")

	// ErrBeforeStart is returned for events timestamped before the session
	// started. The original system accepted these implicitly; here they are
	// rejected outright.
	ErrBeforeStart = errors.New("event timestamp precedes session start")

	// ErrActiveSessionExists is returned when starting a session for an
	// owner who already has one active. The partial unique index on active
	// sessions surfaces through this, so the rule holds even when two
	// starts race past the lifecycle check.
	ErrActiveSessionExists = errors.New("owner already has an active session")
)

// Timeline is the strictly time-ordered sequence of events belonging to one
// session. Events are kept sorted on insert, so iteration order never
// depends on arrival order.
type Timeline struct {
	start  time.Time
	closed bool
	events []models.StudyEvent
}

// NewTimeline returns an empty timeline anchored at the session start.
func NewTimeline(start time.Time) *Timeline {
	return &Timeline{start: start}
}

// TimelineFromEvents rebuilds a timeline from already-persisted events. The
// input may arrive in any order; it is sorted, not validated, since the
// storage layer enforced the append rules when the events were recorded.
func TimelineFromEvents(start time.Time, events []models.StudyEvent) *Timeline {
	evs := make([]models.StudyEvent, len(events))
	copy(evs, events)
	sort.Slice(evs, func(i, j int) bool {
		return evs[i].Timestamp.Before(evs[j].Timestamp)
	})
	return &Timeline{start: start, events: evs}
}

// Append records an event, keeping the timeline sorted by timestamp.
func (tl *Timeline) Append(ev models.StudyEvent) error {
	if tl.closed {
		return ErrTimelineClosed
	}
	if ev.Timestamp.Before(tl.start) {
		return ErrBeforeStart
	}

	i := sort.Search(len(tl.events), func(i int) bool {
		return !tl.events[i].Timestamp.Before(ev.Timestamp)
	})
	if i < len(tl.events) && tl.events[i].Timestamp.Equal(ev.Timestamp) {
		return ErrDuplicateTimestamp
	}

	tl.events = append(tl.events, models.StudyEvent{})
	copy(tl.events[i+1:], tl.events[i:])
	tl.events[i] = ev

	return nil
}

// Close marks the timeline immutable. Further appends fail with
// ErrTimelineClosed.
func (tl *Timeline) Close() {
	tl.closed = true
}

// Events returns the events ascending by timestamp. The returned slice is a
// copy and can be iterated repeatedly without side effects.
func (tl *Timeline) Events() []models.StudyEvent {
	out := make([]models.StudyEvent, len(tl.events))
	copy(out, tl.events)
	return out
}

// Len returns the number of recorded events.
func (tl *Timeline) Len() int {
	return len(tl.events)
}

// Latest returns the most recent event, or false when the timeline is empty.
func (tl *Timeline) Latest() (models.StudyEvent, bool) {
	if len(tl.events) == 0 {
		return models.StudyEvent{}, false
	}
	return tl.events[len(tl.events)-1], true
}

// CurrentState is the state the session is in as of the latest event, AWAY
// when nothing has been observed yet.
func (tl *Timeline) CurrentState() State {
	ev, ok := tl.Latest()
	if !ok {
		return StateAway
	}
	return State(ev.State)
}

// Breakdown reconstructs the per-state durations from session start up to
// the given boundary.
func (tl *Timeline) Breakdown(boundary time.Time) Breakdown {
	return Reconstruct(tl.start, boundary, tl.events)
}
