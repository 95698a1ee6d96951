// Package tracker holds the core study-tracking logic: the ordered event
// timeline of a session and the reconstruction of per-state durations from
// it. Everything here is pure computation; storage and transport live in the
// surrounding packages.
package tracker

// State is the detector's classification of what the tracked user is doing.
type State string

const (
	StateStudy      State = "STUDY"
	StateDistracted State = "DISTRACTED"
	StateAway       State = "AWAY"
)

// ValidState reports whether s is one of the three known states.
func ValidState(s string) bool {
	switch State(s) {
	case StateStudy, StateDistracted, StateAway:
		return true
	}
	return false
}

// Breakdown is the per-state attribution of a session's elapsed time, in
// whole seconds. TotalSec is computed from the session boundaries alone,
// never as the sum of the other three; the reconstruction guarantees the two
// agree.
type Breakdown struct {
	StudySec      int `json:"study_duration_sec"`
	DistractedSec int `json:"distracted_duration_sec"`
	AwaySec       int `json:"away_duration_sec"`
	TotalSec      int `json:"total_duration_sec"`
}

func (b *Breakdown) add(state State, secs int64) {
	switch state {
	case StateStudy:
		b.StudySec += int(secs)
	case StateDistracted:
		b.DistractedSec += int(secs)
	default:
		b.AwaySec += int(secs)
	}
}
