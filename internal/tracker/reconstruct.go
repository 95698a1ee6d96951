package tracker

import (
	"sort"
	"time"

	"studytrack-backend/internal/models"
)

// Reconstruct attributes the elapsed time between start and boundary to the
// three states. The same routine serves the live view (boundary = now) and
// the final computation at session end (boundary = end time); the two must
// never diverge.
//
// The interval decomposition: the session is AWAY from start until the first
// event, then each event's state governs the interval from that event to the
// next one (or to the boundary). Events past the boundary are ignored.
//
// Truncation policy: every endpoint (start, event timestamps, boundary) is
// truncated to whole Unix seconds before decomposition. Intervals therefore
// telescope, and StudySec + DistractedSec + AwaySec equals TotalSec exactly,
// even though TotalSec is computed from the boundaries alone.
func Reconstruct(start, boundary time.Time, events []models.StudyEvent) Breakdown {
	var b Breakdown

	endSec := boundary.Unix()
	curSec := start.Unix()
	if endSec <= curSec {
		// A boundary at or before the start is not an error; there is
		// simply nothing to attribute.
		return b
	}
	b.TotalSec = int(endSec - curSec)

	sorted := make([]models.StudyEvent, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp.After(boundary) {
			continue
		}
		sorted = append(sorted, ev)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	state := StateAway
	for _, ev := range sorted {
		ts := ev.Timestamp.Unix()
		if ts > curSec {
			b.add(state, ts-curSec)
			curSec = ts
		}
		// Zero-length intervals (an event at the exact start, or two
		// events within the same truncated second) contribute nothing
		// but still switch the governing state.
		state = State(ev.State)
	}

	if endSec > curSec {
		b.add(state, endSec-curSec)
	}

	return b
}
