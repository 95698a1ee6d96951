package tracker

import (
	"testing"
	"time"

	"studytrack-backend/internal/models"
)

var base = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func ev(offset time.Duration, state State) models.StudyEvent {
	return models.StudyEvent{Timestamp: base.Add(offset), State: string(state)}
}

func TestReconstruct_NoEvents(t *testing.T) {
	b := Reconstruct(base, base.Add(90*time.Second), nil)

	if b.AwaySec != 90 {
		t.Errorf("Expected away=90, got %d", b.AwaySec)
	}
	if b.StudySec != 0 || b.DistractedSec != 0 {
		t.Errorf("Expected study=0 distracted=0, got %d and %d", b.StudySec, b.DistractedSec)
	}
	if b.TotalSec != 90 {
		t.Errorf("Expected total=90, got %d", b.TotalSec)
	}
}

func TestReconstruct_SpecScenario(t *testing.T) {
	// Start 00:00, STUDY at 00:05, AWAY at 00:15, end 00:20.
	events := []models.StudyEvent{
		ev(5*time.Minute, StateStudy),
		ev(15*time.Minute, StateAway),
	}

	b := Reconstruct(base, base.Add(20*time.Minute), events)

	if b.AwaySec != 600 {
		t.Errorf("Expected away=600, got %d", b.AwaySec)
	}
	if b.StudySec != 600 {
		t.Errorf("Expected study=600, got %d", b.StudySec)
	}
	if b.DistractedSec != 0 {
		t.Errorf("Expected distracted=0, got %d", b.DistractedSec)
	}
	if b.TotalSec != 1200 {
		t.Errorf("Expected total=1200, got %d", b.TotalSec)
	}
}

func TestReconstruct_BoundaryAtOrBeforeStart(t *testing.T) {
	tests := []struct {
		name     string
		boundary time.Time
	}{
		{"boundary equals start", base},
		{"boundary before start", base.Add(-time.Minute)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := Reconstruct(base, tc.boundary, []models.StudyEvent{ev(0, StateStudy)})
			if b != (Breakdown{}) {
				t.Errorf("Expected zero breakdown, got %+v", b)
			}
		})
	}
}

func TestReconstruct_EventAtExactStart(t *testing.T) {
	// The initial AWAY interval has zero length; STUDY governs everything.
	b := Reconstruct(base, base.Add(time.Hour), []models.StudyEvent{ev(0, StateStudy)})

	if b.StudySec != 3600 {
		t.Errorf("Expected study=3600, got %d", b.StudySec)
	}
	if b.AwaySec != 0 {
		t.Errorf("Expected away=0, got %d", b.AwaySec)
	}
}

func TestReconstruct_EventAtBoundary(t *testing.T) {
	// A final event recorded at the exact end contributes a zero-length
	// interval and must not shift any seconds.
	events := []models.StudyEvent{
		ev(10*time.Second, StateStudy),
		ev(30*time.Second, StateDistracted),
	}

	b := Reconstruct(base, base.Add(30*time.Second), events)

	if b.AwaySec != 10 {
		t.Errorf("Expected away=10, got %d", b.AwaySec)
	}
	if b.StudySec != 20 {
		t.Errorf("Expected study=20, got %d", b.StudySec)
	}
	if b.DistractedSec != 0 {
		t.Errorf("Expected distracted=0, got %d", b.DistractedSec)
	}
}

func TestReconstruct_IgnoresEventsPastBoundary(t *testing.T) {
	events := []models.StudyEvent{
		ev(10*time.Second, StateStudy),
		ev(2*time.Hour, StateDistracted),
	}

	b := Reconstruct(base, base.Add(time.Minute), events)

	if b.StudySec != 50 {
		t.Errorf("Expected study=50, got %d", b.StudySec)
	}
	if b.DistractedSec != 0 {
		t.Errorf("Expected distracted=0, got %d", b.DistractedSec)
	}
	if b.TotalSec != 60 {
		t.Errorf("Expected total=60, got %d", b.TotalSec)
	}
}

func TestReconstruct_OrderIndependent(t *testing.T) {
	ordered := []models.StudyEvent{
		ev(1*time.Minute, StateStudy),
		ev(4*time.Minute, StateDistracted),
		ev(7*time.Minute, StateAway),
		ev(9*time.Minute, StateStudy),
	}
	shuffled := []models.StudyEvent{ordered[2], ordered[0], ordered[3], ordered[1]}

	boundary := base.Add(12 * time.Minute)
	a := Reconstruct(base, boundary, ordered)
	b := Reconstruct(base, boundary, shuffled)

	if a != b {
		t.Errorf("Expected identical breakdowns, got %+v and %+v", a, b)
	}
}

func TestReconstruct_SumEqualsTotal(t *testing.T) {
	tests := []struct {
		name     string
		events   []models.StudyEvent
		boundary time.Duration
	}{
		{"no events", nil, 45 * time.Second},
		{"single event", []models.StudyEvent{ev(3*time.Second, StateStudy)}, time.Minute},
		{"state flapping", []models.StudyEvent{
			ev(1*time.Second, StateStudy),
			ev(2*time.Second, StateDistracted),
			ev(3*time.Second, StateAway),
			ev(4*time.Second, StateStudy),
		}, 10 * time.Second},
		{"sub-second timestamps", []models.StudyEvent{
			{Timestamp: base.Add(1500 * time.Millisecond), State: string(StateStudy)},
			{Timestamp: base.Add(2700 * time.Millisecond), State: string(StateDistracted)},
			{Timestamp: base.Add(4100 * time.Millisecond), State: string(StateAway)},
		}, 9500 * time.Millisecond},
		{"long session", []models.StudyEvent{
			ev(25*time.Minute, StateStudy),
			ev(3*time.Hour, StateAway),
		}, 8 * time.Hour},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := Reconstruct(base, base.Add(tc.boundary), tc.events)

			sum := b.StudySec + b.DistractedSec + b.AwaySec
			if sum != b.TotalSec {
				t.Errorf("Expected study+distracted+away=%d to equal total=%d", sum, b.TotalSec)
			}

			wantTotal := int(base.Add(tc.boundary).Unix() - base.Unix())
			if b.TotalSec != wantTotal {
				t.Errorf("Expected total=%d, got %d", wantTotal, b.TotalSec)
			}
		})
	}
}

func TestReconstruct_Deterministic(t *testing.T) {
	events := []models.StudyEvent{
		ev(2*time.Minute, StateDistracted),
		ev(5*time.Minute, StateStudy),
	}
	boundary := base.Add(30 * time.Minute)

	first := Reconstruct(base, boundary, events)
	second := Reconstruct(base, boundary, events)

	if first != second {
		t.Errorf("Expected repeated reconstruction to be identical, got %+v then %+v", first, second)
	}
}
