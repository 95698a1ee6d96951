package tracker

import (
	"errors"
	"testing"
	"time"

	"studytrack-backend/internal/models"
)

func TestTimeline_AppendKeepsOrder(t *testing.T) {
	tl := NewTimeline(base)

	offsets := []time.Duration{30 * time.Second, 10 * time.Second, 20 * time.Second}
	for _, off := range offsets {
		if err := tl.Append(ev(off, StateStudy)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events := tl.Events()
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if !events[i-1].Timestamp.Before(events[i].Timestamp) {
			t.Errorf("Events out of order at index %d", i)
		}
	}
}

func TestTimeline_AppendDuplicateTimestamp(t *testing.T) {
	tl := NewTimeline(base)

	if err := tl.Append(ev(time.Minute, StateStudy)); err != nil {
		t.Fatalf("First append failed: %v", err)
	}

	err := tl.Append(ev(time.Minute, StateAway))
	if !errors.Is(err, ErrDuplicateTimestamp) {
		t.Errorf("Expected ErrDuplicateTimestamp, got %v", err)
	}
	if tl.Len() != 1 {
		t.Errorf("Expected duplicate to be rejected without mutation, len=%d", tl.Len())
	}
}

func TestTimeline_AppendBeforeStart(t *testing.T) {
	tl := NewTimeline(base)

	err := tl.Append(ev(-time.Second, StateStudy))
	if !errors.Is(err, ErrBeforeStart) {
		t.Errorf("Expected ErrBeforeStart, got %v", err)
	}
}

func TestTimeline_AppendAfterClose(t *testing.T) {
	tl := NewTimeline(base)
	tl.Close()

	err := tl.Append(ev(time.Second, StateStudy))
	if !errors.Is(err, ErrTimelineClosed) {
		t.Errorf("Expected ErrTimelineClosed, got %v", err)
	}
}

func TestTimeline_EventsReturnsCopy(t *testing.T) {
	tl := NewTimeline(base)
	tl.Append(ev(time.Second, StateStudy))

	first := tl.Events()
	first[0].State = string(StateAway)

	second := tl.Events()
	if second[0].State != string(StateStudy) {
		t.Error("Expected Events to return an independent copy")
	}
}

func TestTimeline_CurrentState(t *testing.T) {
	tl := NewTimeline(base)

	if got := tl.CurrentState(); got != StateAway {
		t.Errorf("Expected AWAY before any events, got %s", got)
	}

	tl.Append(ev(time.Second, StateStudy))
	tl.Append(ev(2*time.Second, StateDistracted))

	if got := tl.CurrentState(); got != StateDistracted {
		t.Errorf("Expected DISTRACTED, got %s", got)
	}
}

func TestTimelineFromEvents_SortsInput(t *testing.T) {
	events := []models.StudyEvent{
		ev(40*time.Second, StateAway),
		ev(10*time.Second, StateStudy),
		ev(25*time.Second, StateDistracted),
	}

	tl := TimelineFromEvents(base, events)

	got := tl.Events()
	for i := 1; i < len(got); i++ {
		if !got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Errorf("Events out of order at index %d", i)
		}
	}

	if tl.CurrentState() != StateAway {
		t.Errorf("Expected latest state AWAY, got %s", tl.CurrentState())
	}
}

func TestTimeline_BreakdownMatchesReconstruct(t *testing.T) {
	tl := NewTimeline(base)
	tl.Append(ev(5*time.Minute, StateStudy))
	tl.Append(ev(15*time.Minute, StateAway))

	boundary := base.Add(20 * time.Minute)
	want := Reconstruct(base, boundary, tl.Events())

	if got := tl.Breakdown(boundary); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestValidState(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{"STUDY", true},
		{"DISTRACTED", true},
		{"AWAY", true},
		{"", false},
		{"study", false},
		{"SLEEPING", false},
	}

	for _, tc := range tests {
		if got := ValidState(tc.state); got != tc.want {
			t.Errorf("ValidState(%q) = %v, want %v", tc.state, got, tc.want)
		}
	}
}
