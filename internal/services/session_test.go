package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studytrack-backend/internal/models"
	"studytrack-backend/internal/tracker"
)

// In-memory stores standing in for the pgx repositories.

type fakeSessionStore struct {
	sessions map[uuid.UUID]*models.StudySession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*models.StudySession)}
}

func (f *fakeSessionStore) Create(_ context.Context, s *models.StudySession) error {
	// Same uniqueness rule the partial index enforces in Postgres
	for _, existing := range f.sessions {
		if existing.UserID == s.UserID && existing.EndTime == nil {
			return tracker.ErrActiveSessionExists
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*models.StudySession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) GetActive(_ context.Context, userID uuid.UUID) (*models.StudySession, error) {
	for _, s := range f.sessions {
		if s.UserID == userID && s.EndTime == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessionStore) Finalize(_ context.Context, s *models.StudySession) (bool, error) {
	stored, ok := f.sessions[s.ID]
	if !ok || stored.EndTime != nil {
		return false, nil
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return true, nil
}

func (f *fakeSessionStore) UpdateAllowedObjects(_ context.Context, id uuid.UUID, objects []string) error {
	s, ok := f.sessions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.AllowedObjects = objects
	return nil
}

func (f *fakeSessionStore) ListEnded(_ context.Context, userID uuid.UUID, date *time.Time) ([]models.StudySession, error) {
	out := make([]models.StudySession, 0)
	for _, s := range f.sessions {
		if s.UserID != userID || s.EndTime == nil {
			continue
		}
		if date != nil {
			y1, m1, d1 := s.StartTime.Date()
			y2, m2, d2 := date.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}
		out = append(out, *s)
	}
	return out, nil
}

type fakeEventStore struct {
	events []models.StudyEvent
}

func (f *fakeEventStore) Insert(_ context.Context, ev *models.StudyEvent) error {
	for _, existing := range f.events {
		if existing.SessionID == ev.SessionID && existing.Timestamp.Equal(ev.Timestamp) {
			return tracker.ErrDuplicateTimestamp
		}
	}
	ev.ID = uuid.New()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeEventStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.StudyEvent, error) {
	out := make([]models.StudyEvent, 0)
	for _, ev := range f.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeImageStore struct {
	images []models.StudyImage
}

func (f *fakeImageStore) Create(_ context.Context, img *models.StudyImage) error {
	img.ID = uuid.New()
	f.images = append(f.images, *img)
	return nil
}

func (f *fakeImageStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.StudyImage, error) {
	out := make([]models.StudyImage, 0)
	for _, img := range f.images {
		if img.SessionID == sessionID {
			out = append(out, img)
		}
	}
	return out, nil
}

func newTestSessionService() (*SessionService, *fakeSessionStore, *fakeEventStore) {
	sessions := newFakeSessionStore()
	events := &fakeEventStore{}
	svc := NewSessionService(sessions, events, &fakeImageStore{}, nil)
	return svc, sessions, events
}

func TestStart_RejectsSecondActiveSession(t *testing.T) {
	svc, _, _ := newTestSessionService()
	userID := uuid.New()

	if _, err := svc.Start(context.Background(), userID, models.StartSessionRequest{}); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	_, err := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

// staleActiveReadStore simulates a start racing past the active-session
// check: the read reports no active session while the insert still hits the
// uniqueness rule.
type staleActiveReadStore struct {
	*fakeSessionStore
}

func (s *staleActiveReadStore) GetActive(_ context.Context, _ uuid.UUID) (*models.StudySession, error) {
	return nil, pgx.ErrNoRows
}

func TestStart_RacingStartsStillConflict(t *testing.T) {
	store := &staleActiveReadStore{fakeSessionStore: newFakeSessionStore()}
	svc := NewSessionService(store, &fakeEventStore{}, &fakeImageStore{}, nil)
	userID := uuid.New()

	if _, err := svc.Start(context.Background(), userID, models.StartSessionRequest{}); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	_, err := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError from the storage uniqueness rule, got %v", err)
	}

	active := 0
	for _, s := range store.sessions {
		if s.UserID == userID && s.EndTime == nil {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly 1 active session, got %d", active)
	}
}

func TestStart_OtherOwnerUnaffected(t *testing.T) {
	svc, _, _ := newTestSessionService()

	if _, err := svc.Start(context.Background(), uuid.New(), models.StartSessionRequest{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := svc.Start(context.Background(), uuid.New(), models.StartSessionRequest{}); err != nil {
		t.Fatalf("Start for a different owner failed: %v", err)
	}
}

func TestStart_NilObjectsBecomeEmptyList(t *testing.T) {
	svc, _, _ := newTestSessionService()

	session, err := svc.Start(context.Background(), uuid.New(), models.StartSessionRequest{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if session.AllowedObjects == nil || len(session.AllowedObjects) != 0 {
		t.Fatalf("expected empty allowed objects, got %#v", session.AllowedObjects)
	}
}

func TestEnd_NoEventsAttributesEverythingToAway(t *testing.T) {
	svc, store, _ := newTestSessionService()
	userID := uuid.New()

	session, err := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Backdate the start so the session has measurable length
	stored := store.sessions[session.ID]
	stored.StartTime = time.Now().UTC().Add(-10 * time.Minute)

	ended, err := svc.End(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if ended.EndTime == nil {
		t.Fatal("expected end time to be set")
	}
	if ended.StudyDurationSec != 0 || ended.DistractedDurationSec != 0 {
		t.Fatalf("expected zero study/distracted, got %d/%d", ended.StudyDurationSec, ended.DistractedDurationSec)
	}
	if ended.AwayDurationSec != ended.TotalDurationSec {
		t.Fatalf("away %d != total %d", ended.AwayDurationSec, ended.TotalDurationSec)
	}
	if ended.TotalDurationSec < 599 || ended.TotalDurationSec > 601 {
		t.Fatalf("unexpected total %d", ended.TotalDurationSec)
	}
}

func TestEnd_Idempotent(t *testing.T) {
	svc, _, _ := newTestSessionService()
	userID := uuid.New()

	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})

	first, err := svc.End(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("first End failed: %v", err)
	}

	second, err := svc.End(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("second End failed: %v", err)
	}

	if !first.EndTime.Equal(*second.EndTime) {
		t.Fatalf("end time changed: %v vs %v", first.EndTime, second.EndTime)
	}
	if first.TotalDurationSec != second.TotalDurationSec {
		t.Fatalf("breakdown changed: %d vs %d", first.TotalDurationSec, second.TotalDurationSec)
	}
}

func TestEnd_ConcurrentAppendsSeeStableEventSet(t *testing.T) {
	svc, store, events := newTestSessionService()
	userID := uuid.New()

	session, err := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	start := time.Now().UTC().Add(-time.Hour)
	store.sessions[session.ID].StartTime = start

	// Appends race the end; each must either land before the breakdown is
	// frozen or be rejected as closed. Nothing may slip in between.
	const appenders = 24
	var wg sync.WaitGroup
	errs := make([]error, appenders)

	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AppendEvent(context.Background(), userID, models.AppendEventRequest{
				SessionID: session.ID.String(),
				Timestamp: start.Add(time.Duration(i+1) * time.Second).Format(time.RFC3339),
				State:     "STUDY",
			})
		}(i)
	}

	wg.Add(1)
	var endErr error
	go func() {
		defer wg.Done()
		_, endErr = svc.End(context.Background(), userID, session.ID)
	}()

	wg.Wait()

	if endErr != nil {
		t.Fatalf("End failed: %v", endErr)
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		var closed *SessionClosedError
		if !errors.As(err, &closed) {
			t.Fatalf("append %d failed with %v, want nil or SessionClosedError", i, err)
		}
	}

	ended := store.sessions[session.ID]
	if ended.EndTime == nil {
		t.Fatal("expected session to be ended")
	}

	// Recomputing from the final stored event set must reproduce the frozen
	// breakdown exactly; an event inserted after the finalize would shift
	// seconds from AWAY to STUDY and break this.
	stored, _ := events.ListBySession(context.Background(), session.ID)
	recomputed := tracker.Reconstruct(ended.StartTime, *ended.EndTime, stored)
	frozen := tracker.Breakdown{
		StudySec:      ended.StudyDurationSec,
		DistractedSec: ended.DistractedDurationSec,
		AwaySec:       ended.AwayDurationSec,
		TotalSec:      ended.TotalDurationSec,
	}
	if recomputed != frozen {
		t.Fatalf("frozen breakdown %+v does not match recomputation %+v", frozen, recomputed)
	}
}

func TestEnd_OtherOwnerGetsNotFound(t *testing.T) {
	svc, _, _ := newTestSessionService()

	session, _ := svc.Start(context.Background(), uuid.New(), models.StartSessionRequest{})

	_, err := svc.End(context.Background(), uuid.New(), session.ID)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAppendEvent_Valid(t *testing.T) {
	svc, _, events := newTestSessionService()
	userID := uuid.New()

	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})

	conf := 0.92
	ev, err := svc.AppendEvent(context.Background(), userID, models.AppendEventRequest{
		SessionID:  session.ID.String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		State:      "STUDY",
		Confidence: &conf,
	})
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if ev.ID == uuid.Nil {
		t.Fatal("expected event to get an id")
	}
	if len(events.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(events.events))
	}
}

func TestAppendEvent_Validation(t *testing.T) {
	svc, _, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})

	now := time.Now().UTC().Format(time.RFC3339)
	badConf := 1.5

	tests := []struct {
		name  string
		req   models.AppendEventRequest
		field string
	}{
		{
			name:  "bad session id",
			req:   models.AppendEventRequest{SessionID: "nope", Timestamp: now, State: "STUDY"},
			field: "session",
		},
		{
			name:  "bad timestamp",
			req:   models.AppendEventRequest{SessionID: session.ID.String(), Timestamp: "yesterday", State: "STUDY"},
			field: "timestamp",
		},
		{
			name:  "unknown state",
			req:   models.AppendEventRequest{SessionID: session.ID.String(), Timestamp: now, State: "SLEEPING"},
			field: "state",
		},
		{
			name:  "confidence out of range",
			req:   models.AppendEventRequest{SessionID: session.ID.String(), Timestamp: now, State: "STUDY", Confidence: &badConf},
			field: "confidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AppendEvent(context.Background(), userID, tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Fatalf("expected field %q in %v", tt.field, ve.Fields)
			}
		})
	}
}

func TestAppendEvent_CrossOwnerRejected(t *testing.T) {
	svc, _, events := newTestSessionService()
	owner := uuid.New()
	session, _ := svc.Start(context.Background(), owner, models.StartSessionRequest{})

	_, err := svc.AppendEvent(context.Background(), uuid.New(), models.AppendEventRequest{
		SessionID: session.ID.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		State:     "STUDY",
	})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for a foreign session, got %v", err)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no events recorded, got %d", len(events.events))
	}
}

func TestAppendEvent_BeforeStartRejected(t *testing.T) {
	svc, _, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})

	_, err := svc.AppendEvent(context.Background(), userID, models.AppendEventRequest{
		SessionID: session.ID.String(),
		Timestamp: session.StartTime.Add(-time.Minute).Format(time.RFC3339),
		State:     "STUDY",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAppendEvent_DuplicateTimestampConflicts(t *testing.T) {
	svc, _, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})

	req := models.AppendEventRequest{
		SessionID: session.ID.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		State:     "STUDY",
	}

	if _, err := svc.AppendEvent(context.Background(), userID, req); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	req.State = "AWAY"
	_, err := svc.AppendEvent(context.Background(), userID, req)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestAppendEvent_ClosedSessionRejected(t *testing.T) {
	svc, _, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	svc.End(context.Background(), userID, session.ID)

	_, err := svc.AppendEvent(context.Background(), userID, models.AppendEventRequest{
		SessionID: session.ID.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		State:     "STUDY",
	})
	var closed *SessionClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected SessionClosedError, got %v", err)
	}
}

func TestLive_NoEventsReportsAway(t *testing.T) {
	svc, store, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})

	store.sessions[session.ID].StartTime = time.Now().UTC().Add(-5 * time.Minute)

	status, err := svc.Live(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("Live failed: %v", err)
	}
	if status.State != "AWAY" {
		t.Fatalf("expected AWAY before any events, got %s", status.State)
	}
	if status.AwaySec != status.TotalSec {
		t.Fatalf("away %d != total %d", status.AwaySec, status.TotalSec)
	}
}

func TestLive_EndedSessionReturnsFrozenBreakdown(t *testing.T) {
	svc, store, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	store.sessions[session.ID].StartTime = time.Now().UTC().Add(-time.Hour)

	ended, err := svc.End(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	status, err := svc.Live(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("Live failed: %v", err)
	}
	if status.TotalSec != ended.TotalDurationSec {
		t.Fatalf("live total %d != frozen total %d", status.TotalSec, ended.TotalDurationSec)
	}
}

func TestUpdateAllowedObjects_FrozenAfterEnd(t *testing.T) {
	svc, _, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	svc.End(context.Background(), userID, session.ID)

	_, err := svc.UpdateAllowedObjects(context.Background(), userID, session.ID, []string{"book"})
	var closed *SessionClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected SessionClosedError, got %v", err)
	}
}

func TestTimeline_PairsImagesWithEvents(t *testing.T) {
	sessions := newFakeSessionStore()
	events := &fakeEventStore{}
	images := &fakeImageStore{}
	svc := NewSessionService(sessions, events, images, nil)

	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	sessions.sessions[session.ID].StartTime = time.Now().UTC().Add(-time.Hour)

	ev, err := svc.AppendEvent(context.Background(), userID, models.AppendEventRequest{
		SessionID: session.ID.String(),
		Timestamp: time.Now().UTC().Add(-30 * time.Minute).Format(time.RFC3339),
		State:     "DISTRACTED",
	})
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	img := &models.StudyImage{SessionID: session.ID, EventID: &ev.ID, FilePath: "2026/08/28/frame.jpg"}
	if err := svc.AttachImage(context.Background(), userID, img); err != nil {
		t.Fatalf("AttachImage failed: %v", err)
	}

	items, err := svc.Timeline(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ImageURL == nil || *items[0].ImageURL != "/media/2026/08/28/frame.jpg" {
		t.Fatalf("unexpected image url: %v", items[0].ImageURL)
	}
}

func TestFinalDuration_OnlyAfterEnd(t *testing.T) {
	svc, store, _ := newTestSessionService()
	userID := uuid.New()
	session, _ := svc.Start(context.Background(), userID, models.StartSessionRequest{})
	store.sessions[session.ID].StartTime = time.Now().UTC().Add(-20 * time.Minute)

	_, err := svc.FinalDuration(context.Background(), userID, session.ID)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError while active, got %v", err)
	}

	ended, err := svc.End(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	first, err := svc.FinalDuration(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("FinalDuration failed: %v", err)
	}
	second, err := svc.FinalDuration(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("repeated FinalDuration failed: %v", err)
	}

	if first != second {
		t.Fatalf("repeated reads differ: %+v vs %+v", first, second)
	}
	if first.TotalSec != ended.TotalDurationSec {
		t.Fatalf("final total %d != frozen total %d", first.TotalSec, ended.TotalDurationSec)
	}
}

func TestGetActive_NoneIsNotFound(t *testing.T) {
	svc, _, _ := newTestSessionService()

	_, err := svc.GetActive(context.Background(), uuid.New())
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
