package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"studytrack-backend/internal/models"
	"studytrack-backend/internal/tracker"
)

// SessionStore is the persistence surface the session service needs.
type SessionStore interface {
	Create(ctx context.Context, s *models.StudySession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.StudySession, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error)
	Finalize(ctx context.Context, s *models.StudySession) (bool, error)
	UpdateAllowedObjects(ctx context.Context, id uuid.UUID, objects []string) error
	ListEnded(ctx context.Context, userID uuid.UUID, date *time.Time) ([]models.StudySession, error)
}

type EventStore interface {
	Insert(ctx context.Context, ev *models.StudyEvent) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.StudyEvent, error)
}

type ImageStore interface {
	Create(ctx context.Context, img *models.StudyImage) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.StudyImage, error)
}

const statsRefreshQueue = "queue:stats-refresh"

// LiveStatus is the on-demand view of an active session: the running
// duration breakdown plus the state the tracked user is currently in.
type LiveStatus struct {
	SessionID uuid.UUID `json:"session_id"`
	State     string    `json:"state"`
	tracker.Breakdown
}

type SessionService struct {
	sessions SessionStore
	events   EventStore
	images   ImageStore
	redis    *redis.Client

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewSessionService wires the session service. The redis client is optional;
// a nil client disables event fan-out and stats refresh enqueueing.
func NewSessionService(sessions SessionStore, events EventStore, images ImageStore, rdb *redis.Client) *SessionService {
	return &SessionService{
		sessions: sessions,
		events:   events,
		images:   images,
		redis:    rdb,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing writes to one session. End and
// AppendEvent race on the closed check; the lock keeps that check and the
// following write atomic within the process.
func (s *SessionService) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *SessionService) releaseLock(id uuid.UUID) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// Start opens a new session for the owner. Only one session may be active at
// a time; starting while one is open is a conflict, not an implicit end.
func (s *SessionService) Start(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.StudySession, error) {
	if _, err := s.sessions.GetActive(ctx, userID); err == nil {
		return nil, &ConflictError{Message: "An active session already exists; end it before starting a new one"}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}

	objects := req.AllowedObjects
	if objects == nil {
		objects = []string{}
	}

	session := &models.StudySession{
		UserID:         userID,
		StartTime:      time.Now().UTC(),
		AllowedObjects: objects,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		// The check above can lose to a concurrent start; the storage
		// layer's uniqueness rule catches what the read missed.
		if errors.Is(err, tracker.ErrActiveSessionExists) {
			return nil, &ConflictError{Message: "An active session already exists; end it before starting a new one"}
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// End closes a session and freezes its duration breakdown. Ending an already
// ended session is idempotent and returns the stored breakdown unchanged.
func (s *SessionService) End(ctx context.Context, userID, sessionID uuid.UUID) (*models.StudySession, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return session, nil
	}

	events, err := s.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}

	now := time.Now().UTC()
	b := tracker.Reconstruct(session.StartTime, now, events)

	session.EndTime = &now
	session.TotalDurationSec = b.TotalSec
	session.StudyDurationSec = b.StudySec
	session.DistractedDurationSec = b.DistractedSec
	session.AwayDurationSec = b.AwaySec

	finalized, err := s.sessions.Finalize(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if !finalized {
		// Lost the race to another caller; return what they stored.
		return s.getOwned(ctx, userID, sessionID)
	}

	s.releaseLock(sessionID)
	s.enqueueStatsRefresh(ctx, userID)

	return session, nil
}

// AppendEvent records one detector observation against an active session
// owned by the caller.
func (s *SessionService) AppendEvent(ctx context.Context, userID uuid.UUID, req models.AppendEventRequest) (*models.StudyEvent, error) {
	fields := make(map[string]string)

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		fields["session"] = "Must be a valid session id"
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		fields["timestamp"] = "Must be an RFC 3339 timestamp"
	}

	if !tracker.ValidState(req.State) {
		fields["state"] = "Must be one of STUDY, DISTRACTED, AWAY"
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		fields["confidence"] = "Must be between 0 and 1"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, &SessionClosedError{Message: "Session has ended; events are no longer accepted"}
	}
	if ts.Before(session.StartTime) {
		return nil, &ValidationError{Fields: map[string]string{
			"timestamp": "Must not precede the session start",
		}}
	}

	event := &models.StudyEvent{
		SessionID:  sessionID,
		Timestamp:  ts.UTC(),
		State:      req.State,
		Confidence: req.Confidence,
	}

	if err := s.events.Insert(ctx, event); err != nil {
		if errors.Is(err, tracker.ErrDuplicateTimestamp) {
			return nil, &ConflictError{Message: "An event at this timestamp already exists"}
		}
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	s.publishEvent(ctx, session.UserID, event)

	return event, nil
}

// AttachImage stores the metadata of a captured frame. The file itself is
// already on disk; img.FilePath points at it relative to the storage root.
func (s *SessionService) AttachImage(ctx context.Context, userID uuid.UUID, img *models.StudyImage) error {
	session, err := s.getOwned(ctx, userID, img.SessionID)
	if err != nil {
		return err
	}
	if session.Ended() {
		return &SessionClosedError{Message: "Session has ended; images are no longer accepted"}
	}

	if img.CapturedAt.IsZero() {
		img.CapturedAt = time.Now().UTC()
	}

	if err := s.images.Create(ctx, img); err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}
	return nil
}

// Get returns a session owned by the caller.
func (s *SessionService) Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.StudySession, error) {
	return s.getOwned(ctx, userID, sessionID)
}

// GetActive returns the owner's single active session.
func (s *SessionService) GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	session, err := s.sessions.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "No active session"}
		}
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return session, nil
}

// UpdateAllowedObjects replaces the object whitelist the edge detector polls
// for. Only active sessions can be reconfigured.
func (s *SessionService) UpdateAllowedObjects(ctx context.Context, userID, sessionID uuid.UUID, objects []string) (*models.StudySession, error) {
	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, &SessionClosedError{Message: "Session has ended; configuration is frozen"}
	}

	if objects == nil {
		objects = []string{}
	}
	if err := s.sessions.UpdateAllowedObjects(ctx, sessionID, objects); err != nil {
		return nil, fmt.Errorf("failed to update allowed objects: %w", err)
	}

	session.AllowedObjects = objects
	return session, nil
}

// Config returns the compact payload the edge device polls every few
// seconds: just the session id and the current object whitelist.
func (s *SessionService) Config(ctx context.Context, userID, sessionID uuid.UUID) (*models.SessionConfig, error) {
	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.SessionConfig{
		SessionID:      session.ID,
		AllowedObjects: session.AllowedObjects,
	}, nil
}

// Live reconstructs the breakdown of a session as of now. For ended sessions
// it returns the frozen counters instead of recomputing.
func (s *SessionService) Live(ctx context.Context, userID, sessionID uuid.UUID) (*LiveStatus, error) {
	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}

	tl := tracker.TimelineFromEvents(session.StartTime, events)

	status := &LiveStatus{
		SessionID: session.ID,
		State:     string(tl.CurrentState()),
	}

	if session.Ended() {
		status.Breakdown = tracker.Breakdown{
			StudySec:      session.StudyDurationSec,
			DistractedSec: session.DistractedDurationSec,
			AwaySec:       session.AwayDurationSec,
			TotalSec:      session.TotalDurationSec,
		}
		return status, nil
	}

	status.Breakdown = tl.Breakdown(time.Now().UTC())
	return status, nil
}

// FinalDuration returns the persisted breakdown of an ended session. It
// never recomputes; for a still-active session callers must use Live.
func (s *SessionService) FinalDuration(ctx context.Context, userID, sessionID uuid.UUID) (tracker.Breakdown, error) {
	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return tracker.Breakdown{}, err
	}
	if !session.Ended() {
		return tracker.Breakdown{}, &ConflictError{Message: "Session is still active; final durations exist only after it ends"}
	}

	return tracker.Breakdown{
		StudySec:      session.StudyDurationSec,
		DistractedSec: session.DistractedDurationSec,
		AwaySec:       session.AwayDurationSec,
		TotalSec:      session.TotalDurationSec,
	}, nil
}

// History lists the owner's ended sessions, optionally only those started on
// the given date.
func (s *SessionService) History(ctx context.Context, userID uuid.UUID, date *time.Time) ([]models.StudySession, error) {
	sessions, err := s.sessions.ListEnded(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Timeline returns a session's events in order, each paired with the frame
// captured for it when one exists.
func (s *SessionService) Timeline(ctx context.Context, userID, sessionID uuid.UUID) ([]models.TimelineItem, error) {
	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}
	images, err := s.images.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session images: %w", err)
	}

	// First image per event wins; images are listed oldest first.
	byEvent := make(map[uuid.UUID]string)
	for _, img := range images {
		if img.EventID == nil {
			continue
		}
		if _, ok := byEvent[*img.EventID]; !ok {
			byEvent[*img.EventID] = "/media/" + img.FilePath
		}
	}

	tl := tracker.TimelineFromEvents(session.StartTime, events)
	items := make([]models.TimelineItem, 0, tl.Len())
	for _, ev := range tl.Events() {
		item := models.TimelineItem{
			Time:       ev.Timestamp,
			State:      ev.State,
			Confidence: ev.Confidence,
		}
		if url, ok := byEvent[ev.ID]; ok {
			item.ImageURL = &url
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *SessionService) getOwned(ctx context.Context, userID, sessionID uuid.UUID) (*models.StudySession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	// Ownership failures look identical to missing sessions.
	if session.UserID != userID {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	return session, nil
}

// publishEvent fans an accepted event out to the owner's websocket
// subscribers. Delivery is best effort; a publish failure never fails the
// write that triggered it.
func (s *SessionService) publishEvent(ctx context.Context, ownerID uuid.UUID, ev *models.StudyEvent) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, "events:"+ownerID.String(), payload).Err(); err != nil {
		log.Printf("Failed to publish event %s: %v", ev.ID, err)
	}
}

func (s *SessionService) enqueueStatsRefresh(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.LPush(ctx, statsRefreshQueue, userID.String()).Err(); err != nil {
		log.Printf("Failed to enqueue stats refresh for %s: %v", userID, err)
	}
}
