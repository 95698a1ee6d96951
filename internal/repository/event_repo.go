package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studytrack-backend/internal/models"
	"studytrack-backend/internal/tracker"
)

// Postgres unique_violation
const pgUniqueViolation = "23505"

type StudyEventRepo struct {
	pool *pgxpool.Pool
}

func NewStudyEventRepo(pool *pgxpool.Pool) *StudyEventRepo {
	return &StudyEventRepo{pool: pool}
}

// Insert stores an event. The unique constraint on (session_id, timestamp)
// backs the timeline's duplicate rule; violations surface as
// tracker.ErrDuplicateTimestamp.
func (r *StudyEventRepo) Insert(ctx context.Context, ev *models.StudyEvent) error {
	ev.ID = uuid.New()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO study_events (id, session_id, timestamp, state, confidence)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.SessionID, ev.Timestamp, ev.State, ev.Confidence)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return tracker.ErrDuplicateTimestamp
	}
	return err
}

// ListBySession returns a session's events ascending by timestamp.
func (r *StudyEventRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.StudyEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, timestamp, state, confidence
		FROM study_events
		WHERE session_id = $1
		ORDER BY timestamp
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.StudyEvent, 0)
	for rows.Next() {
		var ev models.StudyEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Timestamp, &ev.State, &ev.Confidence); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
