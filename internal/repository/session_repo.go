package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studytrack-backend/internal/models"
	"studytrack-backend/internal/tracker"
)

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, start_time, end_time, allowed_objects,
	total_duration_sec, study_duration_sec, distracted_duration_sec, away_duration_sec, created_at`

// Create inserts a new active session. The partial unique index on
// (user_id) WHERE end_time IS NULL backs the one-active-session rule;
// violations surface as tracker.ErrActiveSessionExists.
func (r *StudySessionRepo) Create(ctx context.Context, s *models.StudySession) error {
	objects, err := json.Marshal(s.AllowedObjects)
	if err != nil {
		return err
	}

	s.ID = uuid.New()

	query := `
		INSERT INTO study_sessions (id, user_id, start_time, allowed_objects)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err = r.pool.QueryRow(ctx, query, s.ID, s.UserID, s.StartTime, objects).Scan(&s.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return tracker.ErrActiveSessionExists
	}
	return err
}

func (r *StudySessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE id = $1`
	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetActive returns the most recently started session without an end time,
// or pgx.ErrNoRows when the owner has none.
func (r *StudySessionRepo) GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions
		WHERE user_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1`
	return r.scanSession(r.pool.QueryRow(ctx, query, userID))
}

// Finalize persists the end time and the frozen duration breakdown. The
// end_time IS NULL guard makes the write a no-op if another caller already
// ended the session; RowsAffected tells the service which happened.
func (r *StudySessionRepo) Finalize(ctx context.Context, s *models.StudySession) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET end_time = $2,
			total_duration_sec = $3,
			study_duration_sec = $4,
			distracted_duration_sec = $5,
			away_duration_sec = $6
		WHERE id = $1
		  AND end_time IS NULL
	`, s.ID, s.EndTime, s.TotalDurationSec, s.StudyDurationSec, s.DistractedDurationSec, s.AwayDurationSec)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *StudySessionRepo) UpdateAllowedObjects(ctx context.Context, id uuid.UUID, objects []string) error {
	encoded, err := json.Marshal(objects)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		"UPDATE study_sessions SET allowed_objects = $1 WHERE id = $2",
		encoded, id,
	)
	return err
}

// ListEnded returns ended sessions newest first, optionally limited to those
// started on the given calendar date.
func (r *StudySessionRepo) ListEnded(ctx context.Context, userID uuid.UUID, date *time.Time) ([]models.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions
		WHERE user_id = $1 AND end_time IS NOT NULL`
	args := []interface{}{userID}

	if date != nil {
		query += ` AND DATE(start_time) = DATE($2)`
		args = append(args, *date)
	}
	query += ` ORDER BY start_time DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.StudySession, 0)
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// DayTotals sums the frozen breakdowns of sessions started on the given day
// and already ended. Sessions are bucketed by start date only; one spanning
// midnight counts wholly toward the day it started.
func (r *StudySessionRepo) DayTotals(ctx context.Context, userID uuid.UUID, day time.Time) (models.DayTotals, error) {
	totals := models.DayTotals{Date: day}

	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(study_duration_sec), 0),
		       COALESCE(SUM(distracted_duration_sec), 0),
		       COALESCE(SUM(away_duration_sec), 0),
		       COALESCE(SUM(total_duration_sec), 0)
		FROM study_sessions
		WHERE user_id = $1
		  AND end_time IS NOT NULL
		  AND DATE(start_time) = DATE($2)
	`, userID, day).Scan(&totals.StudySec, &totals.DistractedSec, &totals.AwaySec, &totals.TotalSec)

	return totals, err
}

// RangeTotals groups ended sessions by start date over the inclusive range.
// Days without any ended session produce no row.
func (r *StudySessionRepo) RangeTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.DayTotals, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DATE(start_time) AS day,
		       SUM(study_duration_sec),
		       SUM(distracted_duration_sec),
		       SUM(away_duration_sec),
		       SUM(total_duration_sec)
		FROM study_sessions
		WHERE user_id = $1
		  AND end_time IS NOT NULL
		  AND DATE(start_time) BETWEEN DATE($2) AND DATE($3)
		GROUP BY day
		ORDER BY day
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]models.DayTotals, 0)
	for rows.Next() {
		var t models.DayTotals
		if err := rows.Scan(&t.Date, &t.StudySec, &t.DistractedSec, &t.AwaySec, &t.TotalSec); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *StudySessionRepo) scanSession(row rowScanner) (*models.StudySession, error) {
	s := &models.StudySession{}
	var objects []byte

	err := row.Scan(
		&s.ID, &s.UserID, &s.StartTime, &s.EndTime, &objects,
		&s.TotalDurationSec, &s.StudyDurationSec, &s.DistractedDurationSec, &s.AwayDurationSec, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(objects, &s.AllowedObjects); err != nil {
		return nil, err
	}
	if s.AllowedObjects == nil {
		s.AllowedObjects = []string{}
	}

	return s, nil
}
