package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studytrack-backend/internal/models"
)

type StudyImageRepo struct {
	pool *pgxpool.Pool
}

func NewStudyImageRepo(pool *pgxpool.Pool) *StudyImageRepo {
	return &StudyImageRepo{pool: pool}
}

func (r *StudyImageRepo) Create(ctx context.Context, img *models.StudyImage) error {
	img.ID = uuid.New()

	return r.pool.QueryRow(ctx, `
		INSERT INTO study_images (id, session_id, event_id, file_path, captured_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING captured_at
	`, img.ID, img.SessionID, img.EventID, img.FilePath, img.CapturedAt).Scan(&img.CapturedAt)
}

// ListBySession returns a session's captured images oldest first, so the
// first image found for an event is the one taken when the event fired.
func (r *StudyImageRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.StudyImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, event_id, file_path, captured_at
		FROM study_images
		WHERE session_id = $1
		ORDER BY captured_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := make([]models.StudyImage, 0)
	for rows.Next() {
		var img models.StudyImage
		if err := rows.Scan(&img.ID, &img.SessionID, &img.EventID, &img.FilePath, &img.CapturedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
