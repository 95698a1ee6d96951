package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studytrack-backend/internal/models"
)

// StatsStore is the aggregation surface the stats service reads from.
type StatsStore interface {
	DayTotals(ctx context.Context, userID uuid.UUID, day time.Time) (models.DayTotals, error)
	RangeTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.DayTotals, error)
}

type StatsService struct {
	store    StatsStore
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewStatsService wires the stats service. A nil redis client disables the
// today-stats cache; every read then hits the database.
func NewStatsService(store StatsStore, rdb *redis.Client, cacheTTL time.Duration) *StatsService {
	return &StatsService{store: store, redis: rdb, cacheTTL: cacheTTL}
}

// Today returns the owner's stats for the current UTC day, served from the
// Redis cache when fresh.
func (s *StatsService) Today(ctx context.Context, userID uuid.UUID) (models.DayStats, error) {
	return s.Day(ctx, userID, time.Now().UTC())
}

// Day returns the owner's stats for an arbitrary calendar day, served from
// the Redis cache when fresh.
func (s *StatsService) Day(ctx context.Context, userID uuid.UUID, day time.Time) (models.DayStats, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, dayCacheKey(userID, day)).Result()
		if err == nil {
			var stats models.DayStats
			if err := json.Unmarshal([]byte(raw), &stats); err == nil {
				return stats, nil
			}
		}
	}

	return s.computeDay(ctx, userID, day)
}

// Range returns per-day stats for the trailing window named by rng, oldest
// first. Days without an ended session are omitted, not zero-filled.
func (s *StatsService) Range(ctx context.Context, userID uuid.UUID, rng string) ([]models.DayStats, error) {
	var days int
	switch rng {
	case "week":
		days = 7
	case "month":
		days = 30
	default:
		return nil, &ValidationError{Fields: map[string]string{
			"range": "Must be one of week, month",
		}}
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -(days - 1))

	totals, err := s.store.RangeTotals(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate range stats: %w", err)
	}

	stats := make([]models.DayStats, 0, len(totals))
	for _, t := range totals {
		stats = append(stats, toDayStats(t))
	}
	return stats, nil
}

// Refresh recomputes the owner's today stats and rewrites the cache entry.
// The worker calls this after every session finalize.
func (s *StatsService) Refresh(ctx context.Context, userID uuid.UUID) error {
	_, err := s.computeDay(ctx, userID, time.Now().UTC())
	return err
}

func (s *StatsService) computeDay(ctx context.Context, userID uuid.UUID, day time.Time) (models.DayStats, error) {
	totals, err := s.store.DayTotals(ctx, userID, day)
	if err != nil {
		return models.DayStats{}, fmt.Errorf("failed to aggregate day stats: %w", err)
	}

	stats := toDayStats(totals)

	if s.redis != nil {
		payload, err := json.Marshal(stats)
		if err == nil {
			if err := s.redis.Set(ctx, dayCacheKey(userID, day), payload, s.cacheTTL).Err(); err != nil {
				log.Printf("Failed to cache day stats for %s: %v", userID, err)
			}
		}
	}

	return stats, nil
}

func dayCacheKey(userID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("stats:day:%s:%s", userID, day.Format("2006-01-02"))
}

// toDayStats converts raw second sums into the display form. Minutes round
// per state independently, so their sum may drift from the total by a
// minute; the focus rate is blended over the summed seconds, not averaged
// across sessions.
func toDayStats(t models.DayTotals) models.DayStats {
	stats := models.DayStats{
		Date:              t.Date.Format("2006-01-02"),
		StudyMinutes:      roundMinutes(t.StudySec),
		DistractedMinutes: roundMinutes(t.DistractedSec),
		AwayMinutes:       roundMinutes(t.AwaySec),
	}
	if t.TotalSec > 0 {
		stats.FocusRate = math.Round(float64(t.StudySec)/float64(t.TotalSec)*100*100) / 100
	}
	return stats
}

func roundMinutes(secs int) int {
	return int(math.Round(float64(secs) / 60))
}
