// Package worker drains the stats refresh queue. Ending a session pushes the
// owner's id onto the queue; a worker recomputes the cached today stats so
// the dashboard read path stays cheap.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studytrack-backend/internal/services"
)

const statsRefreshQueue = "queue:stats-refresh"

type Pool struct {
	redis       *redis.Client
	stats       *services.StatsService
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, stats *services.StatsService, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		stats:       stats,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BRPOP with a timeout so shutdown is noticed between jobs
		result, err := p.redis.BRPop(ctx, 30*time.Second, statsRefreshQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		userID, err := uuid.Parse(result[1])
		if err != nil {
			log.Printf("Worker %d: bad queue payload %q: %v", id, result[1], err)
			continue
		}

		// Coalesce: multiple session ends in quick succession only need one
		// recompute, so skip if another worker refreshed this owner just now.
		lockKey := "stats_refresh_lock:" + userID.String()
		fresh, err := p.redis.SetNX(ctx, lockKey, "1", 2*time.Second).Result()
		if err != nil || !fresh {
			continue
		}

		if err := p.stats.Refresh(ctx, userID); err != nil {
			log.Printf("Worker %d: stats refresh for %s failed: %v", id, userID, err)
		}
	}
}
