package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// ReapStale fails every active job whose last heartbeat is older than
// olderThan with STALE_HEARTBEAT and returns their ids.
func (s *Service) ReapStale(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	now := s.now()
	ids, err := s.store.FailStaleJobs(ctx, now.Add(-olderThan), models.ErrCodeStaleHeartbeat,
		Message(models.ErrCodeStaleHeartbeat), now)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	for _, id := range ids {
		s.cacheStatus(ctx, id, models.JobStatusFailed)
		s.logger.Warn("stale job failed", "job_id", id, "older_than", olderThan.String())
	}
	return ids, nil
}

// RunReaper calls ReapStale every interval until ctx is cancelled.
func (s *Service) RunReaper(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReapStale(ctx, olderThan); err != nil {
				s.logger.Error("reap stale jobs failed", "error", err)
			}
		}
	}
}
