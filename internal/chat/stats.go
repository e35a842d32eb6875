package chat

import (
	"context"
	"time"

	"class-chat-service/internal/models"
	"class-chat-service/internal/repositories"
)

// StatsWindow is the trailing window used for weekly activity.
const StatsWindow = 7 * 24 * time.Hour

// Stats aggregates activity counts. Deleted messages are not counted even
// though history still shows them.
type Stats struct {
	gate *Gate
	repo repositories.MessageRepository
	now  func() time.Time
}

// NewStats constructs an activity aggregator.
func NewStats(gate *Gate, repo repositories.MessageRepository, now func() time.Time) *Stats {
	if now == nil {
		now = time.Now
	}
	return &Stats{gate: gate, repo: repo, now: now}
}

// Get computes stats for a class the identity can access.
func (s *Stats) Get(ctx context.Context, identity models.Identity, classID int64) (models.ActivityStats, error) {
	if err := s.gate.CanAccessClassChat(ctx, identity, classID); err != nil {
		return models.ActivityStats{}, err
	}
	stats, err := s.repo.Stats(ctx, classID, s.now().UTC().Add(-StatsWindow))
	if err != nil {
		return models.ActivityStats{}, mapRepoErr(err)
	}
	return stats, nil
}
