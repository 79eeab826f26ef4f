package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Snapshot stores the current all-time individual ranks so later boards can
// report rank movement.
func (a *Aggregator) Snapshot(ctx context.Context, now time.Time) (int, error) {
	scores, err := a.scores(ctx, AllTime, now, filter{})
	if err != nil {
		return 0, err
	}
	entries := rankIndividuals(scores)
	if len(entries) == 0 {
		return 0, nil
	}

	batch := uuid.NewString()
	rows := make([]models.LeaderboardSnapshot, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.LeaderboardSnapshot{
			Batch:   batch,
			TakenAt: now.UTC(),
			UserID:  e.UserID,
			Score:   e.Points,
			Rank:    e.Rank,
		})
	}

	if err := a.db.WithContext(ctx).CreateInBatches(&rows, 200).Error; err != nil {
		return 0, fmt.Errorf("store leaderboard snapshot: %w", err)
	}

	a.log.Info("Leaderboard snapshot stored", zap.String("batch", batch), zap.Int("entries", len(rows)))
	return len(rows), nil
}

func (a *Aggregator) latestSnapshot(ctx context.Context) (map[uint]int, error) {
	db := a.db.WithContext(ctx)

	var last models.LeaderboardSnapshot
	if err := db.Order("taken_at DESC, id DESC").First(&last).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rows []models.LeaderboardSnapshot
	if err := db.Where("batch = ?", last.Batch).Find(&rows).Error; err != nil {
		return nil, err
	}
	ranks := make(map[uint]int, len(rows))
	for _, r := range rows {
		ranks[r.UserID] = r.Rank
	}
	return ranks, nil
}

// applyChange sets Change to how many places each entry moved up since the
// latest snapshot. Entries absent from it keep a nil Change.
func (a *Aggregator) applyChange(ctx context.Context, entries []Entry) error {
	prev, err := a.latestSnapshot(ctx)
	if err != nil || prev == nil {
		return err
	}
	for i := range entries {
		if old, ok := prev[entries[i].UserID]; ok {
			change := old - entries[i].Rank
			entries[i].Change = &change
		}
	}
	return nil
}
