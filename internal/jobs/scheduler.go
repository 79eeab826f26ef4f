// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Snapshotter stores the current leaderboard ranks.
type Snapshotter interface {
	Snapshot(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	loc  *time.Location
}

func NewScheduler(log *zap.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DiscardLogger))),
		log:  log,
		loc:  loc,
	}
}

// AddSnapshot schedules leaderboard snapshots with a standard 5-field spec.
func (s *Scheduler) AddSnapshot(spec string, snap Snapshotter, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		RunSnapshot(context.Background(), snap, s.log, timeout, time.Now().In(s.loc))
	})
	if err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", spec, err)
	}
	s.log.Info("Leaderboard snapshot scheduled", zap.String("schedule", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunSnapshot takes one snapshot and logs the outcome.
func RunSnapshot(ctx context.Context, snap Snapshotter, log *zap.Logger, timeout time.Duration, now time.Time) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := snap.Snapshot(ctx, now)
	if err != nil {
		log.Error("Leaderboard snapshot failed", zap.Error(err))
		return
	}
	log.Info("Leaderboard snapshot finished", zap.Int("entries", n), zap.Duration("took", time.Since(start)))
}
