// Package points credits users for eco-task completions and records those completions.
package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/metrics"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/scoring"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxAwardAttempts = 3

var errStaleUser = errors.New("user record changed concurrently")

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	locks     *userLocks
	listeners []Listener
	uploader  PhotoUploader
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Service)

func WithListeners(l ...Listener) Option {
	return func(s *Service) { s.listeners = append(s.listeners, l...) }
}

func WithUploader(u PhotoUploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithLocation sets the zone whose calendar days drive streaks.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:    db,
		log:   log,
		locks: newUserLocks(),
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AwardRequest struct {
	UserID   uint
	TaskSlug string
	Points   int
	Evidence models.Evidence
}

type AwardResult struct {
	PointsAwarded int             `json:"pointsAwarded"`
	TotalPoints   int             `json:"totalPoints"`
	NewBadges     []scoring.Badge `json:"newBadges"`
	Level         int             `json:"currentLevel"`
	Streak        int             `json:"streak"`
	CompletionID  uint            `json:"completionId"`
}

// Award credits points for a task and records a verified completion. A task
// can be credited to a user only once.
func (s *Service) Award(ctx context.Context, req AwardRequest) (*AwardResult, error) {
	if req.Points < 0 {
		return nil, apperr.Validation("points must not be negative", fmt.Sprintf("got %d", req.Points))
	}

	task, err := s.findTask(ctx, req.TaskSlug)
	if err != nil {
		return nil, err
	}

	return s.award(ctx, awardInput{
		userID:   req.UserID,
		task:     task,
		points:   req.Points,
		evidence: req.Evidence,
	})
}

type awardInput struct {
	userID     uint
	task       models.EcoTask
	points     int
	evidence   models.Evidence
	pending    *models.TaskCompletion
	verifierID *uint
}

func (s *Service) award(ctx context.Context, in awardInput) (*AwardResult, error) {
	if in.evidence.Type == "" {
		in.evidence.Type = models.EvidenceNone
	}

	unlock := s.locks.Lock(in.userID)
	defer unlock()

	var (
		res  *AwardResult
		user models.User
		err  error
	)
	for attempt := 1; attempt <= maxAwardAttempts; attempt++ {
		res, user, err = s.awardTx(ctx, in)
		if !errors.Is(err, errStaleUser) {
			break
		}
		s.log.Warn("Retrying award after concurrent user update",
			zap.Uint("user_id", in.userID), zap.Int("attempt", attempt))
	}
	if err != nil {
		metrics.AwardsTotal.WithLabelValues(awardResultLabel(err)).Inc()
		if errors.Is(err, errStaleUser) {
			return nil, apperr.Conflict("user record is busy, try again")
		}
		return nil, err
	}

	metrics.AwardsTotal.WithLabelValues("awarded").Inc()
	metrics.PointsAwardedTotal.Add(float64(res.PointsAwarded))
	metrics.CompletionsTotal.WithLabelValues(string(models.StatusVerified)).Inc()
	for _, b := range res.NewBadges {
		metrics.BadgesEarnedTotal.WithLabelValues(b.ID).Inc()
	}

	s.log.Info("Points awarded",
		zap.Uint("user_id", user.ID),
		zap.String("task", in.task.Slug),
		zap.Int("points", res.PointsAwarded),
		zap.Int("total_points", res.TotalPoints),
		zap.Int("new_badges", len(res.NewBadges)),
	)

	ev := AwardEvent{
		UserID:        user.ID,
		Username:      user.Username,
		School:        user.School,
		Class:         user.Class,
		TaskSlug:      in.task.Slug,
		TaskTitle:     in.task.Title,
		PointsAwarded: res.PointsAwarded,
		TotalPoints:   res.TotalPoints,
		Level:         res.Level,
		Streak:        res.Streak,
		NewBadges:     res.NewBadges,
		At:            s.now(),
	}
	for _, l := range s.listeners {
		l.PointsAwarded(ctx, ev)
	}

	return res, nil
}

func awardResultLabel(err error) string {
	switch {
	case apperr.Is(err, apperr.CodeAlreadyCompleted):
		return "duplicate"
	case apperr.Is(err, apperr.CodeNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) awardTx(ctx context.Context, in awardInput) (*AwardResult, models.User, error) {
	var (
		res  AwardResult
		user models.User
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, in.userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user")
			}
			return fmt.Errorf("load user: %w", err)
		}

		var done int64
		if err := tx.Model(&models.TaskCompletion{}).
			Where("user_id = ? AND task_id = ? AND status = ?", user.ID, in.task.ID, models.StatusVerified).
			Count(&done).Error; err != nil {
			return fmt.Errorf("check duplicate completion: %w", err)
		}
		if done > 0 {
			return apperr.AlreadyCompleted(fmt.Sprintf("task %q already completed", in.task.Slug))
		}

		progress, err := loadProgress(tx, user.ID)
		if err != nil {
			return err
		}

		now := s.now().In(s.loc)
		stamp := now.UTC()

		streak := scoring.UpdateStreak(user.LastLogin, user.Streak, now)
		ecoPoints := user.EcoPoints + in.points
		total := user.TotalPoints + in.points
		lastAwarded := user.LastAwardedAt
		if in.points > 0 {
			lastAwarded = &stamp
		}

		progress.TotalPoints = total
		progress.Streak = streak
		progress.TasksCompleted++
		progress.CategoryCounts[string(in.task.Category)]++

		newBadges := scoring.CheckBadges(progress)
		for _, b := range newBadges {
			eb := models.EarnedBadge{UserID: user.ID, BadgeID: b.ID, EarnedAt: stamp}
			if err := tx.Create(&eb).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errStaleUser
				}
				return fmt.Errorf("record badge %s: %w", b.ID, err)
			}
		}

		upd := tx.Model(&models.User{}).
			Where("id = ? AND version = ?", user.ID, user.Version).
			Updates(map[string]any{
				"eco_points":      ecoPoints,
				"total_points":    total,
				"streak":          streak,
				"last_login":      stamp,
				"last_awarded_at": lastAwarded,
				"version":         user.Version + 1,
			})
		if upd.Error != nil {
			return fmt.Errorf("update user totals: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return errStaleUser
		}

		completionID, err := s.recordVerified(tx, in, stamp)
		if err != nil {
			return err
		}

		user.EcoPoints, user.TotalPoints, user.Streak = ecoPoints, total, streak
		res = AwardResult{
			PointsAwarded: in.points,
			TotalPoints:   total,
			NewBadges:     newBadges,
			Level:         scoring.CalculateLevel(total),
			Streak:        streak,
			CompletionID:  completionID,
		}
		if res.NewBadges == nil {
			res.NewBadges = []scoring.Badge{}
		}
		return nil
	})
	if err != nil {
		return nil, user, err
	}
	return &res, user, nil
}

// recordVerified either promotes the pending completion or inserts a new verified one.
func (s *Service) recordVerified(tx *gorm.DB, in awardInput, at time.Time) (uint, error) {
	key := models.VerifiedKeyFor(in.userID, in.task.ID)

	if in.pending != nil {
		upd := tx.Model(&models.TaskCompletion{}).
			Where("id = ? AND status = ?", in.pending.ID, models.StatusPending).
			Updates(map[string]any{
				"status":         models.StatusVerified,
				"points_awarded": in.points,
				"verifier_id":    in.verifierID,
				"verified_at":    at,
				"verified_key":   key,
			})
		if upd.Error != nil {
			if errors.Is(upd.Error, gorm.ErrDuplicatedKey) {
				return 0, apperr.AlreadyCompleted(fmt.Sprintf("task %q already completed", in.task.Slug))
			}
			return 0, fmt.Errorf("verify completion: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return 0, apperr.Conflict("completion is no longer pending")
		}
		return in.pending.ID, nil
	}

	completion := models.TaskCompletion{
		UserID:        in.userID,
		TaskID:        in.task.ID,
		Status:        models.StatusVerified,
		Evidence:      datatypes.NewJSONType(in.evidence),
		VerifierID:    in.verifierID,
		VerifiedAt:    &at,
		PointsAwarded: in.points,
		VerifiedKey:   key,
	}
	if err := tx.Create(&completion).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, apperr.AlreadyCompleted(fmt.Sprintf("task %q already completed", in.task.Slug))
		}
		return 0, fmt.Errorf("record completion: %w", err)
	}
	return completion.ID, nil
}

type categoryCount struct {
	Category string
	N        int
}

func loadProgress(tx *gorm.DB, userID uint) (scoring.Progress, error) {
	p := scoring.Progress{
		CategoryCounts: map[string]int{},
		Earned:         map[string]bool{},
	}

	var counts []categoryCount
	err := tx.Model(&models.TaskCompletion{}).
		Select("eco_tasks.category AS category, COUNT(*) AS n").
		Joins("JOIN eco_tasks ON eco_tasks.id = task_completions.task_id").
		Where("task_completions.user_id = ? AND task_completions.status = ?", userID, models.StatusVerified).
		Group("eco_tasks.category").
		Scan(&counts).Error
	if err != nil {
		return p, fmt.Errorf("count completions: %w", err)
	}
	for _, c := range counts {
		p.CategoryCounts[c.Category] = c.N
		p.TasksCompleted += c.N
	}

	var earned []models.EarnedBadge
	if err := tx.Where("user_id = ?", userID).Find(&earned).Error; err != nil {
		return p, fmt.Errorf("load badges: %w", err)
	}
	for _, b := range earned {
		p.Earned[b.BadgeID] = true
	}
	return p, nil
}

// Task looks up a task by slug, active or not.
func (s *Service) Task(ctx context.Context, slug string) (models.EcoTask, error) {
	return s.findTask(ctx, slug)
}

func (s *Service) findTask(ctx context.Context, slug string) (models.EcoTask, error) {
	var task models.EcoTask
	if slug == "" {
		return task, apperr.Validation("taskId is required", "")
	}
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return task, apperr.NotFound("task")
		}
		return task, fmt.Errorf("load task: %w", err)
	}
	return task, nil
}

type EarnedBadgeView struct {
	scoring.Badge
	EarnedAt time.Time `json:"earnedAt"`
}

type Stats struct {
	UserID          uint              `json:"userId"`
	Username        string            `json:"username"`
	EcoPoints       int               `json:"ecoPoints"`
	TotalPoints     int               `json:"totalPoints"`
	Badges          []EarnedBadgeView `json:"badges"`
	Level           int               `json:"level"`
	Streak          int               `json:"streak"`
	TasksCompleted  int               `json:"tasksCompleted"`
	Avatar          string            `json:"avatar"`
	NextLevelPoints int               `json:"nextLevelPoints"`
}

func (s *Service) Stats(ctx context.Context, userID uint) (*Stats, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Preload("Badges").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var tasks int64
	if err := db.Model(&models.TaskCompletion{}).
		Where("user_id = ? AND status = ?", userID, models.StatusVerified).
		Count(&tasks).Error; err != nil {
		return nil, fmt.Errorf("count completions: %w", err)
	}

	badges := make([]EarnedBadgeView, 0, len(user.Badges))
	for _, eb := range user.Badges {
		b, ok := scoring.LookupBadge(eb.BadgeID)
		if !ok {
			b = scoring.Badge{ID: eb.BadgeID, Name: eb.BadgeID}
		}
		badges = append(badges, EarnedBadgeView{Badge: b, EarnedAt: eb.EarnedAt})
	}

	return &Stats{
		UserID:          user.ID,
		Username:        user.Username,
		EcoPoints:       user.EcoPoints,
		TotalPoints:     user.TotalPoints,
		Badges:          badges,
		Level:           user.Level(),
		Streak:          user.Streak,
		TasksCompleted:  int(tasks),
		Avatar:          user.Avatar,
		NextLevelPoints: scoring.NextLevelThreshold(user.TotalPoints),
	}, nil
}

// Reset zeroes a user's point totals. Earned badges and completions are kept.
func (s *Service) Reset(ctx context.Context, userID uint) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"eco_points":      0,
			"total_points":    0,
			"last_awarded_at": nil,
			"version":         gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("reset user points: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user")
	}

	s.log.Warn("User points reset", zap.Uint("user_id", userID))
	return nil
}

// RecordLogin applies a day of activity to the user's streak.
func (s *Service) RecordLogin(ctx context.Context, userID uint) (int, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("user")
		}
		return 0, err
	}

	now := s.now().In(s.loc)
	streak := scoring.UpdateStreak(user.LastLogin, user.Streak, now)
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"streak":     streak,
			"last_login": now.UTC(),
			"version":    gorm.Expr("version + 1"),
		}).Error
	if err != nil {
		return 0, fmt.Errorf("record login: %w", err)
	}
	return streak, nil
}
