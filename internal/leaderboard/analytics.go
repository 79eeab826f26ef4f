package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"gorm.io/gorm"
)

const (
	ScopeGlobal = "global"
	ScopeSchool = "school"
	ScopeUser   = "user"
)

type AnalyticsQuery struct {
	UserID    uint
	School    string
	Timeframe Period
}

type CompletionCounts struct {
	Verified int64 `json:"verified"`
	Pending  int64 `json:"pending"`
	Rejected int64 `json:"rejected"`
}

type CategoryStat struct {
	Completions int64 `json:"completions"`
	Points      int64 `json:"points"`
}

type Analytics struct {
	Scope       string                  `json:"scope"`
	Timeframe   Period                  `json:"timeframe"`
	Since       *time.Time              `json:"since,omitempty"`
	Users       int64                   `json:"totalUsers"`
	ActiveUsers int64                   `json:"activeUsers"`
	Points      int64                   `json:"pointsAwarded"`
	Completions CompletionCounts        `json:"completions"`
	Categories  map[string]CategoryStat `json:"categories"`
}

// Analytics aggregates completion activity for teacher and NGO dashboards.
func (a *Aggregator) Analytics(ctx context.Context, scope string, q AnalyticsQuery) (*Analytics, error) {
	if q.Timeframe == "" {
		q.Timeframe = AllTime
	}

	db := a.db.WithContext(ctx)
	users := db.Model(&models.User{})
	switch scope {
	case ScopeGlobal:
	case ScopeSchool:
		if q.School == "" {
			return nil, apperr.Validation("school is required for school analytics", "")
		}
		users = users.Where("school = ?", q.School)
	case ScopeUser:
		if q.UserID == 0 {
			return nil, apperr.Validation("userId is required for user analytics", "")
		}
		users = users.Where("id = ?", q.UserID)
	default:
		return nil, apperr.Validation("unknown analytics scope", scope)
	}

	out := &Analytics{
		Scope:      scope,
		Timeframe:  q.Timeframe,
		Categories: map[string]CategoryStat{},
	}
	if err := users.Session(&gorm.Session{}).Count(&out.Users).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if scope == ScopeUser && out.Users == 0 {
		return nil, apperr.NotFound("user")
	}

	completions := func() *gorm.DB {
		c := db.Model(&models.TaskCompletion{})
		if scope != ScopeGlobal {
			c = c.Where("task_completions.user_id IN (?)", users.Session(&gorm.Session{}).Select("id"))
		}
		if since, ok := q.Timeframe.Since(a.now().In(a.loc)); ok {
			// Verified work counts when it was verified, like the leaderboard windows.
			c = c.Where("COALESCE(task_completions.verified_at, task_completions.created_at) >= ?", since.UTC())
			s := since
			out.Since = &s
		}
		return c
	}

	var byStatus []struct {
		Status string
		N      int64
		Points int64
	}
	err := completions().
		Select("status, COUNT(*) AS n, COALESCE(SUM(points_awarded), 0) AS points").
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, fmt.Errorf("count completions: %w", err)
	}
	for _, s := range byStatus {
		switch models.CompletionStatus(s.Status) {
		case models.StatusVerified:
			out.Completions.Verified = s.N
			out.Points = s.Points
		case models.StatusPending:
			out.Completions.Pending = s.N
		case models.StatusRejected:
			out.Completions.Rejected = s.N
		}
	}

	if err := completions().Distinct("task_completions.user_id").Count(&out.ActiveUsers).Error; err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}

	var byCategory []struct {
		Category string
		N        int64
		Points   int64
	}
	err = completions().
		Select("eco_tasks.category AS category, COUNT(*) AS n, COALESCE(SUM(task_completions.points_awarded), 0) AS points").
		Joins("JOIN eco_tasks ON eco_tasks.id = task_completions.task_id").
		Where("task_completions.status = ?", models.StatusVerified).
		Group("eco_tasks.category").
		Scan(&byCategory).Error
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	for _, c := range byCategory {
		out.Categories[c.Category] = CategoryStat{Completions: c.N, Points: c.Points}
	}

	return out, nil
}
