// Package leaderboard ranks users, classes and schools by points.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/scoring"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultLimit = 100

type Aggregator struct {
	db  *gorm.DB
	log *zap.Logger
	loc *time.Location
	now func() time.Time
}

func NewAggregator(db *gorm.DB, log *zap.Logger, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{db: db, log: log, loc: loc, now: time.Now}
}

type Query struct {
	Period   Period
	Grouping Grouping
	School   string
	Class    string
	Limit    int
}

type Entry struct {
	Rank     int     `json:"rank"`
	UserID   uint    `json:"userId,omitempty"`
	Username string  `json:"username,omitempty"`
	Avatar   string  `json:"avatar,omitempty"`
	School   string  `json:"school,omitempty"`
	Class    string  `json:"class,omitempty"`
	Name     string  `json:"name,omitempty"`
	Points   int     `json:"points"`
	Level    int     `json:"level,omitempty"`
	Members  int     `json:"members,omitempty"`
	Average  float64 `json:"averagePoints,omitempty"`
	Change   *int    `json:"change,omitempty"`
}

type Board struct {
	Period       Period    `json:"period"`
	Category     Grouping  `json:"category"`
	Entries      []Entry   `json:"leaderboard"`
	UpdatedAt    time.Time `json:"updatedAt"`
	TotalEntries int       `json:"totalEntries"`
}

// userScore is one user's standing inside a period. AchievedAt is when the
// score was reached; earlier wins ties.
type userScore struct {
	UserID     uint
	Username   string
	Avatar     string
	School     string
	Class      string
	Score      int
	AchievedAt *time.Time
}

type filter struct {
	School string
	Class  string
}

func (a *Aggregator) GetLeaderboard(ctx context.Context, q Query) (*Board, error) {
	if q.Period == "" {
		q.Period = AllTime
	}
	if q.Grouping == "" {
		q.Grouping = Individual
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	now := a.now()
	scores, err := a.scores(ctx, q.Period, now, filter{School: q.School, Class: q.Class})
	if err != nil {
		return nil, err
	}

	var entries []Entry
	switch q.Grouping {
	case Individual:
		entries = rankIndividuals(scores)
		if q.Period == AllTime && q.School == "" && q.Class == "" {
			if err := a.applyChange(ctx, entries); err != nil {
				a.log.Warn("Failed to load leaderboard snapshot", zap.Error(err))
			}
		}
	case Class:
		entries = rankGroups(scores, func(s userScore) (string, bool) {
			if s.School == "" || s.Class == "" {
				return "", false
			}
			return s.School + " / " + s.Class, true
		})
	case School:
		entries = rankGroups(scores, func(s userScore) (string, bool) {
			return s.School, s.School != ""
		})
	default:
		return nil, apperr.Validation("unknown leaderboard category", string(q.Grouping))
	}

	total := len(entries)
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	return &Board{
		Period:       q.Period,
		Category:     q.Grouping,
		Entries:      entries,
		UpdatedAt:    now,
		TotalEntries: total,
	}, nil
}

type completionRow struct {
	UserID        uint
	PointsAwarded int
	VerifiedAt    time.Time
}

// scores loads every user's score for the period. All-time uses the running
// total; windowed periods sum verified awards inside the window and leave out
// users without any.
func (a *Aggregator) scores(ctx context.Context, p Period, now time.Time, f filter) ([]userScore, error) {
	db := a.db.WithContext(ctx)

	users := db.Model(&models.User{})
	if f.School != "" {
		users = users.Where("school = ?", f.School)
	}
	if f.Class != "" {
		users = users.Where("class = ?", f.Class)
	}

	since, windowed := p.Since(now.In(a.loc))
	if !windowed {
		var rows []models.User
		if err := users.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		out := make([]userScore, 0, len(rows))
		for _, u := range rows {
			out = append(out, userScore{
				UserID:     u.ID,
				Username:   u.Username,
				Avatar:     u.Avatar,
				School:     u.School,
				Class:      u.Class,
				Score:      u.TotalPoints,
				AchievedAt: u.LastAwardedAt,
			})
		}
		return out, nil
	}

	var rows []completionRow
	err := db.Model(&models.TaskCompletion{}).
		Select("user_id, points_awarded, verified_at").
		Where("status = ? AND verified_at >= ?", models.StatusVerified, since.UTC()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byUser := make(map[uint]*userScore)
	ids := make([]uint, 0)
	for _, r := range rows {
		s, ok := byUser[r.UserID]
		if !ok {
			s = &userScore{UserID: r.UserID}
			byUser[r.UserID] = s
			ids = append(ids, r.UserID)
		}
		s.Score += r.PointsAwarded
		if r.PointsAwarded > 0 && (s.AchievedAt == nil || r.VerifiedAt.After(*s.AchievedAt)) {
			t := r.VerifiedAt
			s.AchievedAt = &t
		}
	}

	var found []models.User
	if err := users.Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	out := make([]userScore, 0, len(found))
	for _, u := range found {
		s := byUser[u.ID]
		s.Username, s.Avatar, s.School, s.Class = u.Username, u.Avatar, u.School, u.Class
		out = append(out, *s)
	}
	return out, nil
}

func sortScores(scores []userScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch {
		case a.AchievedAt != nil && b.AchievedAt != nil && !a.AchievedAt.Equal(*b.AchievedAt):
			return a.AchievedAt.Before(*b.AchievedAt)
		case a.AchievedAt != nil && b.AchievedAt == nil:
			return true
		case a.AchievedAt == nil && b.AchievedAt != nil:
			return false
		}
		return a.UserID < b.UserID
	})
}

func rankIndividuals(scores []userScore) []Entry {
	sortScores(scores)
	out := make([]Entry, 0, len(scores))
	for i, s := range scores {
		out = append(out, Entry{
			Rank:     i + 1,
			UserID:   s.UserID,
			Username: s.Username,
			Avatar:   s.Avatar,
			School:   s.School,
			Class:    s.Class,
			Points:   s.Score,
			Level:    scoring.CalculateLevel(s.Score),
		})
	}
	return out
}

func rankGroups(scores []userScore, key func(userScore) (string, bool)) []Entry {
	groups := make(map[string]*Entry)
	for _, s := range scores {
		name, ok := key(s)
		if !ok {
			continue
		}
		g, exists := groups[name]
		if !exists {
			g = &Entry{Name: name, School: s.School}
			if s.Class != "" && name != s.School {
				g.Class = s.Class
			}
			groups[name] = g
		}
		g.Points += s.Score
		g.Members++
	}

	out := make([]Entry, 0, len(groups))
	for _, g := range groups {
		g.Average = math.Round(float64(g.Points)/float64(g.Members)*10) / 10
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

type RankedUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	School   string `json:"school,omitempty"`
	Class    string `json:"class,omitempty"`
	Points   int    `json:"points"`
	Level    int    `json:"level"`
}

type Ranking struct {
	User       RankedUser `json:"user"`
	Individual int        `json:"individual"`
	Class      *int       `json:"class"`
	School     *int       `json:"school"`
	Period     Period     `json:"period"`
}

// GetUserRanking ranks a user as one plus the number of users with a strictly
// higher score in each scope. Class and school ranks are nil without affiliation.
func (a *Aggregator) GetUserRanking(ctx context.Context, userID uint, p Period) (*Ranking, error) {
	if p == "" {
		p = AllTime
	}

	var user models.User
	if err := a.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	scores, err := a.scores(ctx, p, a.now(), filter{})
	if err != nil {
		return nil, err
	}

	mine := 0
	for _, s := range scores {
		if s.UserID == user.ID {
			mine = s.Score
			break
		}
	}

	var individual, class, school int
	for _, s := range scores {
		if s.Score <= mine {
			continue
		}
		individual++
		if user.School != "" && s.School == user.School {
			school++
			if user.Class != "" && s.Class == user.Class {
				class++
			}
		}
	}

	r := &Ranking{
		User: RankedUser{
			ID:       user.ID,
			Username: user.Username,
			Avatar:   user.Avatar,
			School:   user.School,
			Class:    user.Class,
			Points:   mine,
			Level:    user.Level(),
		},
		Individual: individual + 1,
		Period:     p,
	}
	if user.School != "" {
		rank := school + 1
		r.School = &rank
		if user.Class != "" {
			rank := class + 1
			r.Class = &rank
		}
	}
	return r, nil
}
