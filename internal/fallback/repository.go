package fallback

import (
	"errors"
	"sort"
	"time"
)

// User mirrors the signed-in user's profile and totals.
type User struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	School      string `json:"school,omitempty"`
	Class       string `json:"class,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	EcoPoints   int    `json:"ecoPoints"`
	TotalPoints int    `json:"totalPoints"`
	Level       int    `json:"level"`
	Streak      int    `json:"streak"`
}

type QuizScore struct {
	UserID      uint      `json:"userId,omitempty"`
	Username    string    `json:"username"`
	QuizID      string    `json:"quizId"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Percentage  float64   `json:"percentage"`
	CompletedAt time.Time `json:"completedAt"`
}

type GameStats struct {
	GamesPlayed int       `json:"gamesPlayed"`
	BestScore   int       `json:"bestScore"`
	TotalScore  int       `json:"totalScore"`
	LastPlayed  time.Time `json:"lastPlayed"`
}

type QuestProgress struct {
	CurrentQuest    string   `json:"currentQuest,omitempty"`
	CompletedQuests []string `json:"completedQuests"`
	XP              int      `json:"xp"`
}

// Repository gives typed access to the persisted keys.
type Repository struct {
	store Store
	now   func() time.Time
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store, now: time.Now}
}

func load[T any](s Store, key string) (T, bool, error) {
	var v T
	err := s.Load(key, &v)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// CurrentUser returns nil when nobody is stored.
func (r *Repository) CurrentUser() (*User, error) {
	u, ok, err := load[User](r.store, KeyUser)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) SaveCurrentUser(u User) error {
	if err := r.store.Save(KeyUser, u); err != nil {
		return err
	}
	return r.upsertUser(u)
}

func (r *Repository) Users() ([]User, error) {
	users, _, err := load[[]User](r.store, KeyUsers)
	return users, err
}

// FindUser looks a user up by id in the local users list.
func (r *Repository) FindUser(id uint) (*User, error) {
	users, err := r.Users()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (r *Repository) SaveUsers(users []User) error {
	return r.store.Save(KeyUsers, users)
}

func (r *Repository) upsertUser(u User) error {
	users, err := r.Users()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].ID == u.ID {
			users[i] = u
			return r.SaveUsers(users)
		}
	}
	return r.SaveUsers(append(users, u))
}

func (r *Repository) Scores() ([]QuizScore, error) {
	scores, _, err := load[[]QuizScore](r.store, KeyScores)
	return scores, err
}

// RecordScore appends a quiz result, filling in the percentage and time.
func (r *Repository) RecordScore(s QuizScore) (QuizScore, error) {
	if s.Total > 0 {
		s.Percentage = float64(s.Score) / float64(s.Total) * 100
	}
	if s.CompletedAt.IsZero() {
		s.CompletedAt = r.now()
	}

	scores, err := r.Scores()
	if err != nil {
		return s, err
	}
	return s, r.store.Save(KeyScores, append(scores, s))
}

func (r *Repository) QuestProgress() (QuestProgress, error) {
	p, _, err := load[QuestProgress](r.store, KeyQuestProgress)
	return p, err
}

func (r *Repository) SaveQuestProgress(p QuestProgress) error {
	return r.store.Save(KeyQuestProgress, p)
}

// GameStats reads the stats for a game key such as KeyCrosswordStats.
func (r *Repository) GameStats(key string) (GameStats, error) {
	s, _, err := load[GameStats](r.store, key)
	return s, err
}

// RecordGame folds one finished game into the stats under key.
func (r *Repository) RecordGame(key string, score int) (GameStats, error) {
	s, err := r.GameStats(key)
	if err != nil {
		return s, err
	}
	s.GamesPlayed++
	s.TotalScore += score
	if score > s.BestScore {
		s.BestScore = score
	}
	s.LastPlayed = r.now()
	return s, r.store.Save(key, s)
}

type Entry struct {
	Rank        int       `json:"rank"`
	Username    string    `json:"username"`
	QuizID      string    `json:"quizId"`
	Percentage  float64   `json:"percentage"`
	CompletedAt time.Time `json:"completedAt"`
}

// Leaderboard ranks quiz scores by percentage, earlier completion first on ties.
// It is a flat list with no badges or streaks.
func Leaderboard(scores []QuizScore) []Entry {
	sorted := make([]QuizScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Percentage != sorted[j].Percentage {
			return sorted[i].Percentage > sorted[j].Percentage
		}
		return sorted[i].CompletedAt.Before(sorted[j].CompletedAt)
	})

	out := make([]Entry, 0, len(sorted))
	for i, s := range sorted {
		out = append(out, Entry{
			Rank:        i + 1,
			Username:    s.Username,
			QuizID:      s.QuizID,
			Percentage:  s.Percentage,
			CompletedAt: s.CompletedAt,
		})
	}
	return out
}
