// Package client talks to the EcoLearn API and falls back to the local mirror
// when it cannot be reached.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/fallback"
	"go.uber.org/zap"
)

const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// ErrUnavailable marks a transport failure or 5xx from the API.
var ErrUnavailable = errors.New("ecolearn API unavailable")

// APIError is a 4xx answer decoded from the API error body.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, %s): %s", e.Status, e.Code, e.Message)
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	repo       *fallback.Repository
	log        *zap.Logger
}

func New(baseURL string, timeout time.Duration, repo *fallback.Repository, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		repo:       repo,
		log:        log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      uint      `json:"userId,omitempty"`
	Username    string    `json:"username,omitempty"`
	Name        string    `json:"name,omitempty"`
	School      string    `json:"school,omitempty"`
	Class       string    `json:"class,omitempty"`
	Points      int       `json:"points"`
	Percentage  float64   `json:"percentage,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

type Leaderboard struct {
	Period       string             `json:"period"`
	Category     string             `json:"category"`
	Entries      []LeaderboardEntry `json:"leaderboard"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	TotalEntries int                `json:"totalEntries"`
	Source       string             `json:"source"`
}

// Leaderboard fetches a ranked board. When the API is unavailable it returns the
// local quiz-score board instead.
func (c *Client) Leaderboard(ctx context.Context, period, category string) (*Leaderboard, error) {
	var board Leaderboard
	path := fmt.Sprintf("/api/leaderboard/%s/%s", url.PathEscape(period), url.PathEscape(category))
	err := c.do(ctx, http.MethodGet, path, nil, &board)
	if err == nil {
		board.Source = SourceRemote
		c.mirrorBoard(board)
		return &board, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return nil, err
	}

	c.log.Warn("API unreachable, using local leaderboard", zap.Error(err))
	scores, lerr := c.repo.Scores()
	if lerr != nil {
		return nil, fmt.Errorf("%w (local fallback failed: %v)", err, lerr)
	}
	local := fallback.Leaderboard(scores)
	out := &Leaderboard{
		Period:       period,
		Category:     category,
		Entries:      make([]LeaderboardEntry, 0, len(local)),
		UpdatedAt:    time.Now(),
		TotalEntries: len(local),
		Source:       SourceLocal,
	}
	for _, e := range local {
		out.Entries = append(out.Entries, LeaderboardEntry{
			Rank:        e.Rank,
			Username:    e.Username,
			Percentage:  e.Percentage,
			CompletedAt: e.CompletedAt,
		})
	}
	return out, nil
}

func (c *Client) mirrorBoard(board Leaderboard) {
	if board.Category != "individual" || board.Period != "all-time" {
		return
	}
	users, err := c.repo.Users()
	if err != nil {
		c.log.Warn("Failed to read local users", zap.Error(err))
		return
	}
	byID := make(map[uint]int, len(users))
	for i, u := range users {
		byID[u.ID] = i
	}
	for _, e := range board.Entries {
		if e.UserID == 0 {
			continue
		}
		if i, ok := byID[e.UserID]; ok {
			users[i].TotalPoints = e.Points
			continue
		}
		users = append(users, fallback.User{ID: e.UserID, Username: e.Username, School: e.School, Class: e.Class, TotalPoints: e.Points})
		byID[e.UserID] = len(users) - 1
	}
	if err := c.repo.SaveUsers(users); err != nil {
		c.log.Warn("Failed to mirror leaderboard", zap.Error(err))
	}
}

type Badge struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Icon     string    `json:"icon"`
	EarnedAt time.Time `json:"earnedAt"`
}

type Stats struct {
	UserID          uint    `json:"userId"`
	Username        string  `json:"username"`
	EcoPoints       int     `json:"ecoPoints"`
	TotalPoints     int     `json:"totalPoints"`
	Badges          []Badge `json:"badges"`
	Level           int     `json:"level"`
	Streak          int     `json:"streak"`
	TasksCompleted  int     `json:"tasksCompleted"`
	Avatar          string  `json:"avatar"`
	NextLevelPoints int     `json:"nextLevelPoints"`
	Source          string  `json:"source"`
}

// Stats fetches a user's totals, falling back to the locally mirrored user.
func (c *Client) Stats(ctx context.Context, userID uint) (*Stats, error) {
	var s Stats
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/points/stats/%d", userID), nil, &s)
	if err == nil {
		s.Source = SourceRemote
		c.mirrorStats(userID, s)
		return &s, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return nil, err
	}

	c.log.Warn("API unreachable, using local stats", zap.Uint("user_id", userID), zap.Error(err))
	u, lerr := c.repo.FindUser(userID)
	if lerr != nil {
		return nil, fmt.Errorf("%w (local fallback failed: %v)", err, lerr)
	}
	if u == nil {
		return nil, err
	}
	return &Stats{
		UserID:      u.ID,
		Username:    u.Username,
		EcoPoints:   u.EcoPoints,
		TotalPoints: u.TotalPoints,
		Badges:      []Badge{},
		Level:       u.Level,
		Streak:      u.Streak,
		Avatar:      u.Avatar,
		Source:      SourceLocal,
	}, nil
}

func (c *Client) mirrorStats(userID uint, s Stats) {
	users, err := c.repo.Users()
	if err != nil {
		c.log.Warn("Failed to read local users", zap.Error(err))
		return
	}

	idx := -1
	for i := range users {
		if users[i].ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		users = append(users, fallback.User{ID: userID})
		idx = len(users) - 1
	}

	u := &users[idx]
	u.Username = s.Username
	u.Avatar = s.Avatar
	u.EcoPoints = s.EcoPoints
	u.TotalPoints = s.TotalPoints
	u.Level = s.Level
	u.Streak = s.Streak

	if err := c.repo.SaveUsers(users); err != nil {
		c.log.Warn("Failed to mirror stats", zap.Error(err))
	}
}

type AwardRequest struct {
	UserID           uint   `json:"userId"`
	TaskID           string `json:"taskId"`
	Points           int    `json:"points"`
	VerificationData any    `json:"verificationData,omitempty"`
}

type AwardResponse struct {
	Success       bool    `json:"success"`
	PointsAwarded int     `json:"pointsAwarded"`
	TotalPoints   int     `json:"totalPoints"`
	NewBadges     []Badge `json:"newBadges"`
	CurrentLevel  int     `json:"currentLevel"`
	Streak        int     `json:"streak"`
}

// Award never falls back: writes fail closed.
func (c *Client) Award(ctx context.Context, req AwardRequest) (*AwardResponse, error) {
	var out AwardResponse
	if err := c.do(ctx, http.MethodPost, "/api/points/award", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type VerifyQRResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	PointsAwarded int    `json:"pointsAwarded"`
	TaskTitle     string `json:"taskTitle"`
}

func (c *Client) VerifyQR(ctx context.Context, userID uint, qrData string, loc *Location) (*VerifyQRResponse, error) {
	in := struct {
		UserID   uint      `json:"userId"`
		QRData   string    `json:"qrData"`
		Location *Location `json:"location,omitempty"`
	}{userID, qrData, loc}

	var out VerifyQRResponse
	if err := c.do(ctx, http.MethodPost, "/api/verification/verify-qr", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordQuiz stores a quiz result locally. It works offline.
func (c *Client) RecordQuiz(score fallback.QuizScore) (fallback.QuizScore, error) {
	return c.repo.RecordScore(score)
}
