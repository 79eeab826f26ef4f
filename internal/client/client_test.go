package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/fallback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, url string) (*Client, *fallback.Repository, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	repo := fallback.NewRepository(fallback.NewMemoryStore())
	return New(url, time.Second, repo, zap.New(core)), repo, logs
}

func TestLeaderboard_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/leaderboard/all-time/individual", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"period":"all-time","category":"individual","totalEntries":1,
			"leaderboard":[{"rank":1,"userId":7,"username":"asha","points":105}]}`))
	}))
	defer srv.Close()

	c, repo, logs := newTestClient(t, srv.URL)
	board, err := c.Leaderboard(context.Background(), "all-time", "individual")
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, board.Source)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "asha", board.Entries[0].Username)
	assert.Zero(t, logs.Len())

	// The board refreshed the local mirror.
	u, err := repo.FindUser(7)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, 105, u.TotalPoints)
}

func TestLeaderboard_FallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, repo, logs := newTestClient(t, srv.URL)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err := repo.RecordScore(fallback.QuizScore{Username: "late", Score: 4, Total: 5, CompletedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = repo.RecordScore(fallback.QuizScore{Username: "early", Score: 8, Total: 10, CompletedAt: base})
	require.NoError(t, err)

	board, err := c.Leaderboard(context.Background(), "weekly", "individual")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, board.Source)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "early", board.Entries[0].Username)
	assert.Equal(t, 80.0, board.Entries[0].Percentage)
	assert.Equal(t, 1, logs.FilterMessage("API unreachable, using local leaderboard").Len())
}

func TestLeaderboard_FallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _, _ := newTestClient(t, url)
	board, err := c.Leaderboard(context.Background(), "all-time", "individual")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, board.Source)
	assert.Empty(t, board.Entries)
}

func TestLeaderboard_ClientErrorIsNotMasked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":400,"code":"VALIDATION_ERROR","message":"unknown period"}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	_, err := c.Leaderboard(context.Background(), "yearly", "individual")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestStats_MirrorAndFallback(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"userId":3,"username":"ravi","ecoPoints":320,"totalPoints":320,"level":3,"streak":4,"badges":[]}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	s, err := c.Stats(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, s.Source)

	up.Store(false)
	s, err = c.Stats(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, s.Source)
	assert.Equal(t, 320, s.TotalPoints)
	assert.Equal(t, 4, s.Streak)

	_, err = c.Stats(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAward_FailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	c.Token = "t0k"
	_, err := c.Award(context.Background(), AwardRequest{UserID: 1, TaskID: "x", Points: 5})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestVerifyQR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer t0k", r.Header.Get("Authorization"))
		w.Write([]byte(`{"success":true,"message":"ok","pointsAwarded":50,"taskTitle":"Plant a sapling"}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	c.Token = "t0k"
	res, err := c.VerifyQR(context.Background(), 1, "{}", &Location{Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	assert.Equal(t, 50, res.PointsAwarded)
}
