package fallback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	var missing []QuizScore
	assert.ErrorIs(t, s.Load(KeyScores, &missing), ErrNotFound)

	in := []QuizScore{{Username: "asha", QuizID: "water", Score: 4, Total: 5, Percentage: 80}}
	require.NoError(t, s.Save(KeyScores, in))

	var out []QuizScore
	require.NoError(t, s.Load(KeyScores, &out))
	assert.Equal(t, in, out)

	// No temp files survive a save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KeyScores+".json", entries[0].Name())

	_, err = os.Stat(filepath.Join(dir, KeyScores+".json"))
	assert.NoError(t, err)
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Save("../escape", 1))
	assert.Error(t, s.Save("", 1))
}

func TestFileStore_CorruptValue(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyUser+".json"), []byte("{nope"), 0o644))

	var u User
	err = s.Load(KeyUser, &u)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRepository(t *testing.T) {
	repo := NewRepository(NewMemoryStore())
	repo.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	u, err := repo.CurrentUser()
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, repo.SaveCurrentUser(User{ID: 1, Username: "asha", TotalPoints: 95}))
	require.NoError(t, repo.SaveCurrentUser(User{ID: 1, Username: "asha", TotalPoints: 105}))
	require.NoError(t, repo.SaveCurrentUser(User{ID: 2, Username: "ravi"}))

	users, err := repo.Users()
	require.NoError(t, err)
	require.Len(t, users, 2)
	found, err := repo.FindUser(1)
	require.NoError(t, err)
	assert.Equal(t, 105, found.TotalPoints)

	s, err := repo.RecordScore(QuizScore{Username: "asha", QuizID: "water", Score: 3, Total: 4})
	require.NoError(t, err)
	assert.Equal(t, 75.0, s.Percentage)
	assert.False(t, s.CompletedAt.IsZero())

	stats, err := repo.RecordGame(KeyCrosswordStats, 40)
	require.NoError(t, err)
	stats, err = repo.RecordGame(KeyCrosswordStats, 25)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.GamesPlayed)
	assert.Equal(t, 40, stats.BestScore)
	assert.Equal(t, 65, stats.TotalScore)

	require.NoError(t, repo.SaveQuestProgress(QuestProgress{CurrentQuest: "river", CompletedQuests: []string{"forest"}, XP: 30}))
	qp, err := repo.QuestProgress()
	require.NoError(t, err)
	assert.Equal(t, "river", qp.CurrentQuest)
}

func TestLeaderboard_PercentageThenEarliest(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	scores := []QuizScore{
		{Username: "late90", Percentage: 90, CompletedAt: base.Add(time.Hour)},
		{Username: "top", Percentage: 100, CompletedAt: base.Add(2 * time.Hour)},
		{Username: "early90", Percentage: 90, CompletedAt: base},
		{Username: "low", Percentage: 40, CompletedAt: base},
	}

	board := Leaderboard(scores)
	require.Len(t, board, 4)
	names := []string{board[0].Username, board[1].Username, board[2].Username, board[3].Username}
	assert.Equal(t, []string{"top", "early90", "late90", "low"}, names)
	for i, e := range board {
		assert.Equal(t, i+1, e.Rank)
	}

	// Input is left untouched.
	assert.Equal(t, "late90", scores[0].Username)
	assert.Empty(t, Leaderboard(nil))
}
