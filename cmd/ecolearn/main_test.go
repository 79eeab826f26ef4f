package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_OfflineLeaderboard(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	dir := t.TempDir()
	global := []string{"--api", down.URL, "--data-dir", dir}

	var out, errOut bytes.Buffer
	err := run(context.Background(), append(global, "record-quiz", "--name", "Asha", "--quiz", "recycling-101", "--score", "9", "--total", "10"), &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Recorded recycling-101: 9/10 (90%)")

	out.Reset()
	err = run(context.Background(), append(global, "leaderboard"), &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "all-time individual leaderboard (local, 1 entries)")
	assert.Contains(t, out.String(), "Asha")
}

func TestRun_RecordGame(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer

	for _, score := range []string{"40", "70"} {
		out.Reset()
		err := run(context.Background(), []string{"--data-dir", dir, "record-game", "--game", "crossword", "--score", score}, &out, &errOut)
		require.NoError(t, err)
	}
	assert.Equal(t, "crossword: 2 games played, best 70\n", out.String())

	err := run(context.Background(), []string{"--data-dir", dir, "record-game", "--game", "chess"}, &out, &errOut)
	assert.EqualError(t, err, `unknown game "chess"`)
}

func TestRun_Usage(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"--data-dir", t.TempDir()}, &out, &errOut)
	assert.EqualError(t, err, "no command given")
	assert.Contains(t, errOut.String(), "Commands:")

	err = run(context.Background(), []string{"--data-dir", t.TempDir(), "dance"}, &out, &errOut)
	assert.EqualError(t, err, `unknown command "dance"`)
}
