// Command ecolearn is a small client for the EcoLearn API. Reads fall back to
// a local mirror when the API cannot be reached; quiz and game results are
// always recorded locally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/client"
	"github.com/ecolearn/ecolearn-api/internal/fallback"
	"github.com/ecolearn/ecolearn-api/internal/logging"
)

const usage = `Usage: ecolearn [global flags] <command> [flags]

Commands:
  leaderboard   show a leaderboard (--period, --category)
  stats         show a user's points (--user)
  verify-qr     verify a scanned QR code (--user, --data, --lat, --lng)
  record-quiz   record a quiz result locally (--user, --name, --quiz, --score, --total)
  record-game   record a game score locally (--game crossword|detective, --score)

Global flags:
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ecolearn")
	}
	return ".ecolearn"
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("ecolearn", flag.ContinueOnError)
	global.SetOutput(stderr)
	apiURL := global.String("api", envOr("ECOLEARN_API", "http://127.0.0.1:8080"), "EcoLearn API base URL")
	dataDir := global.String("data-dir", envOr("ECOLEARN_DATA_DIR", defaultDataDir()), "Directory for the local mirror")
	timeout := global.Duration("timeout", 5*time.Second, "API request timeout")
	token := global.String("token", os.Getenv("ECOLEARN_TOKEN"), "Session token for authenticated calls")
	verbose := global.Bool("verbose", false, "Log fallback decisions")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("no command given")
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := fallback.NewFileStore(*dataDir)
	if err != nil {
		return err
	}
	repo := fallback.NewRepository(store)
	c := client.New(*apiURL, *timeout, repo, logger)
	c.Token = *token

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "leaderboard":
		return leaderboardCmd(ctx, c, rest, stdout)
	case "stats":
		return statsCmd(ctx, c, rest, stdout)
	case "verify-qr":
		return verifyCmd(ctx, c, rest, stdout)
	case "record-quiz":
		return recordQuizCmd(c, rest, stdout)
	case "record-game":
		return recordGameCmd(repo, rest, stdout)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func leaderboardCmd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	period := fs.String("period", "all-time", "daily, weekly, monthly or all-time")
	category := fs.String("category", "individual", "individual, class or school")
	if err := fs.Parse(args); err != nil {
		return err
	}

	board, err := c.Leaderboard(ctx, *period, *category)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s leaderboard (%s, %d entries)\n", board.Period, board.Category, board.Source, board.TotalEntries)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if board.Source == client.SourceLocal {
		fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE\tDATE")
		for _, e := range board.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%.0f%%\t%s\n", e.Rank, e.Username, e.Percentage, e.CompletedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "RANK\tNAME\tPOINTS")
	for _, e := range board.Entries {
		name := e.Username
		if name == "" {
			name = e.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\n", e.Rank, name, e.Points)
	}
	return tw.Flush()
}

func statsCmd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	userID := fs.Uint("user", 0, "User id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == 0 {
		return errors.New("--user is required")
	}

	s, err := c.Stats(ctx, *userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s)\n", s.Username, s.Source)
	fmt.Fprintf(out, "  points: %d  level: %d  streak: %d\n", s.TotalPoints, s.Level, s.Streak)
	if s.NextLevelPoints > 0 {
		fmt.Fprintf(out, "  next level at %d points\n", s.NextLevelPoints)
	}
	for _, b := range s.Badges {
		fmt.Fprintf(out, "  %s %s\n", b.Icon, b.Name)
	}
	return nil
}

func verifyCmd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify-qr", flag.ContinueOnError)
	userID := fs.Uint("user", 0, "User id, defaults to the token's user")
	data := fs.String("data", "", "Scanned QR payload")
	lat := fs.Float64("lat", 0, "Latitude of the scan")
	lng := fs.Float64("lng", 0, "Longitude of the scan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *data == "" {
		return errors.New("--data is required")
	}

	var loc *client.Location
	if *lat != 0 || *lng != 0 {
		loc = &client.Location{Latitude: *lat, Longitude: *lng}
	}
	res, err := c.VerifyQR(ctx, *userID, *data, loc)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Message)
	return nil
}

func recordQuizCmd(c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("record-quiz", flag.ContinueOnError)
	userID := fs.Uint("user", 0, "User id, if known")
	name := fs.String("name", "", "Player name")
	quiz := fs.String("quiz", "", "Quiz id")
	score := fs.Int("score", 0, "Correct answers")
	total := fs.Int("total", 0, "Number of questions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *quiz == "" || *total <= 0 {
		return errors.New("--name, --quiz and a positive --total are required")
	}

	saved, err := c.RecordQuiz(fallback.QuizScore{
		UserID:   *userID,
		Username: *name,
		QuizID:   *quiz,
		Score:    *score,
		Total:    *total,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Recorded %s: %d/%d (%.0f%%)\n", saved.QuizID, saved.Score, saved.Total, saved.Percentage)
	return nil
}

func recordGameCmd(repo *fallback.Repository, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("record-game", flag.ContinueOnError)
	game := fs.String("game", "", "crossword or detective")
	score := fs.Int("score", 0, "Score for this round")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var key string
	switch *game {
	case "crossword":
		key = fallback.KeyCrosswordStats
	case "detective":
		key = fallback.KeyDetectiveStats
	default:
		return fmt.Errorf("unknown game %q", *game)
	}

	stats, err := repo.RecordGame(key, *score)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d games played, best %d\n", *game, stats.GamesPlayed, stats.BestScore)
	return nil
}
