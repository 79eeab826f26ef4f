package points

import (
	"context"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/scoring"
)

// AwardEvent is published after an award commits.
type AwardEvent struct {
	UserID        uint            `json:"userId"`
	Username      string          `json:"username"`
	School        string          `json:"school,omitempty"`
	Class         string          `json:"class,omitempty"`
	TaskSlug      string          `json:"taskId"`
	TaskTitle     string          `json:"taskTitle"`
	PointsAwarded int             `json:"pointsAwarded"`
	TotalPoints   int             `json:"totalPoints"`
	Level         int             `json:"level"`
	Streak        int             `json:"streak"`
	NewBadges     []scoring.Badge `json:"newBadges"`
	At            time.Time       `json:"at"`
}

// SubmissionEvent is published when a completion is queued for verification.
type SubmissionEvent struct {
	CompletionID uint      `json:"completionId"`
	UserID       uint      `json:"userId"`
	Username     string    `json:"username"`
	School       string    `json:"school,omitempty"`
	TaskSlug     string    `json:"taskId"`
	TaskTitle    string    `json:"taskTitle"`
	At           time.Time `json:"at"`
}

// Listener receives committed point events. Implementations must not block
// for long; errors are theirs to log.
type Listener interface {
	PointsAwarded(ctx context.Context, ev AwardEvent)
	CompletionSubmitted(ctx context.Context, ev SubmissionEvent)
}

// PhotoUploader stores inline photo evidence and returns its hosted URL.
type PhotoUploader interface {
	UploadEvidence(ctx context.Context, userID uint, taskSlug, dataURL string) (string, error)
}
