package handlers

import (
	"context"
	"fmt"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/auth"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/points"
)

type PointsHandler struct {
	points *points.Service
}

func NewPointsHandler(pts *points.Service) *PointsHandler {
	return &PointsHandler{points: pts}
}

type AwardInput struct {
	Body struct {
		UserID           uint             `json:"userId" doc:"User to credit"`
		TaskID           string           `json:"taskId" doc:"Task slug"`
		Points           int              `json:"points"`
		VerificationData *models.Evidence `json:"verificationData,omitempty" doc:"Evidence backing the award"`
	}
}

type AwardBody struct {
	Success bool `json:"success"`
	points.AwardResult
}

type AwardOutput struct {
	Body AwardBody
}

// HandleAward credits a task. Students may only credit themselves, and never
// more than the task is worth.
func (h *PointsHandler) HandleAward(ctx context.Context, input *AwardInput) (*AwardOutput, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	body := input.Body

	if !p.IsStaff() {
		if body.UserID != p.UserID {
			return nil, apperr.Forbidden("students can only award points to themselves")
		}
		task, err := h.points.Task(ctx, body.TaskID)
		if err != nil {
			return nil, err
		}
		if body.Points > task.Points {
			return nil, apperr.Forbidden(fmt.Sprintf("task %q is worth at most %d points", task.Slug, task.Points))
		}
		if err := checkSelfAward(task, body.VerificationData); err != nil {
			return nil, err
		}
	}

	ev := models.Evidence{Type: models.EvidenceNone}
	if body.VerificationData != nil {
		ev = *body.VerificationData
		if err := points.ValidateEvidence(ev); err != nil {
			return nil, err
		}
	}

	res, err := h.points.Award(ctx, points.AwardRequest{
		UserID:   body.UserID,
		TaskSlug: body.TaskID,
		Points:   body.Points,
		Evidence: ev,
	})
	if err != nil {
		return nil, err
	}
	return &AwardOutput{Body: AwardBody{Success: true, AwardResult: *res}}, nil
}

// checkSelfAward limits students to quiz tasks backed by a passing result.
// QR, photo and teacher-verify tasks go through their own verification paths.
func checkSelfAward(task models.EcoTask, ev *models.Evidence) error {
	if task.VerificationMethod != models.VerifyQuiz {
		return apperr.Forbidden(fmt.Sprintf("task %q must be completed through %s verification", task.Slug, task.VerificationMethod))
	}
	if ev == nil || ev.Type != models.EvidenceQuizResult || ev.Quiz == nil {
		return apperr.Validation("quiz tasks need a quiz-result", task.Slug)
	}
	if pct := ev.Quiz.Percentage(); pct < points.QuizPassPercentage {
		return apperr.Validation("quiz not passed", fmt.Sprintf("scored %.0f%%, need %.0f%%", pct, points.QuizPassPercentage))
	}
	return nil
}

type UserIDInput struct {
	UserID uint `path:"userId"`
}

type StatsBody struct {
	Success bool `json:"success"`
	points.Stats
}

type StatsOutput struct {
	Body StatsBody
}

func (h *PointsHandler) HandleStats(ctx context.Context, input *UserIDInput) (*StatsOutput, error) {
	stats, err := h.points.Stats(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Body: StatsBody{Success: true, Stats: *stats}}, nil
}

type MessageOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

func message(msg string) *MessageOutput {
	out := &MessageOutput{}
	out.Body.Success = true
	out.Body.Message = msg
	return out
}

func (h *PointsHandler) HandleReset(ctx context.Context, input *UserIDInput) (*MessageOutput, error) {
	if err := h.points.Reset(ctx, input.UserID); err != nil {
		return nil, err
	}
	return message(fmt.Sprintf("Points reset for user %d", input.UserID)), nil
}
