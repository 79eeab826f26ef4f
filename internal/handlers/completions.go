package handlers

import (
	"context"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/auth"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/points"
)

type CompletionHandler struct {
	recorder *points.Recorder
}

func NewCompletionHandler(r *points.Recorder) *CompletionHandler {
	return &CompletionHandler{recorder: r}
}

type CompletionView struct {
	ID              uint                    `json:"id"`
	UserID          uint                    `json:"userId"`
	Username        string                  `json:"username,omitempty"`
	School          string                  `json:"school,omitempty"`
	TaskID          string                  `json:"taskId"`
	TaskTitle       string                  `json:"taskTitle,omitempty"`
	Status          models.CompletionStatus `json:"status"`
	Evidence        models.Evidence         `json:"evidence"`
	PointsAwarded   int                     `json:"pointsAwarded"`
	VerifiedAt      *time.Time              `json:"verifiedAt,omitempty"`
	RejectionReason string                  `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
}

func newCompletionView(c models.TaskCompletion) CompletionView {
	return CompletionView{
		ID:              c.ID,
		UserID:          c.UserID,
		Username:        c.User.Username,
		School:          c.User.School,
		TaskID:          c.Task.Slug,
		TaskTitle:       c.Task.Title,
		Status:          c.Status,
		Evidence:        c.Evidence.Data(),
		PointsAwarded:   c.PointsAwarded,
		VerifiedAt:      c.VerifiedAt,
		RejectionReason: c.RejectionReason,
		CreatedAt:       c.CreatedAt,
	}
}

type SubmitInput struct {
	Body struct {
		TaskID   string          `json:"taskId" doc:"Task slug"`
		Evidence models.Evidence `json:"evidence"`
	}
}

type SubmitOutput struct {
	Body struct {
		Success    bool                `json:"success"`
		Completion CompletionView      `json:"completion"`
		Award      *points.AwardResult `json:"award,omitempty" doc:"Present when the submission verified itself"`
	}
}

func (h *CompletionHandler) HandleSubmit(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}

	sub, err := h.recorder.Submit(ctx, p.UserID, input.Body.TaskID, input.Body.Evidence)
	if err != nil {
		return nil, err
	}

	out := &SubmitOutput{}
	out.Body.Success = true
	out.Body.Completion = newCompletionView(sub.Completion)
	out.Body.Completion.TaskID = input.Body.TaskID
	out.Body.Award = sub.Award
	return out, nil
}

type PendingInput struct {
	School string `query:"school" doc:"Only list completions from this school"`
}

type PendingOutput struct {
	Body struct {
		Success     bool             `json:"success"`
		Completions []CompletionView `json:"completions"`
	}
}

func (h *CompletionHandler) HandlePending(ctx context.Context, input *PendingInput) (*PendingOutput, error) {
	list, err := h.recorder.ListPending(ctx, input.School)
	if err != nil {
		return nil, err
	}

	out := &PendingOutput{}
	out.Body.Success = true
	out.Body.Completions = make([]CompletionView, 0, len(list))
	for _, c := range list {
		out.Body.Completions = append(out.Body.Completions, newCompletionView(c))
	}
	return out, nil
}

type CompletionIDInput struct {
	ID uint `path:"id"`
}

func (h *CompletionHandler) HandleVerify(ctx context.Context, input *CompletionIDInput) (*AwardOutput, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}

	res, err := h.recorder.Verify(ctx, input.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	return &AwardOutput{Body: AwardBody{Success: true, AwardResult: *res}}, nil
}

type RejectInput struct {
	ID   uint `path:"id"`
	Body struct {
		Reason string `json:"reason,omitempty" maxLength:"500"`
	} `required:"false"`
}

type RejectOutput struct {
	Body struct {
		Success    bool           `json:"success"`
		Completion CompletionView `json:"completion"`
	}
}

func (h *CompletionHandler) HandleReject(ctx context.Context, input *RejectInput) (*RejectOutput, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}

	c, err := h.recorder.Reject(ctx, input.ID, p.UserID, input.Body.Reason)
	if err != nil {
		return nil, err
	}

	out := &RejectOutput{}
	out.Body.Success = true
	out.Body.Completion = newCompletionView(*c)
	return out, nil
}
