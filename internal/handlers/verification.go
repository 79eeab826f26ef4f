package handlers

import (
	"context"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/auth"
	"github.com/ecolearn/ecolearn-api/internal/verification"
)

type VerificationHandler struct {
	verifier *verification.Service
}

func NewVerificationHandler(v *verification.Service) *VerificationHandler {
	return &VerificationHandler{verifier: v}
}

type GenerateQRInput struct {
	Body struct {
		TaskID     string                 `json:"taskId" doc:"Slug of a qr-code task"`
		Location   *verification.Location `json:"location,omitempty" doc:"Defaults to the task's own coordinates"`
		ValidUntil *time.Time             `json:"validUntil,omitempty" doc:"Defaults to the configured TTL"`
	}
}

type GenerateQRBody struct {
	Success bool `json:"success"`
	verification.GenerateResult
}

type GenerateQROutput struct {
	Body GenerateQRBody
}

func (h *VerificationHandler) HandleGenerate(ctx context.Context, input *GenerateQRInput) (*GenerateQROutput, error) {
	res, err := h.verifier.Generate(ctx, verification.GenerateRequest{
		TaskSlug:   input.Body.TaskID,
		Location:   input.Body.Location,
		ValidUntil: input.Body.ValidUntil,
	})
	if err != nil {
		return nil, err
	}
	return &GenerateQROutput{Body: GenerateQRBody{Success: true, GenerateResult: *res}}, nil
}

type VerifyQRInput struct {
	Body struct {
		UserID   uint                   `json:"userId,omitempty" doc:"Defaults to the caller"`
		QRData   string                 `json:"qrData" minLength:"1"`
		Location *verification.Location `json:"location,omitempty"`
	}
}

type VerifyQROutput struct {
	Body *verification.VerifyResult
}

// HandleVerify checks a scan. Staff may scan on behalf of a student, for
// example from a classroom kiosk.
func (h *VerificationHandler) HandleVerify(ctx context.Context, input *VerifyQRInput) (*VerifyQROutput, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	userID := input.Body.UserID
	if userID == 0 {
		userID = p.UserID
	}
	if userID != p.UserID && !p.IsStaff() {
		return nil, apperr.Forbidden("students can only verify their own scans")
	}

	res, err := h.verifier.Verify(ctx, verification.VerifyRequest{
		UserID:   userID,
		QRData:   input.Body.QRData,
		Location: input.Body.Location,
	})
	if err != nil {
		return nil, err
	}
	return &VerifyQROutput{Body: res}, nil
}
