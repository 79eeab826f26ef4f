package points

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/metrics"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuizPassPercentage is the score a quiz result needs to verify itself.
const QuizPassPercentage = 60.0

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEvidence checks the evidence union at the boundary.
func ValidateEvidence(ev models.Evidence) error {
	if err := validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return apperr.Validation("invalid evidence", strings.Join(fields, "; "))
		}
		return apperr.Validation("invalid evidence", err.Error())
	}
	return nil
}

// Recorder tracks task completions from submission to verification.
type Recorder struct {
	svc *Service
}

func NewRecorder(svc *Service) *Recorder {
	return &Recorder{svc: svc}
}

type Submission struct {
	Completion models.TaskCompletion
	// Award is set when the submission verified itself.
	Award *AwardResult
}

func (r *Recorder) Submit(ctx context.Context, userID uint, taskSlug string, ev models.Evidence) (*Submission, error) {
	if err := ValidateEvidence(ev); err != nil {
		return nil, err
	}

	task, err := r.svc.findTask(ctx, taskSlug)
	if err != nil {
		return nil, err
	}
	if !task.Active {
		return nil, apperr.Validation("task is not active", task.Slug)
	}

	var user models.User
	if err := r.svc.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := r.checkOpen(ctx, userID, task); err != nil {
		return nil, err
	}

	switch task.VerificationMethod {
	case models.VerifyQRCode:
		return nil, apperr.Validation("task must be completed by scanning its QR code", task.Slug)

	case models.VerifyQuiz:
		if ev.Type != models.EvidenceQuizResult {
			return nil, apperr.Validation("quiz tasks need a quiz-result", "")
		}
		if pct := ev.Quiz.Percentage(); pct < QuizPassPercentage {
			return nil, apperr.Validation("quiz not passed",
				fmt.Sprintf("scored %.0f%%, need %.0f%%", pct, QuizPassPercentage))
		}
		res, err := r.svc.award(ctx, awardInput{userID: userID, task: task, points: task.Points, evidence: ev})
		if err != nil {
			return nil, err
		}
		var c models.TaskCompletion
		if err := r.svc.db.WithContext(ctx).First(&c, res.CompletionID).Error; err != nil {
			return nil, fmt.Errorf("load completion: %w", err)
		}
		return &Submission{Completion: c, Award: res}, nil

	case models.VerifyPhoto:
		if ev.Type != models.EvidencePhoto {
			return nil, apperr.Validation("photo tasks need photo evidence", "")
		}
		if ev.Photo.DataURL != "" && r.svc.uploader != nil {
			url, err := r.svc.uploader.UploadEvidence(ctx, userID, task.Slug, ev.Photo.DataURL)
			if err != nil {
				return nil, fmt.Errorf("upload photo evidence: %w", err)
			}
			ev.Photo = &models.PhotoEvidence{URL: url, Caption: ev.Photo.Caption}
		}
	}

	c := models.TaskCompletion{
		UserID:   userID,
		TaskID:   task.ID,
		Status:   models.StatusPending,
		Evidence: datatypes.NewJSONType(ev),
	}
	if err := r.svc.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	metrics.CompletionsTotal.WithLabelValues(string(models.StatusPending)).Inc()

	r.svc.log.Info("Completion submitted",
		zap.Uint("completion_id", c.ID),
		zap.Uint("user_id", userID),
		zap.String("task", task.Slug),
	)

	sub := SubmissionEvent{
		CompletionID: c.ID,
		UserID:       user.ID,
		Username:     user.Username,
		School:       user.School,
		TaskSlug:     task.Slug,
		TaskTitle:    task.Title,
		At:           r.svc.now(),
	}
	for _, l := range r.svc.listeners {
		l.CompletionSubmitted(ctx, sub)
	}

	return &Submission{Completion: c}, nil
}

// checkOpen rejects a submission when the task is already pending or verified for the user.
func (r *Recorder) checkOpen(ctx context.Context, userID uint, task models.EcoTask) error {
	var existing []models.TaskCompletion
	err := r.svc.db.WithContext(ctx).
		Where("user_id = ? AND task_id = ? AND status IN ?", userID, task.ID,
			[]models.CompletionStatus{models.StatusPending, models.StatusVerified}).
		Find(&existing).Error
	if err != nil {
		return fmt.Errorf("check existing completions: %w", err)
	}
	for _, c := range existing {
		if c.Status == models.StatusVerified {
			return apperr.AlreadyCompleted(fmt.Sprintf("task %q already completed", task.Slug))
		}
	}
	if len(existing) > 0 {
		return apperr.Conflict(fmt.Sprintf("task %q is awaiting verification", task.Slug))
	}
	return nil
}

func (r *Recorder) loadPending(ctx context.Context, completionID, verifierID uint) (models.TaskCompletion, error) {
	var c models.TaskCompletion

	var verifier models.User
	if err := r.svc.db.WithContext(ctx).First(&verifier, verifierID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c, apperr.NotFound("verifier")
		}
		return c, fmt.Errorf("load verifier: %w", err)
	}
	if !verifier.Role.IsStaff() {
		return c, apperr.Forbidden("only teachers, NGOs and admins can verify completions")
	}

	if err := r.svc.db.WithContext(ctx).Preload("Task").First(&c, completionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c, apperr.NotFound("completion")
		}
		return c, fmt.Errorf("load completion: %w", err)
	}
	if c.Status != models.StatusPending {
		return c, apperr.Conflict(fmt.Sprintf("completion is %s", c.Status))
	}
	return c, nil
}

// Verify approves a pending completion and credits the task's points.
func (r *Recorder) Verify(ctx context.Context, completionID, verifierID uint) (*AwardResult, error) {
	c, err := r.loadPending(ctx, completionID, verifierID)
	if err != nil {
		return nil, err
	}

	return r.svc.award(ctx, awardInput{
		userID:     c.UserID,
		task:       c.Task,
		points:     c.Task.Points,
		evidence:   c.Evidence.Data(),
		pending:    &c,
		verifierID: &verifierID,
	})
}

func (r *Recorder) Reject(ctx context.Context, completionID, verifierID uint, reason string) (*models.TaskCompletion, error) {
	c, err := r.loadPending(ctx, completionID, verifierID)
	if err != nil {
		return nil, err
	}

	res := r.svc.db.WithContext(ctx).Model(&models.TaskCompletion{}).
		Where("id = ? AND status = ?", c.ID, models.StatusPending).
		Updates(map[string]any{
			"status":           models.StatusRejected,
			"verifier_id":      verifierID,
			"rejection_reason": reason,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("reject completion: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("completion is no longer pending")
	}
	metrics.CompletionsTotal.WithLabelValues(string(models.StatusRejected)).Inc()

	r.svc.log.Info("Completion rejected",
		zap.Uint("completion_id", c.ID),
		zap.Uint("verifier_id", verifierID),
	)

	c.Status = models.StatusRejected
	c.VerifierID = &verifierID
	c.RejectionReason = reason
	return &c, nil
}

// ListPending returns the verification queue, oldest first. An empty school lists all.
func (r *Recorder) ListPending(ctx context.Context, school string) ([]models.TaskCompletion, error) {
	q := r.svc.db.WithContext(ctx).
		Preload("Task").
		Preload("User").
		Where("status = ?", models.StatusPending)
	if school != "" {
		q = q.Where("user_id IN (?)", r.svc.db.Model(&models.User{}).Select("id").Where("school = ?", school))
	}

	var out []models.TaskCompletion
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list pending completions: %w", err)
	}
	return out, nil
}
