package handlers

import (
	"context"
	"errors"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TaskHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTaskHandler(db *gorm.DB, log *zap.Logger) *TaskHandler {
	return &TaskHandler{db: db, log: log}
}

type TaskView struct {
	ID                 string                    `json:"id" doc:"Task slug"`
	Title              string                    `json:"title"`
	Description        string                    `json:"description,omitempty"`
	Category           models.TaskCategory       `json:"category"`
	Points             int                       `json:"points"`
	VerificationMethod models.VerificationMethod `json:"verificationMethod"`
	Latitude           *float64                  `json:"latitude,omitempty"`
	Longitude          *float64                  `json:"longitude,omitempty"`
	Active             bool                      `json:"active"`
}

func newTaskView(t models.EcoTask) TaskView {
	return TaskView{
		ID:                 t.Slug,
		Title:              t.Title,
		Description:        t.Description,
		Category:           t.Category,
		Points:             t.Points,
		VerificationMethod: t.VerificationMethod,
		Latitude:           t.Latitude,
		Longitude:          t.Longitude,
		Active:             t.Active,
	}
}

type ListTasksInput struct {
	Category string `query:"category" enum:"recycling,energy,water,tree-planting,pollution"`
}

type ListTasksOutput struct {
	Body struct {
		Success bool       `json:"success"`
		Tasks   []TaskView `json:"tasks"`
	}
}

func (h *TaskHandler) HandleList(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
	q := h.db.WithContext(ctx).Where("active = ?", true)
	if input.Category != "" {
		q = q.Where("category = ?", input.Category)
	}

	var tasks []models.EcoTask
	if err := q.Order("category, points, slug").Find(&tasks).Error; err != nil {
		return nil, apperr.Internal("failed to list tasks", err)
	}

	out := &ListTasksOutput{}
	out.Body.Success = true
	out.Body.Tasks = make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out.Body.Tasks = append(out.Body.Tasks, newTaskView(t))
	}
	return out, nil
}

type TaskSlugInput struct {
	Slug string `path:"slug"`
}

type TaskOutput struct {
	Body TaskView
}

func (h *TaskHandler) HandleGet(ctx context.Context, input *TaskSlugInput) (*TaskOutput, error) {
	var task models.EcoTask
	if err := h.db.WithContext(ctx).Where("slug = ?", input.Slug).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, apperr.Internal("failed to load task", err)
	}
	return &TaskOutput{Body: newTaskView(task)}, nil
}

type CreateTaskInput struct {
	Body struct {
		ID                 string                    `json:"id" pattern:"^[a-z0-9]+(-[a-z0-9]+)*$" maxLength:"64" doc:"Task slug"`
		Title              string                    `json:"title" minLength:"1"`
		Description        string                    `json:"description,omitempty"`
		Category           models.TaskCategory       `json:"category" enum:"recycling,energy,water,tree-planting,pollution"`
		Points             int                       `json:"points" minimum:"0" maximum:"1000"`
		VerificationMethod models.VerificationMethod `json:"verificationMethod" enum:"qr-code,photo,teacher-verify,quiz"`
		Latitude           *float64                  `json:"latitude,omitempty" minimum:"-90" maximum:"90"`
		Longitude          *float64                  `json:"longitude,omitempty" minimum:"-180" maximum:"180"`
	}
}

type CreateTaskOutput struct {
	Body TaskView
}

func (h *TaskHandler) HandleCreate(ctx context.Context, input *CreateTaskInput) (*CreateTaskOutput, error) {
	b := input.Body
	if (b.Latitude == nil) != (b.Longitude == nil) {
		return nil, apperr.Validation("latitude and longitude must be given together", "")
	}

	task := models.EcoTask{
		Slug:               b.ID,
		Title:              b.Title,
		Description:        b.Description,
		Category:           b.Category,
		Points:             b.Points,
		VerificationMethod: b.VerificationMethod,
		Latitude:           b.Latitude,
		Longitude:          b.Longitude,
		Active:             true,
	}
	if err := h.db.WithContext(ctx).Create(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("a task with this id already exists")
		}
		return nil, apperr.Internal("failed to create task", err)
	}

	h.log.Info("Task created", zap.String("task", task.Slug), zap.Int("points", task.Points))
	return &CreateTaskOutput{Body: newTaskView(task)}, nil
}
