package database

import (
	_ "embed"
	"fmt"

	"github.com/ecolearn/ecolearn-api/internal/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed seed/tasks.yaml
var tasksYAML []byte

type seedTask struct {
	Slug         string   `yaml:"slug"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	Category     string   `yaml:"category"`
	Points       int      `yaml:"points"`
	Verification string   `yaml:"verification"`
	Latitude     *float64 `yaml:"latitude"`
	Longitude    *float64 `yaml:"longitude"`
}

// LoadSeedTasks parses a YAML eco-task catalog.
func LoadSeedTasks(data []byte) ([]models.EcoTask, error) {
	var doc struct {
		Tasks []seedTask `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse task catalog: %w", err)
	}

	tasks := make([]models.EcoTask, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t.Slug == "" {
			return nil, fmt.Errorf("task %q has no slug", t.Title)
		}
		tasks = append(tasks, models.EcoTask{
			Slug:               t.Slug,
			Title:              t.Title,
			Description:        t.Description,
			Category:           models.TaskCategory(t.Category),
			Points:             t.Points,
			VerificationMethod: models.VerificationMethod(t.Verification),
			Latitude:           t.Latitude,
			Longitude:          t.Longitude,
			Active:             true,
		})
	}
	return tasks, nil
}

// SeedTasks upserts the embedded catalog by slug.
func SeedTasks(db *gorm.DB) (int, error) {
	tasks, err := LoadSeedTasks(tasksYAML)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "category", "points", "verification_method"}),
	}).Create(&tasks).Error
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}
