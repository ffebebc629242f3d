// Package store provides the repository API over the database.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/appforge-dev/appforge/internal/database"
	"github.com/appforge-dev/appforge/internal/model"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the repository over the appforge database.
type Store struct {
	db *database.DB
}

// New creates a store over the given database.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// GetProjectByID fetches a project by ID.
func (s *Store) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetSandboxByProjectID fetches the sandbox record for a project.
func (s *Store) GetSandboxByProjectID(ctx context.Context, projectID string) (*model.SandboxRecord, error) {
	var r model.SandboxRecord
	if err := s.db.WithContext(ctx).First(&r, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// CreateSandbox inserts a new sandbox record.
func (s *Store) CreateSandbox(ctx context.Context, r *model.SandboxRecord) error {
	return s.db.WithContext(ctx).Create(r).Error
}

// UpdateSandbox persists changes to a sandbox record. Last write wins on
// status fields; the provider is authoritative for actual sandbox state.
func (s *Store) UpdateSandbox(ctx context.Context, r *model.SandboxRecord) error {
	return s.db.WithContext(ctx).Save(r).Error
}

// DeleteSandbox removes the sandbox record for a project. Idempotent.
func (s *Store) DeleteSandbox(ctx context.Context, projectID string) error {
	return s.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&model.SandboxRecord{}).Error
}
