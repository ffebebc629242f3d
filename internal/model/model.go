// Package model defines the database models for appforge.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is a user project built in the editor.
type Project struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Name      string
	Framework string // logical runtime kind, e.g. "nextjs", "vite"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns a UUID if none was provided.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Sandbox status values for SandboxRecord.
const (
	SandboxStatusActive  = "active"
	SandboxStatusPaused  = "paused"
	SandboxStatusExpired = "expired"
)

// SandboxRecord is the durable record of a project's remote sandbox.
// It is mutated only by the sandbox service; the remote provider, not this
// record, is authoritative for whether the sandbox actually runs.
type SandboxRecord struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"uniqueIndex"`

	// SandboxID is the provider-issued handle. Retained after expiry for
	// audit; an expired handle is never reused to start a new sandbox.
	SandboxID  string
	SandboxURL string
	Status     string // active, paused, expired
	Framework  string

	PausedAt      *time.Time
	ResumedAt     *time.Time
	LastCheckedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns a UUID if none was provided.
func (r *SandboxRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
