// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ledgersmith/cellflow/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Session operations. Sessions are stored as full aggregates:
	// classification results, assignments and conflicts travel with them.
	SaveSession(ctx context.Context, session *model.MappingSession) error
	GetSession(ctx context.Context, id string) (*model.MappingSession, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// SessionSummary is a lightweight listing row for stored sessions.
type SessionSummary struct {
	CreatedAt       time.Time
	ID              string
	TemplateName    string
	OntologyVersion string
	Status          model.SessionStatus
	OpenConflicts   int
	Assignments     int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// ClassifierStats shows the results of a classification run.
type ClassifierStats struct {
	TotalItems   int
	Classified   int
	Unclassified int
	LLMCalls     int
	Duration     time.Duration
}
