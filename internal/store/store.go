// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/interviewd/internal/domain"
)

// Repository defines the interface for persisting interview data. Lookups
// return (nil, nil) when the record does not exist.
type Repository interface {
	// GetSession retrieves an interview session by its opaque identifier.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpsertSession writes the full session state. The caller persists
	// exactly once per successfully processed event.
	UpsertSession(ctx context.Context, s *domain.Session) error

	// GetAssignmentBySessionID loads the assignment backing a session id,
	// with candidate and job context joined in.
	GetAssignmentBySessionID(ctx context.Context, sessionID string) (*domain.Assignment, error)

	// MarkAssignmentStarted records that the candidate opened the interview.
	MarkAssignmentStarted(ctx context.Context, assignmentID string, at time.Time) error

	// MarkAssignmentSubmitted records completion of the interview.
	MarkAssignmentSubmitted(ctx context.Context, assignmentID, candidateNotes string, at time.Time) error

	// UpdateApplicationStatus moves an application through its lifecycle.
	UpdateApplicationStatus(ctx context.Context, applicationID string, status domain.ApplicationStatus) error

	// AppendCodeSnapshot appends to the capped per-session code history.
	AppendCodeSnapshot(ctx context.Context, sessionID, code string, ts time.Time) error

	// GetCodeHistory returns up to limit snapshots, oldest first.
	GetCodeHistory(ctx context.Context, sessionID string, limit int) ([]domain.CodeSnapshot, error)

	// SaveAnalysis stores the post-interview analysis verdict as JSON.
	SaveAnalysis(ctx context.Context, sessionID string, report []byte) error

	// GetAnalysis returns the stored analysis JSON, or nil when absent.
	GetAnalysis(ctx context.Context, sessionID string) ([]byte, error)

	// CreateUser inserts a candidate account.
	CreateUser(ctx context.Context, u *domain.User) error

	// CreateJob inserts a job posting.
	CreateJob(ctx context.Context, j *domain.Job) error

	// CreateApplication inserts an application.
	CreateApplication(ctx context.Context, a *domain.Application) error

	// CreateAssignment inserts an assignment keyed by its session id.
	CreateAssignment(ctx context.Context, a *domain.Assignment) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
