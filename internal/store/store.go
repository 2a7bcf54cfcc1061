package store

import (
	"context"
	"errors"

	"github.com/joescharf/itrack/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no issue.
	ErrNotFound = errors.New("issue not found")
	// ErrInvalidDate is returned when a date filter is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")
)

// IssueListFilter specifies filters for listing issues. Empty or
// whitespace-only fields are ignored.
type IssueListFilter struct {
	Search   string // digits match id exactly, anything else is a subject substring
	Status   string
	Category string
	FromDate string // YYYY-MM-DD, inclusive from start of day
	ToDate   string // YYYY-MM-DD, inclusive to end of day
}

// Store defines the persistence interface for issues.
type Store interface {
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id int64) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	// UpdateIssue rewrites the mutable columns of an issue and reports the
	// number of rows matched. A missing id is not an error.
	UpdateIssue(ctx context.Context, id int64, update *models.IssueUpdate) (int64, error)
	// DeleteIssue hard-deletes an issue and reports the number of rows
	// removed. A missing id is not an error.
	DeleteIssue(ctx context.Context, id int64) (int64, error)
	Reports(ctx context.Context) (*models.Reports, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
