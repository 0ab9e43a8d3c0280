package storage

import (
	"context"
	"time"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
)

// Storage is the abstract interface for the catalog persistence layer.
// Keys are case-insensitive on organization and repository; adapters store a
// lowercase key beside the case-preserved display values.
type Storage interface {
	// Upsert inserts or replaces the entry for its (org, repo, date) key
	Upsert(ctx context.Context, entry *domain.SummaryEntry) error

	// QueryOverview returns all entries ordered by organization then
	// repository (case-insensitive, ascending), then date descending
	QueryOverview(ctx context.Context) ([]*domain.SummaryEntry, error)

	// QueryHistory returns all entries for one repository, date descending
	QueryHistory(ctx context.Context, org, repo string) ([]*domain.SummaryEntry, error)

	// QueryOne returns the entry for an exact (org, repo, date) key, or nil
	QueryOne(ctx context.Context, org, repo string, date time.Time) (*domain.SummaryEntry, error)

	// Count returns the total number of entries
	Count(ctx context.Context) (int, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
