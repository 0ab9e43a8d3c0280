package collector

import (
	"context"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
)

// Collector defines the interface for discovering repositories on GitHub.
// It backs the bulk-update command, which enqueues one summary job per
// repository of an organization.
type Collector interface {
	// GetRepositories retrieves all repositories for an organization
	GetRepositories(ctx context.Context, org string) ([]domain.RepositoryRef, error)
}
