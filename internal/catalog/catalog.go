package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	apperrors "github.com/kurihiro0119/repo-report-hub/internal/errors"
	"github.com/kurihiro0119/repo-report-hub/internal/storage"
)

// Catalog defines the interface for the summary catalog index
type Catalog interface {
	// ListRepositories returns an overview of every known repository
	ListRepositories(ctx context.Context) ([]*domain.RepositoryOverview, error)

	// History returns all entries for a repository, newest first
	History(ctx context.Context, org, repo string) ([]*domain.SummaryEntry, error)

	// EntryFor returns the entry for a specific YYYY-MM-DD date
	EntryFor(ctx context.Context, org, repo, date string) (*domain.SummaryEntry, error)

	// Latest returns the most recent entry for a repository
	Latest(ctx context.Context, org, repo string) (*domain.SummaryEntry, error)

	// MarkdownFor reads an entry's raw Markdown, sanitized to valid UTF-8
	MarkdownFor(entry *domain.SummaryEntry) (string, error)

	// HTMLFor reads an entry's Markdown and renders it to HTML
	HTMLFor(entry *domain.SummaryEntry) (string, error)

	// RegisterSummaryFromPath records a produced report file in the store.
	// Paths whose basename does not match the filename contract are ignored
	// and return (nil, nil).
	RegisterSummaryFromPath(ctx context.Context, path string) (*domain.SummaryEntry, error)
}

// catalog implements the Catalog interface
type catalog struct {
	storage storage.Storage
}

// New creates a new catalog backed by the given storage. When the store is
// empty, the reports directory is scanned once and every file matching the
// filename contract is registered.
func New(ctx context.Context, store storage.Storage, reportsDir string) (Catalog, error) {
	c := &catalog{storage: store}

	count, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		if err := c.bootstrap(ctx, reportsDir); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// bootstrap reconciles a pre-existing directory of report files into the store
func (c *catalog) bootstrap(ctx context.Context, reportsDir string) error {
	files, err := os.ReadDir(reportsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to scan reports directory: %w", err)
	}

	registered := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		entry, err := c.RegisterSummaryFromPath(ctx, filepath.Join(reportsDir, f.Name()))
		if err != nil {
			return err
		}
		if entry != nil {
			registered++
		}
	}

	if registered > 0 {
		slog.Info("bootstrapped summary catalog", "dir", reportsDir, "entries", registered)
	}
	return nil
}

// ListRepositories returns an overview of every known repository
func (c *catalog) ListRepositories(ctx context.Context) ([]*domain.RepositoryOverview, error) {
	entries, err := c.storage.QueryOverview(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query overview", err)
	}

	overviews := []*domain.RepositoryOverview{}
	var current *domain.RepositoryOverview
	var currentOrg, currentRepo string

	for _, e := range entries {
		org, repo := e.Ref().Key()
		if current == nil || org != currentOrg || repo != currentRepo {
			current = &domain.RepositoryOverview{
				Organization:   e.Organization,
				Repository:     e.Repository,
				LatestDate:     e.DateString(),
				LatestFilename: e.Filename,
			}
			currentOrg, currentRepo = org, repo
			overviews = append(overviews, current)
		}
		current.AvailableDates = append(current.AvailableDates, e.DateString())
	}

	return overviews, nil
}

// History returns all entries for a repository, newest first
func (c *catalog) History(ctx context.Context, org, repo string) ([]*domain.SummaryEntry, error) {
	entries, err := c.storage.QueryHistory(ctx, org, repo)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query history", err)
	}
	if len(entries) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("repository %s/%s", org, repo))
	}
	return entries, nil
}

// EntryFor returns the entry for a specific YYYY-MM-DD date
func (c *catalog) EntryFor(ctx context.Context, org, repo, date string) (*domain.SummaryEntry, error) {
	parsed, err := time.Parse(domain.DateFormat, date)
	if err != nil {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}

	entry, err := c.storage.QueryOne(ctx, org, repo, parsed)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query entry", err)
	}
	if entry == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("report %s/%s %s", org, repo, date))
	}
	return entry, nil
}

// Latest returns the most recent entry for a repository
func (c *catalog) Latest(ctx context.Context, org, repo string) (*domain.SummaryEntry, error) {
	entries, err := c.History(ctx, org, repo)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// MarkdownFor reads an entry's raw Markdown, sanitized to valid UTF-8
func (c *catalog) MarkdownFor(entry *domain.SummaryEntry) (string, error) {
	b, err := os.ReadFile(entry.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.NewNotFoundError(fmt.Sprintf("report file %s", entry.Filename))
		}
		return "", apperrors.NewInternalError("failed to read report file", err)
	}
	return sanitizeUTF8(b), nil
}

// HTMLFor reads an entry's Markdown and renders it to HTML
func (c *catalog) HTMLFor(entry *domain.SummaryEntry) (string, error) {
	markdown, err := c.MarkdownFor(entry)
	if err != nil {
		return "", err
	}
	html, err := renderHTML(markdown)
	if err != nil {
		return "", apperrors.NewInternalError("failed to render markdown", err)
	}
	return html, nil
}

// RegisterSummaryFromPath records a produced report file in the store
func (c *catalog) RegisterSummaryFromPath(ctx context.Context, path string) (*domain.SummaryEntry, error) {
	entry, ok := ParseSummaryFilename(path)
	if !ok {
		return nil, nil
	}

	if err := c.storage.Upsert(ctx, entry); err != nil {
		return nil, apperrors.NewRegistrationError(path, err)
	}
	return entry, nil
}
