package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	"github.com/kurihiro0119/repo-report-hub/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		org_key TEXT NOT NULL,
		repo_key TEXT NOT NULL,
		date DATE NOT NULL,
		org TEXT NOT NULL,
		repo TEXT NOT NULL,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (org_key, repo_key, date)
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_repo ON summaries(org_key, repo_key);
	CREATE INDEX IF NOT EXISTS idx_summaries_date ON summaries(date);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Upsert inserts or replaces a summary entry
func (s *postgresStorage) Upsert(ctx context.Context, entry *domain.SummaryEntry) error {
	query := `
		INSERT INTO summaries (org_key, repo_key, date, org, repo, filename, path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (org_key, repo_key, date)
		DO UPDATE SET org = EXCLUDED.org, repo = EXCLUDED.repo,
			filename = EXCLUDED.filename, path = EXCLUDED.path
	`
	_, err := s.db.ExecContext(ctx, query,
		strings.ToLower(entry.Organization),
		strings.ToLower(entry.Repository),
		entry.Date.Format(domain.DateFormat),
		entry.Organization,
		entry.Repository,
		entry.Filename,
		entry.Path,
	)
	return err
}

// QueryOverview retrieves all entries ordered for the repository overview
func (s *postgresStorage) QueryOverview(ctx context.Context) ([]*domain.SummaryEntry, error) {
	query := `
		SELECT org, repo, date, filename, path
		FROM summaries
		ORDER BY org_key, repo_key, date DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// QueryHistory retrieves all entries for a repository, newest first
func (s *postgresStorage) QueryHistory(ctx context.Context, org, repo string) ([]*domain.SummaryEntry, error) {
	query := `
		SELECT org, repo, date, filename, path
		FROM summaries
		WHERE org_key = $1 AND repo_key = $2
		ORDER BY date DESC
	`
	rows, err := s.db.QueryContext(ctx, query, strings.ToLower(org), strings.ToLower(repo))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// QueryOne retrieves a single entry by its key, or nil when absent
func (s *postgresStorage) QueryOne(ctx context.Context, org, repo string, date time.Time) (*domain.SummaryEntry, error) {
	query := `
		SELECT org, repo, date, filename, path
		FROM summaries
		WHERE org_key = $1 AND repo_key = $2 AND date = $3
	`
	row := s.db.QueryRowContext(ctx, query,
		strings.ToLower(org), strings.ToLower(repo), date.Format(domain.DateFormat))

	var e domain.SummaryEntry
	var date2 time.Time
	err := row.Scan(&e.Organization, &e.Repository, &date2, &e.Filename, &e.Path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Date = date2

	return &e, nil
}

// Count returns the total number of entries
func (s *postgresStorage) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries`).Scan(&count)
	return count, err
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows) ([]*domain.SummaryEntry, error) {
	var entries []*domain.SummaryEntry
	for rows.Next() {
		var e domain.SummaryEntry
		var date time.Time

		if err := rows.Scan(&e.Organization, &e.Repository, &date, &e.Filename, &e.Path); err != nil {
			return nil, err
		}
		e.Date = date

		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
