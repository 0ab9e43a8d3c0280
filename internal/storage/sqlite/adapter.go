package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	"github.com/kurihiro0119/repo-report-hub/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		org_key TEXT NOT NULL,
		repo_key TEXT NOT NULL,
		date TEXT NOT NULL,
		org TEXT NOT NULL,
		repo TEXT NOT NULL,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (org_key, repo_key, date)
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_repo ON summaries(org_key, repo_key);
	CREATE INDEX IF NOT EXISTS idx_summaries_date ON summaries(date);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Upsert inserts or replaces a summary entry
func (s *sqliteStorage) Upsert(ctx context.Context, entry *domain.SummaryEntry) error {
	query := `
		INSERT OR REPLACE INTO summaries (org_key, repo_key, date, org, repo, filename, path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
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
func (s *sqliteStorage) QueryOverview(ctx context.Context) ([]*domain.SummaryEntry, error) {
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
func (s *sqliteStorage) QueryHistory(ctx context.Context, org, repo string) ([]*domain.SummaryEntry, error) {
	query := `
		SELECT org, repo, date, filename, path
		FROM summaries
		WHERE org_key = ? AND repo_key = ?
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
func (s *sqliteStorage) QueryOne(ctx context.Context, org, repo string, date time.Time) (*domain.SummaryEntry, error) {
	query := `
		SELECT org, repo, date, filename, path
		FROM summaries
		WHERE org_key = ? AND repo_key = ? AND date = ?
	`
	row := s.db.QueryRowContext(ctx, query,
		strings.ToLower(org), strings.ToLower(repo), date.Format(domain.DateFormat))

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Count returns the total number of entries
func (s *sqliteStorage) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries`).Scan(&count)
	return count, err
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows) ([]*domain.SummaryEntry, error) {
	var entries []*domain.SummaryEntry
	for rows.Next() {
		var e domain.SummaryEntry
		var dateStr string

		if err := rows.Scan(&e.Organization, &e.Repository, &dateStr, &e.Filename, &e.Path); err != nil {
			return nil, err
		}

		date, err := time.Parse(domain.DateFormat, dateStr)
		if err != nil {
			return nil, err
		}
		e.Date = date

		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func scanEntry(row *sql.Row) (*domain.SummaryEntry, error) {
	var e domain.SummaryEntry
	var dateStr string

	if err := row.Scan(&e.Organization, &e.Repository, &dateStr, &e.Filename, &e.Path); err != nil {
		return nil, err
	}

	date, err := time.Parse(domain.DateFormat, dateStr)
	if err != nil {
		return nil, err
	}
	e.Date = date

	return &e, nil
}
