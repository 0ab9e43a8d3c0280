package domain

import (
	"strings"
	"time"
)

// DateFormat is the calendar date layout used in report filenames and API paths.
const DateFormat = "2006-01-02"

// RepositoryRef identifies a GitHub repository by organization and name.
// Casing is preserved for display but all comparisons are case-insensitive.
type RepositoryRef struct {
	Organization string `json:"organization"`
	Repository   string `json:"repository"`
}

// NewRepositoryRef builds a normalized reference: fields are trimmed and a
// trailing ".git" suffix is stripped from the repository name.
func NewRepositoryRef(org, repo string) RepositoryRef {
	repo = strings.TrimSpace(repo)
	repo = strings.TrimSuffix(repo, ".git")
	return RepositoryRef{
		Organization: strings.TrimSpace(org),
		Repository:   repo,
	}
}

// IsValid reports whether both fields are non-empty after normalization.
func (r RepositoryRef) IsValid() bool {
	return r.Organization != "" && r.Repository != ""
}

// Key returns the lowercase lookup key for the reference.
func (r RepositoryRef) Key() (org, repo string) {
	return strings.ToLower(r.Organization), strings.ToLower(r.Repository)
}

// String returns the "org/repo" form.
func (r RepositoryRef) String() string {
	return r.Organization + "/" + r.Repository
}

// SummaryEntry represents one dated Markdown report for a repository.
// It is uniquely identified by (organization, repository, date), compared
// case-insensitively on organization and repository.
type SummaryEntry struct {
	Organization string    `json:"organization"`
	Repository   string    `json:"repository"`
	Date         time.Time `json:"-"`
	Filename     string    `json:"filename"`
	Path         string    `json:"-"`
}

// DateString returns the entry date as YYYY-MM-DD.
func (e *SummaryEntry) DateString() string {
	return e.Date.Format(DateFormat)
}

// Ref returns the repository reference for the entry.
func (e *SummaryEntry) Ref() RepositoryRef {
	return RepositoryRef{Organization: e.Organization, Repository: e.Repository}
}

// RepositoryOverview represents the catalog view of a single repository:
// every available report date (newest first) plus the latest report.
type RepositoryOverview struct {
	Organization   string   `json:"organization"`
	Repository     string   `json:"repository"`
	AvailableDates []string `json:"available_dates"`
	LatestDate     string   `json:"latest_date"`
	LatestFilename string   `json:"latest_filename"`
}
