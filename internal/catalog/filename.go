package catalog

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
)

// summaryFilePattern matches `<organization>_<repository>_<YYYY-MM-DD>.md`.
// The organization group is non-greedy and the repository group greedy, so
// underscores inside the repository name stay with the repository. Names that
// themselves contain a date-shaped segment can split surprisingly; that
// behavior is kept as-is for compatibility with existing report files.
var summaryFilePattern = regexp.MustCompile(`^(.+?)_(.+)_(\d{4}-\d{2}-\d{2})\.md$`)

// ParseSummaryFilename parses a report path into a summary entry. It returns
// false when the basename does not match the filename contract or the date
// part is not a real calendar date.
func ParseSummaryFilename(path string) (*domain.SummaryEntry, bool) {
	name := filepath.Base(path)
	m := summaryFilePattern.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}

	date, err := time.Parse(domain.DateFormat, m[3])
	if err != nil {
		return nil, false
	}

	return &domain.SummaryEntry{
		Organization: m[1],
		Repository:   m[2],
		Date:         date,
		Filename:     name,
		Path:         path,
	}, true
}
