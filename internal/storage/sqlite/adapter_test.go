package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	"github.com/kurihiro0119/repo-report-hub/internal/storage"
	"github.com/kurihiro0119/repo-report-hub/internal/storage/sqlite"
)

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(org, repo, date, filename string) *domain.SummaryEntry {
	d, _ := time.Parse(domain.DateFormat, date)
	return &domain.SummaryEntry{
		Organization: org,
		Repository:   repo,
		Date:         d,
		Filename:     filename,
		Path:         "/reports/" + filename,
	}
}

func TestUpsertReplacesByCaseInsensitiveKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, entry("acme", "widgets", "2024-03-16", "a.md")); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, entry("ACME", "Widgets", "2024-03-16", "b.md")); err != nil {
		t.Fatal(err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	got, err := store.QueryOne(ctx, "acme", "widgets", mustDate(t, "2024-03-16"))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Filename != "b.md" {
		t.Fatalf("got %+v, want last write b.md", got)
	}
	// display casing follows the last write
	if got.Organization != "ACME" {
		t.Errorf("organization = %q", got.Organization)
	}
}

func TestQueryOneMissingReturnsNil(t *testing.T) {
	store := newStore(t)

	got, err := store.QueryOne(context.Background(), "acme", "widgets", mustDate(t, "2024-03-16"))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestQueryHistoryOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, d := range []string{"2024-03-15", "2024-03-16", "2024-03-14"} {
		if err := store.Upsert(ctx, entry("acme", "widgets", d, "acme_widgets_"+d+".md")); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Upsert(ctx, entry("acme", "anvils", "2024-03-20", "acme_anvils_2024-03-20.md")); err != nil {
		t.Fatal(err)
	}

	entries, err := store.QueryHistory(ctx, "ACME", "WIDGETS")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"2024-03-16", "2024-03-15", "2024-03-14"} {
		if entries[i].Date.Format(domain.DateFormat) != want {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].Date.Format(domain.DateFormat), want)
		}
	}
}

func TestQueryOverviewOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, e := range []*domain.SummaryEntry{
		entry("beta", "tools", "2024-01-01", "beta_tools_2024-01-01.md"),
		entry("acme", "widgets", "2024-03-16", "acme_widgets_2024-03-16.md"),
		entry("acme", "widgets", "2024-03-14", "acme_widgets_2024-03-14.md"),
		entry("Acme", "anvils", "2024-02-02", "Acme_anvils_2024-02-02.md"),
	} {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.QueryOverview(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, e := range entries {
		got = append(got, e.Repository+"@"+e.Date.Format(domain.DateFormat))
	}
	want := []string{
		"anvils@2024-02-02",
		"widgets@2024-03-16",
		"widgets@2024-03-14",
		"tools@2024-01-01",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateFormat, s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
