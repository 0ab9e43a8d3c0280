package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/repo-report-hub/internal/catalog"
	"github.com/kurihiro0119/repo-report-hub/internal/collector"
	"github.com/kurihiro0119/repo-report-hub/internal/config"
	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	"github.com/kurihiro0119/repo-report-hub/internal/generator"
	"github.com/kurihiro0119/repo-report-hub/internal/queue"
	"github.com/kurihiro0119/repo-report-hub/internal/storage"
	"github.com/kurihiro0119/repo-report-hub/internal/storage/postgres"
	"github.com/kurihiro0119/repo-report-hub/internal/storage/sqlite"
	"github.com/kurihiro0119/repo-report-hub/pkg/client"
)

var (
	outputJSON bool
	asHTML     bool
	endpoint   string
)

var rootCmd = &cobra.Command{
	Use:   "repo-reports",
	Short: "GitHub repository summary report tool",
	Long: `A CLI tool for browsing and regenerating dated Markdown summary
reports for GitHub repositories.

Reports are indexed in a local catalog keyed by organization, repository
and date. The update commands run the external summarizer one repository
at a time and register the produced files.`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed repositories",
	Long:  `Display every indexed repository with its available report dates.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var historyCmd = &cobra.Command{
	Use:   "history [org] [repo]",
	Short: "Show report history for a repository",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show [org] [repo] [date]",
	Short: "Print one report",
	Long:  `Print a report's Markdown (or HTML with --html). Omit the date for the latest report.`,
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runShow,
}

var updateCmd = &cobra.Command{
	Use:   "update [org] [repo]",
	Short: "Regenerate the summary for a repository",
	Long:  `Run the external summarizer for one repository, wait for it to finish and register the produced report.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runUpdate,
}

var syncCmd = &cobra.Command{
	Use:   "sync [org]",
	Short: "Regenerate summaries for all repositories of an organization",
	Long: `List an organization's repositories from the GitHub API and run the
summarizer for each of them, one at a time.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the update queue of a running API server",
	Args:  cobra.NoArgs,
	RunE:  runQueue,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	showCmd.Flags().BoolVar(&asHTML, "html", false, "render the report as HTML")
	queueCmd.Flags().StringVar(&endpoint, "endpoint", "", "API endpoint (default from API_ENDPOINT)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

// getCatalog wires config, storage and catalog for local commands
func getCatalog(ctx context.Context) (catalog.Catalog, storage.Storage, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	cat, err := catalog.New(ctx, store, cfg.ReportsDir)
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	return cat, store, cfg, nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cat, store, _, err := getCatalog(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	overviews, err := cat.ListRepositories(ctx)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(overviews)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Organization", "Repository", "Reports", "Latest"})
	for _, o := range overviews {
		table.Append([]string{o.Organization, o.Repository, fmt.Sprintf("%d", len(o.AvailableDates)), o.LatestDate})
	}
	table.Render()

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cat, store, _, err := getCatalog(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := cat.History(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(entries)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Date", "Filename"})
	for _, e := range entries {
		table.Append([]string{e.DateString(), e.Filename})
	}
	table.Render()

	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cat, store, _, err := getCatalog(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var entry *domain.SummaryEntry
	if len(args) == 3 {
		entry, err = cat.EntryFor(ctx, args[0], args[1], args[2])
	} else {
		entry, err = cat.Latest(ctx, args[0], args[1])
	}
	if err != nil {
		return err
	}

	var content string
	if asHTML {
		content, err = cat.HTMLFor(entry)
	} else {
		content, err = cat.MarkdownFor(entry)
	}
	if err != nil {
		return err
	}

	fmt.Println(content)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cat, store, cfg, err := getCatalog(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	gen := generator.NewCommandGenerator(cfg.GeneratorCommand, cfg.GeneratorWorkdir)
	q := queue.New(gen, cat)
	defer q.Shutdown(context.Background())

	return enqueueAndReport(ctx, q, args[0], args[1])
}

func runSync(cmd *cobra.Command, args []string) error {
	org := args[0]

	ctx := context.Background()
	cat, store, cfg, err := getCatalog(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Fetching repositories for organization: %s\n", org)
	coll := collector.NewGitHubCollector(cfg.GitHubToken)
	repos, err := coll.GetRepositories(ctx, org)
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}
	fmt.Printf("Found %d repositories\n", len(repos))

	gen := generator.NewCommandGenerator(cfg.GeneratorCommand, cfg.GeneratorWorkdir)
	q := queue.New(gen, cat)
	defer q.Shutdown(context.Background())

	failures := 0
	for _, ref := range repos {
		if err := enqueueAndReport(ctx, q, ref.Organization, ref.Repository); err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", ref.String(), err)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d repositories failed", failures, len(repos))
	}
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if endpoint == "" {
		endpoint = cfg.APIEndpoint
	}

	status, err := client.NewClient(endpoint).GetQueueStatus()
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(status)
	}

	if status.ActiveJob != nil {
		fmt.Printf("Active: %s (started %s)\n", status.ActiveJob.Ref.String(),
			status.ActiveJob.StartedAt.Format("15:04:05"))
	} else {
		fmt.Println("Active: none")
	}
	fmt.Printf("Pending: %d\n\n", status.Size)

	if len(status.Jobs) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"#", "Repository", "Enqueued"})
		for i, j := range status.Jobs {
			table.Append([]string{fmt.Sprintf("%d", i+1), j.Ref.String(), j.EnqueuedAt.Format("15:04:05")})
		}
		table.Render()
	}

	return nil
}

func enqueueAndReport(ctx context.Context, q *queue.Queue, org, repo string) error {
	fmt.Printf("Updating %s/%s...\n", org, repo)
	outcome, err := q.Enqueue(ctx, org, repo)
	if err != nil {
		return err
	}

	switch outcome.State {
	case domain.JobStateSucceeded:
		if outcome.Entry != nil {
			fmt.Printf("Done: registered %s\n", outcome.Entry.Filename)
		} else {
			fmt.Println("Done: generator produced no report file")
		}
		return nil
	case domain.JobStateRegistrationFailed:
		return fmt.Errorf("report produced but not registered: %w", outcome.Err)
	default:
		return outcome.Err
	}
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(string(b)))
	return nil
}
