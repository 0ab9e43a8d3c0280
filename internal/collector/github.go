package collector

import (
	"context"
	"fmt"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
)

// githubCollector implements Collector using the GitHub API
type githubCollector struct {
	client *github.Client
	pace   *pacer
}

// NewGitHubCollector creates a new GitHub collector. An empty token gives an
// unauthenticated client, which is enough for public organizations.
func NewGitHubCollector(token string) Collector {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(context.Background(), ts)
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	return &githubCollector{
		client: client,
		pace:   newPacer(),
	}
}

// GetRepositories retrieves all repositories for an organization
func (c *githubCollector) GetRepositories(ctx context.Context, org string) ([]domain.RepositoryRef, error) {
	var allRepos []domain.RepositoryRef
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		if err := c.pace.Wait(ctx); err != nil {
			return nil, err
		}

		repos, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}
		if resp != nil && resp.Rate.Remaining >= 0 {
			c.pace.Observe(resp.Rate.Remaining, resp.Rate.Reset.Time)
		}

		for _, repo := range repos {
			allRepos = append(allRepos, domain.NewRepositoryRef(org, repo.GetName()))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allRepos, nil
}
