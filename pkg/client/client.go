package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
)

// Report is the API-facing view of one summary entry
type Report struct {
	Organization string `json:"organization"`
	Repository   string `json:"repository"`
	Date         string `json:"date"`
	Filename     string `json:"filename"`
}

// UpdateOutcome is the API-facing view of a finished update job
type UpdateOutcome struct {
	Job    *domain.Job             `json:"job"`
	Status domain.JobState         `json:"status"`
	Result *domain.GeneratorResult `json:"result,omitempty"`
	Entry  *Report                 `json:"entry,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// Client is the API client for repo-report-hub
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. Updates can take minutes, so the
// client carries no overall timeout; pass a bounded context-aware transport
// if one is needed.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// ListRepositories retrieves the overview of all indexed repositories
func (c *Client) ListRepositories() ([]*domain.RepositoryOverview, error) {
	var response struct {
		Data []*domain.RepositoryOverview `json:"data"`
	}
	if err := c.get("/api/v1/repos", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetHistory retrieves all reports for a repository, newest first
func (c *Client) GetHistory(org, repo string) ([]*Report, error) {
	path := fmt.Sprintf("/api/v1/repos/%s/%s/reports", url.PathEscape(org), url.PathEscape(repo))

	var response struct {
		Data []*Report `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetReport retrieves one report's metadata; date is YYYY-MM-DD or "latest"
func (c *Client) GetReport(org, repo, date string) (*Report, error) {
	path := fmt.Sprintf("/api/v1/repos/%s/%s/reports/%s",
		url.PathEscape(org), url.PathEscape(repo), url.PathEscape(date))

	var response struct {
		Data *Report `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetReportContent retrieves a report rendered as "markdown" or "html"
func (c *Client) GetReportContent(org, repo, date, format string) (string, error) {
	path := fmt.Sprintf("/api/v1/repos/%s/%s/reports/%s",
		url.PathEscape(org), url.PathEscape(repo), url.PathEscape(date))
	params := url.Values{}
	params.Set("format", format)

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	u.RawQuery = params.Encode()

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return string(body), nil
}

// Update triggers a synchronous summary update and returns its outcome
func (c *Client) Update(org, repo string) (*UpdateOutcome, error) {
	path := fmt.Sprintf("/api/v1/repos/%s/%s/update", url.PathEscape(org), url.PathEscape(repo))

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(u.String(), "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Failed outcomes still carry a structured body; only decode errors and
	// non-outcome statuses are surfaced as plain errors.
	var response struct {
		Data *UpdateOutcome `json:"data"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &response); err != nil || response.Data == nil {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return response.Data, nil
}

// GetQueueStatus retrieves a snapshot of the update queue
func (c *Client) GetQueueStatus() (*domain.QueueStatus, error) {
	var response struct {
		Data *domain.QueueStatus `json:"data"`
	}
	if err := c.get("/api/v1/queue", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// WaitForHealthy polls the health endpoint until the API responds or the
// timeout elapses. Convenience for scripts that start the server first.
func (c *Client) WaitForHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := c.HealthCheck(); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("API at %s not healthy after %s", c.baseURL, timeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
