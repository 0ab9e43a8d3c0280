package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/repo-report-hub/internal/catalog"
	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	apperrors "github.com/kurihiro0119/repo-report-hub/internal/errors"
	"github.com/kurihiro0119/repo-report-hub/internal/generator"
	"github.com/kurihiro0119/repo-report-hub/internal/queue"
)

// Handler handles API requests
type Handler struct {
	catalog catalog.Catalog
	queue   *queue.Queue
}

// NewHandler creates a new API handler
func NewHandler(cat catalog.Catalog, q *queue.Queue) *Handler {
	return &Handler{
		catalog: cat,
		queue:   q,
	}
}

// HealthCheck returns service health
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ListRepositories returns the overview of all indexed repositories
// GET /api/v1/repos
func (h *Handler) ListRepositories(c *gin.Context) {
	overviews, err := h.catalog.ListRepositories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": overviews,
	})
}

// GetHistory returns all reports for a repository, newest first
// GET /api/v1/repos/:org/:repo/reports
func (h *Handler) GetHistory(c *gin.Context) {
	org := c.Param("org")
	repo := c.Param("repo")

	entries, err := h.catalog.History(c.Request.Context(), org, repo)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": entryViews(entries),
	})
}

// GetReport returns one report. The date path segment is either YYYY-MM-DD
// or the literal "latest". ?format=markdown or ?format=html returns the
// rendered content; the default is JSON metadata.
// GET /api/v1/repos/:org/:repo/reports/:date
func (h *Handler) GetReport(c *gin.Context) {
	org := c.Param("org")
	repo := c.Param("repo")
	date := c.Param("date")

	var entry *domain.SummaryEntry
	var err error
	if date == "latest" {
		entry, err = h.catalog.Latest(c.Request.Context(), org, repo)
	} else {
		entry, err = h.catalog.EntryFor(c.Request.Context(), org, repo, date)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	switch c.Query("format") {
	case "markdown":
		markdown, err := h.catalog.MarkdownFor(entry)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(markdown))
	case "html":
		html, err := h.catalog.HTMLFor(entry)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
	default:
		c.JSON(http.StatusOK, gin.H{
			"data": entryView(entry),
		})
	}
}

// UpdateRepository enqueues a summary update job. The default mode blocks
// until the job finishes and returns its outcome; ?async=true returns the
// accepted job immediately.
// POST /api/v1/repos/:org/:repo/update
func (h *Handler) UpdateRepository(c *gin.Context) {
	org := c.Param("org")
	repo := c.Param("repo")

	if c.Query("async") == "true" {
		job, err := h.queue.EnqueueAsync(org, repo)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"data": gin.H{"job": job},
		})
		return
	}

	outcome, err := h.queue.Enqueue(c.Request.Context(), org, repo)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOutcome(c, outcome)
}

// GetQueueStatus returns a snapshot of the update queue
// GET /api/v1/queue
func (h *Handler) GetQueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": h.queue.Status(),
	})
}

func respondOutcome(c *gin.Context, outcome *domain.Outcome) {
	body := gin.H{
		"job":    outcome.Job,
		"status": outcome.State,
	}
	if outcome.Result != nil {
		body["result"] = outcome.Result
	}
	if outcome.Entry != nil {
		body["entry"] = entryView(outcome.Entry)
	}

	switch outcome.State {
	case domain.JobStateSucceeded:
		c.JSON(http.StatusOK, gin.H{"data": body})
	case domain.JobStateGeneratorFailed:
		var execErr *generator.ExecutionError
		if errors.As(outcome.Err, &execErr) {
			body["exit_code"] = execErr.ExitCode
			body["stdout"] = execErr.Stdout
			body["stderr"] = execErr.Stderr
		}
		body["error"] = outcome.Err.Error()
		c.JSON(http.StatusBadGateway, gin.H{"data": body})
	case domain.JobStateRegistrationFailed:
		// The report file exists even though indexing failed, so the
		// generator result stays in the payload.
		body["error"] = outcome.Err.Error()
		c.JSON(http.StatusInternalServerError, gin.H{"data": body})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"data": body})
	}
}

func entryView(e *domain.SummaryEntry) gin.H {
	return gin.H{
		"organization": e.Organization,
		"repository":   e.Repository,
		"date":         e.DateString(),
		"filename":     e.Filename,
	}
}

func entryViews(entries []*domain.SummaryEntry) []gin.H {
	views := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e))
	}
	return views
}

func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeExecution:
			status = http.StatusBadGateway
		case apperrors.ErrCodeShutdown:
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "internal error",
		},
	})
}
