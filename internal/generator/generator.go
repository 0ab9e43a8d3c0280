package generator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	apperrors "github.com/kurihiro0119/repo-report-hub/internal/errors"
)

// Marker prefixes the external summarizer prints on stdout. The output path
// line is optional even on success; its absence means no file was produced.
const (
	outputPathMarker  = "Report saved: "
	correlationMarker = "Session: "
)

// Generator defines the interface for producing one dated summary report.
// Calls block until the external command exits, which can take minutes.
// Serializing calls is the queue's responsibility, not this component's.
type Generator interface {
	Call(ctx context.Context, ref domain.RepositoryRef) (*domain.GeneratorResult, error)
}

// ExecutionError represents a failed external generator run. It carries the
// captured output streams for diagnostics; ExitCode is -1 when the command
// could not be started at all.
type ExecutionError struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("generator command failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// commandGenerator implements Generator using an external command
type commandGenerator struct {
	command string
	workdir string
}

// NewCommandGenerator creates a generator that runs `command <org>/<repo>`
// in the given working directory.
func NewCommandGenerator(command, workdir string) Generator {
	return &commandGenerator{
		command: command,
		workdir: workdir,
	}
}

// Call runs the external summarizer for one repository
func (g *commandGenerator) Call(ctx context.Context, ref domain.RepositoryRef) (*domain.GeneratorResult, error) {
	if !ref.IsValid() {
		return nil, apperrors.NewBadRequestError("organization and repository must be non-empty")
	}

	cmd := exec.CommandContext(ctx, g.command, ref.String())
	cmd.Dir = g.workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ExecutionError{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: exitCode,
			Err:      err,
		}
	}

	result := &domain.GeneratorResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	parseMarkers(result)

	return result, nil
}

// parseMarkers scans stdout for the output path and correlation id lines.
// Both are optional; exit 0 without markers is still a success.
func parseMarkers(result *domain.GeneratorResult) {
	scanner := bufio.NewScanner(strings.NewReader(result.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, outputPathMarker); ok {
			result.OutputPath = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, correlationMarker); ok {
			result.CorrelationID = strings.TrimSpace(v)
		}
	}
}
