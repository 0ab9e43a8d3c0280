package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	apperrors "github.com/kurihiro0119/repo-report-hub/internal/errors"
	"github.com/kurihiro0119/repo-report-hub/internal/generator"
)

// streamLogLimit caps how much captured generator output goes into one log
// record.
const streamLogLimit = 800

// Registrar is the subset of the catalog the queue needs to record a
// produced report.
type Registrar interface {
	RegisterSummaryFromPath(ctx context.Context, path string) (*domain.SummaryEntry, error)
}

// delivery carries a finished job's outcome (or a shutdown error) back to a
// synchronous waiter.
type delivery struct {
	outcome *domain.Outcome
	err     error
}

// job is the queue-internal wrapper around a Job. result is buffered so the
// worker never blocks on delivery; it is nil for fire-and-forget jobs.
type job struct {
	job    *domain.Job
	result chan delivery
}

func (j *job) deliver(outcome *domain.Outcome, err error) {
	if j.result != nil {
		j.result <- delivery{outcome: outcome, err: err}
	}
}

// Queue serializes repository-update jobs onto a single background worker.
// Any number of goroutines may enqueue or read status concurrently; jobs run
// strictly one at a time in arrival order. The single worker is deliberate:
// the external summarizer is expensive and not safe to run in parallel
// against the same working directory.
type Queue struct {
	generator generator.Generator
	registrar Registrar

	mu      sync.Mutex
	pending []*job
	active  *domain.Job
	seq     uint64
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// New creates a queue and starts its worker goroutine.
func New(gen generator.Generator, reg Registrar) *Queue {
	q := &Queue{
		generator: gen,
		registrar: reg,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go q.worker()
	return q
}

// Enqueue submits an update job and blocks until that job finishes,
// returning its typed outcome. Invalid references are rejected immediately
// and never enter the queue. A context cancellation abandons the wait but
// not the job itself; it still runs in its queue position.
func (q *Queue) Enqueue(ctx context.Context, org, repo string) (*domain.Outcome, error) {
	j, err := q.add(org, repo, true)
	if err != nil {
		return nil, err
	}

	select {
	case d := <-j.result:
		return d.outcome, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnqueueAsync submits an update job and returns its snapshot immediately.
// The outcome is reported through the worker's log.
func (q *Queue) EnqueueAsync(org, repo string) (*domain.Job, error) {
	j, err := q.add(org, repo, false)
	if err != nil {
		return nil, err
	}
	return snapshot(j.job), nil
}

func (q *Queue) add(org, repo string, wait bool) (*job, error) {
	ref := domain.NewRepositoryRef(org, repo)
	if !ref.IsValid() {
		return nil, apperrors.NewBadRequestError("organization and repository must be non-empty")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, apperrors.NewShutdownError()
	}
	q.seq++
	j := &job{
		job: &domain.Job{
			ID:         uuid.New().String(),
			Sequence:   q.seq,
			Ref:        ref,
			State:      domain.JobStatePending,
			EnqueuedAt: time.Now(),
		},
	}
	if wait {
		j.result = make(chan delivery, 1)
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	q.signal()
	return j, nil
}

// Status returns a consistent point-in-time snapshot of the queue.
func (q *Queue) Status() *domain.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*domain.Job, 0, len(q.pending))
	for _, j := range q.pending {
		jobs = append(jobs, snapshot(j.job))
	}

	status := &domain.QueueStatus{
		Size: len(jobs),
		Jobs: jobs,
	}
	if q.active != nil {
		status.ActiveJob = snapshot(q.active)
	}
	return status
}

// Shutdown stops accepting new jobs, waits for the currently running job to
// finish, and delivers a shutdown error to every still-pending synchronous
// waiter. It is safe to call more than once.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// worker is the single consumer of the pending list. One job's failure never
// stops the loop.
func (q *Queue) worker() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		if q.closed {
			pending := q.pending
			q.pending = nil
			q.mu.Unlock()
			for _, j := range pending {
				j.deliver(nil, apperrors.NewShutdownError())
			}
			return
		}

		j := q.pending[0]
		q.pending = q.pending[1:]
		now := time.Now()
		j.job.State = domain.JobStateRunning
		j.job.StartedAt = &now
		q.active = j.job
		q.mu.Unlock()

		state, outcome := q.process(j.job)

		q.mu.Lock()
		j.job.State = state
		q.active = nil
		q.mu.Unlock()

		outcome.Job = snapshot(j.job)
		outcome.State = state
		q.logOutcome(outcome)
		j.deliver(outcome, nil)
	}
}

// process runs one job and classifies its result. A panic anywhere in the
// job body is caught and reported as a generator failure so the worker loop
// survives.
func (q *Queue) process(jb *domain.Job) (state domain.JobState, outcome *domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			state = domain.JobStateGeneratorFailed
			outcome = &domain.Outcome{
				Err: apperrors.NewInternalError(fmt.Sprintf("job panicked: %v", r), nil),
			}
		}
	}()

	ctx := context.Background()

	result, err := q.generator.Call(ctx, jb.Ref)
	if err != nil {
		outcome := &domain.Outcome{Err: err}
		var execErr *generator.ExecutionError
		if errors.As(err, &execErr) {
			outcome.Result = &domain.GeneratorResult{
				Stdout: execErr.Stdout,
				Stderr: execErr.Stderr,
			}
		}
		return domain.JobStateGeneratorFailed, outcome
	}

	if result.OutputPath == "" {
		return domain.JobStateSucceeded, &domain.Outcome{Result: result}
	}

	entry, err := q.registrar.RegisterSummaryFromPath(ctx, result.OutputPath)
	if err != nil {
		return domain.JobStateRegistrationFailed, &domain.Outcome{Result: result, Err: err}
	}
	if entry == nil {
		err := apperrors.NewRegistrationError(result.OutputPath,
			errors.New("filename does not match the report contract"))
		return domain.JobStateRegistrationFailed, &domain.Outcome{Result: result, Err: err}
	}

	return domain.JobStateSucceeded, &domain.Outcome{Result: result, Entry: entry}
}

func (q *Queue) logOutcome(o *domain.Outcome) {
	switch o.State {
	case domain.JobStateSucceeded:
		slog.Info("repository update succeeded",
			"repository", o.Job.Ref.String(),
			"job_id", o.Job.ID,
			"output_path", outputPath(o),
		)
	case domain.JobStateGeneratorFailed:
		var execErr *generator.ExecutionError
		if errors.As(o.Err, &execErr) {
			slog.Error("generator command failed",
				"repository", o.Job.Ref.String(),
				"job_id", o.Job.ID,
				"exit_code", execErr.ExitCode,
				"stdout", truncateStream(execErr.Stdout),
				"stderr", truncateStream(execErr.Stderr),
			)
		} else {
			slog.Error("generator failed",
				"repository", o.Job.Ref.String(),
				"job_id", o.Job.ID,
				"error", o.Err,
			)
		}
	case domain.JobStateRegistrationFailed:
		slog.Error("report registration failed",
			"repository", o.Job.Ref.String(),
			"job_id", o.Job.ID,
			"output_path", outputPath(o),
			"error", o.Err,
		)
	}
}

func outputPath(o *domain.Outcome) string {
	if o.Result == nil {
		return ""
	}
	return o.Result.OutputPath
}

func truncateStream(s string) string {
	if len(s) <= streamLogLimit {
		return s
	}
	return s[:streamLogLimit] + "... [truncated]"
}

func snapshot(j *domain.Job) *domain.Job {
	c := *j
	return &c
}
