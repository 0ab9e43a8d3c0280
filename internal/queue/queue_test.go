package queue_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kurihiro0119/repo-report-hub/internal/catalog"
	"github.com/kurihiro0119/repo-report-hub/internal/domain"
	apperrors "github.com/kurihiro0119/repo-report-hub/internal/errors"
	"github.com/kurihiro0119/repo-report-hub/internal/generator"
	"github.com/kurihiro0119/repo-report-hub/internal/queue"
	"github.com/kurihiro0119/repo-report-hub/internal/storage/sqlite"
)

// stubGenerator records invocation order and can hold each call on a gate
// channel until the test releases it.
type stubGenerator struct {
	mu    sync.Mutex
	calls []string
	gate  chan struct{}
	fn    func(ref domain.RepositoryRef) (*domain.GeneratorResult, error)
}

func (s *stubGenerator) Call(ctx context.Context, ref domain.RepositoryRef) (*domain.GeneratorResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ref.String())
	s.mu.Unlock()

	if s.gate != nil {
		<-s.gate
	}
	if s.fn != nil {
		return s.fn(ref)
	}
	return &domain.GeneratorResult{Stdout: "ok"}, nil
}

func (s *stubGenerator) callOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// stubRegistrar records registered paths.
type stubRegistrar struct {
	mu    sync.Mutex
	paths []string
	fn    func(path string) (*domain.SummaryEntry, error)
}

func (s *stubRegistrar) RegisterSummaryFromPath(ctx context.Context, path string) (*domain.SummaryEntry, error) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(path)
	}
	entry, _ := catalog.ParseSummaryFilename(path)
	return entry, nil
}

func (s *stubRegistrar) registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestFIFOUnderConcurrentEnqueue(t *testing.T) {
	gen := &stubGenerator{}
	reg := &stubRegistrar{}
	q := queue.New(gen, reg)
	defer q.Shutdown(context.Background())

	const n = 8
	outcomes := make([]*domain.Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := q.Enqueue(context.Background(), "acme", fmt.Sprintf("repo-%d", i))
			if err != nil {
				t.Errorf("enqueue %d: %v", i, err)
				return
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	// Jobs must start in the order the queue observed them: the generator's
	// invocation order has to match the per-job sequence numbers.
	bySequence := map[uint64]string{}
	var sequences []uint64
	for _, o := range outcomes {
		if o == nil {
			t.Fatal("missing outcome")
		}
		bySequence[o.Job.Sequence] = o.Job.Ref.String()
		sequences = append(sequences, o.Job.Sequence)
	}
	calls := gen.callOrder()
	if len(calls) != n {
		t.Fatalf("generator ran %d times, want %d", len(calls), n)
	}

	var min uint64 = 1<<64 - 1
	for _, s := range sequences {
		if s < min {
			min = s
		}
	}
	for i, call := range calls {
		want := bySequence[min+uint64(i)]
		if call != want {
			t.Errorf("call %d = %s, want %s", i, call, want)
		}
	}
}

func TestOutcomeGeneratorFailed(t *testing.T) {
	execErr := &generator.ExecutionError{
		Stdout:   "partial",
		Stderr:   "boom",
		ExitCode: 2,
		Err:      errors.New("exit status 2"),
	}
	gen := &stubGenerator{fn: func(domain.RepositoryRef) (*domain.GeneratorResult, error) {
		return nil, execErr
	}}
	reg := &stubRegistrar{}
	q := queue.New(gen, reg)
	defer q.Shutdown(context.Background())

	outcome, err := q.Enqueue(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if outcome.State != domain.JobStateGeneratorFailed {
		t.Errorf("state = %s, want generator_failed", outcome.State)
	}
	if outcome.Job.State != domain.JobStateGeneratorFailed {
		t.Errorf("job state = %s", outcome.Job.State)
	}
	var got *generator.ExecutionError
	if !errors.As(outcome.Err, &got) || got.ExitCode != 2 {
		t.Errorf("outcome error = %v", outcome.Err)
	}
	if outcome.Result == nil || outcome.Result.Stderr != "boom" {
		t.Errorf("captured streams missing: %+v", outcome.Result)
	}
	if len(reg.registered()) != 0 {
		t.Error("registration must not run after a generator failure")
	}
}

func TestOutcomeRegistrationFailed(t *testing.T) {
	gen := &stubGenerator{fn: func(domain.RepositoryRef) (*domain.GeneratorResult, error) {
		return &domain.GeneratorResult{OutputPath: "/tmp/acme_widgets_2024-03-16.md"}, nil
	}}
	reg := &stubRegistrar{fn: func(path string) (*domain.SummaryEntry, error) {
		return nil, apperrors.NewRegistrationError(path, errors.New("disk full"))
	}}
	q := queue.New(gen, reg)
	defer q.Shutdown(context.Background())

	outcome, err := q.Enqueue(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if outcome.State != domain.JobStateRegistrationFailed {
		t.Errorf("state = %s, want registration_failed", outcome.State)
	}
	// the report exists even though indexing failed
	if outcome.Result == nil || outcome.Result.OutputPath != "/tmp/acme_widgets_2024-03-16.md" {
		t.Errorf("generator result missing from outcome: %+v", outcome.Result)
	}
	if outcome.Err == nil {
		t.Error("outcome must carry the registration error")
	}
}

func TestOutcomeRegistrationRejectsForeignFilename(t *testing.T) {
	gen := &stubGenerator{fn: func(domain.RepositoryRef) (*domain.GeneratorResult, error) {
		return &domain.GeneratorResult{OutputPath: "/tmp/not-a-report.md"}, nil
	}}
	q := queue.New(gen, &stubRegistrar{})
	defer q.Shutdown(context.Background())

	outcome, err := q.Enqueue(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if outcome.State != domain.JobStateRegistrationFailed {
		t.Errorf("state = %s, want registration_failed", outcome.State)
	}
}

func TestOutcomeSucceeded(t *testing.T) {
	gen := &stubGenerator{fn: func(domain.RepositoryRef) (*domain.GeneratorResult, error) {
		return &domain.GeneratorResult{OutputPath: "/tmp/acme_widgets_2024-03-16.md", CorrelationID: "s1"}, nil
	}}
	reg := &stubRegistrar{}
	q := queue.New(gen, reg)
	defer q.Shutdown(context.Background())

	outcome, err := q.Enqueue(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if outcome.State != domain.JobStateSucceeded {
		t.Errorf("state = %s, want succeeded", outcome.State)
	}
	if outcome.Entry == nil || outcome.Entry.DateString() != "2024-03-16" {
		t.Errorf("entry = %+v", outcome.Entry)
	}
	if got := reg.registered(); len(got) != 1 || got[0] != "/tmp/acme_widgets_2024-03-16.md" {
		t.Errorf("registered = %v", got)
	}
}

func TestOutcomeSucceededWithoutOutputPath(t *testing.T) {
	gen := &stubGenerator{fn: func(domain.RepositoryRef) (*domain.GeneratorResult, error) {
		return &domain.GeneratorResult{Stdout: "nothing changed"}, nil
	}}
	reg := &stubRegistrar{}
	q := queue.New(gen, reg)
	defer q.Shutdown(context.Background())

	outcome, err := q.Enqueue(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if outcome.State != domain.JobStateSucceeded {
		t.Errorf("state = %s, want succeeded", outcome.State)
	}
	if len(reg.registered()) != 0 {
		t.Error("registrar must not run without an output path")
	}
}

func TestValidationRejectedBeforeQueue(t *testing.T) {
	gen := &stubGenerator{}
	q := queue.New(gen, &stubRegistrar{})
	defer q.Shutdown(context.Background())

	_, err := q.Enqueue(context.Background(), "", "widgets")
	if !apperrors.IsBadRequest(err) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if _, err := q.EnqueueAsync("acme", "   "); !apperrors.IsBadRequest(err) {
		t.Fatalf("expected BadRequest, got %v", err)
	}

	if status := q.Status(); status.Size != 0 || status.ActiveJob != nil {
		t.Errorf("rejected request entered the queue: %+v", status)
	}
	if len(gen.callOrder()) != 0 {
		t.Error("generator ran for a rejected request")
	}
}

func TestStatusSnapshotInvariant(t *testing.T) {
	gen := &stubGenerator{gate: make(chan struct{})}
	q := queue.New(gen, &stubRegistrar{})

	jobs := make([]*domain.Job, 3)
	for i := range jobs {
		j, err := q.EnqueueAsync("acme", fmt.Sprintf("repo-%d", i))
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		jobs[i] = j
	}

	waitFor(t, "first job to start", func() bool {
		return q.Status().ActiveJob != nil
	})

	status := q.Status()
	if status.Size != len(status.Jobs) {
		t.Errorf("size = %d but %d jobs listed", status.Size, len(status.Jobs))
	}
	if status.Size != 2 {
		t.Errorf("size = %d, want 2", status.Size)
	}
	if status.ActiveJob.ID != jobs[0].ID || status.ActiveJob.State != domain.JobStateRunning {
		t.Errorf("active = %+v", status.ActiveJob)
	}
	if status.ActiveJob.StartedAt == nil {
		t.Error("active job has no start time")
	}
	for _, j := range status.Jobs {
		if j.ID == status.ActiveJob.ID {
			t.Error("active job also listed as pending")
		}
		if j.State != domain.JobStatePending {
			t.Errorf("pending job in state %s", j.State)
		}
	}

	for range jobs {
		gen.gate <- struct{}{}
	}
	waitFor(t, "queue to drain", func() bool {
		s := q.Status()
		return s.Size == 0 && s.ActiveJob == nil
	})

	q.Shutdown(context.Background())
}

func TestShutdownWaitsForActiveAndFailsPending(t *testing.T) {
	gen := &stubGenerator{gate: make(chan struct{})}
	q := queue.New(gen, &stubRegistrar{})

	type result struct {
		outcome *domain.Outcome
		err     error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		o, err := q.Enqueue(context.Background(), "acme", "one")
		first <- result{o, err}
	}()
	waitFor(t, "first job to start", func() bool {
		return q.Status().ActiveJob != nil
	})

	go func() {
		o, err := q.Enqueue(context.Background(), "acme", "two")
		second <- result{o, err}
	}()
	waitFor(t, "second job to be pending", func() bool {
		return q.Status().Size == 1
	})

	done := make(chan error, 1)
	go func() {
		done <- q.Shutdown(context.Background())
	}()

	// the running job is allowed to finish
	gen.gate <- struct{}{}

	if err := <-done; err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	r1 := <-first
	if r1.err != nil || r1.outcome.State != domain.JobStateSucceeded {
		t.Errorf("first job: outcome %+v, err %v", r1.outcome, r1.err)
	}

	r2 := <-second
	if !apperrors.IsShutdown(r2.err) {
		t.Errorf("second job: expected shutdown error, got %v (outcome %+v)", r2.err, r2.outcome)
	}

	if _, err := q.Enqueue(context.Background(), "acme", "three"); !apperrors.IsShutdown(err) {
		t.Errorf("enqueue after shutdown: %v", err)
	}
	if len(gen.callOrder()) != 1 {
		t.Errorf("generator ran %d times, want 1", len(gen.callOrder()))
	}
}

func TestWorkerSurvivesPanickingJob(t *testing.T) {
	calls := 0
	gen := &stubGenerator{fn: func(domain.RepositoryRef) (*domain.GeneratorResult, error) {
		calls++
		if calls == 1 {
			panic("generator blew up")
		}
		return &domain.GeneratorResult{}, nil
	}}
	q := queue.New(gen, &stubRegistrar{})
	defer q.Shutdown(context.Background())

	outcome, err := q.Enqueue(context.Background(), "acme", "one")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if outcome.State != domain.JobStateGeneratorFailed {
		t.Errorf("state = %s, want generator_failed", outcome.State)
	}

	outcome, err = q.Enqueue(context.Background(), "acme", "two")
	if err != nil || outcome.State != domain.JobStateSucceeded {
		t.Fatalf("worker did not survive the panic: %+v, %v", outcome, err)
	}
}

func TestEndToEndRegistersReport(t *testing.T) {
	dir := t.TempDir()
	store, err := sqlite.NewSQLiteStorage(filepath.Join(dir, "reports.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	cat, err := catalog.New(ctx, store, dir)
	if err != nil {
		t.Fatal(err)
	}

	reportPath := filepath.Join(dir, "acme_widgets_2024-03-16.md")
	gen := &stubGenerator{fn: func(ref domain.RepositoryRef) (*domain.GeneratorResult, error) {
		if err := os.WriteFile(reportPath, []byte("# Daily summary\n"), 0o644); err != nil {
			return nil, err
		}
		return &domain.GeneratorResult{
			Stdout:     "Report saved: " + reportPath,
			OutputPath: reportPath,
		}, nil
	}}
	q := queue.New(gen, cat)
	defer q.Shutdown(context.Background())

	outcome, err := q.Enqueue(ctx, "acme", "widgets")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if outcome.State != domain.JobStateSucceeded {
		t.Fatalf("state = %s: %v", outcome.State, outcome.Err)
	}

	entries, err := cat.History(ctx, "acme", "widgets")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].DateString() != "2024-03-16" {
		t.Fatalf("history = %+v", entries)
	}

	overviews, err := cat.ListRepositories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(overviews) != 1 || overviews[0].LatestDate != "2024-03-16" {
		t.Fatalf("overview = %+v", overviews)
	}
}
