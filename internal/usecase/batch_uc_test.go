//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/usecase"
)

// MockExecutor settles each dispatched job directly in the job repository,
// the way the real executor does, so progress recomputation has real
// statuses to count.
type MockExecutor struct {
	mu       sync.Mutex
	executed []string
	jobs     *MockJobRepo

	ReadyErr    error
	FailOn      map[string]bool
	ExecuteFunc func(ctx context.Context, jobID string) error
}

var _ usecase.JobExecutor = (*MockExecutor)(nil)

func NewMockExecutor(jobs *MockJobRepo) *MockExecutor {
	return &MockExecutor{jobs: jobs, FailOn: make(map[string]bool)}
}

func (m *MockExecutor) Execute(ctx context.Context, jobID string) error {
	m.mu.Lock()
	m.executed = append(m.executed, jobID)
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, jobID)
	}
	if m.FailOn[jobID] {
		failed := model.JobStatusFailed
		_ = m.jobs.Patch(ctx, nil, jobID, model.JobPatch{Status: &failed})
		return errPermanent("backend rejected job")
	}
	completed := model.JobStatusCompleted
	return m.jobs.Patch(ctx, nil, jobID, model.JobPatch{Status: &completed})
}

func (m *MockExecutor) Resume(ctx context.Context, jobID string) error { return nil }

func (m *MockExecutor) CompleteFromWebhook(ctx context.Context, jobID, backendOutputURL string, failure *string) error {
	return nil
}

func (m *MockExecutor) Ready() error { return m.ReadyErr }

func (m *MockExecutor) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executed...)
}

// MockRunner is the pipeline counterpart of MockExecutor.
type MockRunner struct {
	mu   sync.Mutex
	runs []string
	jobs *MockJobRepo
}

var _ usecase.PipelineRunner = (*MockRunner)(nil)

func NewMockRunner(jobs *MockJobRepo) *MockRunner {
	return &MockRunner{jobs: jobs}
}

func (m *MockRunner) Run(ctx context.Context, jobID string) error {
	m.mu.Lock()
	m.runs = append(m.runs, jobID)
	m.mu.Unlock()
	completed := model.JobStatusCompleted
	return m.jobs.Patch(ctx, nil, jobID, model.JobPatch{Status: &completed})
}

func (m *MockRunner) Runs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.runs...)
}

type batchFixture struct {
	jobs     *MockJobRepo
	batches  *MockBatchRepo
	images   *MockImageRepo
	profiles *MockProfileRepo
	exec     *MockExecutor
	runner   *MockRunner
	uc       usecase.BatchProcessor
}

func newBatchFixture() *batchFixture {
	f := &batchFixture{
		jobs:     NewMockJobRepo(),
		batches:  NewMockBatchRepo(),
		images:   NewMockImageRepo(),
		profiles: NewMockProfileRepo(),
	}
	f.exec = NewMockExecutor(f.jobs)
	f.runner = NewMockRunner(f.jobs)
	logger := newTestLogger()
	f.uc = usecase.NewBatchProcessor(
		f.batches, f.jobs, f.images, f.profiles,
		NewMockTxManager(), f.exec, f.runner,
		usecase.NewProgressTracker(f.jobs, f.batches, logger),
		logger,
	)
	return f
}

func (f *batchFixture) seedPool(profileID string, n int) {
	for i := 0; i < n; i++ {
		f.images.Add(&model.ReferenceImage{
			ID:             profileID + "-img-" + string(rune('a'+i)),
			ModelProfileID: profileID,
			URL:            "blob://faces/" + profileID + "/" + string(rune('a'+i)),
		})
	}
}

func TestBatchProcessor_CreateBatch(t *testing.T) {
	t.Run("should create one queued job per source URL in request order", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		sources := []string{
			"https://video.example/clip-1",
			"https://video.example/clip-2",
			"https://video.example/clip-3",
		}

		// --- Act ---
		batch, err := f.uc.CreateBatch(context.Background(), usecase.CreateBatchParams{
			Name:           "launch week",
			SourceURLs:     sources,
			Prompt:         "make it cinematic",
			ModelProfileID: "profile-1",
		})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if batch.Status != model.BatchStatusPending {
			t.Errorf("expected pending batch, got %q", batch.Status)
		}
		if batch.TotalJobs != len(sources) {
			t.Errorf("expected TotalJobs %d, got %d", len(sources), batch.TotalJobs)
		}
		jobs, _ := f.jobs.ListByBatch(context.Background(), nil, batch.ID)
		if len(jobs) != len(sources) {
			t.Fatalf("expected %d jobs, got %d", len(sources), len(jobs))
		}
		for i, j := range jobs {
			if j.SourceURL != sources[i] {
				t.Errorf("job %d: expected source %q, got %q", i, sources[i], j.SourceURL)
			}
			if j.Status != model.JobStatusQueued {
				t.Errorf("job %d: expected queued, got %q", i, j.Status)
			}
			if j.Prompt != "make it cinematic" {
				t.Errorf("job %d: prompt not carried over", i)
			}
		}
	})

	t.Run("should reject an empty source list", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()

		// --- Act ---
		_, err := f.uc.CreateBatch(context.Background(), usecase.CreateBatchParams{Name: "empty"})

		// --- Assert ---
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestBatchProcessor_CreatePipelineBatch(t *testing.T) {
	t.Run("should expand one template into a job per model profile", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		f.profiles.Add(&model.ModelProfile{ID: "p-1", Name: "Ava", PrimaryImageID: "img-ava"})
		f.profiles.Add(&model.ModelProfile{ID: "p-2", Name: "Mia", PrimaryImageID: "img-mia"})
		tmpl := usecase.PipelineTemplate{
			Name:      "promo run",
			SourceURL: "https://video.example/master",
			Steps: []model.PipelineStep{
				{ID: "s1", Type: model.StepTypeVideoGeneration, Enabled: true},
				{ID: "s2", Type: model.StepTypeTextOverlay, Enabled: false},
			},
		}

		// --- Act ---
		batch, err := f.uc.CreatePipelineBatch(context.Background(), tmpl, []string{"p-1", "p-2"})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !batch.IsPipeline {
			t.Error("expected a pipeline batch")
		}
		jobs, _ := f.jobs.ListByBatch(context.Background(), nil, batch.ID)
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		for i, want := range []string{"img-ava", "img-mia"} {
			if jobs[i].FaceImageID != want {
				t.Errorf("job %d: expected face image %q, got %q", i, want, jobs[i].FaceImageID)
			}
			if jobs[i].PipelineBatchID == nil || *jobs[i].PipelineBatchID != batch.ID {
				t.Errorf("job %d: pipeline batch id not set", i)
			}
			if jobs[i].TotalSteps != 1 {
				t.Errorf("job %d: expected 1 enabled step, got %d", i, jobs[i].TotalSteps)
			}
		}
	})

	t.Run("should refuse when any profile id is unknown", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		f.profiles.Add(&model.ModelProfile{ID: "p-1", PrimaryImageID: "img-1"})

		// --- Act ---
		_, err := f.uc.CreatePipelineBatch(context.Background(), usecase.PipelineTemplate{Name: "x"}, []string{"p-1", "p-ghost"})

		// --- Assert ---
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	create := func(t *testing.T, f *batchFixture, sources ...string) *model.Batch {
		t.Helper()
		batch, err := f.uc.CreateBatch(context.Background(), usecase.CreateBatchParams{
			Name:           "run",
			SourceURLs:     sources,
			ModelProfileID: "profile-1",
		})
		if err != nil {
			t.Fatalf("seed batch: %v", err)
		}
		return batch
	}

	t.Run("should dispatch every job and settle the batch as completed", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		f.seedPool("profile-1", 2)
		batch := create(t, f, "https://v.example/1", "https://v.example/2", "https://v.example/3")

		// --- Act ---
		err := f.uc.ProcessBatch(context.Background(), batch.ID)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := len(f.exec.Executed()); got != 3 {
			t.Errorf("expected 3 dispatches, got %d", got)
		}
		settled := f.batches.Get(batch.ID)
		if settled.Status != model.BatchStatusCompleted {
			t.Errorf("expected completed batch, got %q", settled.Status)
		}
		if settled.CompletedJobs != 3 || settled.FailedJobs != 0 {
			t.Errorf("expected counters 3/0, got %d/%d", settled.CompletedJobs, settled.FailedJobs)
		}
		if settled.CompletedAt == nil {
			t.Error("expected completed_at to be stamped")
		}
	})

	t.Run("should assign every job a pool image round-robin", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		f.seedPool("profile-1", 2)
		batch := create(t, f,
			"https://v.example/1", "https://v.example/2",
			"https://v.example/3", "https://v.example/4")

		// --- Act ---
		if err := f.uc.ProcessBatch(context.Background(), batch.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		// --- Assert ---
		jobs, _ := f.jobs.ListByBatch(context.Background(), nil, batch.ID)
		counts := make(map[string]int)
		for _, j := range jobs {
			if j.FaceImageID == "" {
				t.Fatalf("job %s got no pool image", j.ID)
			}
			counts[j.FaceImageID]++
		}
		// 4 jobs over a pool of 2: each image is used exactly twice no matter
		// how the shuffle ordered the pool.
		if len(counts) != 2 {
			t.Fatalf("expected both pool images used, got %v", counts)
		}
		for id, n := range counts {
			if n != 2 {
				t.Errorf("image %s: expected 2 assignments, got %d", id, n)
			}
		}
	})

	t.Run("should settle as partial when one job fails", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		f.seedPool("profile-1", 1)
		batch := create(t, f, "https://v.example/1", "https://v.example/2")
		jobs, _ := f.jobs.ListByBatch(context.Background(), nil, batch.ID)
		f.exec.FailOn[jobs[0].ID] = true

		// --- Act ---
		err := f.uc.ProcessBatch(context.Background(), batch.ID)

		// --- Assert ---
		if err != nil {
			t.Fatalf("a single job failure must not fail the dispatch, got %v", err)
		}
		if got := len(f.exec.Executed()); got != 2 {
			t.Errorf("sibling jobs must still run, expected 2 dispatches, got %d", got)
		}
		settled := f.batches.Get(batch.ID)
		if settled.Status != model.BatchStatusPartial {
			t.Errorf("expected partial batch, got %q", settled.Status)
		}
		if settled.CompletedJobs != 1 || settled.FailedJobs != 1 {
			t.Errorf("expected counters 1/1, got %d/%d", settled.CompletedJobs, settled.FailedJobs)
		}
	})

	t.Run("should complete immediately when the batch has no jobs", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		batch := &model.Batch{ID: "b-empty", Status: model.BatchStatusPending}
		_ = f.batches.Save(context.Background(), nil, batch)

		// --- Act ---
		err := f.uc.ProcessBatch(context.Background(), "b-empty")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		settled := f.batches.Get("b-empty")
		if settled.Status != model.BatchStatusCompleted {
			t.Errorf("expected completed, got %q", settled.Status)
		}
		if settled.CompletedAt == nil {
			t.Error("expected completed_at to be stamped")
		}
	})

	t.Run("should fail before dispatch when the executor is not configured", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		f.seedPool("profile-1", 1)
		batch := create(t, f, "https://v.example/1")
		f.exec.ReadyErr = &domain.ConfigurationError{Reason: "generation backend api key missing"}

		// --- Act ---
		err := f.uc.ProcessBatch(context.Background(), batch.ID)

		// --- Assert ---
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
		if got := len(f.exec.Executed()); got != 0 {
			t.Errorf("expected zero dispatches, got %d", got)
		}
		settled := f.batches.Get(batch.ID)
		if settled.Status != model.BatchStatusFailed {
			t.Errorf("expected failed batch, got %q", settled.Status)
		}
		if settled.CompletedJobs != 0 || settled.FailedJobs != 0 {
			t.Errorf("pre-dispatch failure must leave counters 0/0, got %d/%d", settled.CompletedJobs, settled.FailedJobs)
		}
		if settled.CompletedAt != nil {
			t.Error("pre-dispatch failure must not stamp completed_at")
		}
	})

	t.Run("should fail before dispatch when the image pool is empty", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		batch := create(t, f, "https://v.example/1")

		// --- Act ---
		err := f.uc.ProcessBatch(context.Background(), batch.ID)

		// --- Assert ---
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
		if cfgErr.Reason != "image pool is empty" {
			t.Errorf("unexpected reason %q", cfgErr.Reason)
		}
		if got := len(f.exec.Executed()); got != 0 {
			t.Errorf("expected zero dispatches, got %d", got)
		}
	})

	t.Run("should route pipeline batches through the pipeline runner", func(t *testing.T) {
		// --- Arrange ---
		f := newBatchFixture()
		f.profiles.Add(&model.ModelProfile{ID: "p-1", PrimaryImageID: "img-1"})
		f.profiles.Add(&model.ModelProfile{ID: "p-2", PrimaryImageID: "img-2"})
		batch, err := f.uc.CreatePipelineBatch(context.Background(), usecase.PipelineTemplate{
			Name:      "promo",
			SourceURL: "https://v.example/master",
			Steps:     []model.PipelineStep{{ID: "s1", Type: model.StepTypeVideoGeneration, Enabled: true}},
		}, []string{"p-1", "p-2"})
		if err != nil {
			t.Fatalf("seed pipeline batch: %v", err)
		}

		// --- Act ---
		if err := f.uc.ProcessBatch(context.Background(), batch.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		// --- Assert ---
		if got := len(f.runner.Runs()); got != 2 {
			t.Errorf("expected 2 pipeline runs, got %d", got)
		}
		if got := len(f.exec.Executed()); got != 0 {
			t.Errorf("pipeline jobs must not hit the single-leg executor, got %d dispatches", got)
		}
		settled := f.batches.Get(batch.ID)
		if settled.Status != model.BatchStatusCompleted {
			t.Errorf("expected completed batch, got %q", settled.Status)
		}
	})
}
