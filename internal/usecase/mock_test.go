//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/infra/redis"
)

// -----------------------------
// In-memory repositories
// -----------------------------

type MockJobRepo struct {
	mu    sync.Mutex
	store map[string]*model.Job

	SaveFunc  func(ctx context.Context, tx repository.Tx, job *model.Job) error
	PatchFunc func(ctx context.Context, tx repository.Tx, id string, p model.JobPatch) error

	// PatchLog records every applied patch in order, for assertions about
	// write sequencing.
	PatchLog []model.JobPatch
}

func NewMockJobRepo() *MockJobRepo {
	return &MockJobRepo{store: make(map[string]*model.Job)}
}

var _ repository.JobRepository = (*MockJobRepo)(nil)

func (m *MockJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *MockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MockJobRepo) ListByBatch(ctx context.Context, tx repository.Tx, batchID string) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.store {
		if jobInBatch(j, batchID) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *MockJobRepo) Patch(ctx context.Context, tx repository.Tx, id string, p model.JobPatch) error {
	if m.PatchFunc != nil {
		return m.PatchFunc(ctx, tx, id, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	// Mirror of the store-level monotonic guard.
	if p.Status != nil && j.Status.Terminal() {
		return domain.ErrTerminalStatus
	}
	applyJobPatch(j, p)
	j.UpdatedAt = time.Now()
	m.PatchLog = append(m.PatchLog, p)
	return nil
}

func (m *MockJobRepo) AppendStepResult(ctx context.Context, tx repository.Tx, id string, res model.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, existing := range j.StepResults {
		if existing.StepID == res.StepID {
			return nil // first write wins
		}
	}
	j.StepResults = append(j.StepResults, res)
	return nil
}

func (m *MockJobRepo) CountByBatch(ctx context.Context, tx repository.Tx, batchID string) (total, completed, failed int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.store {
		if !jobInBatch(j, batchID) {
			continue
		}
		total++
		switch j.Status {
		case model.JobStatusCompleted:
			completed++
		case model.JobStatusFailed:
			failed++
		}
	}
	return total, completed, failed, nil
}

func (m *MockJobRepo) ListStuckProcessing(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status == model.JobStatusProcessing && j.RequestID != "" && j.UpdatedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// Get returns a snapshot straight from the map, bypassing errors.
func (m *MockJobRepo) Get(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func jobInBatch(j *model.Job, batchID string) bool {
	if j.BatchID != nil && *j.BatchID == batchID {
		return true
	}
	if j.PipelineBatchID != nil && *j.PipelineBatchID == batchID {
		return true
	}
	return false
}

func applyJobPatch(j *model.Job, p model.JobPatch) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.StepLabel != nil {
		j.StepLabel = *p.StepLabel
	}
	if p.CurrentStep != nil {
		j.CurrentStep = *p.CurrentStep
	}
	if p.TotalSteps != nil {
		j.TotalSteps = *p.TotalSteps
	}
	if p.BackendEndpoint != nil {
		j.BackendEndpoint = *p.BackendEndpoint
	}
	if p.RequestID != nil {
		j.RequestID = *p.RequestID
	}
	if p.DurableSourceURL != nil {
		j.DurableSourceURL = *p.DurableSourceURL
	}
	if p.OutputURL != nil {
		j.OutputURL = *p.OutputURL
	}
	if p.ErrorMessage != nil {
		j.ErrorMessage = p.ErrorMessage
	}
	if p.PostStatus != nil {
		j.PostStatus = *p.PostStatus
	}
	if p.FaceImageID != nil {
		j.FaceImageID = *p.FaceImageID
	}
	if p.ClearOverrides {
		j.Overrides = model.PublishOverrides{}
	} else {
		if p.Caption != nil {
			j.Overrides.Caption = p.Caption
		}
		if p.PublishMode != nil {
			j.Overrides.PublishMode = p.PublishMode
		}
		if p.ScheduledAt != nil {
			j.Overrides.ScheduledAt = p.ScheduledAt
		}
		if p.Timezone != nil {
			j.Overrides.Timezone = p.Timezone
		}
	}
}

type MockBatchRepo struct {
	mu    sync.Mutex
	store map[string]*model.Batch

	SaveFunc     func(ctx context.Context, tx repository.Tx, batch *model.Batch) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error)
}

func NewMockBatchRepo() *MockBatchRepo {
	return &MockBatchRepo{store: make(map[string]*model.Batch)}
}

var _ repository.BatchRepository = (*MockBatchRepo)(nil)

func (m *MockBatchRepo) Save(ctx context.Context, tx repository.Tx, batch *model.Batch) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, batch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *batch
	m.store[batch.ID] = &cp
	return nil
}

func (m *MockBatchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MockBatchRepo) Patch(ctx context.Context, tx repository.Tx, id string, p model.BatchPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.TotalJobs != nil {
		b.TotalJobs = *p.TotalJobs
	}
	if p.CompletedJobs != nil {
		b.CompletedJobs = *p.CompletedJobs
	}
	if p.FailedJobs != nil {
		b.FailedJobs = *p.FailedJobs
	}
	if p.MarkCompleted && b.CompletedAt == nil {
		now := time.Now()
		b.CompletedAt = &now
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MockBatchRepo) Get(id string) *model.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

type MockImageRepo struct {
	mu    sync.Mutex
	store map[string]*model.ReferenceImage
}

func NewMockImageRepo() *MockImageRepo {
	return &MockImageRepo{store: make(map[string]*model.ReferenceImage)}
}

var _ repository.ImageRepository = (*MockImageRepo)(nil)

func (m *MockImageRepo) Add(img *model.ReferenceImage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *img
	m.store[img.ID] = &cp
}

func (m *MockImageRepo) Save(ctx context.Context, tx repository.Tx, img *model.ReferenceImage) error {
	m.Add(img)
	return nil
}

func (m *MockImageRepo) ListByModelProfile(ctx context.Context, tx repository.Tx, profileID string) ([]*model.ReferenceImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReferenceImage
	for _, img := range m.store {
		if img.ModelProfileID == profileID {
			cp := *img
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *MockImageRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.ReferenceImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReferenceImage
	for _, id := range ids {
		if img, ok := m.store[id]; ok {
			cp := *img
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockImageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ReferenceImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

type MockProfileRepo struct {
	mu    sync.Mutex
	store map[string]*model.ModelProfile
}

func NewMockProfileRepo() *MockProfileRepo {
	return &MockProfileRepo{store: make(map[string]*model.ModelProfile)}
}

var _ repository.ModelProfileRepository = (*MockProfileRepo)(nil)

func (m *MockProfileRepo) Add(p *model.ModelProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
}

func (m *MockProfileRepo) Save(ctx context.Context, tx repository.Tx, profile *model.ModelProfile) error {
	m.Add(profile)
	return nil
}

func (m *MockProfileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ModelProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProfileRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.ModelProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ModelProfile
	for _, id := range ids {
		if p, ok := m.store[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type MockSourceCache struct {
	mu    sync.Mutex
	store map[string]string
}

func NewMockSourceCache() *MockSourceCache {
	return &MockSourceCache{store: make(map[string]string)}
}

var _ repository.SourceCache = (*MockSourceCache)(nil)

func (m *MockSourceCache) GetDurableURL(ctx context.Context, sourceURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[sourceURL]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *MockSourceCache) PutDurableURL(ctx context.Context, sourceURL, durableURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[sourceURL] = durableURL
	return nil
}

func (m *MockSourceCache) Invalidate(ctx context.Context, sourceURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, sourceURL)
	return nil
}

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the function immediately with NoTX unless a test overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]string), ErrOn: make(map[string]error)}
}

var _ redis.Locker = (*MockLocker)(nil)

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.ErrOn[key]; ok {
		return "", err
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	token := fmt.Sprintf("tok-%d", len(l.held)+1)
	l.held[key] = token
	return token, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// -----------------------------
// Adapter mocks
// -----------------------------

type MockResolverClient struct {
	mu       sync.Mutex
	calls    int
	Resolved adapter.ResolvedSource

	ResolveFunc func(ctx context.Context, sourceURL string) (adapter.ResolvedSource, error)
}

var _ adapter.SourceResolverClient = (*MockResolverClient)(nil)

func (m *MockResolverClient) Resolve(ctx context.Context, sourceURL string) (adapter.ResolvedSource, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, sourceURL)
	}
	res := m.Resolved
	if res.DownloadURL == "" {
		res.DownloadURL = "https://cdn.example/" + sourceURL
	}
	return res, nil
}

func (m *MockResolverClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockStorage stores uploads in memory under deterministic blob:// URLs.
type MockStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	UploadFunc   func(ctx context.Context, data []byte, contentType, suggestedName string) (string, error)
	DownloadFunc func(ctx context.Context, url string) ([]byte, error)
}

func NewMockStorage() *MockStorage {
	return &MockStorage{objects: make(map[string][]byte)}
}

var _ adapter.BlobStorage = (*MockStorage)(nil)

func (m *MockStorage) Upload(ctx context.Context, data []byte, contentType, suggestedName string) (string, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, data, contentType, suggestedName)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "blob://" + suggestedName
	m.objects[url] = data
	return url, nil
}

func (m *MockStorage) Download(ctx context.Context, url string) ([]byte, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, url)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.objects[url]; ok {
		return data, nil
	}
	// Anything not uploaded through this mock is "remote": return stub bytes.
	return []byte("media:" + url), nil
}

type MockBackend struct {
	mu      sync.Mutex
	submits int

	SubmitFunc          func(ctx context.Context, endpoint string, input adapter.GenerationInput) (string, error)
	SubscribeStatusFunc func(ctx context.Context, endpoint, requestID string, onPhase func(adapter.Phase)) error
	FetchResultFunc     func(ctx context.Context, endpoint, requestID string) (adapter.GenerationResult, error)
}

var _ adapter.GenerationBackend = (*MockBackend)(nil)

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Submit(ctx context.Context, endpoint string, input adapter.GenerationInput) (string, error) {
	m.mu.Lock()
	m.submits++
	n := m.submits
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, endpoint, input)
	}
	return fmt.Sprintf("req-%d", n), nil
}

func (m *MockBackend) SubscribeStatus(ctx context.Context, endpoint, requestID string, onPhase func(adapter.Phase)) error {
	if m.SubscribeStatusFunc != nil {
		return m.SubscribeStatusFunc(ctx, endpoint, requestID, onPhase)
	}
	if onPhase != nil {
		onPhase(adapter.Phase{State: adapter.PhaseQueued, QueuePosition: 1})
		onPhase(adapter.Phase{State: adapter.PhaseInProgress})
	}
	return nil
}

func (m *MockBackend) FetchResult(ctx context.Context, endpoint, requestID string) (adapter.GenerationResult, error) {
	if m.FetchResultFunc != nil {
		return m.FetchResultFunc(ctx, endpoint, requestID)
	}
	return adapter.GenerationResult{OutputURL: "https://backend.example/out/" + requestID}, nil
}

func (m *MockBackend) Submits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submits
}

type MockTrimmer struct {
	TrimFunc func(ctx context.Context, videoURL string, maxSeconds int) (string, error)
	calls    int
	mu       sync.Mutex
}

var _ adapter.MediaTrimmer = (*MockTrimmer)(nil)

func (m *MockTrimmer) Trim(ctx context.Context, videoURL string, maxSeconds int) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TrimFunc != nil {
		return m.TrimFunc(ctx, videoURL, maxSeconds)
	}
	return videoURL + "?trimmed=" + fmt.Sprint(maxSeconds), nil
}

func (m *MockTrimmer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockEditor records each editing call and returns derived URLs.
type MockEditor struct {
	mu   sync.Mutex
	Log  []string
	Fail map[string]error // keyed by operation name
}

func NewMockEditor() *MockEditor {
	return &MockEditor{Fail: make(map[string]error)}
}

var _ adapter.MediaEditor = (*MockEditor)(nil)

func (m *MockEditor) op(name, result string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Fail[name]; ok {
		return "", err
	}
	m.Log = append(m.Log, name)
	return result, nil
}

func (m *MockEditor) OverlayText(ctx context.Context, videoURL, text, position string) (string, error) {
	return m.op("overlay_text", videoURL+"+text")
}

func (m *MockEditor) AddMusic(ctx context.Context, videoURL, trackURL string, volume float64) (string, error) {
	return m.op("add_music", videoURL+"+music")
}

func (m *MockEditor) AttachVideo(ctx context.Context, videoURL, otherURL, placement string) (string, error) {
	return m.op("attach_video", videoURL+"+attached")
}

func (m *MockEditor) Compose(ctx context.Context, videoURLs []string, layout string) (string, error) {
	return m.op("compose", "composed")
}

type MockPublisher struct {
	mu        sync.Mutex
	Published []adapter.PublishRequest
	Err       error
}

var _ adapter.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, req adapter.PublishRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Published = append(m.Published, req)
	return nil
}

func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}

type MockCaptionWriter struct {
	DraftFunc func(ctx context.Context, topic string) (string, error)
}

var _ adapter.CaptionWriter = (*MockCaptionWriter)(nil)

func (m *MockCaptionWriter) Draft(ctx context.Context, topic string) (string, error) {
	if m.DraftFunc != nil {
		return m.DraftFunc(ctx, topic)
	}
	return "Caption for " + topic, nil
}

// errPermanent builds a non-retryable external failure for tests.
func errPermanent(reason string) error {
	return &domain.PermanentExternalError{Service: "test", Reason: reason}
}

// errTransient builds a retryable external failure for tests.
func errTransient(msg string) error {
	return &domain.TransientExternalError{Service: "test", Err: errors.New(msg)}
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
