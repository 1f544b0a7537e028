package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// SourceResolverUseCase turns a third-party video reference into a durable,
// re-fetchable media URL, exactly once per source. The durable URL is written
// back to the job row the moment it exists, so repeated invocations,
// including post-crash resumption, reuse the stored copy.
type SourceResolverUseCase interface {
	EnsureDurableSource(ctx context.Context, job *model.Job, maxSeconds int) (string, error)
}

type sourceResolverUC struct {
	jobs    repository.JobRepository
	cache   repository.SourceCache
	client  adapter.SourceResolverClient
	storage adapter.BlobStorage
	trimmer adapter.MediaTrimmer
	retry   RetryPolicy
	log     *zerolog.Logger
}

func NewSourceResolverUseCase(
	jobs repository.JobRepository,
	cache repository.SourceCache,
	client adapter.SourceResolverClient,
	storage adapter.BlobStorage,
	trimmer adapter.MediaTrimmer,
	retry RetryPolicy,
	logger *zerolog.Logger,
) SourceResolverUseCase {
	l := logger.With().Str("component", "SourceResolver").Logger()
	return &sourceResolverUC{
		jobs:    jobs,
		cache:   cache,
		client:  client,
		storage: storage,
		trimmer: trimmer,
		retry:   retry,
		log:     &l,
	}
}

func (uc *sourceResolverUC) EnsureDurableSource(ctx context.Context, job *model.Job, maxSeconds int) (string, error) {
	if job.DurableSourceURL != "" {
		return job.DurableSourceURL, nil
	}
	if job.SourceURL == "" {
		return "", fmt.Errorf("job %s has no source reference: %w", job.ID, domain.ErrInvalidArgument)
	}

	// Another job (or a previous run of this one) may already have persisted
	// this exact source.
	if cached, err := uc.cache.GetDurableURL(ctx, job.SourceURL); err == nil && cached != "" {
		if err := uc.writeBack(ctx, job, cached); err != nil {
			return "", err
		}
		return cached, nil
	}

	var resolved adapter.ResolvedSource
	err := retryTransient(ctx, uc.retry, func() error {
		var rerr error
		resolved, rerr = uc.client.Resolve(ctx, job.SourceURL)
		if rerr != nil && domain.IsTransient(rerr) {
			metrics.IncExternalRetry("resolver")
			uc.log.Warn().Err(rerr).Str("job_id", job.ID).Msg("transient resolve failure, will retry")
		}
		return rerr
	})
	if err != nil {
		return "", fmt.Errorf("resolve source %q: %w", job.SourceURL, err)
	}

	data, err := uc.storage.Download(ctx, resolved.DownloadURL)
	if err != nil {
		return "", fmt.Errorf("download resolved source: %w", err)
	}

	durable, err := uc.storage.Upload(ctx, data, "video/mp4", suggestName(job.ID, job.SourceURL))
	if err != nil {
		return "", fmt.Errorf("persist source media: %w", err)
	}

	if maxSeconds > 0 && resolved.DurationSeconds > float64(maxSeconds) {
		trimmed, terr := uc.trimmer.Trim(ctx, durable, maxSeconds)
		if terr != nil {
			return "", fmt.Errorf("trim source to %ds: %w", maxSeconds, terr)
		}
		tdata, derr := uc.storage.Download(ctx, trimmed)
		if derr != nil {
			return "", fmt.Errorf("download trimmed media: %w", derr)
		}
		durable, err = uc.storage.Upload(ctx, tdata, "video/mp4", suggestName(job.ID, "trimmed.mp4"))
		if err != nil {
			return "", fmt.Errorf("persist trimmed media: %w", err)
		}
	}

	// Write-back happens only after the upload fully succeeded; a failure
	// above leaves the job without a durable URL rather than a partial one.
	if err := uc.writeBack(ctx, job, durable); err != nil {
		return "", err
	}
	if err := uc.cache.PutDurableURL(ctx, job.SourceURL, durable); err != nil {
		uc.log.Warn().Err(err).Str("source_url", job.SourceURL).Msg("could not cache durable url")
	}
	return durable, nil
}

func (uc *sourceResolverUC) writeBack(ctx context.Context, job *model.Job, durable string) error {
	if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{DurableSourceURL: &durable}); err != nil {
		return fmt.Errorf("write back durable url: %w", err)
	}
	job.DurableSourceURL = durable
	return nil
}

func suggestName(jobID, source string) string {
	base := path.Base(source)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "." || base == "/" {
		base = "source.mp4"
	}
	return jobID + "-" + base
}
