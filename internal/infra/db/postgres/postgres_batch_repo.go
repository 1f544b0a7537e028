package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.BatchRepository = (*batchRepo)(nil)

type batchRepo struct {
	pool *pgxpool.Pool
}

func NewBatchRepo(pool *pgxpool.Pool) *batchRepo {
	return &batchRepo{pool: pool}
}

const batchColumns = `
id, name, status, total_jobs, completed_jobs, failed_jobs, selection_mode,
model_profile_id, image_ids, default_caption, default_publish_mode,
is_pipeline, completed_at, created_at, updated_at`

func (r *batchRepo) Save(ctx context.Context, tx repository.Tx, batch *model.Batch) error {
	imageIDs, err := json.Marshal(batch.ImageIDs)
	if err != nil {
		return fmt.Errorf("marshal image ids: %w", err)
	}
	if batch.ImageIDs == nil {
		imageIDs = []byte("[]")
	}
	batch.UpdatedAt = time.Now()

	const q = `
INSERT INTO batches (` + batchColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  status = EXCLUDED.status,
  total_jobs = EXCLUDED.total_jobs,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		batch.ID, batch.Name, string(batch.Status), batch.TotalJobs,
		batch.CompletedJobs, batch.FailedJobs, string(batch.SelectionMode),
		batch.ModelProfileID, imageIDs, batch.DefaultCaption,
		batch.DefaultPublishMode, batch.IsPipeline, batch.CompletedAt,
		batch.CreatedAt, batch.UpdatedAt)
	return err
}

func (r *batchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+batchColumns+` FROM batches WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}

	var (
		b           model.Batch
		status      string
		mode        string
		imageIDsRaw []byte
	)
	err = row.Scan(
		&b.ID, &b.Name, &status, &b.TotalJobs, &b.CompletedJobs, &b.FailedJobs,
		&mode, &b.ModelProfileID, &imageIDsRaw, &b.DefaultCaption,
		&b.DefaultPublishMode, &b.IsPipeline, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	b.Status = model.BatchStatus(status)
	b.SelectionMode = model.ImageSelectionMode(mode)
	if len(imageIDsRaw) > 0 {
		if err := json.Unmarshal(imageIDsRaw, &b.ImageIDs); err != nil {
			return nil, fmt.Errorf("unmarshal image ids: %w", err)
		}
	}
	return &b, nil
}

// Patch writes only the fields present. MarkCompleted stamps completed_at
// once: COALESCE keeps the first stamp even when progress recomputes again.
func (r *batchRepo) Patch(ctx context.Context, tx repository.Tx, id string, p model.BatchPatch) error {
	sets := []string{"updated_at = now()"}
	args := []interface{}{id}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.TotalJobs != nil {
		add("total_jobs", *p.TotalJobs)
	}
	if p.CompletedJobs != nil {
		add("completed_jobs", *p.CompletedJobs)
	}
	if p.FailedJobs != nil {
		add("failed_jobs", *p.FailedJobs)
	}
	if p.MarkCompleted {
		sets = append(sets, "completed_at = COALESCE(completed_at, now())")
	}

	q := "UPDATE batches SET " + strings.Join(sets, ", ") + " WHERE id = $1;"
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
