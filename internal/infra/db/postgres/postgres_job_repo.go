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

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `
id, status, step_label, current_step, total_steps, pipeline, step_results,
backend_endpoint, request_id, source_url, durable_source_url, face_image_id,
prompt, output_url, error_message, batch_id, pipeline_batch_id, post_status,
caption, publish_mode, scheduled_at, timezone, created_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	pipeline, err := json.Marshal(job.Pipeline)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}
	results, err := json.Marshal(job.StepResults)
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}
	if job.StepResults == nil {
		results = []byte("[]")
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  step_label = EXCLUDED.step_label,
  current_step = EXCLUDED.current_step,
  total_steps = EXCLUDED.total_steps,
  pipeline = EXCLUDED.pipeline,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Status), job.StepLabel, job.CurrentStep, job.TotalSteps,
		pipeline, results, job.BackendEndpoint, job.RequestID, job.SourceURL,
		job.DurableSourceURL, job.FaceImageID, job.Prompt, job.OutputURL,
		job.ErrorMessage, job.BatchID, job.PipelineBatchID, string(job.PostStatus),
		job.Overrides.Caption, job.Overrides.PublishMode, job.Overrides.ScheduledAt,
		job.Overrides.Timezone, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) ListByBatch(ctx context.Context, tx repository.Tx, batchID string) ([]*model.Job, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM jobs WHERE batch_id = $1 OR pipeline_batch_id = $1 ORDER BY id;`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Patch writes only the fields present in the patch. A status change carries
// the monotonic-transition guard in SQL: whichever of the poll loop and the
// webhook loses the race cannot move a terminal row.
func (r *jobRepo) Patch(ctx context.Context, tx repository.Tx, id string, p model.JobPatch) error {
	sets := []string{"updated_at = now()"}
	args := []interface{}{id}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.StepLabel != nil {
		add("step_label", *p.StepLabel)
	}
	if p.CurrentStep != nil {
		add("current_step", *p.CurrentStep)
	}
	if p.TotalSteps != nil {
		add("total_steps", *p.TotalSteps)
	}
	if p.BackendEndpoint != nil {
		add("backend_endpoint", *p.BackendEndpoint)
	}
	if p.RequestID != nil {
		add("request_id", *p.RequestID)
	}
	if p.DurableSourceURL != nil {
		add("durable_source_url", *p.DurableSourceURL)
	}
	if p.OutputURL != nil {
		add("output_url", *p.OutputURL)
	}
	if p.ErrorMessage != nil {
		add("error_message", *p.ErrorMessage)
	}
	if p.PostStatus != nil {
		add("post_status", string(*p.PostStatus))
	}
	if p.FaceImageID != nil {
		add("face_image_id", *p.FaceImageID)
	}
	if p.ClearOverrides {
		// The override group clears atomically, in the same statement.
		sets = append(sets, "caption = NULL", "publish_mode = NULL", "scheduled_at = NULL", "timezone = NULL")
	} else {
		if p.Caption != nil {
			add("caption", *p.Caption)
		}
		if p.PublishMode != nil {
			add("publish_mode", *p.PublishMode)
		}
		if p.ScheduledAt != nil {
			add("scheduled_at", *p.ScheduledAt)
		}
		if p.Timezone != nil {
			add("timezone", *p.Timezone)
		}
	}

	q := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if p.Status != nil {
		q += " AND status NOT IN ('completed','failed')"
	}

	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if p.Status == nil {
			return domain.ErrNotFound
		}
		row, rerr := pickRow(ctx, r.pool, tx, `SELECT 1 FROM jobs WHERE id = $1;`, id)
		if rerr != nil {
			return rerr
		}
		var one int
		if serr := row.Scan(&one); serr != nil {
			return domain.ErrNotFound
		}
		return domain.ErrTerminalStatus
	}
	return nil
}

// AppendStepResult appends one immutable result; the first write per step id
// wins and later appends for the same id are no-ops.
func (r *jobRepo) AppendStepResult(ctx context.Context, tx repository.Tx, id string, res model.StepResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal step result: %w", err)
	}

	const q = `
UPDATE jobs
   SET step_results = step_results || $2::jsonb,
       updated_at = now()
 WHERE id = $1
   AND NOT EXISTS (
         SELECT 1 FROM jsonb_array_elements(jobs.step_results) e
          WHERE e->>'step_id' = $3
       );`

	_, err = execSQL(ctx, r.pool, tx, q, id, payload, res.StepID)
	return err
}

func (r *jobRepo) CountByBatch(ctx context.Context, tx repository.Tx, batchID string) (total, completed, failed int, err error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'completed'),
       COUNT(*) FILTER (WHERE status = 'failed')
  FROM jobs
 WHERE batch_id = $1 OR pipeline_batch_id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, batchID)
	if err != nil {
		return 0, 0, 0, err
	}
	if err := row.Scan(&total, &completed, &failed); err != nil {
		return 0, 0, 0, domain.ErrReadDatabaseRow
	}
	return total, completed, failed, nil
}

func (r *jobRepo) ListStuckProcessing(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE status = 'processing'
   AND request_id <> ''
   AND updated_at < $1
 ORDER BY id;`

	rows, err := pickRows(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*model.Job, error) {
	var (
		j           model.Job
		status      string
		postStatus  string
		pipelineRaw []byte
		resultsRaw  []byte
	)
	err := row.Scan(
		&j.ID, &status, &j.StepLabel, &j.CurrentStep, &j.TotalSteps,
		&pipelineRaw, &resultsRaw, &j.BackendEndpoint, &j.RequestID,
		&j.SourceURL, &j.DurableSourceURL, &j.FaceImageID, &j.Prompt,
		&j.OutputURL, &j.ErrorMessage, &j.BatchID, &j.PipelineBatchID,
		&postStatus, &j.Overrides.Caption, &j.Overrides.PublishMode,
		&j.Overrides.ScheduledAt, &j.Overrides.Timezone, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.PostStatus = model.PostStatus(postStatus)
	if len(pipelineRaw) > 0 {
		if err := json.Unmarshal(pipelineRaw, &j.Pipeline); err != nil {
			return nil, fmt.Errorf("unmarshal pipeline: %w", err)
		}
	}
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, &j.StepResults); err != nil {
			return nil, fmt.Errorf("unmarshal step results: %w", err)
		}
	}
	return &j, nil
}
