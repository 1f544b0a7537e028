package postgres

import (
	"context"
	"errors"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ImageRepository = (*imageRepo)(nil)

type imageRepo struct {
	pool *pgxpool.Pool
}

func NewImageRepo(pool *pgxpool.Pool) *imageRepo {
	return &imageRepo{pool: pool}
}

func (r *imageRepo) Save(ctx context.Context, tx repository.Tx, img *model.ReferenceImage) error {
	const q = `
INSERT INTO reference_images (id, model_profile_id, url, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET
  model_profile_id = EXCLUDED.model_profile_id,
  url = EXCLUDED.url;`

	_, err := execSQL(ctx, r.pool, tx, q, img.ID, img.ModelProfileID, img.URL, img.CreatedAt)
	return err
}

func (r *imageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ReferenceImage, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT id, model_profile_id, url, created_at FROM reference_images WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	var img model.ReferenceImage
	if err := row.Scan(&img.ID, &img.ModelProfileID, &img.URL, &img.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}

func (r *imageRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.ReferenceImage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT id, model_profile_id, url, created_at FROM reference_images WHERE id = ANY($1) ORDER BY id;`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectImages(rows)
}

func (r *imageRepo) ListByModelProfile(ctx context.Context, tx repository.Tx, profileID string) ([]*model.ReferenceImage, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT id, model_profile_id, url, created_at FROM reference_images WHERE model_profile_id = $1 ORDER BY id;`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectImages(rows)
}

func collectImages(rows pgx.Rows) ([]*model.ReferenceImage, error) {
	var out []*model.ReferenceImage
	for rows.Next() {
		var img model.ReferenceImage
		if err := rows.Scan(&img.ID, &img.ModelProfileID, &img.URL, &img.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &img)
	}
	return out, rows.Err()
}

var _ repository.ModelProfileRepository = (*modelProfileRepo)(nil)

type modelProfileRepo struct {
	pool *pgxpool.Pool
}

func NewModelProfileRepo(pool *pgxpool.Pool) *modelProfileRepo {
	return &modelProfileRepo{pool: pool}
}

func (r *modelProfileRepo) Save(ctx context.Context, tx repository.Tx, profile *model.ModelProfile) error {
	const q = `
INSERT INTO model_profiles (id, name, primary_image_id, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  primary_image_id = EXCLUDED.primary_image_id;`

	_, err := execSQL(ctx, r.pool, tx, q, profile.ID, profile.Name, profile.PrimaryImageID, profile.CreatedAt)
	return err
}

func (r *modelProfileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ModelProfile, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT id, name, primary_image_id, created_at FROM model_profiles WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	var p model.ModelProfile
	if err := row.Scan(&p.ID, &p.Name, &p.PrimaryImageID, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *modelProfileRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.ModelProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT id, name, primary_image_id, created_at FROM model_profiles WHERE id = ANY($1) ORDER BY id;`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ModelProfile
	for rows.Next() {
		var p model.ModelProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.PrimaryImageID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
