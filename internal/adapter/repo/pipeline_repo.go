package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"prepline/internal/domain"
)

// PipelineRepositoryPG implements domain.PipelineRepository. Step sequences
// are stored as a jsonb column so a frozen pipeline round-trips byte for
// byte.
type PipelineRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPipelineRepository creates a pipeline repository backed by PostgreSQL.
func NewPipelineRepository(pool *pgxpool.Pool) *PipelineRepositoryPG {
	return &PipelineRepositoryPG{pool: pool}
}

// Create inserts a new pipeline record.
func (r *PipelineRepositoryPG) Create(ctx context.Context, p *domain.Pipeline) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("encode pipeline steps: %w", err)
	}
	query := `
INSERT INTO pipelines (id, name, task_type, modality, steps, frozen, is_template, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.TaskType,
		p.Modality,
		steps,
		p.Frozen,
		p.IsTemplate,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return err
}

// GetByID fetches a pipeline by its identifier.
func (r *PipelineRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Pipeline, error) {
	query := `
SELECT id, name, task_type, modality, steps, frozen, is_template, created_at, updated_at
FROM pipelines
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	p, err := scanPipeline(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListTemplates returns the stored pipeline templates ordered by name.
func (r *PipelineRepositoryPG) ListTemplates(ctx context.Context) ([]domain.Pipeline, error) {
	query := `
SELECT id, name, task_type, modality, steps, frozen, is_template, created_at, updated_at
FROM pipelines
WHERE is_template = TRUE
ORDER BY name ASC;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *p)
	}
	return templates, rows.Err()
}

func scanPipeline(row interface{ Scan(dest ...any) error }) (*domain.Pipeline, error) {
	var (
		p         domain.Pipeline
		stepsJSON []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.TaskType,
		&p.Modality,
		&stepsJSON,
		&p.Frozen,
		&p.IsTemplate,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
		return nil, fmt.Errorf("decode pipeline steps: %w", err)
	}
	return &p, nil
}
