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

// ExportRepositoryPG implements domain.ExportRepository.
type ExportRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewExportRepository creates an export repository backed by PostgreSQL.
func NewExportRepository(pool *pgxpool.Pool) *ExportRepositoryPG {
	return &ExportRepositoryPG{pool: pool}
}

// Create inserts a new export record.
func (r *ExportRepositoryPG) Create(ctx context.Context, e *domain.Export) error {
	schema, err := json.Marshal(e.Schema)
	if err != nil {
		return fmt.Errorf("encode export schema: %w", err)
	}
	query := `
INSERT INTO exports (id, job_id, format, artifact_id, schema, row_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err = r.pool.Exec(ctx, query,
		e.ID,
		e.JobID,
		e.Format,
		e.ArtifactID,
		schema,
		e.RowCount,
		e.CreatedAt,
	)
	return err
}

// GetByID fetches an export by its identifier.
func (r *ExportRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Export, error) {
	query := exportSelect + `WHERE id = $1;`
	e, err := scanExport(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListByJobID returns all exports produced for a job, newest first.
func (r *ExportRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.Export, error) {
	query := exportSelect + `WHERE job_id = $1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []domain.Export
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, *e)
	}
	return exports, rows.Err()
}

const exportSelect = `
SELECT id, job_id, format, artifact_id, schema, row_count, created_at
FROM exports
`

func scanExport(row interface{ Scan(dest ...any) error }) (*domain.Export, error) {
	var (
		e          domain.Export
		schemaJSON []byte
	)
	if err := row.Scan(
		&e.ID,
		&e.JobID,
		&e.Format,
		&e.ArtifactID,
		&schemaJSON,
		&e.RowCount,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(schemaJSON) > 0 {
		if err := json.Unmarshal(schemaJSON, &e.Schema); err != nil {
			return nil, fmt.Errorf("decode export schema: %w", err)
		}
	}
	return &e, nil
}
