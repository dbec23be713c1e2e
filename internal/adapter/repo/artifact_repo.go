package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"prepline/internal/domain"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository.
type ArtifactRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewArtifactRepository creates an artifact repository backed by PostgreSQL.
func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{pool: pool}
}

// Create inserts a new artifact record.
func (r *ArtifactRepositoryPG) Create(ctx context.Context, a *domain.Artifact) error {
	query := `
INSERT INTO artifacts (id, storage_key, filename, content_type, size_bytes, checksum, modality, row_count, column_count, produced_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.StorageKey,
		a.Filename,
		a.ContentType,
		a.SizeBytes,
		a.Checksum,
		a.Modality,
		a.RowCount,
		a.ColumnCount,
		nullableString(a.ProducedBy),
		a.CreatedAt,
	)
	return err
}

// GetByID fetches an artifact by its identifier.
func (r *ArtifactRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Artifact, error) {
	query := `
SELECT id, storage_key, filename, content_type, size_bytes, checksum, modality, row_count, column_count, COALESCE(produced_by, ''), created_at
FROM artifacts
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var a domain.Artifact
	if err := row.Scan(
		&a.ID,
		&a.StorageKey,
		&a.Filename,
		&a.ContentType,
		&a.SizeBytes,
		&a.Checksum,
		&a.Modality,
		&a.RowCount,
		&a.ColumnCount,
		&a.ProducedBy,
		&a.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
