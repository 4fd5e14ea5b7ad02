package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// UploadRepository handles upload metadata rows. Blob content lives in the
// blob store, keyed by digest.
type UploadRepository struct {
	db *sql.DB
}

// NewUploadRepository creates a new upload repository.
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	query := `
		SELECT
			id
		  , owner_id
		  , name
		  , digest
		  , mime
		  , size
		  , created_at
		FROM uploads
		WHERE id = $1
	`

	var upload models.Upload

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&upload.ID,
		&upload.OwnerID,
		&upload.Name,
		&upload.Digest,
		&upload.Mime,
		&upload.Size,
		&upload.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrUploadNotFound
		}

		return nil, fmt.Errorf("failed to query upload %s: %w", id, err)
	}

	return &upload, nil
}

func (r *UploadRepository) Save(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, owner_id, name, digest, mime, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		upload.ID,
		upload.OwnerID,
		upload.Name,
		upload.Digest,
		upload.Mime,
		upload.Size,
		upload.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save upload %s: %w", upload.ID, err)
	}

	return nil
}
