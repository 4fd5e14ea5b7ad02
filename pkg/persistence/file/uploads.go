package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// UploadRepository stores upload records as JSON files under root/uploads.
// Blob contents live in the blob store, keyed by digest.
type UploadRepository struct {
	root string
}

// NewUploadRepository creates a new file-backed upload repository.
func NewUploadRepository(root string) *UploadRepository {
	return &UploadRepository{root: path.Join(root, "uploads")}
}

func (r *UploadRepository) GetByID(_ context.Context, id string) (*models.Upload, error) {
	filePath := filepath.Clean(path.Join(r.root, id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrUploadNotFound
		}

		return nil, fmt.Errorf("failed to read upload %s: %w", id, err)
	}

	var upload models.Upload

	err = json.Unmarshal(body, &upload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload %s: %w", id, err)
	}

	return &upload, nil
}

func (r *UploadRepository) Save(_ context.Context, upload *models.Upload) error {
	if err := os.MkdirAll(r.root, 0750); err != nil {
		return fmt.Errorf("failed to create uploads directory: %w", err)
	}

	data, err := json.MarshalIndent(upload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal upload %s: %w", upload.ID, err)
	}

	filePath := path.Join(r.root, upload.ID+".json")

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write upload %s: %w", upload.ID, err)
	}

	return nil
}
