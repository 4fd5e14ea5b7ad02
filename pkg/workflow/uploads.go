package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/storage"
	"github.com/google/uuid"
)

// Uploads accepts field attachments ahead of form submission. The blob is
// checked against the target field's constraints, stored content-addressed,
// and referenced from the answer by upload ID.
type Uploads struct {
	persistence persistence.Persistence
	store       *storage.Store
	logger      *slog.Logger
}

func NewUploads(p persistence.Persistence, store *storage.Store, logger *slog.Logger) *Uploads {
	return &Uploads{
		persistence: p,
		store:       store,
		logger:      logger.With("module", "uploads"),
	}
}

// UploadRequest targets one file or image field of a template's form step.
type UploadRequest struct {
	TemplateID string
	StepID     string
	FieldKey   string
	UserID     string
	Filename   string
	Data       []byte
}

// Upload validates and stores an attachment for the given field.
func (u *Uploads) Upload(ctx context.Context, req UploadRequest) (*models.Upload, error) {
	field, err := u.lookupField(ctx, req)
	if err != nil {
		return nil, err
	}

	def := field.Definition

	if def.MaxSize > 0 && int64(len(req.Data)) > def.MaxSize {
		return nil, ErrUploadTooLarge
	}

	mime := storage.DetectMime(req.Data)

	allowed := def.Mimes
	if len(allowed) == 0 {
		allowed = storage.FileMimes
		if def.Kind == models.FieldImage {
			allowed = storage.ImageMimes
		}
	}

	if !storage.MimeAllowed(allowed, mime) {
		return nil, ErrUploadMimeNotAllowed
	}

	if def.Kind == models.FieldImage && mime != "image/svg+xml" {
		if err := checkDimensions(def, req.Data); err != nil {
			return nil, err
		}
	}

	digest, err := u.store.Put(req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate upload ID: %w", err)
	}

	upload := &models.Upload{
		ID:        id.String(),
		OwnerID:   req.UserID,
		Name:      req.Filename,
		Digest:    digest,
		Mime:      mime,
		Size:      int64(len(req.Data)),
		CreatedAt: time.Now().UTC(),
	}

	if err := u.persistence.Uploads().Save(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to save upload record: %w", err)
	}

	return upload, nil
}

// Open returns the upload record and its content.
func (u *Uploads) Open(ctx context.Context, id string) (*models.Upload, []byte, error) {
	upload, err := u.persistence.Uploads().GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	data, err := u.store.Get(upload.Digest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload %s: %w", id, err)
	}

	return upload, data, nil
}

func (u *Uploads) lookupField(ctx context.Context, req UploadRequest) (*models.SchemaField, error) {
	template, err := u.persistence.Templates().GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	step := template.StepByID(req.StepID)
	if step == nil || step.Form == nil {
		return nil, ErrUnknownStep
	}

	for i := range step.Form.Fields {
		field := &step.Form.Fields[i]
		if field.Key != req.FieldKey {
			continue
		}

		if field.Definition.Kind != models.FieldFile && field.Definition.Kind != models.FieldImage {
			return nil, ErrNotUploadField
		}

		return field, nil
	}

	return nil, ErrNotUploadField
}

func checkDimensions(def models.FieldDefinition, data []byte) error {
	width, height, err := storage.ImageSize(data)
	if err != nil {
		return ErrUploadMimeNotAllowed
	}

	if def.MinWidth > 0 && width < def.MinWidth {
		return ErrImageDimensions
	}

	if def.MaxWidth > 0 && width > def.MaxWidth {
		return ErrImageDimensions
	}

	if def.MinHeight > 0 && height < def.MinHeight {
		return ErrImageDimensions
	}

	if def.MaxHeight > 0 && height > def.MaxHeight {
		return ErrImageDimensions
	}

	return nil
}
