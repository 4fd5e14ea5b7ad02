package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// TemplateRepository handles template-related file operations.
type TemplateRepository struct {
	root string
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

// List returns the templates of a project, or every template when projectID is empty.
func (tr *TemplateRepository) List(ctx context.Context, projectID string) ([]*models.Template, error) {
	dir := os.DirFS(path.Join(tr.root, "templates"))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	templates := make([]*models.Template, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		templateID := file[:len(file)-5] // Remove .json extension

		template, err := tr.GetByID(ctx, templateID)
		if err != nil {
			return nil, err
		}

		if projectID != "" && template.ProjectID != projectID {
			continue
		}

		templates = append(templates, template)
	}

	return templates, nil
}

// GetByID retrieves a template by its ID from the file system.
func (tr *TemplateRepository) GetByID(_ context.Context, id string) (*models.Template, error) {
	filePath := filepath.Clean(path.Join(tr.root, "templates", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to fetch template %s: %w", id, err)
	}

	var template models.Template

	err = json.Unmarshal(body, &template)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", id, err)
	}

	return &template, nil
}

// Save saves a template to the file system.
func (tr *TemplateRepository) Save(_ context.Context, template *models.Template) error {
	err := os.MkdirAll(path.Join(tr.root, "templates"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create templates directory: %w", err)
	}

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal template %s: %w", template.ID, err)
	}

	filePath := path.Join(tr.root, "templates", template.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a template by its ID.
func (tr *TemplateRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(tr.root, "templates", id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	return nil
}
