package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// List returns the templates of a project, or every template when projectID is empty.
func (r *TemplateRepository) List(ctx context.Context, projectID string) ([]*models.Template, error) {
	query := `
		SELECT
			id
		  , project_id
		  , title
		  , description
		  , managers
		  , created_at
		  , updated_at
		FROM templates
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.Template, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	for _, template := range templates {
		if err := r.loadSteps(ctx, template); err != nil {
			return nil, err
		}
	}

	return templates, nil
}

// GetByID retrieves a template with its steps.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	query := `
		SELECT
			id
		  , project_id
		  , title
		  , description
		  , managers
		  , created_at
		  , updated_at
		FROM templates
		WHERE id = $1
	`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if err := r.loadSteps(ctx, template); err != nil {
		return nil, err
	}

	return template, nil
}

// Save writes the whole aggregate. Steps are replaced wholesale, the template
// row is upserted.
func (r *TemplateRepository) Save(ctx context.Context, template *models.Template) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	managersJSON, err := json.Marshal(template.Managers)
	if err != nil {
		return fmt.Errorf("failed to marshal managers: %w", err)
	}

	templateQuery := `
		INSERT INTO templates (id, project_id, title, description, managers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			managers = EXCLUDED.managers,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, templateQuery,
		template.ID,
		template.ProjectID,
		template.Title,
		template.Description,
		managersJSON,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM template_steps WHERE template_id = $1", template.ID)
	if err != nil {
		return fmt.Errorf("failed to clear template steps: %w", err)
	}

	stepQuery := `
		INSERT INTO template_steps (id, template_id, step_order, name, operator, kind, form, review)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, step := range template.Steps {
		operatorJSON, err := json.Marshal(step.Operator)
		if err != nil {
			return fmt.Errorf("failed to marshal operator: %w", err)
		}

		var formJSON, reviewJSON []byte

		if step.Form != nil {
			formJSON, err = json.Marshal(step.Form)
			if err != nil {
				return fmt.Errorf("failed to marshal form spec: %w", err)
			}
		}

		if step.Review != nil {
			reviewJSON, err = json.Marshal(step.Review)
			if err != nil {
				return fmt.Errorf("failed to marshal review spec: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, stepQuery,
			step.ID,
			template.ID,
			step.Order,
			step.Name,
			operatorJSON,
			step.Kind,
			nullableJSON(formJSON),
			nullableJSON(reviewJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to save template step %s: %w", step.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit template: %w", err)
	}

	return nil
}

// Delete removes a template and its steps.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	return nil
}

func (r *TemplateRepository) loadSteps(ctx context.Context, template *models.Template) error {
	query := `
		SELECT
			id
		  , step_order
		  , name
		  , operator
		  , kind
		  , form
		  , review
		FROM template_steps
		WHERE template_id = $1
		ORDER BY step_order
	`

	rows, err := r.db.QueryContext(ctx, query, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query template steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	template.Steps = make([]*models.TemplateStep, 0)

	for rows.Next() {
		var (
			step         models.TemplateStep
			operatorJSON []byte
			formJSON     []byte
			reviewJSON   []byte
		)

		err := rows.Scan(&step.ID, &step.Order, &step.Name, &operatorJSON, &step.Kind, &formJSON, &reviewJSON)
		if err != nil {
			return fmt.Errorf("failed to scan template step: %w", err)
		}

		step.TemplateID = template.ID

		if err := json.Unmarshal(operatorJSON, &step.Operator); err != nil {
			return fmt.Errorf("failed to unmarshal operator: %w", err)
		}

		if len(formJSON) > 0 {
			step.Form = &models.FormSpec{}
			if err := json.Unmarshal(formJSON, step.Form); err != nil {
				return fmt.Errorf("failed to unmarshal form spec: %w", err)
			}
		}

		if len(reviewJSON) > 0 {
			step.Review = &models.ReviewSpec{}
			if err := json.Unmarshal(reviewJSON, step.Review); err != nil {
				return fmt.Errorf("failed to unmarshal review spec: %w", err)
			}
		}

		template.Steps = append(template.Steps, &step)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating template steps: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		template     models.Template
		managersJSON []byte
	)

	err := row.Scan(
		&template.ID,
		&template.ProjectID,
		&template.Title,
		&template.Description,
		&managersJSON,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(managersJSON, &template.Managers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal managers: %w", err)
	}

	return &template, nil
}

// nullableJSON maps an empty payload to SQL NULL.
func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}

	return data
}
