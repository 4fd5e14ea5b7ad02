package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/confops/ticketd/pkg/forms"
	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/targets"
	"github.com/google/uuid"
)

// ErrTemplateNotFound is returned when a template is not found.
var ErrTemplateNotFound = persistence.ErrTemplateNotFound

// Templates is the service for authoring and inspecting workflow templates.
type Templates struct {
	persistence persistence.Persistence
	resolver    *targets.Resolver
}

// NewTemplates creates a new template service.
func NewTemplates(persistence persistence.Persistence, resolver *targets.Resolver) *Templates {
	return &Templates{
		persistence: persistence,
		resolver:    resolver,
	}
}

// HealthCheck checks the health of the persistence layer.
func (t *Templates) HealthCheck(ctx context.Context) (string, bool) {
	if t.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := t.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the templates of a project, newest first.
func (t *Templates) List(ctx context.Context, projectID string) ([]*models.Template, error) {
	templates, err := t.persistence.Templates().List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

// FetchByID returns one template aggregate.
func (t *Templates) FetchByID(ctx context.Context, id string) (*models.Template, error) {
	template, err := t.persistence.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return template, nil
}

// Create validates and stores a new template. Step orders are normalized to
// the 1-based position in the slice, whatever the caller sent.
func (t *Templates) Create(ctx context.Context, template *models.Template) (*models.Template, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	if template.Title == "" {
		return nil, ErrTemplateTitle
	}

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	if template.Managers == nil {
		template.Managers = []models.Target{}
	}

	for position, step := range template.Steps {
		step.Order = position + 1
		step.TemplateID = template.ID

		if err := t.prepareStep(step); err != nil {
			return nil, err
		}
	}

	template.CreatedAt = time.Now().UTC()
	template.UpdatedAt = template.CreatedAt

	if err := t.persistence.Templates().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// AddStep validates and appends a step to an existing template.
func (t *Templates) AddStep(ctx context.Context, templateID string, step *models.TemplateStep) (*models.Template, error) {
	template, err := t.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	step.TemplateID = template.ID
	step.Order = template.NextOrder()

	if err := t.prepareStep(step); err != nil {
		return nil, err
	}

	template.Steps = append(template.Steps, step)
	template.UpdatedAt = time.Now().UTC()

	if err := t.persistence.Templates().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// prepareStep assigns IDs and checks the step configuration matches its kind.
func (t *Templates) prepareStep(step *models.TemplateStep) error {
	if step.Name == "" {
		return ErrStepName
	}

	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	if step.Operator.Kind == "" {
		step.Operator = models.NoTarget()
	}

	switch step.Kind {
	case models.StepForm:
		if step.Form == nil || step.Review != nil {
			return ErrStepSpecMismatch
		}

		return t.prepareForm(step)
	case models.StepReview:
		if step.Review == nil || step.Form != nil {
			return ErrStepSpecMismatch
		}

		return nil
	}

	return ErrStepSpecMismatch
}

func (t *Templates) prepareForm(step *models.TemplateStep) error {
	document, err := json.Marshal(step.Form.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal form fields: %w", err)
	}

	if err := forms.ValidateFieldDocument(document); err != nil {
		return err
	}

	seen := make(map[string]bool, len(step.Form.Fields))

	for position := range step.Form.Fields {
		field := &step.Form.Fields[position]
		field.Order = position
		field.FormID = step.ID

		if field.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate field ID: %w", err)
			}

			field.ID = id.String()
		}

		// Markers share keys with their closing pair, only answerable
		// fields need unique keys.
		if field.Definition.IsMarker() {
			continue
		}

		if seen[field.Key] {
			return ErrDuplicateFieldKey
		}

		seen[field.Key] = true
	}

	return nil
}

// AssignableUsers resolves a step's operator target to the users who may act on it.
func (t *Templates) AssignableUsers(ctx context.Context, templateID, stepID string) ([]*models.User, error) {
	template, err := t.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	step := template.StepByID(stepID)
	if step == nil {
		return nil, ErrUnknownStep
	}

	userIDs, err := t.resolver.Resolve(ctx, step.Operator)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve step operator: %w", err)
	}

	users := make([]*models.User, 0, len(userIDs))

	for _, userID := range userIDs {
		user, err := t.persistence.Directory().UserByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
		}

		users = append(users, user)
	}

	return users, nil
}

// ListTickets returns every ticket instantiated from the template, for manager views.
func (t *Templates) ListTickets(ctx context.Context, templateID string) ([]*models.Ticket, error) {
	if _, err := t.persistence.Templates().GetByID(ctx, templateID); err != nil {
		return nil, err
	}

	tickets, err := t.persistence.Tickets().ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	return tickets, nil
}

// ManagedBy reports whether the user manages the template, directly or through
// a label.
func (t *Templates) ManagedBy(ctx context.Context, template *models.Template, userID string) (bool, error) {
	return t.resolver.AllowsAny(ctx, template.Managers, userID)
}

// CanInitiate reports whether the user may open tickets from the template. A
// first step without an operator is open to everyone.
func (t *Templates) CanInitiate(ctx context.Context, template *models.Template, userID string) (bool, error) {
	if len(template.Steps) == 0 {
		return false, nil
	}

	first := template.Steps[0]
	if first.Operator.Kind == models.TargetNone {
		return true, nil
	}

	return t.resolver.Allows(ctx, first.Operator, userID)
}
