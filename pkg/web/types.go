// Package web provides HTTP request and response types for the ticket API.
package web

import (
	"time"

	"github.com/confops/ticketd/pkg/models"
)

// TargetRequest references a user, a label, or nobody.
type TargetRequest struct {
	Kind    string `json:"kind"               validate:"required,oneof=user label none"`
	UserID  string `json:"user_id,omitempty"  validate:"required_if=Kind user"`
	LabelID string `json:"label_id,omitempty" validate:"required_if=Kind label"`
}

// ToModel converts the request target into its model form.
func (t TargetRequest) ToModel() models.Target {
	switch models.TargetKind(t.Kind) {
	case models.TargetUser:
		return models.UserTarget(t.UserID)
	case models.TargetLabel:
		return models.LabelTarget(t.LabelID)
	case models.TargetNone:
	}

	return models.NoTarget()
}

// StepRequest represents one workflow step of a template.
type StepRequest struct {
	Name     string             `json:"name"               validate:"required,min=1"`
	Kind     string             `json:"kind"               validate:"required,oneof=form review"`
	Operator *TargetRequest     `json:"operator,omitempty"`
	Form     *FormStepRequest   `json:"form,omitempty"`
	Review   *models.ReviewSpec `json:"review,omitempty"`
}

// FormStepRequest carries a form step's deadline and field list.
type FormStepRequest struct {
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	Fields    []models.SchemaField `json:"fields"`
}

// ToModel converts the request step into its model form.
func (s StepRequest) ToModel() *models.TemplateStep {
	step := &models.TemplateStep{
		Name: s.Name,
		Kind: models.StepKind(s.Kind),
	}

	if s.Operator != nil {
		step.Operator = s.Operator.ToModel()
	}

	if s.Form != nil {
		step.Form = &models.FormSpec{
			ExpiresAt: s.Form.ExpiresAt,
			Fields:    s.Form.Fields,
		}
	}

	step.Review = s.Review

	return step
}

// CreateTemplateRequest represents the request body for creating a new template.
type CreateTemplateRequest struct {
	Title       string          `json:"title"                 validate:"required,min=3"`
	Description string          `json:"description,omitempty"`
	Managers    []TargetRequest `json:"managers,omitempty"    validate:"dive"`
	Steps       []StepRequest   `json:"steps"                 validate:"dive"`
}

// ToModel converts the request into a template aggregate for the given project.
func (r CreateTemplateRequest) ToModel(projectID string) *models.Template {
	template := &models.Template{
		ProjectID:   projectID,
		Title:       r.Title,
		Description: r.Description,
		Managers:    make([]models.Target, 0, len(r.Managers)),
		Steps:       make([]*models.TemplateStep, 0, len(r.Steps)),
	}

	for _, manager := range r.Managers {
		template.Managers = append(template.Managers, manager.ToModel())
	}

	for _, step := range r.Steps {
		template.Steps = append(template.Steps, step.ToModel())
	}

	return template
}

// CreateTicketRequest represents the request body for instantiating a template.
type CreateTicketRequest struct {
	TemplateID string            `json:"template_id"         validate:"required"`
	Title      string            `json:"title"               validate:"required,min=1"`
	Assignees  map[string]string `json:"assignees,omitempty"`
}

// SubmitFormRequest represents the request body for answering the current form step.
type SubmitFormRequest struct {
	Values map[string]models.FieldValue `json:"values" validate:"required"`
}

// SubmitReviewRequest represents the request body for a review verdict.
type SubmitReviewRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
}
