package models

import "time"

// StepKind distinguishes the two operations a workflow step can perform.
type StepKind string

const (
	StepForm   StepKind = "form"
	StepReview StepKind = "review"
)

// FormSpec carries the form-step configuration: the ordered field list and an
// optional submission deadline.
type FormSpec struct {
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Fields    []SchemaField `json:"fields"`
}

// Expired reports whether the form can no longer be submitted at the given time.
func (f *FormSpec) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}

// ReviewSpec carries the review-step configuration. RestartOnReject sends a
// rejected ticket back to the first step instead of only the preceding one.
type ReviewSpec struct {
	RestartOnReject bool `json:"restart_on_reject"`
}

// TemplateStep is one ordered stage of a workflow template. Exactly one of
// Form and Review is set, matching Kind.
type TemplateStep struct {
	ID         string      `json:"id"`
	TemplateID string      `json:"template_id"`
	Order      int         `json:"order"`
	Name       string      `json:"name"`
	Operator   Target      `json:"operator"`
	Kind       StepKind    `json:"kind"`
	Form       *FormSpec   `json:"form,omitempty"`
	Review     *ReviewSpec `json:"review,omitempty"`
}

// Template is a reusable workflow definition tickets are instantiated from.
type Template struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Managers    []Target        `json:"managers"`
	Steps       []*TemplateStep `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StepByID returns the step with the given ID, or nil.
func (t *Template) StepByID(id string) *TemplateStep {
	for _, step := range t.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// StepByOrder returns the step with the given order, or nil.
func (t *Template) StepByOrder(order int) *TemplateStep {
	for _, step := range t.Steps {
		if step.Order == order {
			return step
		}
	}

	return nil
}

// NextOrder returns the order a newly appended step should take. Orders are
// 1-based and contiguous.
func (t *Template) NextOrder() int {
	max := 0
	for _, step := range t.Steps {
		if step.Order > max {
			max = step.Order
		}
	}

	return max + 1
}

// ManagedBy reports whether the user is named directly as a template manager.
// Label-based managers need directory resolution and are handled elsewhere.
func (t *Template) ManagedBy(userID string) bool {
	for _, manager := range t.Managers {
		if manager.Kind == TargetUser && manager.UserID != nil && *manager.UserID == userID {
			return true
		}
	}

	return false
}
