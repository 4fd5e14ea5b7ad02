package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/workflow"
)

func TestTemplates_Create(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	template, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Speaker intake",
		Steps: []*models.TemplateStep{
			{
				Name: "Details",
				Kind: models.StepForm,
				// Caller orders are ignored, position wins.
				Order: 7,
				Form:  &models.FormSpec{Fields: []models.SchemaField{textField("name", "Name")}},
			},
			{
				Name:   "Approval",
				Kind:   models.StepReview,
				Order:  3,
				Review: &models.ReviewSpec{},
			},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, template.ID)
	require.Len(t, template.Steps, 2)
	assert.Equal(t, 1, template.Steps[0].Order)
	assert.Equal(t, 2, template.Steps[1].Order)
	assert.Equal(t, template.ID, template.Steps[0].TemplateID)
	assert.Equal(t, models.TargetNone, template.Steps[0].Operator.Kind)

	field := template.Steps[0].Form.Fields[0]
	assert.NotEmpty(t, field.ID)
	assert.Equal(t, template.Steps[0].ID, field.FormID)

	fetched, err := h.templates.FetchByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Speaker intake", fetched.Title)
}

func TestTemplates_Create_RequiresTitle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.templates.Create(t.Context(), &models.Template{ProjectID: "conf-2026"})
	assert.ErrorIs(t, err, workflow.ErrTemplateTitle)
}

func TestTemplates_Create_SpecMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		step *models.TemplateStep
	}{
		{
			name: "form step without form spec",
			step: &models.TemplateStep{Name: "Details", Kind: models.StepForm},
		},
		{
			name: "review step without review spec",
			step: &models.TemplateStep{Name: "Approval", Kind: models.StepReview},
		},
		{
			name: "form step with review spec",
			step: &models.TemplateStep{
				Name:   "Details",
				Kind:   models.StepForm,
				Form:   &models.FormSpec{Fields: []models.SchemaField{textField("name", "Name")}},
				Review: &models.ReviewSpec{},
			},
		},
		{
			name: "unknown kind",
			step: &models.TemplateStep{Name: "Mystery", Kind: "gate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)

			_, err := h.templates.Create(t.Context(), &models.Template{
				ProjectID: "conf-2026",
				Title:     "Broken",
				Steps:     []*models.TemplateStep{tt.step},
			})
			assert.ErrorIs(t, err, workflow.ErrStepSpecMismatch)
		})
	}
}

func TestTemplates_Create_DuplicateFieldKeys(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Broken",
		Steps: []*models.TemplateStep{
			{
				Name: "Details",
				Kind: models.StepForm,
				Form: &models.FormSpec{Fields: []models.SchemaField{
					textField("name", "Name"),
					textField("name", "Name again"),
				}},
			},
		},
	})
	assert.ErrorIs(t, err, workflow.ErrDuplicateFieldKey)
}

func TestTemplates_AddStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)

	updated, err := h.templates.AddStep(t.Context(), template.ID, &models.TemplateStep{
		Name:     "Final check",
		Kind:     models.StepReview,
		Operator: models.LabelTarget("reviewers"),
		Review:   &models.ReviewSpec{},
	})
	require.NoError(t, err)

	require.Len(t, updated.Steps, 3)
	assert.Equal(t, 3, updated.Steps[2].Order)
	assert.NotEmpty(t, updated.Steps[2].ID)
}

func TestTemplates_AddStep_UnknownTemplate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.templates.AddStep(t.Context(), "missing", &models.TemplateStep{
		Name:   "Approval",
		Kind:   models.StepReview,
		Review: &models.ReviewSpec{},
	})
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestTemplates_AssignableUsers(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)

	users, err := h.templates.AssignableUsers(t.Context(), template.ID, template.Steps[1].ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].ID)

	_, err = h.templates.AssignableUsers(t.Context(), template.ID, "missing")
	assert.ErrorIs(t, err, workflow.ErrUnknownStep)
}

func TestTemplates_ListTickets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	h.createTicket(t, template)
	h.createTicket(t, template)

	tickets, err := h.templates.ListTickets(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	_, err = h.templates.ListTickets(t.Context(), "missing")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestTemplates_ManagedBy(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	template, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Managed",
		Managers:  []models.Target{models.UserTarget("alice"), models.LabelTarget("reviewers")},
	})
	require.NoError(t, err)

	managed, err := h.templates.ManagedBy(t.Context(), template, "alice")
	require.NoError(t, err)
	assert.True(t, managed)

	managed, err = h.templates.ManagedBy(t.Context(), template, "carol")
	require.NoError(t, err)
	assert.True(t, managed, "managers can be designated through labels")

	managed, err = h.templates.ManagedBy(t.Context(), template, "bob")
	require.NoError(t, err)
	assert.False(t, managed)
}

func TestTemplates_CanInitiate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	open := h.intakeTemplate(t, false)

	ok, err := h.templates.CanInitiate(t.Context(), open, "alice")
	require.NoError(t, err)
	assert.True(t, ok, "a first step without an operator is open to everyone")

	gated, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Reviewer-only intake",
		Steps: []*models.TemplateStep{
			{
				Name:     "Details",
				Kind:     models.StepForm,
				Operator: models.LabelTarget("reviewers"),
				Form:     &models.FormSpec{Fields: []models.SchemaField{textField("name", "Full name")}},
			},
		},
	})
	require.NoError(t, err)

	ok, err = h.templates.CanInitiate(t.Context(), gated, "carol")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.templates.CanInitiate(t.Context(), gated, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	empty, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "No steps yet",
	})
	require.NoError(t, err)

	ok, err = h.templates.CanInitiate(t.Context(), empty, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}
