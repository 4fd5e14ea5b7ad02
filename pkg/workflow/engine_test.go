package workflow_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confops/ticketd/pkg/eventbus"
	"github.com/confops/ticketd/pkg/events"
	"github.com/confops/ticketd/pkg/forms"
	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence/file"
	"github.com/confops/ticketd/pkg/targets"
	"github.com/confops/ticketd/pkg/workflow"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	published := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		published = append(published, event.GetType())
	}

	return published
}

type harness struct {
	persistence *file.Persistence
	engine      *workflow.Engine
	templates   *workflow.Templates
	publisher   *capturePublisher
}

// newHarness seeds a directory with alice and bob on the staff label and
// carol on the reviewers label.
func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()

	require.NoError(t, file.NewDirectory(root).Seed(
		[]models.User{
			{ID: "alice", Name: "Alice", Email: "alice@example.com"},
			{ID: "bob", Name: "Bob", Email: "bob@example.com"},
			{ID: "carol", Name: "Carol", Email: "carol@example.com"},
		},
		map[string][]string{
			"alice": {"staff"},
			"bob":   {"staff"},
			"carol": {"reviewers"},
		},
	))

	p := file.NewPersistence(root)
	logger := slog.New(slog.DiscardHandler)
	resolver := targets.NewResolver(p.Directory(), logger)
	publisher := &capturePublisher{}

	return &harness{
		persistence: p,
		engine:      workflow.NewEngine(p, resolver, publisher, logger),
		templates:   workflow.NewTemplates(p, resolver),
		publisher:   publisher,
	}
}

func textField(key, label string) models.SchemaField {
	return models.SchemaField{
		Key:      key,
		Label:    label,
		Required: true,
		Editable: true,
		Definition: models.FieldDefinition{
			Kind:     models.FieldSingleLineText,
			MaxChars: 200,
		},
	}
}

// intakeTemplate builds a two step template: an open form followed by a
// review held by the reviewers label.
func (h *harness) intakeTemplate(t *testing.T, restartOnReject bool) *models.Template {
	t.Helper()

	template, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Speaker intake",
		Steps: []*models.TemplateStep{
			{
				Name:     "Details",
				Kind:     models.StepForm,
				Operator: models.NoTarget(),
				Form: &models.FormSpec{
					Fields: []models.SchemaField{textField("name", "Full name")},
				},
			},
			{
				Name:     "Approval",
				Kind:     models.StepReview,
				Operator: models.LabelTarget("reviewers"),
				Review:   &models.ReviewSpec{RestartOnReject: restartOnReject},
			},
		},
	})
	require.NoError(t, err)

	return template
}

func (h *harness) createTicket(t *testing.T, template *models.Template) *models.Ticket {
	t.Helper()

	ticket, err := h.engine.CreateTicket(t.Context(), workflow.CreateTicketRequest{
		TemplateID: template.ID,
		Title:      "Jane Doe",
		CreatedBy:  "alice",
	})
	require.NoError(t, err)

	return ticket
}

func (h *harness) submitName(t *testing.T, ticket *models.Ticket, userID, name string) *models.Ticket {
	t.Helper()

	updated, err := h.engine.SubmitForm(t.Context(), workflow.SubmitFormRequest{
		TicketID: ticket.ID,
		StepID:   ticket.CurrentStep().ID,
		UserID:   userID,
		Values:   map[string]models.FieldValue{"name": models.NewTextValue(name)},
	})
	require.NoError(t, err)

	return updated
}

func TestEngine_CreateTicket(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)

	ticket := h.createTicket(t, template)

	require.Len(t, ticket.Steps, 2)
	assert.Equal(t, 1, ticket.Steps[0].Order)
	assert.True(t, ticket.Steps[0].AssignedTo("alice"), "creator picks up the first open step")
	assert.Nil(t, ticket.Steps[1].AssigneeID, "label steps stay unassigned")
	assert.False(t, ticket.Finished)

	assert.Equal(t, []events.EventType{events.TicketCreatedEvent}, h.publisher.types())
}

func TestEngine_CreateTicket_FixedOperatorAssigns(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	template, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Badge request",
		Steps: []*models.TemplateStep{
			{
				Name:     "Print",
				Kind:     models.StepForm,
				Operator: models.UserTarget("bob"),
				Form:     &models.FormSpec{Fields: []models.SchemaField{textField("name", "Name")}},
			},
		},
	})
	require.NoError(t, err)

	ticket := h.createTicket(t, template)
	assert.True(t, ticket.Steps[0].AssignedTo("bob"))
}

func TestEngine_CreateTicket_ExplicitAssigneeChecked(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)

	_, err := h.engine.CreateTicket(t.Context(), workflow.CreateTicketRequest{
		TemplateID: template.ID,
		Title:      "Jane Doe",
		CreatedBy:  "alice",
		Assignees:  map[string]string{template.Steps[1].ID: "bob"},
	})
	assert.ErrorIs(t, err, workflow.ErrNotEligible, "bob is not a reviewer")

	ticket, err := h.engine.CreateTicket(t.Context(), workflow.CreateTicketRequest{
		TemplateID: template.ID,
		Title:      "Jane Doe",
		CreatedBy:  "alice",
		Assignees:  map[string]string{template.Steps[1].ID: "carol"},
	})
	require.NoError(t, err)
	assert.True(t, ticket.Steps[1].AssignedTo("carol"))
}

func TestEngine_CreateTicket_RequiresTitle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)

	_, err := h.engine.CreateTicket(t.Context(), workflow.CreateTicketRequest{
		TemplateID: template.ID,
		CreatedBy:  "alice",
	})
	assert.ErrorIs(t, err, workflow.ErrTicketTitle)
}

func TestEngine_SubmitForm(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)

	updated := h.submitName(t, ticket, "alice", "  Jane Doe  ")

	first := updated.Steps[0]
	assert.True(t, first.Finished)
	require.NotNil(t, first.Outcome)
	assert.Equal(t, models.OutcomeFormAnswer, first.Outcome.Type)
	assert.True(t, first.Outcome.Answer["name"].Equal(models.NewTextValue("Jane Doe")), "answers are trimmed")

	current := updated.CurrentStep()
	require.NotNil(t, current)
	assert.Equal(t, 2, current.Order)

	assert.Equal(t, []events.EventType{
		events.TicketCreatedEvent,
		events.StepCompletedEvent,
	}, h.publisher.types())
}

func TestEngine_SubmitForm_ValidationFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)

	_, err := h.engine.SubmitForm(t.Context(), workflow.SubmitFormRequest{
		TicketID: ticket.ID,
		StepID:   ticket.CurrentStep().ID,
		UserID:   "alice",
		Values:   map[string]models.FieldValue{},
	})

	var fieldErrors forms.FieldErrors

	require.ErrorAs(t, err, &fieldErrors)
	assert.Equal(t, "is required", fieldErrors["name"])
}

func TestEngine_SubmitForm_WrongUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)

	_, err := h.engine.SubmitForm(t.Context(), workflow.SubmitFormRequest{
		TicketID: ticket.ID,
		StepID:   ticket.CurrentStep().ID,
		UserID:   "bob",
		Values:   map[string]models.FieldValue{"name": models.NewTextValue("Jane")},
	})
	assert.ErrorIs(t, err, workflow.ErrNotAssigned)
	assert.True(t, workflow.IsForbiddenError(err))
}

func TestEngine_SubmitForm_WrongStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)

	_, err := h.engine.SubmitForm(t.Context(), workflow.SubmitFormRequest{
		TicketID: ticket.ID,
		StepID:   ticket.Steps[1].ID,
		UserID:   "alice",
		Values:   map[string]models.FieldValue{"name": models.NewTextValue("Jane")},
	})
	assert.ErrorIs(t, err, workflow.ErrStepNotCurrent)
	assert.True(t, workflow.IsConflictError(err))
}

func TestEngine_SubmitForm_OnReviewStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)
	updated := h.submitName(t, ticket, "alice", "Jane")

	_, err := h.engine.SubmitForm(t.Context(), workflow.SubmitFormRequest{
		TicketID: updated.ID,
		StepID:   updated.CurrentStep().ID,
		UserID:   "carol",
		Values:   map[string]models.FieldValue{},
	})
	assert.ErrorIs(t, err, workflow.ErrWrongOperation)
}

func TestEngine_SubmitForm_Expired(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	deadline := time.Now().UTC().Add(-time.Hour)
	template, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Late intake",
		Steps: []*models.TemplateStep{
			{
				Name:     "Details",
				Kind:     models.StepForm,
				Operator: models.NoTarget(),
				Form: &models.FormSpec{
					ExpiresAt: &deadline,
					Fields:    []models.SchemaField{textField("name", "Name")},
				},
			},
		},
	})
	require.NoError(t, err)

	ticket := h.createTicket(t, template)

	_, err = h.engine.SubmitForm(t.Context(), workflow.SubmitFormRequest{
		TicketID: ticket.ID,
		StepID:   ticket.CurrentStep().ID,
		UserID:   "alice",
		Values:   map[string]models.FieldValue{"name": models.NewTextValue("Jane")},
	})
	assert.ErrorIs(t, err, workflow.ErrFormExpired)
}

func TestEngine_SubmitReview_Approve(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)
	updated := h.submitName(t, ticket, "alice", "Jane")

	final, err := h.engine.SubmitReview(t.Context(), workflow.SubmitReviewRequest{
		TicketID: updated.ID,
		StepID:   updated.CurrentStep().ID,
		UserID:   "carol",
		Approved: true,
		Comment:  "looks good",
	})
	require.NoError(t, err)

	assert.True(t, final.Finished)
	review := final.Steps[1]
	assert.True(t, review.Finished)
	assert.True(t, review.AssignedTo("carol"), "reviewer claims the step")
	require.NotNil(t, review.Outcome)
	assert.Equal(t, models.OutcomeReview, review.Outcome.Type)
	assert.True(t, review.Outcome.Approved)

	assert.Equal(t, []events.EventType{
		events.TicketCreatedEvent,
		events.StepCompletedEvent,
		events.StepCompletedEvent,
		events.TicketFinishedEvent,
	}, h.publisher.types())
}

func TestEngine_SubmitReview_RejectReopensPrevious(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)
	updated := h.submitName(t, ticket, "alice", "Jane")

	rejected, err := h.engine.SubmitReview(t.Context(), workflow.SubmitReviewRequest{
		TicketID: updated.ID,
		StepID:   updated.CurrentStep().ID,
		UserID:   "carol",
		Approved: false,
		Comment:  "name is incomplete",
	})
	require.NoError(t, err)

	assert.False(t, rejected.Finished)
	assert.False(t, rejected.Steps[0].Finished, "rejected work reopens")
	assert.False(t, rejected.Steps[1].Finished, "the review waits for the corrected work")
	require.NotNil(t, rejected.Steps[1].Outcome)
	assert.Equal(t, "name is incomplete", rejected.Steps[1].Outcome.Comment)
	require.NotNil(t, rejected.Steps[0].Outcome, "the first answer is kept as the default")

	current := rejected.CurrentStep()
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Order)

	// Correct and resubmit, then the review passes.
	resubmitted := h.submitName(t, rejected, "alice", "Jane Doe")

	final, err := h.engine.SubmitReview(t.Context(), workflow.SubmitReviewRequest{
		TicketID: resubmitted.ID,
		StepID:   resubmitted.CurrentStep().ID,
		UserID:   "carol",
		Approved: true,
	})
	require.NoError(t, err)
	assert.True(t, final.Finished)

	assert.Contains(t, h.publisher.types(), events.StepReopenedEvent)
}

func TestEngine_SubmitReview_RejectRestartsAll(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, true)
	ticket := h.createTicket(t, template)
	updated := h.submitName(t, ticket, "alice", "Jane")

	rejected, err := h.engine.SubmitReview(t.Context(), workflow.SubmitReviewRequest{
		TicketID: updated.ID,
		StepID:   updated.CurrentStep().ID,
		UserID:   "carol",
		Approved: false,
		Comment:  "start over",
	})
	require.NoError(t, err)

	for _, step := range rejected.Steps {
		assert.False(t, step.Finished)
	}

	assert.Contains(t, h.publisher.types(), events.TicketRestartedEvent)
}

func TestEngine_SubmitReview_RejectOnFirstStepResetsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	template, err := h.templates.Create(t.Context(), &models.Template{
		ProjectID: "conf-2026",
		Title:     "Final sign-off",
		Steps: []*models.TemplateStep{
			{
				Name:     "Sign-off",
				Kind:     models.StepReview,
				Operator: models.LabelTarget("reviewers"),
				Review:   &models.ReviewSpec{},
			},
		},
	})
	require.NoError(t, err)

	ticket := h.createTicket(t, template)

	rejected, err := h.engine.SubmitReview(t.Context(), workflow.SubmitReviewRequest{
		TicketID: ticket.ID,
		StepID:   ticket.CurrentStep().ID,
		UserID:   "carol",
		Approved: false,
		Comment:  "not yet",
	})
	require.NoError(t, err)

	assert.False(t, rejected.Finished)
	assert.False(t, rejected.Steps[0].Finished)
	assert.NotContains(t, h.publisher.types(), events.TicketRestartedEvent)
	assert.NotContains(t, h.publisher.types(), events.StepReopenedEvent)
}

func TestEngine_SubmitReview_OnFinishedTicket(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)
	updated := h.submitName(t, ticket, "alice", "Jane")

	_, err := h.engine.SubmitReview(t.Context(), workflow.SubmitReviewRequest{
		TicketID: updated.ID,
		StepID:   updated.CurrentStep().ID,
		UserID:   "carol",
		Approved: true,
	})
	require.NoError(t, err)

	_, err = h.engine.SubmitReview(t.Context(), workflow.SubmitReviewRequest{
		TicketID: updated.ID,
		StepID:   updated.Steps[1].ID,
		UserID:   "carol",
		Approved: true,
	})
	assert.ErrorIs(t, err, workflow.ErrTicketFinished)
}

func TestEngine_FetchTicket(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)

	detail, err := h.engine.FetchTicket(t.Context(), ticket.ID, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.TicketPending, detail.Status)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, template.Steps[0].ID, detail.Steps[0].TemplateStep.ID)
	require.NotNil(t, detail.Steps[0].Step)
	require.Len(t, detail.CurrentFields, 1, "the current form is expanded for the assignee")
	assert.Equal(t, "name", detail.CurrentFields[0].Key)

	// Bob holds no step and is no operator, the form stays hidden.
	other, err := h.engine.FetchTicket(t.Context(), ticket.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TicketInProgress, other.Status)
	assert.Empty(t, other.CurrentFields)
}

func TestEngine_FetchTicket_PadsStepsAddedLater(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)

	_, err := h.templates.AddStep(t.Context(), template.ID, &models.TemplateStep{
		Name:     "Final check",
		Kind:     models.StepReview,
		Operator: models.LabelTarget("reviewers"),
		Review:   &models.ReviewSpec{},
	})
	require.NoError(t, err)

	detail, err := h.engine.FetchTicket(t.Context(), ticket.ID, "alice")
	require.NoError(t, err)

	require.Len(t, detail.Steps, 3)
	assert.Nil(t, detail.Steps[2].Step, "tickets predating the step carry no instance for it")
}

func TestEngine_ListTickets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	ticket := h.createTicket(t, template)

	// Alice holds the open form step.
	mine, err := h.engine.ListTickets(t.Context(), "conf-2026", "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.TicketPending, mine[0].Status)

	// Carol holds nothing yet but can claim the review once it is current.
	updated := h.submitName(t, ticket, "alice", "Jane")

	claimable, err := h.engine.ListTickets(t.Context(), "conf-2026", "carol")
	require.NoError(t, err)
	require.Len(t, claimable, 1)
	assert.Equal(t, updated.ID, claimable[0].Ticket.ID)
	assert.Equal(t, models.TicketPending, claimable[0].Status)

	// Bob neither participates nor operates any step.
	none, err := h.engine.ListTickets(t.Context(), "conf-2026", "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEngine_ListTickets_SortsPendingFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)

	waiting := h.createTicket(t, template)
	h.submitName(t, waiting, "alice", "Jane")

	actionable := h.createTicket(t, template)

	summaries, err := h.engine.ListTickets(t.Context(), "conf-2026", "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, actionable.ID, summaries[0].Ticket.ID, "work waiting on the user sorts first")
	assert.Equal(t, models.TicketInProgress, summaries[1].Status)
}
