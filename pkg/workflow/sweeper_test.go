package workflow_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confops/ticketd/pkg/events"
	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/workflow"
)

func TestExpirySweeper_Sweep(t *testing.T) {
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

	sweeper := workflow.NewExpirySweeper(h.persistence, h.publisher, slog.New(slog.DiscardHandler))

	require.NoError(t, sweeper.Sweep(t.Context()))

	published := h.publisher.types()
	require.Contains(t, published, events.StepExpiredEvent)

	expired, ok := h.publisher.events[len(h.publisher.events)-1].(events.StepExpired)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, expired.TicketID)
	assert.Equal(t, ticket.Steps[0].ID, expired.StepID)

	// A second sweep keeps quiet about steps already announced.
	require.NoError(t, sweeper.Sweep(t.Context()))
	assert.Len(t, h.publisher.types(), len(published))
}

func TestExpirySweeper_Sweep_NothingExpired(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	template := h.intakeTemplate(t, false)
	h.createTicket(t, template)

	before := len(h.publisher.types())

	sweeper := workflow.NewExpirySweeper(h.persistence, h.publisher, slog.New(slog.DiscardHandler))
	require.NoError(t, sweeper.Sweep(t.Context()))

	assert.Len(t, h.publisher.types(), before)
}
