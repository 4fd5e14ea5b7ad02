package file

import (
	"context"
	"sort"

	"github.com/confops/ticketd/pkg/models"
)

// answerLookup scans stored tickets for the newest answer a user gave to a
// field. Postgres does this in one query; here tickets are small and local.
type answerLookup struct {
	tickets *TicketRepository
}

func (al *answerLookup) LatestFieldValue(ctx context.Context, userID, templateID string, templateStepID *string, fieldKey string) (*models.FieldValue, error) {
	tickets, err := al.tickets.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	// Newest ticket first, then latest step within it.
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].UpdatedAt.After(tickets[j].UpdatedAt)
	})

	for _, ticket := range tickets {
		steps := make([]*models.TicketStep, len(ticket.Steps))
		copy(steps, ticket.Steps)

		sort.Slice(steps, func(i, j int) bool {
			return steps[i].Order > steps[j].Order
		})

		for _, step := range steps {
			if !step.AssignedTo(userID) {
				continue
			}

			if templateStepID != nil && step.TemplateStepID != *templateStepID {
				continue
			}

			if step.Outcome == nil || step.Outcome.Type != models.OutcomeFormAnswer {
				continue
			}

			if value, ok := step.Outcome.Answer[fieldKey]; ok {
				return &value, nil
			}
		}
	}

	return nil, nil
}
