package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// TicketRepository handles ticket-related file operations. It keeps a handle
// on the template repository for expiry scans, which need template deadlines.
type TicketRepository struct {
	root      string
	templates *TemplateRepository
}

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(root string, templates *TemplateRepository) *TicketRepository {
	return &TicketRepository{root: root, templates: templates}
}

// GetByID retrieves a ticket by its ID from the file system.
func (tr *TicketRepository) GetByID(_ context.Context, id string) (*models.Ticket, error) {
	filePath := filepath.Clean(path.Join(tr.root, "tickets", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTicketError("GetByID", id, persistence.ErrTicketNotFound)
		}

		return nil, fmt.Errorf("failed to fetch ticket %s: %w", id, err)
	}

	var ticket models.Ticket

	err = json.Unmarshal(body, &ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket %s: %w", id, err)
	}

	return &ticket, nil
}

// ListByTemplate returns every ticket instantiated from the template.
func (tr *TicketRepository) ListByTemplate(ctx context.Context, templateID string) ([]*models.Ticket, error) {
	return tr.list(ctx, func(ticket *models.Ticket) bool {
		return ticket.TemplateID == templateID
	})
}

// ListForUser returns every ticket the user has been assigned a step on.
func (tr *TicketRepository) ListForUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	return tr.list(ctx, func(ticket *models.Ticket) bool {
		return ticket.Participant(userID)
	})
}

// ListOpenByTemplates returns unfinished tickets belonging to any of the given templates.
func (tr *TicketRepository) ListOpenByTemplates(ctx context.Context, templateIDs []string) ([]*models.Ticket, error) {
	return tr.list(ctx, func(ticket *models.Ticket) bool {
		return !ticket.Finished && slices.Contains(templateIDs, ticket.TemplateID)
	})
}

// Save writes the ticket aggregate, rejecting stale writers. The stored
// UpdatedAt must match the aggregate's, proving the caller acted on the
// version it loaded.
func (tr *TicketRepository) Save(ctx context.Context, ticket *models.Ticket) error {
	existing, err := tr.GetByID(ctx, ticket.ID)
	if err != nil && !persistence.IsTicketNotFound(err) {
		return err
	}

	if existing != nil && !existing.UpdatedAt.Equal(ticket.UpdatedAt) {
		return persistence.NewTicketError("Save", ticket.ID, persistence.ErrVersionConflict)
	}

	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}

	ticket.UpdatedAt = now

	if err := os.MkdirAll(path.Join(tr.root, "tickets"), 0750); err != nil {
		return fmt.Errorf("failed to create tickets directory: %w", err)
	}

	data, err := json.MarshalIndent(ticket, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ticket %s: %w", ticket.ID, err)
	}

	filePath := path.Join(tr.root, "tickets", ticket.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// ListExpiredFormSteps scans open tickets for current form steps whose
// deadline is behind the given time.
func (tr *TicketRepository) ListExpiredFormSteps(ctx context.Context, now time.Time) ([]persistence.ExpiredFormStep, error) {
	tickets, err := tr.list(ctx, func(ticket *models.Ticket) bool {
		return !ticket.Finished
	})
	if err != nil {
		return nil, err
	}

	expired := make([]persistence.ExpiredFormStep, 0)

	for _, ticket := range tickets {
		current := ticket.CurrentStep()
		if current == nil {
			continue
		}

		template, err := tr.templates.GetByID(ctx, ticket.TemplateID)
		if err != nil {
			return nil, err
		}

		templateStep := template.StepByID(current.TemplateStepID)
		if templateStep == nil || templateStep.Kind != models.StepForm {
			continue
		}

		if templateStep.Form.ExpiresAt == nil || !templateStep.Form.Expired(now) {
			continue
		}

		expired = append(expired, persistence.ExpiredFormStep{
			TicketID:  ticket.ID,
			StepID:    current.ID,
			ExpiresAt: *templateStep.Form.ExpiresAt,
		})
	}

	return expired, nil
}

func (tr *TicketRepository) list(ctx context.Context, keep func(*models.Ticket) bool) ([]*models.Ticket, error) {
	dir := os.DirFS(path.Join(tr.root, "tickets"))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket files: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		ticketID := file[:len(file)-5] // Remove .json extension

		ticket, err := tr.GetByID(ctx, ticketID)
		if err != nil {
			return nil, err
		}

		if keep(ticket) {
			tickets = append(tickets, ticket)
		}
	}

	return tickets, nil
}
