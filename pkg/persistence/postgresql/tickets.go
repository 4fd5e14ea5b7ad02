package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// TicketRepository handles ticket-related database operations.
type TicketRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(db *sql.DB, logger *slog.Logger) *TicketRepository {
	return &TicketRepository{db: db, logger: logger}
}

const ticketColumns = `
	id
  , template_id
  , title
  , created_by
  , finished
  , created_at
  , updated_at
`

// GetByID retrieves a ticket with its steps.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE id = $1"

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTicketError("GetByID", id, persistence.ErrTicketNotFound)
		}

		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}

	if err := r.loadSteps(ctx, []*models.Ticket{ticket}); err != nil {
		return nil, err
	}

	return ticket, nil
}

// ListByTemplate returns every ticket instantiated from the template.
func (r *TicketRepository) ListByTemplate(ctx context.Context, templateID string) ([]*models.Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE template_id = $1 ORDER BY created_at"

	return r.list(ctx, query, templateID)
}

// ListForUser returns every ticket the user has been assigned a step on.
func (r *TicketRepository) ListForUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	query := "SELECT " + ticketColumns + ` FROM tickets
		WHERE id IN (SELECT ticket_id FROM ticket_steps WHERE assignee_id = $1)
		ORDER BY created_at`

	return r.list(ctx, query, userID)
}

// ListOpenByTemplates returns unfinished tickets belonging to any of the given templates.
func (r *TicketRepository) ListOpenByTemplates(ctx context.Context, templateIDs []string) ([]*models.Ticket, error) {
	query := "SELECT " + ticketColumns + ` FROM tickets
		WHERE finished = FALSE AND template_id = ANY($1::uuid[])
		ORDER BY created_at`

	return r.list(ctx, query, pq.Array(templateIDs))
}

// Save writes the ticket aggregate, rejecting stale writers. The stored row is
// locked and its updated_at compared with the aggregate's, proving the caller
// acted on the version it loaded.
func (r *TicketRepository) Save(ctx context.Context, ticket *models.Ticket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var storedUpdatedAt time.Time

	err = tx.QueryRowContext(ctx, "SELECT updated_at FROM tickets WHERE id = $1 FOR UPDATE", ticket.ID).
		Scan(&storedUpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return fmt.Errorf("failed to lock ticket %s: %w", ticket.ID, err)
	case !storedUpdatedAt.Equal(ticket.UpdatedAt):
		err = persistence.NewTicketError("Save", ticket.ID, persistence.ErrVersionConflict)

		return err
	}

	// Postgres stores microseconds, keep the in-memory aggregate comparable
	// with what a reload would see.
	now := time.Now().UTC().Truncate(time.Microsecond)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}

	ticket.UpdatedAt = now

	ticketQuery := `
		INSERT INTO tickets (id, template_id, title, created_by, finished, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			finished = EXCLUDED.finished,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, ticketQuery,
		ticket.ID,
		ticket.TemplateID,
		ticket.Title,
		ticket.CreatedBy,
		ticket.Finished,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save ticket: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM ticket_steps WHERE ticket_id = $1", ticket.ID)
	if err != nil {
		return fmt.Errorf("failed to clear ticket steps: %w", err)
	}

	stepQuery := `
		INSERT INTO ticket_steps (id, ticket_id, template_step_id, step_order, assignee_id, finished, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, step := range ticket.Steps {
		var outcomeJSON []byte

		if step.Outcome != nil {
			outcomeJSON, err = json.Marshal(step.Outcome)
			if err != nil {
				return fmt.Errorf("failed to marshal step outcome: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, stepQuery,
			step.ID,
			ticket.ID,
			step.TemplateStepID,
			step.Order,
			step.AssigneeID,
			step.Finished,
			nullableJSON(outcomeJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to save ticket step %s: %w", step.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit ticket: %w", err)
	}

	return nil
}

// ListExpiredFormSteps finds the current step of every open ticket whose
// template form deadline is behind the given time.
func (r *TicketRepository) ListExpiredFormSteps(ctx context.Context, now time.Time) ([]persistence.ExpiredFormStep, error) {
	query := `
		SELECT
			s.ticket_id
		  , s.id
		  , (ts.form->>'expires_at')::timestamptz
		FROM ticket_steps s
		JOIN tickets t ON t.id = s.ticket_id
		JOIN template_steps ts ON ts.id = s.template_step_id
		WHERE t.finished = FALSE
		  AND s.finished = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM ticket_steps prior
			WHERE prior.ticket_id = s.ticket_id
			  AND prior.finished = FALSE
			  AND prior.step_order < s.step_order
		  )
		  AND ts.kind = 'form'
		  AND ts.form->>'expires_at' IS NOT NULL
		  AND (ts.form->>'expires_at')::timestamptz <= $1
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	expired := make([]persistence.ExpiredFormStep, 0)

	for rows.Next() {
		var entry persistence.ExpiredFormStep

		if err := rows.Scan(&entry.TicketID, &entry.StepID, &entry.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan expired step: %w", err)
		}

		expired = append(expired, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired steps: %w", err)
	}

	return expired, nil
}

func (r *TicketRepository) list(ctx context.Context, query string, args ...any) ([]*models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tickets := make([]*models.Ticket, 0)

	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}

		tickets = append(tickets, ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}

	if err := r.loadSteps(ctx, tickets); err != nil {
		return nil, err
	}

	return tickets, nil
}

func (r *TicketRepository) loadSteps(ctx context.Context, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	byID := make(map[string]*models.Ticket, len(tickets))
	ticketIDs := make([]string, 0, len(tickets))

	for _, ticket := range tickets {
		ticket.Steps = make([]*models.TicketStep, 0)
		byID[ticket.ID] = ticket
		ticketIDs = append(ticketIDs, ticket.ID)
	}

	query := `
		SELECT
			id
		  , ticket_id
		  , template_step_id
		  , step_order
		  , assignee_id
		  , finished
		  , outcome
		FROM ticket_steps
		WHERE ticket_id = ANY($1::uuid[])
		ORDER BY ticket_id, step_order
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ticketIDs))
	if err != nil {
		return fmt.Errorf("failed to query ticket steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			step        models.TicketStep
			outcomeJSON []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.TicketID,
			&step.TemplateStepID,
			&step.Order,
			&step.AssigneeID,
			&step.Finished,
			&outcomeJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to scan ticket step: %w", err)
		}

		if len(outcomeJSON) > 0 {
			step.Outcome = &models.StepOutcome{}
			if err := json.Unmarshal(outcomeJSON, step.Outcome); err != nil {
				return fmt.Errorf("failed to unmarshal step outcome: %w", err)
			}
		}

		if ticket, ok := byID[step.TicketID]; ok {
			ticket.Steps = append(ticket.Steps, &step)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating ticket steps: %w", err)
	}

	return nil
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var ticket models.Ticket

	err := row.Scan(
		&ticket.ID,
		&ticket.TemplateID,
		&ticket.Title,
		&ticket.CreatedBy,
		&ticket.Finished,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &ticket, nil
}
