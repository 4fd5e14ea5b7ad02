package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/confops/ticketd/pkg/eventbus"
	"github.com/confops/ticketd/pkg/events"
	"github.com/confops/ticketd/pkg/forms"
	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/targets"
	"github.com/google/uuid"
)

// ErrTicketNotFound is returned when a ticket is not found.
var ErrTicketNotFound = persistence.ErrTicketNotFound

// Engine drives tickets through their workflow: creation, form submission,
// review verdicts and the rollbacks they trigger.
type Engine struct {
	persistence persistence.Persistence
	resolver    *targets.Resolver
	interpreter *forms.Interpreter
	validator   *forms.Validator
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewEngine(
	p persistence.Persistence,
	resolver *targets.Resolver,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: p,
		resolver:    resolver,
		interpreter: forms.NewInterpreter(p.Answers(), logger),
		validator:   forms.NewValidator(p.Uploads()),
		publisher:   publisher,
		logger:      logger.With("module", "engine"),
	}
}

// CreateTicketRequest carries everything needed to instantiate a template.
// Assignees maps template step IDs to user IDs for steps whose operator leaves
// assignment open.
type CreateTicketRequest struct {
	TemplateID string
	Title      string
	CreatedBy  string
	Assignees  map[string]string
}

// CreateTicket snapshots the template's steps into a new ticket. Every step
// gets a runtime instance up front, so progress is a matter of flipping
// finished flags in order.
func (e *Engine) CreateTicket(ctx context.Context, req CreateTicketRequest) (*models.Ticket, error) {
	if req.Title == "" {
		return nil, ErrTicketTitle
	}

	template, err := e.persistence.Templates().GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	ticketID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ticket ID: %w", err)
	}

	ticket := &models.Ticket{
		ID:         ticketID.String(),
		TemplateID: template.ID,
		Title:      req.Title,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  time.Now().UTC(),
		Steps:      make([]*models.TicketStep, 0, len(template.Steps)),
	}

	for _, templateStep := range template.Steps {
		stepID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate step ID: %w", err)
		}

		step := &models.TicketStep{
			ID:             stepID.String(),
			TicketID:       ticket.ID,
			TemplateStepID: templateStep.ID,
			Order:          templateStep.Order,
		}

		assignee, err := e.initialAssignee(ctx, templateStep, req)
		if err != nil {
			return nil, err
		}

		step.AssigneeID = assignee

		ticket.Steps = append(ticket.Steps, step)
	}

	if err := e.persistence.Tickets().Save(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to save ticket: %w", err)
	}

	e.publish(ctx, ticket.ID, events.TicketCreated{
		BaseEvent: e.baseEvent(events.TicketCreatedEvent, ticket),
		Title:     ticket.Title,
		CreatedBy: ticket.CreatedBy,
		StepCount: len(ticket.Steps),
	})

	return ticket, nil
}

// initialAssignee picks the step's assignee at creation time. An explicit
// assignee must be permitted by the step operator. A user operator fixes the
// assignee directly. The creator picks up the first open-operator step, label
// steps stay unassigned until an eligible member acts.
func (e *Engine) initialAssignee(ctx context.Context, templateStep *models.TemplateStep, req CreateTicketRequest) (*string, error) {
	if explicit, ok := req.Assignees[templateStep.ID]; ok {
		if templateStep.Operator.Kind != models.TargetNone {
			allowed, err := e.resolver.Allows(ctx, templateStep.Operator, explicit)
			if err != nil {
				return nil, fmt.Errorf("failed to check operator for step %s: %w", templateStep.ID, err)
			}

			if !allowed {
				return nil, ErrNotEligible
			}
		}

		return &explicit, nil
	}

	switch templateStep.Operator.Kind {
	case models.TargetUser:
		if templateStep.Operator.UserID != nil {
			userID := *templateStep.Operator.UserID

			return &userID, nil
		}
	case models.TargetNone:
		if templateStep.Order == 1 {
			creator := req.CreatedBy

			return &creator, nil
		}
	case models.TargetLabel:
	}

	return nil, nil
}

// StepState pairs a template step with its runtime instance. Step is nil when
// the ticket predates a step added to the template later.
type StepState struct {
	TemplateStep *models.TemplateStep `json:"template_step"`
	Step         *models.TicketStep   `json:"step"`
}

// TicketDetail is the full view of one ticket: the template, every step state
// in order, and the current form expanded for the viewing user.
type TicketDetail struct {
	Ticket        *models.Ticket       `json:"ticket"`
	Template      *models.Template     `json:"template"`
	Steps         []StepState          `json:"steps"`
	Status        models.TicketStatus  `json:"status"`
	CurrentFields []models.SchemaField `json:"current_fields,omitempty"`
}

// FetchTicket loads a ticket with its template. Template steps missing a
// runtime instance are right-padded with nil so the caller always sees the
// template's full shape. When the current step is a form the viewing user may
// act on, its fields come back expanded.
func (e *Engine) FetchTicket(ctx context.Context, ticketID, userID string) (*TicketDetail, error) {
	ticket, err := e.persistence.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	template, err := e.persistence.Templates().GetByID(ctx, ticket.TemplateID)
	if err != nil {
		return nil, err
	}

	detail := &TicketDetail{
		Ticket:   ticket,
		Template: template,
		Steps:    make([]StepState, 0, len(template.Steps)),
		Status:   e.statusFor(ctx, template, ticket, userID),
	}

	for _, templateStep := range template.Steps {
		detail.Steps = append(detail.Steps, StepState{
			TemplateStep: templateStep,
			Step:         ticket.StepByTemplateStepID(templateStep.ID),
		})
	}

	current := ticket.CurrentStep()
	if current == nil {
		return detail, nil
	}

	templateStep := template.StepByID(current.TemplateStepID)
	if templateStep == nil || templateStep.Kind != models.StepForm {
		return detail, nil
	}

	if ok, err := e.mayAct(ctx, templateStep, current, userID); err != nil || !ok {
		return detail, err
	}

	fields, err := e.interpreter.ExpandFields(ctx, template.ID, userID, templateStep.Form.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to expand current form: %w", err)
	}

	detail.CurrentFields = fields

	return detail, nil
}

// TicketSummary is one row of a user's ticket list.
type TicketSummary struct {
	Ticket *models.Ticket      `json:"ticket"`
	Status models.TicketStatus `json:"status"`
}

// ListTickets returns the tickets visible to a user within a project: every
// ticket they hold a step on, plus open tickets whose current step their
// operator membership lets them claim. Rows waiting on the user sort first,
// then by creation time.
func (e *Engine) ListTickets(ctx context.Context, projectID, userID string) ([]TicketSummary, error) {
	byID := make(map[string]*models.Ticket)

	participating, err := e.persistence.Tickets().ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	for _, ticket := range participating {
		byID[ticket.ID] = ticket
	}

	templates, err := e.persistence.Templates().List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templateByID := make(map[string]*models.Template, len(templates))
	eligibleTemplates := make([]string, 0)

	for _, template := range templates {
		templateByID[template.ID] = template

		eligible, err := e.operatorOfAny(ctx, template, userID)
		if err != nil {
			return nil, err
		}

		if eligible {
			eligibleTemplates = append(eligibleTemplates, template.ID)
		}
	}

	if len(eligibleTemplates) > 0 {
		open, err := e.persistence.Tickets().ListOpenByTemplates(ctx, eligibleTemplates)
		if err != nil {
			return nil, fmt.Errorf("failed to list open tickets: %w", err)
		}

		for _, ticket := range open {
			if _, seen := byID[ticket.ID]; seen {
				continue
			}

			pending, err := e.pendingFor(ctx, templateByID[ticket.TemplateID], ticket, userID)
			if err != nil {
				return nil, err
			}

			if pending {
				byID[ticket.ID] = ticket
			}
		}
	}

	summaries := make([]TicketSummary, 0, len(byID))

	for _, ticket := range byID {
		template := templateByID[ticket.TemplateID]
		if template == nil {
			template, err = e.persistence.Templates().GetByID(ctx, ticket.TemplateID)
			if err != nil {
				return nil, err
			}
		}

		summaries = append(summaries, TicketSummary{
			Ticket: ticket,
			Status: e.statusFor(ctx, template, ticket, userID),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		ri, rj := models.StatusRank(summaries[i].Status), models.StatusRank(summaries[j].Status)
		if ri != rj {
			return ri < rj
		}

		return summaries[i].Ticket.CreatedAt.Before(summaries[j].Ticket.CreatedAt)
	})

	return summaries, nil
}

// SubmitFormRequest is one user's answer to the current form step.
type SubmitFormRequest struct {
	TicketID string
	StepID   string
	UserID   string
	Values   map[string]models.FieldValue
}

// SubmitForm validates the answer against the expanded form and completes the
// step. The submitting user claims the step if it was unassigned.
func (e *Engine) SubmitForm(ctx context.Context, req SubmitFormRequest) (*models.Ticket, error) {
	ticket, template, current, templateStep, err := e.loadCurrent(ctx, req.TicketID, req.StepID)
	if err != nil {
		return nil, err
	}

	if templateStep.Kind != models.StepForm {
		return nil, &StepError{Op: "SubmitForm", TicketID: ticket.ID, StepID: current.ID, Err: ErrWrongOperation}
	}

	if templateStep.Form.Expired(time.Now().UTC()) {
		return nil, &StepError{Op: "SubmitForm", TicketID: ticket.ID, StepID: current.ID, Err: ErrFormExpired}
	}

	if err := e.authorize(ctx, templateStep, current, req.UserID); err != nil {
		return nil, &StepError{Op: "SubmitForm", TicketID: ticket.ID, StepID: current.ID, Err: err}
	}

	fields, err := e.interpreter.ExpandFields(ctx, template.ID, req.UserID, templateStep.Form.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to expand form: %w", err)
	}

	answer, err := e.validator.Validate(ctx, req.UserID, fields, req.Values)
	if err != nil {
		return nil, err
	}

	current.AssigneeID = &req.UserID
	current.Finished = true
	current.Outcome = &models.StepOutcome{
		Type:   models.OutcomeFormAnswer,
		Answer: answer,
	}

	if ticket.CurrentStep() == nil {
		ticket.Finished = true
	}

	if err := e.persistence.Tickets().Save(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to save ticket: %w", err)
	}

	e.publish(ctx, ticket.ID, events.StepCompleted{
		BaseEvent:   e.baseEvent(events.StepCompletedEvent, ticket),
		StepID:      current.ID,
		StepOrder:   current.Order,
		CompletedBy: req.UserID,
		Outcome:     string(models.OutcomeFormAnswer),
	})

	if ticket.Finished {
		e.publish(ctx, ticket.ID, events.TicketFinished{
			BaseEvent:  e.baseEvent(events.TicketFinishedEvent, ticket),
			FinishedBy: req.UserID,
		})
	}

	return ticket, nil
}

// SubmitReviewRequest is one reviewer's verdict on the current review step.
type SubmitReviewRequest struct {
	TicketID string
	StepID   string
	UserID   string
	Approved bool
	Comment  string
}

// SubmitReview records a verdict. Approval completes the step. Rejection rolls
// back: to the first step when the review is configured to restart, otherwise
// to the step right before the review. The rejecting review itself stays open
// so the corrected work comes back to it.
func (e *Engine) SubmitReview(ctx context.Context, req SubmitReviewRequest) (*models.Ticket, error) {
	ticket, _, current, templateStep, err := e.loadCurrent(ctx, req.TicketID, req.StepID)
	if err != nil {
		return nil, err
	}

	if templateStep.Kind != models.StepReview {
		return nil, &StepError{Op: "SubmitReview", TicketID: ticket.ID, StepID: current.ID, Err: ErrWrongOperation}
	}

	if err := e.authorize(ctx, templateStep, current, req.UserID); err != nil {
		return nil, &StepError{Op: "SubmitReview", TicketID: ticket.ID, StepID: current.ID, Err: err}
	}

	current.AssigneeID = &req.UserID
	current.Outcome = &models.StepOutcome{
		Type:     models.OutcomeReview,
		Approved: req.Approved,
		Comment:  req.Comment,
	}

	var reopened *models.TicketStep

	switch {
	case req.Approved:
		current.Finished = true
		if ticket.CurrentStep() == nil {
			ticket.Finished = true
		}
	case templateStep.Review.RestartOnReject:
		for _, step := range ticket.Steps {
			step.Finished = false
		}
	default:
		reopened = ticket.PreviousStep(current)
		if reopened != nil {
			reopened.Finished = false
		}
	}

	if err := e.persistence.Tickets().Save(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to save ticket: %w", err)
	}

	e.publishReviewEvents(ctx, ticket, current, reopened, templateStep.Review.RestartOnReject, req)

	return ticket, nil
}

func (e *Engine) publishReviewEvents(ctx context.Context, ticket *models.Ticket, current, reopened *models.TicketStep, restarted bool, req SubmitReviewRequest) {
	if req.Approved {
		e.publish(ctx, ticket.ID, events.StepCompleted{
			BaseEvent:   e.baseEvent(events.StepCompletedEvent, ticket),
			StepID:      current.ID,
			StepOrder:   current.Order,
			CompletedBy: req.UserID,
			Outcome:     string(models.OutcomeReview),
		})

		if ticket.Finished {
			e.publish(ctx, ticket.ID, events.TicketFinished{
				BaseEvent:  e.baseEvent(events.TicketFinishedEvent, ticket),
				FinishedBy: req.UserID,
			})
		}

		return
	}

	if restarted {
		e.publish(ctx, ticket.ID, events.TicketRestarted{
			BaseEvent:      e.baseEvent(events.TicketRestartedEvent, ticket),
			RejectedStepID: current.ID,
			RejectedBy:     req.UserID,
			Comment:        req.Comment,
		})

		return
	}

	// A rollback reject on the first step resets nothing.
	if reopened == nil {
		return
	}

	e.publish(ctx, ticket.ID, events.StepReopened{
		BaseEvent:  e.baseEvent(events.StepReopenedEvent, ticket),
		StepID:     reopened.ID,
		StepOrder:  reopened.Order,
		ReopenedBy: req.UserID,
		Comment:    req.Comment,
	})
}

// loadCurrent loads the ticket, its template, and the current step, verifying
// the caller is acting on the step the workflow is actually at.
func (e *Engine) loadCurrent(ctx context.Context, ticketID, stepID string) (*models.Ticket, *models.Template, *models.TicketStep, *models.TemplateStep, error) {
	ticket, err := e.persistence.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if ticket.Finished {
		return nil, nil, nil, nil, &StepError{Op: "Process", TicketID: ticket.ID, StepID: stepID, Err: ErrTicketFinished}
	}

	current := ticket.CurrentStep()
	if current == nil {
		return nil, nil, nil, nil, &StepError{Op: "Process", TicketID: ticket.ID, StepID: stepID, Err: ErrTicketFinished}
	}

	if stepID != "" && stepID != current.ID {
		return nil, nil, nil, nil, &StepError{Op: "Process", TicketID: ticket.ID, StepID: stepID, Err: ErrStepNotCurrent}
	}

	template, err := e.persistence.Templates().GetByID(ctx, ticket.TemplateID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	templateStep := template.StepByID(current.TemplateStepID)
	if templateStep == nil {
		return nil, nil, nil, nil, persistence.NewTicketStepError("Process", ticket.ID, current.ID, persistence.ErrStepNotFound)
	}

	return ticket, template, current, templateStep, nil
}

// authorize applies the two-level access check: an assigned step only accepts
// its assignee, an unassigned one accepts any user the operator designates.
func (e *Engine) authorize(ctx context.Context, templateStep *models.TemplateStep, step *models.TicketStep, userID string) error {
	if step.AssigneeID != nil {
		if *step.AssigneeID != userID {
			return ErrNotAssigned
		}

		return nil
	}

	allowed, err := e.resolver.Allows(ctx, templateStep.Operator, userID)
	if err != nil {
		return fmt.Errorf("failed to check operator: %w", err)
	}

	if !allowed {
		return ErrNotEligible
	}

	return nil
}

// mayAct is authorize without the error on refusal, for read paths.
func (e *Engine) mayAct(ctx context.Context, templateStep *models.TemplateStep, step *models.TicketStep, userID string) (bool, error) {
	err := e.authorize(ctx, templateStep, step, userID)
	if err != nil {
		if IsForbiddenError(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// statusFor derives the per-user ticket status, counting operator eligibility
// on an unassigned current step as pending work.
func (e *Engine) statusFor(ctx context.Context, template *models.Template, ticket *models.Ticket, userID string) models.TicketStatus {
	status := ticket.StatusFor(userID)
	if status != models.TicketInProgress {
		return status
	}

	pending, err := e.pendingFor(ctx, template, ticket, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to derive ticket status", "ticket_id", ticket.ID, "error", err)

		return status
	}

	if pending {
		return models.TicketPending
	}

	return status
}

// pendingFor reports whether the ticket's current step is unassigned work the
// user could claim.
func (e *Engine) pendingFor(ctx context.Context, template *models.Template, ticket *models.Ticket, userID string) (bool, error) {
	current := ticket.CurrentStep()
	if current == nil || current.AssigneeID != nil {
		return false, nil
	}

	templateStep := template.StepByID(current.TemplateStepID)
	if templateStep == nil {
		return false, nil
	}

	return e.resolver.Allows(ctx, templateStep.Operator, userID)
}

// operatorOfAny reports whether the user is designated by any step operator of
// the template.
func (e *Engine) operatorOfAny(ctx context.Context, template *models.Template, userID string) (bool, error) {
	for _, step := range template.Steps {
		allowed, err := e.resolver.Allows(ctx, step.Operator, userID)
		if err != nil {
			return false, err
		}

		if allowed {
			return true, nil
		}
	}

	return false, nil
}

func (e *Engine) baseEvent(eventType events.EventType, ticket *models.Ticket) events.BaseEvent {
	base := events.NewBaseEvent(eventType, ticket.ID)
	base.TemplateID = ticket.TemplateID

	return base
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
