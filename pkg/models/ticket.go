package models

import "time"

// TicketStatus is the state of a ticket as seen by one user.
type TicketStatus string

const (
	// TicketPending means the ticket is waiting on the viewing user.
	TicketPending TicketStatus = "pending"
	// TicketInProgress means the ticket is open but waiting on someone else.
	TicketInProgress TicketStatus = "in_progress"
	TicketFinished   TicketStatus = "finished"
)

// OutcomeType tags the payload stored when a step completes.
type OutcomeType string

const (
	OutcomeFormAnswer OutcomeType = "form_answer"
	OutcomeReview     OutcomeType = "review"
)

// StepOutcome records what happened when a step was acted on. Form steps store
// the normalized answer, review steps the verdict and comment.
type StepOutcome struct {
	Type     OutcomeType           `json:"type"`
	Answer   map[string]FieldValue `json:"answer,omitempty"`
	Approved bool                  `json:"approved,omitempty"`
	Comment  string                `json:"comment,omitempty"`
}

// TicketStep is the runtime instance of one template step. Order is a snapshot
// taken at ticket creation so later template edits cannot reorder live tickets.
type TicketStep struct {
	ID             string       `json:"id"`
	TicketID       string       `json:"ticket_id"`
	TemplateStepID string       `json:"template_step_id"`
	Order          int          `json:"order"`
	AssigneeID     *string      `json:"assignee_id,omitempty"`
	Finished       bool         `json:"finished"`
	Outcome        *StepOutcome `json:"outcome,omitempty"`
}

// AssignedTo reports whether the step is held by the given user.
func (s *TicketStep) AssignedTo(userID string) bool {
	return s.AssigneeID != nil && *s.AssigneeID == userID
}

// Ticket is one live run of a workflow template.
type Ticket struct {
	ID         string        `json:"id"`
	TemplateID string        `json:"template_id"`
	Title      string        `json:"title"`
	CreatedBy  string        `json:"created_by"`
	Finished   bool          `json:"finished"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Steps      []*TicketStep `json:"steps"`
}

// CurrentStep returns the unfinished step with the lowest order, or nil when
// every step is done.
func (t *Ticket) CurrentStep() *TicketStep {
	var current *TicketStep

	for _, step := range t.Steps {
		if step.Finished {
			continue
		}

		if current == nil || step.Order < current.Order {
			current = step
		}
	}

	return current
}

// PreviousStep returns the step ordered immediately before the given one, or nil.
func (t *Ticket) PreviousStep(of *TicketStep) *TicketStep {
	var previous *TicketStep

	for _, step := range t.Steps {
		if step.Order >= of.Order {
			continue
		}

		if previous == nil || step.Order > previous.Order {
			previous = step
		}
	}

	return previous
}

// LatestStep returns the step with the highest order, or nil for an empty ticket.
func (t *Ticket) LatestStep() *TicketStep {
	var latest *TicketStep

	for _, step := range t.Steps {
		if latest == nil || step.Order > latest.Order {
			latest = step
		}
	}

	return latest
}

// StepByID returns the step with the given ID, or nil.
func (t *Ticket) StepByID(id string) *TicketStep {
	for _, step := range t.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// StepByTemplateStepID returns the runtime step instantiated from the given
// template step, or nil.
func (t *Ticket) StepByTemplateStepID(templateStepID string) *TicketStep {
	for _, step := range t.Steps {
		if step.TemplateStepID == templateStepID {
			return step
		}
	}

	return nil
}

// Participant reports whether the user has been assigned any step of the ticket.
func (t *Ticket) Participant(userID string) bool {
	for _, step := range t.Steps {
		if step.AssignedTo(userID) {
			return true
		}
	}

	return false
}

// StatusFor derives the per-user status from the assignee of the current step.
// Eligibility through label operators is resolved by the engine on top of this.
func (t *Ticket) StatusFor(userID string) TicketStatus {
	if t.Finished {
		return TicketFinished
	}

	current := t.CurrentStep()
	if current == nil {
		return TicketFinished
	}

	if current.AssignedTo(userID) {
		return TicketPending
	}

	return TicketInProgress
}

// StatusRank orders statuses for ticket listings: work waiting on the user
// sorts first, finished tickets last.
func StatusRank(status TicketStatus) int {
	switch status {
	case TicketPending:
		return 0
	case TicketInProgress:
		return 1
	case TicketFinished:
		return 2
	}

	return 3
}
