// Package events defines event types and structures for ticket lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topic.
const Topic = "ticketd.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Ticket lifecycle events.
	TicketCreatedEvent   EventType = "ticket.created"
	TicketFinishedEvent  EventType = "ticket.finished"
	TicketRestartedEvent EventType = "ticket.restarted"

	// Step lifecycle events.
	StepCompletedEvent EventType = "ticket.step.completed"
	StepReopenedEvent  EventType = "ticket.step.reopened"
	StepExpiredEvent   EventType = "ticket.step.expired"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TicketID   string         `json:"ticket_id"`
	TemplateID string         `json:"template_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type TicketCreated struct {
	BaseEvent

	Title     string `json:"title"`
	CreatedBy string `json:"created_by"`
	StepCount int    `json:"step_count"`
}

func (t TicketCreated) GetType() EventType {
	return TicketCreatedEvent
}

type TicketFinished struct {
	BaseEvent

	FinishedBy string `json:"finished_by"`
}

func (t TicketFinished) GetType() EventType {
	return TicketFinishedEvent
}

// TicketRestarted signals a rejection sent the ticket back to its first step.
type TicketRestarted struct {
	BaseEvent

	RejectedStepID string `json:"rejected_step_id"`
	RejectedBy     string `json:"rejected_by"`
	Comment        string `json:"comment,omitempty"`
}

func (t TicketRestarted) GetType() EventType {
	return TicketRestartedEvent
}

type StepCompleted struct {
	BaseEvent

	StepID      string `json:"step_id"`
	StepOrder   int    `json:"step_order"`
	CompletedBy string `json:"completed_by"`
	Outcome     string `json:"outcome"`
}

func (s StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

// StepReopened signals a rejection rolled the workflow back to the given step.
type StepReopened struct {
	BaseEvent

	StepID     string `json:"step_id"`
	StepOrder  int    `json:"step_order"`
	ReopenedBy string `json:"reopened_by"`
	Comment    string `json:"comment,omitempty"`
}

func (s StepReopened) GetType() EventType {
	return StepReopenedEvent
}

type StepExpired struct {
	BaseEvent

	StepID    string    `json:"step_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

func (s StepExpired) GetType() EventType {
	return StepExpiredEvent
}

func NewBaseEvent(eventType EventType, ticketID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TicketID:  ticketID,
		Metadata:  make(map[string]any),
	}
}
