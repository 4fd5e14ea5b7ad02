// Package audit consumes ticket lifecycle events and writes a structured
// audit trail of them.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/confops/ticketd/pkg/eventbus"
	"github.com/confops/ticketd/pkg/events"
	"github.com/confops/ticketd/pkg/otelhelper"
)

var auditedEvents = []events.EventType{
	events.TicketCreatedEvent,
	events.TicketFinishedEvent,
	events.TicketRestartedEvent,
	events.StepCompletedEvent,
	events.StepReopenedEvent,
	events.StepExpiredEvent,
}

type Auditor struct {
	bus    eventbus.EventBus
	tracer trace.Tracer
	logger *slog.Logger
}

func NewAuditor(bus eventbus.EventBus, tracer trace.Tracer, logger *slog.Logger) *Auditor {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("audit")
	}

	return &Auditor{
		bus:    bus,
		tracer: tracer,
		logger: logger.With("module", "audit"),
	}
}

// Start registers handlers for every lifecycle event type and begins
// consuming. It returns once the subscription is established.
func (a *Auditor) Start(ctx context.Context) error {
	for _, eventType := range auditedEvents {
		if err := a.bus.Handle(eventType, a.record); err != nil {
			return fmt.Errorf("failed to register audit handler for %s: %w", eventType, err)
		}
	}

	return a.bus.Subscribe(ctx)
}

func (a *Auditor) record(ctx context.Context, event any) error {
	switch e := event.(type) {
	case *events.TicketCreated:
		a.log(ctx, e.BaseEvent,
			attribute.String(otelhelper.UserIDKey, e.CreatedBy),
			attribute.String("ticket.title", e.Title))
	case *events.TicketFinished:
		a.log(ctx, e.BaseEvent,
			attribute.String(otelhelper.UserIDKey, e.FinishedBy))
	case *events.TicketRestarted:
		a.log(ctx, e.BaseEvent,
			attribute.String(otelhelper.UserIDKey, e.RejectedBy),
			attribute.String(otelhelper.StepIDKey, e.RejectedStepID))
	case *events.StepCompleted:
		a.log(ctx, e.BaseEvent,
			attribute.String(otelhelper.UserIDKey, e.CompletedBy),
			attribute.String(otelhelper.StepIDKey, e.StepID))
	case *events.StepReopened:
		a.log(ctx, e.BaseEvent,
			attribute.String(otelhelper.UserIDKey, e.ReopenedBy),
			attribute.String(otelhelper.StepIDKey, e.StepID))
	case *events.StepExpired:
		a.log(ctx, e.BaseEvent,
			attribute.String(otelhelper.StepIDKey, e.StepID))
	default:
		err := fmt.Errorf("unexpected event payload %T", event)

		_, span := otelhelper.StartSpan(ctx, a.tracer, "audit.record")
		defer span.End()

		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

func (a *Auditor) log(ctx context.Context, base events.BaseEvent, attrs ...attribute.KeyValue) {
	attrs = append(attrs,
		attribute.String(otelhelper.EventIDKey, base.ID),
		attribute.String(otelhelper.EventTypeKey, string(base.Type)),
		attribute.String(otelhelper.TicketIDKey, base.TicketID),
	)

	spanCtx, span := otelhelper.StartSpan(ctx, a.tracer, "audit.record "+string(base.Type), attrs...)
	defer span.End()

	a.logger.InfoContext(spanCtx, "ticket lifecycle event",
		"event_id", base.ID,
		"event_type", base.Type,
		"ticket_id", base.TicketID,
		"template_id", base.TemplateID,
		"timestamp", base.Timestamp,
	)
}
