package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confops/ticketd/pkg/eventbus"
	"github.com/confops/ticketd/pkg/events"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const defaultSweepSchedule = "@every 1m"

// ExpirySweeper periodically scans for open form steps whose deadline has
// passed and announces them on the event bus. Each step is announced once per
// process lifetime; the submission path enforces the deadline regardless, the
// events only drive notifications.
type ExpirySweeper struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	schedule    string
	cron        *cron.Cron
	announced   map[string]bool
	logger      *slog.Logger
}

func NewExpirySweeper(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		persistence: p,
		publisher:   publisher,
		schedule:    defaultSweepSchedule,
		announced:   make(map[string]bool),
		logger:      logger.With("module", "sweeper"),
	}
}

// WithSchedule overrides the sweep cron expression.
func (s *ExpirySweeper) WithSchedule(schedule string) *ExpirySweeper {
	s.schedule = schedule

	return s
}

// Start schedules the sweep and returns immediately.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "expiry sweeper started", "schedule", s.schedule)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *ExpirySweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one scan. Exported so the API can trigger it on demand.
func (s *ExpirySweeper) Sweep(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := s.persistence.Expiry().ListExpiredFormSteps(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired steps: %w", err)
	}

	for _, entry := range expired {
		if s.announced[entry.StepID] {
			continue
		}

		event := events.StepExpired{
			BaseEvent: events.NewBaseEvent(events.StepExpiredEvent, entry.TicketID),
			StepID:    entry.StepID,
			ExpiredAt: entry.ExpiresAt,
		}

		if err := s.publisher.Publish(ctx, entry.TicketID, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish expiry event", "step_id", entry.StepID, "error", err)

			continue
		}

		s.announced[entry.StepID] = true
	}

	return nil
}
