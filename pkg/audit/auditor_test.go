package audit_test

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/require"

	"github.com/confops/ticketd/pkg/audit"
	"github.com/confops/ticketd/pkg/channels/gochannel"
	"github.com/confops/ticketd/pkg/eventbus"
	"github.com/confops/ticketd/pkg/events"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestAuditor_RecordsLifecycleEvents(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	out := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(out, nil))

	auditor := audit.NewAuditor(bus, nil, logger)
	require.NoError(t, auditor.Start(t.Context()))

	created := events.TicketCreated{
		BaseEvent: events.NewBaseEvent(events.TicketCreatedEvent, "ticket-1"),
		Title:     "Jane Doe",
		CreatedBy: "alice",
	}
	require.NoError(t, bus.Publish(t.Context(), "ticket-1", created))

	expired := events.StepExpired{
		BaseEvent: events.NewBaseEvent(events.StepExpiredEvent, "ticket-2"),
		StepID:    "step-9",
		ExpiredAt: time.Now().UTC(),
	}
	require.NoError(t, bus.Publish(t.Context(), "ticket-2", expired))

	require.Eventually(t, func() bool {
		logged := out.String()

		return strings.Contains(logged, string(events.TicketCreatedEvent)) &&
			strings.Contains(logged, string(events.StepExpiredEvent))
	}, 2*time.Second, 10*time.Millisecond)

	logged := out.String()
	require.Contains(t, logged, "ticket-1")
	require.Contains(t, logged, "ticket-2")
}
