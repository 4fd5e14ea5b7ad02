package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/confops/ticketd/pkg/persistence"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	t.Run("wrapped errors keep their sentinel", func(t *testing.T) {
		t.Parallel()

		templateErr := persistence.NewTemplateError("GetByID", "tpl-123", persistence.ErrTemplateNotFound)
		ticketErr := persistence.NewTicketError("GetByID", "ticket-456", persistence.ErrTicketNotFound)
		stepErr := persistence.NewTicketStepError("Process", "ticket-456", "step-789", persistence.ErrStepNotFound)

		assert.True(t, persistence.IsTemplateNotFound(templateErr))
		assert.True(t, persistence.IsTicketNotFound(ticketErr))
		assert.True(t, persistence.IsStepNotFound(stepErr))

		assert.True(t, errors.Is(templateErr, persistence.ErrTemplateNotFound))
		assert.True(t, errors.Is(ticketErr, persistence.ErrTicketNotFound))
		assert.True(t, errors.Is(stepErr, persistence.ErrStepNotFound))
	})

	t.Run("helpers reject unrelated errors", func(t *testing.T) {
		t.Parallel()

		assert.False(t, persistence.IsTemplateNotFound(errors.New("boom")))
		assert.False(t, persistence.IsTicketNotFound(nil))
		assert.False(t, persistence.IsVersionConflict(persistence.ErrTicketNotFound))
	})

	t.Run("helpers see through extra wrapping", func(t *testing.T) {
		t.Parallel()

		inner := persistence.NewTicketError("Save", "ticket-1", persistence.ErrVersionConflict)
		outer := fmt.Errorf("failed to save ticket: %w", inner)

		assert.True(t, persistence.IsVersionConflict(outer))
	})

	t.Run("error messages carry their identifiers", func(t *testing.T) {
		t.Parallel()

		templateErr := persistence.NewTemplateError("GetByID", "tpl-123", persistence.ErrTemplateNotFound)
		assert.Contains(t, templateErr.Error(), "tpl-123")

		stepErr := persistence.NewTicketStepError("Process", "ticket-456", "step-789", persistence.ErrStepNotFound)
		assert.Contains(t, stepErr.Error(), "ticket-456")
		assert.Contains(t, stepErr.Error(), "step-789")
	})
}
