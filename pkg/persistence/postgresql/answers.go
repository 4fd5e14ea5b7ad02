package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/confops/ticketd/pkg/models"
)

// answerLookup resolves the newest answer a user gave to a field with one
// query over the outcome documents.
type answerLookup struct {
	db *sql.DB
}

func (al *answerLookup) LatestFieldValue(ctx context.Context, userID, templateID string, templateStepID *string, fieldKey string) (*models.FieldValue, error) {
	query := `
		SELECT s.outcome->'answer'->$4
		FROM ticket_steps s
		JOIN tickets t ON t.id = s.ticket_id
		WHERE t.template_id = $2
		  AND s.assignee_id = $1
		  AND s.outcome->>'type' = 'form_answer'
		  AND s.outcome->'answer' ? $4
		  AND ($3::uuid IS NULL OR s.template_step_id = $3::uuid)
		ORDER BY t.updated_at DESC, s.step_order DESC
		LIMIT 1
	`

	var raw []byte

	err := al.db.QueryRowContext(ctx, query, userID, templateID, templateStepID, fieldKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query latest answer: %w", err)
	}

	var value models.FieldValue

	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answer value: %w", err)
	}

	return &value, nil
}
