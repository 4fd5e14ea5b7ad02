// Package forms interprets form field lists: conditional regions, dynamic
// defaults and answer validation.
package forms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// Interpreter expands a raw field list into the effective form one user sees.
// Conditional markers are evaluated against the user's previous answers and
// removed, dynamic defaults are resolved to concrete values.
type Interpreter struct {
	answers persistence.AnswerLookup
	logger  *slog.Logger
}

func NewInterpreter(answers persistence.AnswerLookup, logger *slog.Logger) *Interpreter {
	return &Interpreter{
		answers: answers,
		logger:  logger.With("module", "forms"),
	}
}

// ExpandFields returns the fields of templateID's form visible to userID, in
// order. Markers are never part of the result. Expanding an already expanded
// list returns it unchanged.
//
// Conditional regions suppress last-match-wins: when an if_equal condition is
// false, every field up to the end_if carrying the same key is dropped,
// including nested markers. An if_equal without a matching end_if suppresses
// to the end of the list.
func (i *Interpreter) ExpandFields(ctx context.Context, templateID, userID string, fields []models.SchemaField) ([]models.SchemaField, error) {
	expanded := make([]models.SchemaField, 0, len(fields))
	suppressing := ""

	for _, field := range fields {
		if suppressing != "" {
			if field.Definition.Kind == models.FieldEndIf && field.Definition.Key == suppressing {
				suppressing = ""
			}

			continue
		}

		switch field.Definition.Kind {
		case models.FieldIfEqual:
			ok, err := i.conditionHolds(ctx, templateID, userID, field.Definition)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate condition %s: %w", field.Definition.Key, err)
			}

			if !ok {
				suppressing = field.Definition.Key
			}
		case models.FieldEndIf:
			// A true condition leaves its closing marker behind, drop it.
		default:
			resolved, err := i.resolveDefault(ctx, templateID, userID, field)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve default for field %s: %w", field.Key, err)
			}

			expanded = append(expanded, resolved)
		}
	}

	return expanded, nil
}

// conditionHolds resolves the source field's latest answer and compares it to
// the expected option. A choice-list answer matches by membership, a scalar by
// equality. No answer means the condition is false.
func (i *Interpreter) conditionHolds(ctx context.Context, templateID, userID string, def models.FieldDefinition) (bool, error) {
	if def.Value == nil {
		return false, nil
	}

	value, err := i.answers.LatestFieldValue(ctx, userID, templateID, nil, def.From)
	if err != nil {
		return false, err
	}

	if value == nil {
		return false, nil
	}

	return value.Contains(*def.Value), nil
}

// resolveDefault replaces a dynamic default with the user's latest answer to
// the source field, falling back to the inline value when they never answered.
// The result always carries a static default, so a second expansion is a no-op.
func (i *Interpreter) resolveDefault(ctx context.Context, templateID, userID string, field models.SchemaField) (models.SchemaField, error) {
	def := field.Definition.Default
	if def == nil || def.Mode != models.DefaultDynamic {
		return field, nil
	}

	sourceTemplate := def.SourceTemplateID
	if sourceTemplate == "" {
		sourceTemplate = templateID
	}

	value, err := i.answers.LatestFieldValue(ctx, userID, sourceTemplate, def.SourceStepID, def.FieldKey)
	if err != nil {
		return field, err
	}

	if value == nil {
		value = def.Value
	}

	definition := field.Definition
	definition.Default = &models.FieldDefault{Mode: models.DefaultStatic, Value: value}
	field.Definition = definition

	return field, nil
}
