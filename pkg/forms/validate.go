package forms

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// Validation messages, keyed into FieldErrors per field.
const (
	msgRequired       = "is required"
	msgTooLong        = "is too long"
	msgTooManyLines   = "has too many lines"
	msgInvalidChoice  = "is not a valid choice"
	msgTooManyChoices = "has too many choices"
	msgNotUploadFile  = "is not an uploaded file"
	msgNotUploadImage = "is not an uploaded image"
	msgUnknownValue   = "has an unknown value"
	msgUnknownField   = "is not a field of this form"
)

// FieldErrors collects validation failures per field key. Validation runs over
// the whole submission before reporting, so one response lists every problem.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+e[key])
	}

	return "invalid submission: " + strings.Join(parts, "; ")
}

// Validator checks a submitted answer against the effective fields of a form.
type Validator struct {
	uploads persistence.UploadRepository
}

func NewValidator(uploads persistence.UploadRepository) *Validator {
	return &Validator{uploads: uploads}
}

// Validate normalizes the submission against the expanded field list. Fields
// must already be expanded, markers are rejected outright. The returned map
// holds only answered editable fields; null values are dropped. On any field
// failure the error is a FieldErrors covering all of them.
func (v *Validator) Validate(ctx context.Context, userID string, fields []models.SchemaField, values map[string]models.FieldValue) (map[string]models.FieldValue, error) {
	normalized := make(map[string]models.FieldValue, len(values))
	failures := make(FieldErrors)
	known := make(map[string]bool, len(fields))

	for _, field := range fields {
		if field.Definition.IsMarker() {
			return nil, fmt.Errorf("field list contains marker %s, expand before validating", field.Definition.Key)
		}

		known[field.Key] = true

		value, answered := values[field.Key]
		// An empty selection counts as no answer.
		if !answered || value.IsNull() || (value.Kind == models.ValueChoices && len(value.Choices) == 0) {
			if field.Required && field.Editable {
				failures[field.Key] = msgRequired
			}

			continue
		}

		if !field.Editable {
			// Read-only fields keep whatever the schema shows, submitted
			// values for them are dropped.
			continue
		}

		result, msg := v.checkField(ctx, userID, field, value)
		if msg != "" {
			failures[field.Key] = msg

			continue
		}

		normalized[field.Key] = result
	}

	for key := range values {
		if !known[key] {
			failures[key] = msgUnknownField
		}
	}

	if len(failures) > 0 {
		return nil, failures
	}

	return normalized, nil
}

func (v *Validator) checkField(ctx context.Context, userID string, field models.SchemaField, value models.FieldValue) (models.FieldValue, string) {
	def := field.Definition

	switch def.Kind {
	case models.FieldSingleLineText:
		return checkText(value, def.MaxChars, 1)
	case models.FieldMultiLineText:
		return checkText(value, def.MaxChars, def.MaxLines)
	case models.FieldSingleChoice:
		return checkSingleChoice(def, value)
	case models.FieldMultipleChoice:
		return checkMultipleChoice(def, value)
	case models.FieldBool:
		if value.Kind != models.ValueBool {
			return value, msgUnknownValue
		}

		return value, ""
	case models.FieldFile:
		return v.checkUpload(ctx, userID, def, value, msgNotUploadFile)
	case models.FieldImage:
		return v.checkUpload(ctx, userID, def, value, msgNotUploadImage)
	case models.FieldIfEqual, models.FieldEndIf:
		return value, msgUnknownValue
	}

	return value, msgUnknownValue
}

func checkText(value models.FieldValue, maxChars, maxLines int) (models.FieldValue, string) {
	if value.Kind != models.ValueText {
		return value, msgUnknownValue
	}

	text := strings.TrimSpace(value.Text)

	if maxChars > 0 && len([]rune(text)) > maxChars {
		return value, msgTooLong
	}

	if maxLines > 0 && strings.Count(text, "\n")+1 > maxLines {
		return value, msgTooManyLines
	}

	return models.NewTextValue(text), ""
}

func checkSingleChoice(def models.FieldDefinition, value models.FieldValue) (models.FieldValue, string) {
	var option models.OptionValue

	switch value.Kind {
	case models.ValueInteger:
		option = models.IntegerOption(value.Int)
	case models.ValueText:
		option = models.TextOption(value.Text)
	default:
		return value, msgInvalidChoice
	}

	if !def.HasOption(option) {
		return value, msgInvalidChoice
	}

	return value, ""
}

func checkMultipleChoice(def models.FieldDefinition, value models.FieldValue) (models.FieldValue, string) {
	if value.Kind != models.ValueChoices {
		return value, msgInvalidChoice
	}

	if def.MaxOptions > 0 && len(value.Choices) > def.MaxOptions {
		return value, msgTooManyChoices
	}

	seen := make(map[string]bool, len(value.Choices))

	for _, choice := range value.Choices {
		if !def.HasOption(choice) {
			return value, msgInvalidChoice
		}

		key := string(choice.Kind) + ":" + choice.String()
		if seen[key] {
			return value, msgInvalidChoice
		}

		seen[key] = true
	}

	return value, ""
}

// checkUpload resolves the submitted upload reference. Clients may append a
// display extension to the ID, anything after the first dot is ignored. The
// upload must exist, belong to the submitting user, and satisfy the field's
// mime allowlist. The normalized value is the bare upload ID.
func (v *Validator) checkUpload(ctx context.Context, userID string, def models.FieldDefinition, value models.FieldValue, msg string) (models.FieldValue, string) {
	if value.Kind != models.ValueText {
		return value, msg
	}

	id, _, _ := strings.Cut(value.Text, ".")

	upload, err := v.uploads.GetByID(ctx, id)
	if err != nil {
		return value, msg
	}

	if upload.OwnerID != userID {
		return value, msg
	}

	if len(def.Mimes) > 0 && !mimeAllowed(def.Mimes, upload.Mime) {
		return value, msg
	}

	return models.NewTextValue(upload.ID), ""
}

func mimeAllowed(allowed []string, mime string) bool {
	for _, candidate := range allowed {
		if candidate == mime {
			return true
		}
	}

	return false
}
