package forms_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/confops/ticketd/pkg/forms"
	"github.com/confops/ticketd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnswers struct {
	values map[string]models.FieldValue
}

func (f *fakeAnswers) LatestFieldValue(_ context.Context, _, _ string, _ *string, fieldKey string) (*models.FieldValue, error) {
	value, ok := f.values[fieldKey]
	if !ok {
		return nil, nil
	}

	return &value, nil
}

func textField(key string) models.SchemaField {
	return models.SchemaField{
		Key:      key,
		Label:    key,
		Editable: true,
		Definition: models.FieldDefinition{
			Kind:     models.FieldSingleLineText,
			MaxChars: 100,
		},
	}
}

func ifEqual(key, from string, value models.OptionValue) models.SchemaField {
	return models.SchemaField{
		Key:   key,
		Label: key,
		Definition: models.FieldDefinition{
			Kind:  models.FieldIfEqual,
			Key:   key,
			From:  from,
			Value: &value,
		},
	}
}

func endIf(key string) models.SchemaField {
	return models.SchemaField{
		Key:   key,
		Label: key,
		Definition: models.FieldDefinition{
			Kind: models.FieldEndIf,
			Key:  key,
		},
	}
}

func fieldKeys(fields []models.SchemaField) []string {
	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		keys = append(keys, field.Key)
	}

	return keys
}

func TestInterpreter_ExpandFields_Conditionals(t *testing.T) {
	t.Parallel()

	fields := []models.SchemaField{
		textField("name"),
		ifEqual("speaker-extra", "role", models.TextOption("speaker")),
		textField("talk_title"),
		endIf("speaker-extra"),
		textField("notes"),
	}

	tests := []struct {
		name     string
		answers  map[string]models.FieldValue
		expected []string
	}{
		{
			name:     "condition true includes region",
			answers:  map[string]models.FieldValue{"role": models.NewTextValue("speaker")},
			expected: []string{"name", "talk_title", "notes"},
		},
		{
			name:     "condition false drops region",
			answers:  map[string]models.FieldValue{"role": models.NewTextValue("attendee")},
			expected: []string{"name", "notes"},
		},
		{
			name:     "unanswered source drops region",
			answers:  map[string]models.FieldValue{},
			expected: []string{"name", "notes"},
		},
		{
			name: "choice list answer matches by membership",
			answers: map[string]models.FieldValue{
				"role": models.NewChoicesValue(models.TextOption("volunteer"), models.TextOption("speaker")),
			},
			expected: []string{"name", "talk_title", "notes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			interpreter := forms.NewInterpreter(&fakeAnswers{values: tt.answers}, slog.Default())

			expanded, err := interpreter.ExpandFields(t.Context(), "template-1", "alice", fields)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fieldKeys(expanded))
		})
	}
}

func TestInterpreter_ExpandFields_UnmatchedIfSuppressesToEnd(t *testing.T) {
	t.Parallel()

	fields := []models.SchemaField{
		textField("name"),
		ifEqual("dangling", "role", models.TextOption("speaker")),
		textField("hidden_a"),
		textField("hidden_b"),
	}

	interpreter := forms.NewInterpreter(&fakeAnswers{values: map[string]models.FieldValue{}}, slog.Default())

	expanded, err := interpreter.ExpandFields(t.Context(), "template-1", "alice", fields)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, fieldKeys(expanded))
}

func TestInterpreter_ExpandFields_NestedMarkersInsideFalseRegion(t *testing.T) {
	t.Parallel()

	fields := []models.SchemaField{
		ifEqual("outer", "role", models.TextOption("speaker")),
		ifEqual("inner", "role", models.TextOption("speaker")),
		textField("hidden"),
		endIf("inner"),
		endIf("outer"),
		textField("visible"),
	}

	interpreter := forms.NewInterpreter(&fakeAnswers{values: map[string]models.FieldValue{}}, slog.Default())

	expanded, err := interpreter.ExpandFields(t.Context(), "template-1", "alice", fields)
	require.NoError(t, err)
	assert.Equal(t, []string{"visible"}, fieldKeys(expanded))
}

func TestInterpreter_ExpandFields_DynamicDefault(t *testing.T) {
	t.Parallel()

	fallback := models.NewTextValue("unknown")
	field := textField("name")
	field.Definition.Default = &models.FieldDefault{
		Mode:     models.DefaultDynamic,
		Value:    &fallback,
		FieldKey: "full_name",
	}

	t.Run("resolves latest answer", func(t *testing.T) {
		t.Parallel()

		answers := &fakeAnswers{values: map[string]models.FieldValue{
			"full_name": models.NewTextValue("Alice Liddell"),
		}}
		interpreter := forms.NewInterpreter(answers, slog.Default())

		expanded, err := interpreter.ExpandFields(t.Context(), "template-1", "alice", []models.SchemaField{field})
		require.NoError(t, err)
		require.Len(t, expanded, 1)

		def := expanded[0].Definition.Default
		require.NotNil(t, def)
		assert.Equal(t, models.DefaultStatic, def.Mode)
		require.NotNil(t, def.Value)
		assert.True(t, models.NewTextValue("Alice Liddell").Equal(*def.Value))
	})

	t.Run("falls back to inline value", func(t *testing.T) {
		t.Parallel()

		interpreter := forms.NewInterpreter(&fakeAnswers{values: map[string]models.FieldValue{}}, slog.Default())

		expanded, err := interpreter.ExpandFields(t.Context(), "template-1", "alice", []models.SchemaField{field})
		require.NoError(t, err)
		require.Len(t, expanded, 1)

		def := expanded[0].Definition.Default
		require.NotNil(t, def)
		require.NotNil(t, def.Value)
		assert.True(t, fallback.Equal(*def.Value))
	})
}

func TestInterpreter_ExpandFields_Idempotent(t *testing.T) {
	t.Parallel()

	fallback := models.NewTextValue("unknown")
	withDefault := textField("name")
	withDefault.Definition.Default = &models.FieldDefault{
		Mode:     models.DefaultDynamic,
		Value:    &fallback,
		FieldKey: "full_name",
	}

	fields := []models.SchemaField{
		withDefault,
		ifEqual("extra", "role", models.TextOption("speaker")),
		textField("talk_title"),
		endIf("extra"),
	}

	answers := &fakeAnswers{values: map[string]models.FieldValue{
		"role":      models.NewTextValue("speaker"),
		"full_name": models.NewTextValue("Alice Liddell"),
	}}
	interpreter := forms.NewInterpreter(answers, slog.Default())

	once, err := interpreter.ExpandFields(t.Context(), "template-1", "alice", fields)
	require.NoError(t, err)

	twice, err := interpreter.ExpandFields(t.Context(), "template-1", "alice", once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}
