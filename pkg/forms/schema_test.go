package forms_test

import (
	"testing"

	"github.com/confops/ticketd/pkg/forms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFieldDocument(t *testing.T) {
	t.Parallel()

	t.Run("well formed document passes", func(t *testing.T) {
		t.Parallel()

		document := []byte(`[
			{
				"key": "name",
				"label": "Full name",
				"required": true,
				"editable": true,
				"definition": {"kind": "single_line_text", "max_chars": 64}
			},
			{
				"key": "size",
				"label": "Shirt size",
				"definition": {"kind": "single_choice", "options": ["s", "m", "l"]}
			},
			{
				"key": "extra",
				"label": "extra",
				"definition": {"kind": "if_equal", "key": "extra", "from": "size", "value": "l"}
			}
		]`)

		require.NoError(t, forms.ValidateFieldDocument(document))
	})

	t.Run("unknown kind fails", func(t *testing.T) {
		t.Parallel()

		document := []byte(`[{"key": "x", "label": "x", "definition": {"kind": "dropdown"}}]`)

		err := forms.ValidateFieldDocument(document)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid field document")
	})

	t.Run("missing label fails", func(t *testing.T) {
		t.Parallel()

		document := []byte(`[{"key": "x", "definition": {"kind": "bool"}}]`)

		assert.Error(t, forms.ValidateFieldDocument(document))
	})

	t.Run("not an array fails", func(t *testing.T) {
		t.Parallel()

		assert.Error(t, forms.ValidateFieldDocument([]byte(`{"key": "x"}`)))
	})
}
