package models

// FieldKind identifies the input widget and validation rules of a schema field.
type FieldKind string

const (
	FieldSingleLineText FieldKind = "single_line_text"
	FieldMultiLineText  FieldKind = "multi_line_text"
	FieldSingleChoice   FieldKind = "single_choice"
	FieldMultipleChoice FieldKind = "multiple_choice"
	FieldBool           FieldKind = "bool"
	FieldImage          FieldKind = "image"
	FieldFile           FieldKind = "file"

	// Marker kinds. They delimit conditional regions of a form and are never
	// rendered or answered.
	FieldIfEqual FieldKind = "if_equal"
	FieldEndIf   FieldKind = "end_if"
)

// DefaultMode selects how a field default is produced.
type DefaultMode string

const (
	DefaultStatic  DefaultMode = "static"
	DefaultDynamic DefaultMode = "dynamic"
)

// FieldDefault describes the pre-filled value of a field. A static default
// carries the value inline. A dynamic default is resolved per user from the
// latest answer they gave to another field, optionally pinned to one step.
type FieldDefault struct {
	Mode DefaultMode `json:"mode"`

	// Static value, also the fallback when a dynamic lookup finds nothing.
	Value *FieldValue `json:"value,omitempty"`

	// Dynamic lookup coordinates.
	SourceTemplateID string  `json:"source_template_id,omitempty"`
	SourceStepID     *string `json:"source_step_id,omitempty"`
	FieldKey         string  `json:"field_key,omitempty"`
}

// FieldDefinition holds the kind of a field plus the constraints that apply to
// that kind. Constraint fields for other kinds are left at their zero value.
type FieldDefinition struct {
	Kind FieldKind `json:"kind"`

	// Text constraints.
	MaxChars int `json:"max_chars,omitempty"`
	MaxLines int `json:"max_lines,omitempty"`

	// Choice constraints.
	Options    []OptionValue `json:"options,omitempty"`
	MaxOptions int           `json:"max_options,omitempty"`
	IsCheckbox bool          `json:"is_checkbox,omitempty"`

	// Upload constraints. MaxSize is in bytes, dimensions in pixels.
	MaxSize   int64    `json:"max_size,omitempty"`
	MinWidth  int      `json:"min_width,omitempty"`
	MaxWidth  int      `json:"max_width,omitempty"`
	MinHeight int      `json:"min_height,omitempty"`
	MaxHeight int      `json:"max_height,omitempty"`
	Mimes     []string `json:"mimes,omitempty"`

	// Conditional marker attributes. Key pairs an if_equal with its end_if,
	// From names the field whose value is tested, Value is the expected value.
	Key   string       `json:"key,omitempty"`
	From  string       `json:"from,omitempty"`
	Value *OptionValue `json:"value,omitempty"`

	Default *FieldDefault `json:"default,omitempty"`
}

// IsMarker reports whether the definition is a conditional delimiter rather
// than an answerable field.
func (d FieldDefinition) IsMarker() bool {
	return d.Kind == FieldIfEqual || d.Kind == FieldEndIf
}

// HasOption reports whether the option is one of the definition's choices.
func (d FieldDefinition) HasOption(option OptionValue) bool {
	for _, candidate := range d.Options {
		if candidate.Equal(option) {
			return true
		}
	}

	return false
}

// SchemaField is one ordered entry of a form step.
type SchemaField struct {
	ID          string          `json:"id"`
	FormID      string          `json:"form_id"`
	Order       int             `json:"order"`
	Key         string          `json:"key"`
	Label       string          `json:"label"`
	Description string          `json:"description,omitempty"`
	Definition  FieldDefinition `json:"definition"`
	Required    bool            `json:"required"`
	Editable    bool            `json:"editable"`
}
