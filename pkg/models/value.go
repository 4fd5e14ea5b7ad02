// Package models defines the core domain types for ticket schemas, forms and flows.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the shapes a submitted field value can take.
type ValueKind string

const (
	ValueNull    ValueKind = "null"
	ValueInteger ValueKind = "integer"
	ValueText    ValueKind = "text"
	ValueBool    ValueKind = "bool"
	ValueChoices ValueKind = "choices"
)

// FieldValue is a single submitted value for a schema field. On the wire it is
// untagged: a JSON number, string, bool, array of option values, or null.
type FieldValue struct {
	Kind    ValueKind
	Int     int64
	Text    string
	Bool    bool
	Choices []OptionValue
}

func NewIntegerValue(v int64) FieldValue {
	return FieldValue{Kind: ValueInteger, Int: v}
}

func NewTextValue(v string) FieldValue {
	return FieldValue{Kind: ValueText, Text: v}
}

func NewBoolValue(v bool) FieldValue {
	return FieldValue{Kind: ValueBool, Bool: v}
}

func NewChoicesValue(options ...OptionValue) FieldValue {
	return FieldValue{Kind: ValueChoices, Choices: options}
}

func NullValue() FieldValue {
	return FieldValue{Kind: ValueNull}
}

// IsNull reports whether the value carries no payload. The zero FieldValue is null.
func (v FieldValue) IsNull() bool {
	return v.Kind == ValueNull || v.Kind == ""
}

// Equal compares two values structurally. Choice lists compare element-wise in order.
func (v FieldValue) Equal(other FieldValue) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() == other.IsNull()
	}

	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case ValueInteger:
		return v.Int == other.Int
	case ValueText:
		return v.Text == other.Text
	case ValueBool:
		return v.Bool == other.Bool
	case ValueChoices:
		if len(v.Choices) != len(other.Choices) {
			return false
		}

		for i := range v.Choices {
			if !v.Choices[i].Equal(other.Choices[i]) {
				return false
			}
		}

		return true
	case ValueNull:
		return true
	}

	return false
}

// Contains reports whether the value, treated as a set, includes the option.
// Scalar values match when they equal the option directly.
func (v FieldValue) Contains(option OptionValue) bool {
	switch v.Kind {
	case ValueChoices:
		for _, choice := range v.Choices {
			if choice.Equal(option) {
				return true
			}
		}

		return false
	case ValueInteger:
		return option.Kind == OptionInteger && option.Int == v.Int
	case ValueText:
		return option.Kind == OptionText && option.Text == v.Text
	case ValueBool, ValueNull:
		return false
	}

	return false
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueInteger:
		return json.Marshal(v.Int)
	case ValueText:
		return json.Marshal(v.Text)
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueChoices:
		if v.Choices == nil {
			return json.Marshal([]OptionValue{})
		}

		return json.Marshal(v.Choices)
	case ValueNull, "":
		return []byte("null"), nil
	}

	return nil, fmt.Errorf("unknown value kind: %q", v.Kind)
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty field value")
	}

	if bytes.Equal(trimmed, []byte("null")) {
		*v = NullValue()

		return nil
	}

	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return fmt.Errorf("invalid bool value: %w", err)
		}

		*v = NewBoolValue(b)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("invalid text value: %w", err)
		}

		*v = NewTextValue(s)
	case '[':
		var options []OptionValue
		if err := json.Unmarshal(trimmed, &options); err != nil {
			return fmt.Errorf("invalid choice list: %w", err)
		}

		*v = NewChoicesValue(options...)
	default:
		var n int64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("invalid numeric value: %w", err)
		}

		*v = NewIntegerValue(n)
	}

	return nil
}

// OptionKind discriminates the two representations a choice option can take.
type OptionKind string

const (
	OptionInteger OptionKind = "integer"
	OptionText    OptionKind = "text"
)

// OptionValue is one selectable option of a choice field, either a number or a string.
type OptionValue struct {
	Kind OptionKind
	Int  int64
	Text string
}

func IntegerOption(v int64) OptionValue {
	return OptionValue{Kind: OptionInteger, Int: v}
}

func TextOption(v string) OptionValue {
	return OptionValue{Kind: OptionText, Text: v}
}

func (o OptionValue) Equal(other OptionValue) bool {
	if o.Kind != other.Kind {
		return false
	}

	if o.Kind == OptionInteger {
		return o.Int == other.Int
	}

	return o.Text == other.Text
}

func (o OptionValue) String() string {
	if o.Kind == OptionInteger {
		return fmt.Sprintf("%d", o.Int)
	}

	return o.Text
}

func (o OptionValue) MarshalJSON() ([]byte, error) {
	if o.Kind == OptionInteger {
		return json.Marshal(o.Int)
	}

	return json.Marshal(o.Text)
}

func (o *OptionValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty option value")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("invalid text option: %w", err)
		}

		*o = TextOption(s)

		return nil
	}

	var n int64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("invalid integer option: %w", err)
	}

	*o = IntegerOption(n)

	return nil
}
