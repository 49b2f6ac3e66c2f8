package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// FieldKind tags which payload of a FieldSpec is populated.
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindNumber   FieldKind = "number"
	FieldKindDate     FieldKind = "date"
	FieldKindCheckbox FieldKind = "checkbox"
	FieldKindSelect   FieldKind = "select"
	FieldKindPhone    FieldKind = "phone"
)

type TextField struct {
	MaxLength int  `json:"max_length,omitempty" validate:"gte=0"`
	Multiline bool `json:"multiline,omitempty"`
}

type NumberField struct {
	Min     *decimal.Decimal `json:"min,omitempty"`
	Max     *decimal.Decimal `json:"max,omitempty"`
	Integer bool             `json:"integer,omitempty"`
}

type DateField struct {
	// Layout is a Go time layout, defaults to 2006-01-02.
	Layout    string `json:"layout,omitempty"`
	NotFuture bool   `json:"not_future,omitempty"`
}

type CheckboxField struct {
	// MustBeChecked makes an unchecked box fail completeness (declarations, "I confirm" boxes).
	MustBeChecked bool `json:"must_be_checked,omitempty"`
}

type SelectField struct {
	Options  []string `json:"options" validate:"required,min=1,dive,required"`
	Multiple bool     `json:"multiple,omitempty"`
}

type PhoneField struct {
	// Region is an ISO 3166 region used for numbers without a leading +.
	Region string `json:"region,omitempty" validate:"omitempty,len=2"`
}

// FieldSpec is one field of a published form. Exactly the payload named by Kind may be set.
type FieldSpec struct {
	Key      string         `json:"key" validate:"required,max=64"`
	Label    string         `json:"label" validate:"required,max=255"`
	Kind     FieldKind      `json:"kind" validate:"required,oneof=text number date checkbox select phone"`
	Required bool           `json:"required"`
	Text     *TextField     `json:"text,omitempty"`
	Number   *NumberField   `json:"number,omitempty"`
	Date     *DateField     `json:"date,omitempty"`
	Checkbox *CheckboxField `json:"checkbox,omitempty"`
	Select   *SelectField   `json:"select,omitempty"`
	Phone    *PhoneField    `json:"phone,omitempty"`
}

type FormSchema struct {
	Fields []FieldSpec `json:"fields" validate:"required,min=1,dive"`
}

// FormDataError lists every offending field key with a short reason.
type FormDataError struct {
	Fields map[string]string
}

func (e *FormDataError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid form data (" + strings.Join(parts, "; ") + ")"
}

var (
	fieldKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	schemaValidate  = validator.New()
)

func (f FieldSpec) payloadCount() int {
	n := 0
	for _, set := range []bool{f.Text != nil, f.Number != nil, f.Date != nil, f.Checkbox != nil, f.Select != nil, f.Phone != nil} {
		if set {
			n++
		}
	}
	return n
}

func (f FieldSpec) payloadMatchesKind() bool {
	switch f.Kind {
	case FieldKindText:
		return f.payloadCount() == 0 || f.Text != nil
	case FieldKindNumber:
		return f.payloadCount() == 0 || f.Number != nil
	case FieldKindDate:
		return f.payloadCount() == 0 || f.Date != nil
	case FieldKindCheckbox:
		return f.payloadCount() == 0 || f.Checkbox != nil
	case FieldKindSelect:
		// options are mandatory for a select
		return f.Select != nil
	case FieldKindPhone:
		return f.payloadCount() == 0 || f.Phone != nil
	}
	return false
}

// Validate checks the schema itself: struct tags, unique snake_case keys and
// exactly one payload matching each field's kind.
func (s FormSchema) Validate() error {
	if err := schemaValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid form schema: %w", err)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if !fieldKeyPattern.MatchString(f.Key) {
			return fmt.Errorf("invalid form schema: field key %q must be snake_case", f.Key)
		}
		if seen[f.Key] {
			return fmt.Errorf("invalid form schema: duplicate field key %q", f.Key)
		}
		seen[f.Key] = true
		if f.payloadCount() > 1 || !f.payloadMatchesKind() {
			return fmt.Errorf("invalid form schema: field %q payload does not match kind %q", f.Key, f.Kind)
		}
		if f.Number != nil && f.Number.Min != nil && f.Number.Max != nil && f.Number.Min.GreaterThan(*f.Number.Max) {
			return fmt.Errorf("invalid form schema: field %q min is greater than max", f.Key)
		}
	}
	return nil
}

func (s FormSchema) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ValidateData checks form data against the schema. Unknown keys and ill-typed values
// always fail. When complete is true, required fields must be present and non-empty
// and must-check boxes must be checked (the form_complete precondition).
func (s FormSchema) ValidateData(data map[string]interface{}, complete bool) error {
	problems := make(map[string]string)
	for key := range data {
		if _, ok := s.Field(key); !ok {
			problems[key] = "unknown field"
		}
	}
	for _, f := range s.Fields {
		value, present := data[f.Key]
		if !present || isEmptyValue(value) {
			if complete && f.Required {
				problems[f.Key] = "required"
			}
			continue
		}
		if err := f.validateValue(value, complete); err != nil {
			problems[f.Key] = err.Error()
		}
	}
	if len(problems) > 0 {
		return &FormDataError{Fields: problems}
	}
	return nil
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	}
	return false
}

func (f FieldSpec) validateValue(value interface{}, complete bool) error {
	switch f.Kind {
	case FieldKindText:
		s, ok := value.(string)
		if !ok {
			return errors.New("must be text")
		}
		if f.Text != nil && f.Text.MaxLength > 0 && utf8.RuneCountInString(s) > f.Text.MaxLength {
			return fmt.Errorf("longer than %d characters", f.Text.MaxLength)
		}
	case FieldKindNumber:
		d, err := toDecimal(value)
		if err != nil {
			return err
		}
		if f.Number != nil {
			if f.Number.Integer && !d.Equal(d.Truncate(0)) {
				return errors.New("must be a whole number")
			}
			if f.Number.Min != nil && d.LessThan(*f.Number.Min) {
				return fmt.Errorf("must be at least %s", f.Number.Min.String())
			}
			if f.Number.Max != nil && d.GreaterThan(*f.Number.Max) {
				return fmt.Errorf("must be at most %s", f.Number.Max.String())
			}
		}
	case FieldKindDate:
		s, ok := value.(string)
		if !ok {
			return errors.New("must be a date string")
		}
		layout := "2006-01-02"
		if f.Date != nil && f.Date.Layout != "" {
			layout = f.Date.Layout
		}
		parsed, err := time.Parse(layout, s)
		if err != nil {
			return fmt.Errorf("must match date layout %s", layout)
		}
		if f.Date != nil && f.Date.NotFuture && parsed.After(time.Now().UTC()) {
			return errors.New("must not be in the future")
		}
	case FieldKindCheckbox:
		b, ok := value.(bool)
		if !ok {
			return errors.New("must be true or false")
		}
		if complete && f.Checkbox != nil && f.Checkbox.MustBeChecked && !b {
			return errors.New("must be checked")
		}
	case FieldKindSelect:
		return f.validateSelect(value)
	case FieldKindPhone:
		s, ok := value.(string)
		if !ok {
			return errors.New("must be a phone number string")
		}
		region := "ZZ"
		if f.Phone != nil && f.Phone.Region != "" {
			region = strings.ToUpper(f.Phone.Region)
		}
		num, err := libphonenumber.Parse(s, region)
		if err != nil || !libphonenumber.IsValidNumber(num) {
			return errors.New("phone number is not valid")
		}
	default:
		return fmt.Errorf("unsupported field kind %q", f.Kind)
	}
	return nil
}

func (f FieldSpec) validateSelect(value interface{}) error {
	allowed := make(map[string]bool, len(f.Select.Options))
	for _, o := range f.Select.Options {
		allowed[o] = true
	}
	if f.Select.Multiple {
		items, ok := value.([]interface{})
		if !ok {
			return errors.New("must be a list of options")
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok || !allowed[s] {
				return fmt.Errorf("%v is not an allowed option", item)
			}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok || !allowed[s] {
		return fmt.Errorf("%v is not an allowed option", value)
	}
	return nil
}

func toDecimal(value interface{}) (decimal.Decimal, error) {
	switch t := value.(type) {
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Decimal{}, errors.New("must be a number")
		}
		return d, nil
	}
	return decimal.Decimal{}, errors.New("must be a number")
}
