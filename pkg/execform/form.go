// Package execform validates execute-action input before it is submitted.
package execform

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidInput is wrapped by every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Default keys and cap of the date-range form.
const (
	DefaultFromKey = "fecha_desde"
	DefaultToKey   = "fecha_hasta"
	DefaultMaxDays = 30
)

// ValidationError lists every problem found in an input.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Rule is a check that JSON schema cannot express.
type Rule interface {
	Check(input map[string]string) error
}

// Field describes one declared input for prompts and help output.
type Field struct {
	Key         string
	Title       string
	Description string
	Format      string
	Required    bool
}

// Form is the input contract of one bot.
type Form struct {
	schema *gojsonschema.Schema
	fields []Field
	rules  []Rule
}

type schemaDocument struct {
	Required   []string `json:"required"`
	Properties map[string]struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Format      string `json:"format"`
	} `json:"properties"`
}

// NewForm compiles a JSON schema document. An empty schema accepts any input.
func NewForm(schemaJSON string, rules ...Rule) (*Form, error) {
	form := &Form{rules: rules}

	if strings.TrimSpace(schemaJSON) == "" {
		return form, nil
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}

	var doc schemaDocument
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("read input schema: %w", err)
	}

	keys := make([]string, 0, len(doc.Properties))
	for key := range doc.Properties {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	for _, key := range keys {
		property := doc.Properties[key]
		form.fields = append(form.fields, Field{
			Key:         key,
			Title:       property.Title,
			Description: property.Description,
			Format:      property.Format,
			Required:    slices.Contains(doc.Required, key),
		})
	}

	form.schema = schema

	return form, nil
}

// Fields returns the declared inputs sorted by key.
func (f *Form) Fields() []Field {
	return slices.Clone(f.fields)
}

// Validate checks input against the schema, then the rules.
func (f *Form) Validate(input map[string]string) error {
	if input == nil {
		input = map[string]string{}
	}

	var problems []string

	if f.schema != nil {
		result, err := f.schema.Validate(gojsonschema.NewGoLoader(input))
		if err != nil {
			return fmt.Errorf("validate input: %w", err)
		}

		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}
	}

	// Rules assume a structurally valid input.
	if len(problems) == 0 {
		for _, rule := range f.rules {
			if err := rule.Check(input); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

// DateRange limits a from/to date pair to at most MaxDays days, counting
// both ends.
type DateRange struct {
	FromKey string
	ToKey   string
	MaxDays int
}

func (r DateRange) Check(input map[string]string) error {
	from, err := r.date(input, r.FromKey)
	if err != nil {
		return err
	}

	to, err := r.date(input, r.ToKey)
	if err != nil {
		return err
	}

	if to.Before(from) {
		return fmt.Errorf("%s must not be after %s", r.FromKey, r.ToKey)
	}

	days := Days(from, to)
	if r.MaxDays > 0 && days > r.MaxDays {
		return fmt.Errorf("date range spans %d days, the maximum is %d", days, r.MaxDays)
	}

	return nil
}

func (r DateRange) date(input map[string]string, key string) (time.Time, error) {
	value := strings.TrimSpace(input[key])
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}

	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a YYYY-MM-DD date, got %q", key, value)
	}

	return t, nil
}

// Days counts the calendar days from..to, both included.
func Days(from, to time.Time) int {
	return int(to.Sub(from).Hours()/24) + 1
}

// DateRangeSchema is the JSON schema of a from/to date form.
func DateRangeSchema(fromKey, toKey string) string {
	return fmt.Sprintf(`{
  "type": "object",
  "required": [%q, %q],
  "properties": {
    %q: {"type": "string", "format": "date", "title": "From", "description": "First day to process (YYYY-MM-DD)"},
    %q: {"type": "string", "format": "date", "title": "To", "description": "Last day to process (YYYY-MM-DD)"}
  }
}`, fromKey, toKey, fromKey, toKey)
}

// NewDateRangeForm builds a from/to date form capped at maxDays.
func NewDateRangeForm(fromKey, toKey string, maxDays int) (*Form, error) {
	return NewForm(DateRangeSchema(fromKey, toKey), DateRange{FromKey: fromKey, ToKey: toKey, MaxDays: maxDays})
}
