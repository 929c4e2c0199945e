package execform

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Registry maps a bot page slug to its input form. Bots without a form
// accept any input.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]*Form
}

func NewRegistry() *Registry {
	return &Registry{forms: make(map[string]*Form)}
}

func (r *Registry) Register(slug string, form *Form) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forms[slug] = form
}

func (r *Registry) Lookup(slug string) (*Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	form, ok := r.forms[slug]

	return form, ok
}

// Validate checks input against the form registered for slug.
func (r *Registry) Validate(slug string, input map[string]string) error {
	form, ok := r.Lookup(slug)
	if !ok {
		return nil
	}

	return form.Validate(input)
}

// FormSpec is the file representation of one form.
type FormSpec struct {
	Schema    json.RawMessage `json:"schema,omitempty"`
	DateRange *DateRangeSpec  `json:"date_range,omitempty"`
}

type DateRangeSpec struct {
	From    string `json:"from"`
	To      string `json:"to"`
	MaxDays int    `json:"max_days"`
}

// LoadRegistry reads a JSON file mapping slugs to form specs, e.g.
//
//	{"rpa-facturas": {"date_range": {"from": "fecha_desde", "to": "fecha_hasta", "max_days": 30}}}
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read forms file: %w", err)
	}

	var specs map[string]FormSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse forms file %s: %w", path, err)
	}

	registry := NewRegistry()

	for slug, spec := range specs {
		form, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", slug, err)
		}

		registry.Register(slug, form)
	}

	return registry, nil
}

// Build compiles the spec. A date range without an explicit schema gets
// the date-range schema.
func (s FormSpec) Build() (*Form, error) {
	var rules []Rule

	schema := string(s.Schema)

	if s.DateRange != nil {
		from, to, maxDays := s.DateRange.From, s.DateRange.To, s.DateRange.MaxDays
		if from == "" {
			from = DefaultFromKey
		}

		if to == "" {
			to = DefaultToKey
		}

		if maxDays == 0 {
			maxDays = DefaultMaxDays
		}

		rules = append(rules, DateRange{FromKey: from, ToKey: to, MaxDays: maxDays})

		if schema == "" {
			schema = DateRangeSchema(from, to)
		}
	}

	return NewForm(schema, rules...)
}
