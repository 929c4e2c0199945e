// Package schedule builds, validates and persists bot schedules.
package schedule

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Default form values, matching what the backend assumes.
const (
	DefaultTime    = "08:00"
	DefaultWeekday = 0
)

// DefaultDays are the preselected days of a new biweekly or monthly rule.
var DefaultDays = []int{1, 16}

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidTime    = errors.New("invalid time of day")
	ErrInvalidWeekday = errors.New("weekday must be between 0 (Monday) and 6 (Sunday)")
	ErrInvalidDay     = errors.New("day of month must be between 1 and 31")
	ErrInvalidKind    = errors.New("unknown frequency")
	ErrInvalidType    = errors.New("unknown schedule type")
)

// Editor is the state of a schedule form. Switching the type keeps the
// sub-fields of both modes so a user can switch back without re-entering.
type Editor struct {
	enabled   bool
	kind      models.ScheduleType
	dates     []string
	frequency models.FrequencyKind
	weekday   int
	days      []int
	time      string
	input     map[string]string
}

// NewEditor returns a form with the default values.
func NewEditor() *Editor {
	return &Editor{
		enabled:   true,
		kind:      models.ScheduleTypeDates,
		frequency: models.FrequencyDaily,
		weekday:   DefaultWeekday,
		days:      slices.Clone(DefaultDays),
		time:      DefaultTime,
		input:     map[string]string{},
	}
}

// EditorFrom loads an existing schedule into a form.
func EditorFrom(s models.BotSchedule) *Editor {
	e := &Editor{
		enabled:   s.Enabled,
		kind:      s.Type,
		dates:     slices.Clone(s.ScheduledDates),
		frequency: s.FrequencyKind(),
		weekday:   s.Weekday(),
		days:      slices.Clone(s.FrequencyDays),
		time:      s.Time,
		input:     maps.Clone(s.InputData),
	}

	slices.Sort(e.dates)
	e.dates = slices.Compact(e.dates)
	slices.Sort(e.days)

	if e.input == nil {
		e.input = map[string]string{}
	}

	return e
}

func (e *Editor) Enabled() bool                   { return e.enabled }
func (e *Editor) Type() models.ScheduleType       { return e.kind }
func (e *Editor) Dates() []string                 { return slices.Clone(e.dates) }
func (e *Editor) Frequency() models.FrequencyKind { return e.frequency }
func (e *Editor) Weekday() int                    { return e.weekday }
func (e *Editor) Days() []int                     { return slices.Clone(e.days) }
func (e *Editor) Time() string                    { return e.time }
func (e *Editor) Input() map[string]string        { return maps.Clone(e.input) }

func (e *Editor) SetEnabled(enabled bool) {
	e.enabled = enabled
}

// SetType changes the mode only.
func (e *Editor) SetType(kind models.ScheduleType) error {
	if kind != models.ScheduleTypeDates && kind != models.ScheduleTypeFrequency {
		return fmt.Errorf("%w: %q", ErrInvalidType, kind)
	}

	e.kind = kind

	return nil
}

// AddDate inserts a YYYY-MM-DD date keeping the set sorted. Adding a date
// already present does nothing.
func (e *Editor) AddDate(date string) error {
	date = strings.TrimSpace(date)
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	i, found := slices.BinarySearch(e.dates, date)
	if found {
		return nil
	}

	e.dates = slices.Insert(e.dates, i, date)

	return nil
}

func (e *Editor) RemoveDate(date string) {
	e.dates = slices.DeleteFunc(e.dates, func(d string) bool { return d == date })
}

func (e *Editor) SetFrequency(kind models.FrequencyKind) error {
	switch kind {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyBiweekly, models.FrequencyMonthly:
		e.frequency = kind

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// SetWeekday sets the weekly weekday, Monday=0.
func (e *Editor) SetWeekday(weekday int) error {
	if weekday < 0 || weekday > 6 {
		return fmt.Errorf("%w: %d", ErrInvalidWeekday, weekday)
	}

	e.weekday = weekday

	return nil
}

// ToggleDay adds or removes a day of month, keeping the set sorted.
func (e *Editor) ToggleDay(day int) error {
	if day < 1 || day > 31 {
		return fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}

	i, found := slices.BinarySearch(e.days, day)
	if found {
		e.days = slices.Delete(e.days, i, i+1)
	} else {
		e.days = slices.Insert(e.days, i, day)
	}

	return nil
}

// SetTime sets the HH:MM time of day.
func (e *Editor) SetTime(hhmm string) error {
	hhmm = strings.TrimSpace(hhmm)

	t, err := time.Parse(models.TimeLayout, hhmm)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTime, hhmm)
	}

	e.time = t.Format(models.TimeLayout)

	return nil
}

// SetInput sets one input value; an empty value removes the key.
func (e *Editor) SetInput(key, value string) {
	if value == "" {
		delete(e.input, key)

		return
	}

	e.input[key] = value
}

// Warnings lists advisory problems that do not block saving.
func (e *Editor) Warnings() []string {
	var warnings []string

	if e.kind == models.ScheduleTypeFrequency && e.frequency == models.FrequencyBiweekly && len(e.days) != 2 {
		warnings = append(warnings, fmt.Sprintf("biweekly schedules usually run on 2 days of the month, %d selected", len(e.days)))
	}

	return warnings
}

// Build validates the form and returns the payload to submit.
func (e *Editor) Build() (models.ScheduleCreate, error) {
	payload := models.ScheduleCreate{
		Enabled:        e.enabled,
		Type:           e.kind,
		ScheduledDates: slices.Clone(e.dates),
		FrequencyDays:  slices.Clone(e.days),
		Time:           e.time,
		InputData:      maps.Clone(e.input),
	}

	if payload.ScheduledDates == nil {
		payload.ScheduledDates = []string{}
	}

	if payload.FrequencyDays == nil {
		payload.FrequencyDays = []int{}
	}

	if e.kind == models.ScheduleTypeFrequency {
		frequency := e.frequency
		payload.Frequency = &frequency

		if frequency == models.FrequencyWeekly {
			weekday := e.weekday
			payload.FrequencyWeekday = &weekday
		}
	}

	if err := validate.Struct(payload); err != nil {
		return models.ScheduleCreate{}, fmt.Errorf("%w: %w", models.ErrInvalidSchedule, err)
	}

	switch {
	case e.kind == models.ScheduleTypeDates && len(e.dates) == 0:
		return models.ScheduleCreate{}, fmt.Errorf("%w: add at least one date", models.ErrInvalidSchedule)
	case e.kind == models.ScheduleTypeFrequency &&
		(e.frequency == models.FrequencyBiweekly || e.frequency == models.FrequencyMonthly) &&
		len(e.days) == 0:
		return models.ScheduleCreate{}, fmt.Errorf("%w: select at least one day of the month", models.ErrInvalidSchedule)
	}

	return payload, nil
}

// Update returns the payload that rewrites every editable field.
func (e *Editor) Update() (models.ScheduleUpdate, error) {
	full, err := e.Build()
	if err != nil {
		return models.ScheduleUpdate{}, err
	}

	update := models.ScheduleUpdate{
		Enabled:          &full.Enabled,
		Type:             &full.Type,
		ScheduledDates:   full.ScheduledDates,
		Frequency:        full.Frequency,
		FrequencyDays:    full.FrequencyDays,
		FrequencyWeekday: full.FrequencyWeekday,
		Time:             &full.Time,
		InputData:        &full.InputData,
	}

	return update, nil
}

var validate = models.NewValidator()

// ValidationMessages flattens validator errors into field messages.
func ValidationMessages(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s: failed %s", fieldErr.Field(), fieldErr.Tag()))
	}

	return messages
}
