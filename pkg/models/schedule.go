package models

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects how a schedule fires: on explicit dates or by rule.
type ScheduleType string

const (
	ScheduleTypeDates     ScheduleType = "dates"
	ScheduleTypeFrequency ScheduleType = "frequency"
)

// FrequencyKind is the recurrence rule of a frequency schedule.
type FrequencyKind string

const (
	FrequencyDaily    FrequencyKind = "daily"
	FrequencyWeekly   FrequencyKind = "weekly"
	FrequencyBiweekly FrequencyKind = "biweekly"
	FrequencyMonthly  FrequencyKind = "monthly"
)

// DateLayout is the calendar date format used by schedules.
const DateLayout = "2006-01-02"

// TimeLayout is the time-of-day format used by schedules.
const TimeLayout = "15:04"

// ErrInvalidSchedule is returned when a schedule cannot be evaluated.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// BotSchedule is a recurrence rule that triggers executions of a bot.
//
// Weekdays use the Monday=0 convention. FrequencyDays holds day-of-month
// numbers for biweekly and monthly rules.
type BotSchedule struct {
	ID               string            `json:"id"`
	BotID            string            `json:"bot_id"`
	Enabled          bool              `json:"enabled"`
	Type             ScheduleType      `json:"type"`
	ScheduledDates   []string          `json:"scheduled_dates"`
	Frequency        *FrequencyKind    `json:"frequency,omitempty"`
	FrequencyDays    []int             `json:"frequency_days"`
	FrequencyWeekday *int              `json:"frequency_weekday,omitempty"`
	Time             string            `json:"time"`
	InputData        map[string]string `json:"input_data"`
	CreatedBy        string            `json:"created_by"`
	CreatedAt        string            `json:"created_at"`
}

// ScheduleCreate is a full schedule without the server-assigned fields.
type ScheduleCreate struct {
	Enabled          bool              `json:"enabled"`
	Type             ScheduleType      `json:"type"              validate:"required,oneof=dates frequency"`
	ScheduledDates   []string          `json:"scheduled_dates"   validate:"dive,datetime=2006-01-02"`
	Frequency        *FrequencyKind    `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly biweekly monthly"`
	FrequencyDays    []int             `json:"frequency_days"    validate:"dive,min=1,max=31"`
	FrequencyWeekday *int              `json:"frequency_weekday,omitempty" validate:"omitempty,min=0,max=6"`
	Time             string            `json:"time"              validate:"required,datetime=15:04"`
	InputData        map[string]string `json:"input_data"`
}

// ScheduleUpdate is a partial schedule update; nil fields are left untouched.
type ScheduleUpdate struct {
	Enabled          *bool              `json:"enabled,omitempty"`
	Type             *ScheduleType      `json:"type,omitempty"              validate:"omitempty,oneof=dates frequency"`
	ScheduledDates   []string           `json:"scheduled_dates,omitempty"   validate:"omitempty,dive,datetime=2006-01-02"`
	Frequency        *FrequencyKind     `json:"frequency,omitempty"         validate:"omitempty,oneof=daily weekly biweekly monthly"`
	FrequencyDays    []int              `json:"frequency_days,omitempty"    validate:"omitempty,dive,min=1,max=31"`
	FrequencyWeekday *int               `json:"frequency_weekday,omitempty" validate:"omitempty,min=0,max=6"`
	Time             *string            `json:"time,omitempty"              validate:"omitempty,datetime=15:04"`
	InputData        *map[string]string `json:"input_data,omitempty"`
}

// FrequencyKind returns the rule kind, defaulting to daily like the backend.
func (s *BotSchedule) FrequencyKind() FrequencyKind {
	if s.Frequency == nil || *s.Frequency == "" {
		return FrequencyDaily
	}

	return *s.Frequency
}

// Weekday returns the Monday=0 weekday of a weekly rule, defaulting to Monday.
func (s *BotSchedule) Weekday() int {
	if s.FrequencyWeekday == nil {
		return 0
	}

	return *s.FrequencyWeekday
}

// ClockTime parses the HH:MM time of day.
func (s *BotSchedule) ClockTime() (hour, minute int, err error) {
	t, err := time.Parse(TimeLayout, s.Time)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q: %w", ErrInvalidSchedule, s.Time, err)
	}

	return t.Hour(), t.Minute(), nil
}

// CronExpression renders a frequency schedule as a standard 5-field cron
// expression (minute hour day month weekday). Dates schedules have none.
func (s *BotSchedule) CronExpression() (string, error) {
	if s.Type != ScheduleTypeFrequency {
		return "", fmt.Errorf("%w: %s schedules have no cron expression", ErrInvalidSchedule, s.Type)
	}

	hour, minute, err := s.ClockTime()
	if err != nil {
		return "", err
	}

	switch s.FrequencyKind() {
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case FrequencyWeekly:
		weekday := s.Weekday()
		if weekday < 0 || weekday > 6 {
			return "", fmt.Errorf("%w: weekday %d", ErrInvalidSchedule, weekday)
		}
		// cron counts from Sunday=0, schedules from Monday=0.
		return fmt.Sprintf("%d %d * * %d", minute, hour, (weekday+1)%7), nil
	case FrequencyBiweekly, FrequencyMonthly:
		if len(s.FrequencyDays) == 0 {
			return "", fmt.Errorf("%w: no days of month selected", ErrInvalidSchedule)
		}

		days := make([]string, 0, len(s.FrequencyDays))
		for _, day := range s.FrequencyDays {
			if day < 1 || day > 31 {
				return "", fmt.Errorf("%w: day of month %d", ErrInvalidSchedule, day)
			}

			days = append(days, strconv.Itoa(day))
		}

		return fmt.Sprintf("%d %d %s * *", minute, hour, strings.Join(days, ",")), nil
	default:
		return "", fmt.Errorf("%w: frequency %q", ErrInvalidSchedule, s.FrequencyKind())
	}
}

// NextDueAt returns the first fire time strictly after referenceTime, in
// referenceTime's location. ok is false when the schedule will not fire again.
func (s *BotSchedule) NextDueAt(referenceTime time.Time) (next time.Time, ok bool, err error) {
	switch s.Type {
	case ScheduleTypeFrequency:
		expression, err := s.CronExpression()
		if err != nil {
			return time.Time{}, false, err
		}

		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

		cronSchedule, err := parser.Parse(expression)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}

		next = cronSchedule.Next(referenceTime)

		return next, !next.IsZero(), nil
	case ScheduleTypeDates:
		hour, minute, err := s.ClockTime()
		if err != nil {
			return time.Time{}, false, err
		}

		dates := slices.Clone(s.ScheduledDates)
		slices.Sort(dates)

		for _, date := range dates {
			day, err := time.ParseInLocation(DateLayout, date, referenceTime.Location())
			if err != nil {
				return time.Time{}, false, fmt.Errorf("%w: date %q", ErrInvalidSchedule, date)
			}

			at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, referenceTime.Location())
			if at.After(referenceTime) {
				return at, true, nil
			}
		}

		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("%w: type %q", ErrInvalidSchedule, s.Type)
	}
}

// IsDue reports whether the schedule fires at the given minute, using the
// same rules the backend scheduler applies every minute.
func (s *BotSchedule) IsDue(now time.Time) bool {
	if !s.Enabled || now.Format(TimeLayout) != s.Time {
		return false
	}

	switch s.Type {
	case ScheduleTypeDates:
		return slices.Contains(s.ScheduledDates, now.Format(DateLayout))
	case ScheduleTypeFrequency:
		switch s.FrequencyKind() {
		case FrequencyDaily:
			return true
		case FrequencyWeekly:
			// time.Weekday is Sunday=0.
			return (int(now.Weekday())+6)%7 == s.Weekday()
		case FrequencyBiweekly, FrequencyMonthly:
			return slices.Contains(s.FrequencyDays, now.Day())
		}
	}

	return false
}
