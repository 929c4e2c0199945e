package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/botportal/pkg/models"
)

// WeekdayNames are indexed Monday=0.
var WeekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// NextRuns returns up to n fire times after from, in from's location.
func NextRuns(s models.BotSchedule, from time.Time, n int) ([]time.Time, error) {
	runs := make([]time.Time, 0, n)
	at := from

	for len(runs) < n {
		next, ok, err := s.NextDueAt(at)
		if err != nil {
			return nil, err
		}

		if !ok {
			break
		}

		runs = append(runs, next)
		at = next
	}

	return runs, nil
}

// Describe renders a one-line summary such as "Weekly (Wednesday) at 08:00".
func Describe(s models.BotSchedule) string {
	var b strings.Builder

	switch s.Type {
	case models.ScheduleTypeDates:
		count := len(s.ScheduledDates)
		fmt.Fprintf(&b, "%d date", count)

		if count != 1 {
			b.WriteString("s")
		}

		if count > 0 {
			shown := s.ScheduledDates[:min(count, 3)]
			b.WriteString(" (" + strings.Join(shown, ", "))

			if count > 3 {
				b.WriteString(", ...")
			}

			b.WriteString(")")
		}
	default:
		kind := s.FrequencyKind()
		b.WriteString(frequencyLabel(kind))

		switch kind {
		case models.FrequencyWeekly:
			if weekday := s.Weekday(); weekday >= 0 && weekday < len(WeekdayNames) {
				b.WriteString(" (" + WeekdayNames[weekday] + ")")
			}
		case models.FrequencyBiweekly, models.FrequencyMonthly:
			if len(s.FrequencyDays) > 0 {
				days := make([]string, len(s.FrequencyDays))
				for i, day := range s.FrequencyDays {
					days[i] = strconv.Itoa(day)
				}

				b.WriteString(" (days " + strings.Join(days, ", ") + ")")
			}
		}
	}

	b.WriteString(" at " + s.Time)

	if !s.Enabled {
		b.WriteString(" [disabled]")
	}

	return b.String()
}

func frequencyLabel(kind models.FrequencyKind) string {
	switch kind {
	case models.FrequencyDaily:
		return "Daily"
	case models.FrequencyWeekly:
		return "Weekly"
	case models.FrequencyBiweekly:
		return "Biweekly"
	case models.FrequencyMonthly:
		return "Monthly"
	default:
		return string(kind)
	}
}
