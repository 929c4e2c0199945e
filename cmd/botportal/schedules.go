package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/models"
	"github.com/dukex/botportal/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

var errScheduleNotFound = errors.New("schedule not found")

func scheduleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "dates or frequency, inferred from --date when omitted"},
		&cli.StringSliceFlag{Name: "date", Usage: "Run date as YYYY-MM-DD, repeatable"},
		&cli.StringFlag{Name: "frequency", Usage: "daily, weekly, biweekly or monthly"},
		&cli.IntFlag{Name: "weekday", Usage: "Weekday of a weekly schedule, 0 (Monday) to 6 (Sunday)"},
		&cli.IntSliceFlag{Name: "day", Usage: "Day of month of a biweekly or monthly schedule, repeatable"},
		&cli.StringFlag{Name: "time", Usage: "Time of day as HH:MM"},
		&cli.StringMapFlag{Name: "input", Usage: "Input value as key=value, repeatable"},
		&cli.BoolFlag{Name: "enabled", Usage: "Schedule is active", Value: true},
	}
}

func (p *portal) schedulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedules",
		Usage: "Manage bot schedules",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the schedules of a bot",
				ArgsUsage: "<bot-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{BotID: values[0]}); err != nil {
						return err
					}

					schedules, err := p.schedules().List(ctx, values[0])
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, schedules)
					}

					if len(schedules) == 0 {
						_, err := fmt.Fprintln(p.out, "No schedules")
						return err
					}

					now := time.Now()
					rows := make([][]string, 0, len(schedules))

					for _, s := range schedules {
						next := "-"
						if runs, err := schedule.NextRuns(s, now, 1); err == nil && len(runs) > 0 && s.Enabled {
							next = runs[0].Format("2006-01-02 15:04")
						}

						rows = append(rows, []string{s.ID, schedule.Describe(s), next})
					}

					return writeTable(p.out, []string{"ID", "SCHEDULE", "NEXT RUN"}, rows)
				},
			},
			{
				Name:      "create",
				Usage:     "Add a schedule to a bot",
				ArgsUsage: "<bot-id>",
				Flags:     scheduleFlags(),
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id")
					if err != nil {
						return err
					}

					editor := schedule.NewEditor()
					if err := applyScheduleFlags(editor, command, true); err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleAdmin}); err != nil {
						return err
					}

					p.printWarnings(editor)

					created, err := p.schedules().Save(ctx, values[0], "", editor)
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(p.out, "Created schedule %s: %s\n", created.ID, schedule.Describe(*created))

					return err
				},
			},
			{
				Name:      "update",
				Usage:     "Change a schedule",
				ArgsUsage: "<bot-id> <schedule-id>",
				Flags:     scheduleFlags(),
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id", "schedule-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleAdmin}); err != nil {
						return err
					}

					current, err := p.findSchedule(ctx, values[0], values[1])
					if err != nil {
						return err
					}

					editor := schedule.EditorFrom(current)
					if err := applyScheduleFlags(editor, command, false); err != nil {
						return err
					}

					p.printWarnings(editor)

					updated, err := p.schedules().Save(ctx, values[0], current.ID, editor)
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(p.out, "Updated schedule %s: %s\n", updated.ID, schedule.Describe(*updated))

					return err
				},
			},
			{
				Name:      "toggle",
				Usage:     "Enable a disabled schedule or disable an enabled one",
				ArgsUsage: "<bot-id> <schedule-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id", "schedule-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleAdmin}); err != nil {
						return err
					}

					current, err := p.findSchedule(ctx, values[0], values[1])
					if err != nil {
						return err
					}

					updated, err := p.schedules().Toggle(ctx, current)
					if err != nil {
						return err
					}

					state := "disabled"
					if updated.Enabled {
						state = "enabled"
					}

					_, err = fmt.Fprintf(p.out, "Schedule %s %s\n", updated.ID, state)

					return err
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a schedule",
				ArgsUsage: "<bot-id> <schedule-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id", "schedule-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleAdmin}); err != nil {
						return err
					}

					current, err := p.findSchedule(ctx, values[0], values[1])
					if err != nil {
						return err
					}

					confirmer := schedule.ConfirmFunc(func(prompt string) bool {
						return command.Bool("yes") || confirm(p.in, p.out, prompt)
					})

					deleted, err := p.schedules().Delete(ctx, current, confirmer)
					if err != nil {
						return err
					}

					message := "Aborted"
					if deleted {
						message = "Deleted schedule " + current.ID
					}

					_, err = fmt.Fprintln(p.out, message)

					return err
				},
			},
			{
				Name:      "next",
				Usage:     "Preview the next run times of a schedule",
				ArgsUsage: "<bot-id> <schedule-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "How many runs to show", Value: 5},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id", "schedule-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{BotID: values[0]}); err != nil {
						return err
					}

					current, err := p.findSchedule(ctx, values[0], values[1])
					if err != nil {
						return err
					}

					runs, err := schedule.NextRuns(current, time.Now(), command.Int("count"))
					if err != nil {
						return err
					}

					fmt.Fprintln(p.out, schedule.Describe(current))

					if len(runs) == 0 {
						_, err := fmt.Fprintln(p.out, "No upcoming runs")
						return err
					}

					for _, run := range runs {
						fmt.Fprintln(p.out, "  "+run.Format("Mon 2006-01-02 15:04"))
					}

					return nil
				},
			},
		},
	}
}

func (p *portal) schedules() *schedule.Service {
	return schedule.NewService(p.app.Client, p.app.Bus, p.app.Logger)
}

func (p *portal) findSchedule(ctx context.Context, botID, scheduleID string) (models.BotSchedule, error) {
	schedules, err := p.schedules().List(ctx, botID)
	if err != nil {
		return models.BotSchedule{}, err
	}

	for _, s := range schedules {
		if s.ID == scheduleID {
			return s, nil
		}
	}

	return models.BotSchedule{}, fmt.Errorf("schedule %s of bot %s: %w", scheduleID, botID, errScheduleNotFound)
}

func (p *portal) printWarnings(editor *schedule.Editor) {
	for _, warning := range editor.Warnings() {
		fmt.Fprintln(p.out, "warning: "+warning)
	}
}

// applyScheduleFlags copies the given flags into the editor. On create the
// type follows --date when --type is omitted.
func applyScheduleFlags(editor *schedule.Editor, command *cli.Command, creating bool) error {
	switch {
	case command.IsSet("type"):
		if err := editor.SetType(models.ScheduleType(strings.ToLower(command.String("type")))); err != nil {
			return err
		}
	case creating && command.IsSet("date"):
		if err := editor.SetType(models.ScheduleTypeDates); err != nil {
			return err
		}
	case creating:
		if err := editor.SetType(models.ScheduleTypeFrequency); err != nil {
			return err
		}
	}

	if command.IsSet("date") {
		for _, date := range editor.Dates() {
			editor.RemoveDate(date)
		}

		for _, date := range command.StringSlice("date") {
			if err := editor.AddDate(date); err != nil {
				return err
			}
		}
	}

	if command.IsSet("frequency") {
		if err := editor.SetFrequency(models.FrequencyKind(strings.ToLower(command.String("frequency")))); err != nil {
			return err
		}
	}

	if command.IsSet("weekday") {
		if err := editor.SetWeekday(command.Int("weekday")); err != nil {
			return err
		}
	}

	if command.IsSet("day") {
		for _, day := range editor.Days() {
			if err := editor.ToggleDay(day); err != nil {
				return err
			}
		}

		for _, day := range command.IntSlice("day") {
			if err := editor.ToggleDay(day); err != nil {
				return err
			}
		}
	}

	if command.IsSet("time") {
		if err := editor.SetTime(command.String("time")); err != nil {
			return err
		}
	}

	if command.IsSet("input") {
		for key := range editor.Input() {
			editor.SetInput(key, "")
		}

		for key, value := range command.StringMap("input") {
			editor.SetInput(key, value)
		}
	}

	if command.IsSet("enabled") {
		editor.SetEnabled(command.Bool("enabled"))
	}

	return nil
}
