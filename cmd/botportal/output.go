package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dukex/botportal/pkg/client"
	"github.com/dukex/botportal/pkg/execform"
	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/models"
	"github.com/dukex/botportal/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

var (
	errUsage = errors.New("usage")

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// describeError turns an error into the line shown to the user.
func describeError(err error) string {
	var validation *execform.ValidationError

	switch {
	case errors.Is(err, guard.ErrLoginRequired), errors.Is(err, client.ErrUnauthorized):
		return "not logged in, run: botportal login --token <token>"
	case errors.Is(err, guard.ErrForbidden):
		return err.Error()
	case errors.Is(err, models.ErrInvalidSchedule):
		if messages := schedule.ValidationMessages(err); len(messages) > 0 {
			return "invalid schedule: " + strings.Join(messages, "; ")
		}

		return err.Error()
	case errors.As(err, &validation):
		return "invalid input: " + validation.Error()
	case client.StatusCode(err) != 0:
		return client.Message(err)
	default:
		return err.Error()
	}
}

func wantsJSON(command *cli.Command) bool {
	return command.Bool("json")
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		BorderTop(false).
		BorderBottom(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	_, err := fmt.Fprintln(w, t.Render())

	return err
}

// writeFields prints label/value pairs aligned on the label column.
func writeFields(w io.Writer, fields [][2]string) error {
	width := 0
	for _, field := range fields {
		width = max(width, len(field[0]))
	}

	label := lipgloss.NewStyle().Width(width + 2)

	for _, field := range fields {
		if _, err := fmt.Fprintln(w, label.Render(field[0]+":")+field[1]); err != nil {
			return err
		}
	}

	return nil
}

// args returns exactly n positional arguments or a usage error.
func args(command *cli.Command, names ...string) ([]string, error) {
	if command.Args().Len() != len(names) {
		return nil, fmt.Errorf("%w: %s %s", errUsage, command.FullName(), strings.Join(wrap(names), " "))
	}

	return command.Args().Slice(), nil
}

func wrap(names []string) []string {
	wrapped := make([]string, len(names))
	for i, name := range names {
		wrapped[i] = "<" + name + ">"
	}

	return wrapped
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes"
}

func orMissing(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
