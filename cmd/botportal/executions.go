package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/botportal/pkg/artifacts"
	"github.com/dukex/botportal/pkg/elapsed"
	"github.com/dukex/botportal/pkg/format"
	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/models"
	"github.com/dustin/go-humanize"
	cli "github.com/urfave/cli/v3"
)

func (p *portal) executionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "executions",
		Aliases: []string{"exec"},
		Usage:   "Inspect executions and their files",
		Commands: []*cli.Command{
			p.executionsListCommand(),
			{
				Name:      "show",
				Usage:     "Show one execution",
				ArgsUsage: "<execution-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := p.requireExecution(ctx, command)
					if err != nil {
						return err
					}

					execution, err := p.app.Client.Execution(ctx, values[0])
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, execution)
					}

					return writeFields(p.out, executionFields(*execution, time.Now()))
				},
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a queued or running execution",
				ArgsUsage: "<execution-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := p.requireExecution(ctx, command)
					if err != nil {
						return err
					}

					result, err := p.app.Client.CancelExecution(ctx, values[0])
					if err != nil {
						return err
					}

					message := "Execution removed from the queue"
					if result.Killed {
						message = "Execution stopped"
					}

					_, err = fmt.Fprintln(p.out, message)

					return err
				},
			},
			{
				Name:      "watch",
				Usage:     "Follow pushed updates of an execution until it finishes",
				ArgsUsage: "<execution-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := p.requireExecution(ctx, command)
					if err != nil {
						return err
					}

					return p.follow(ctx, values[0])
				},
			},
			{
				Name:      "files",
				Usage:     "List the files an execution produced",
				ArgsUsage: "<execution-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := p.requireExecution(ctx, command)
					if err != nil {
						return err
					}

					files, err := p.app.Client.ExecutionFiles(ctx, values[0])
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, files)
					}

					if files.Count() == 0 {
						_, err := fmt.Fprintln(p.out, "No files")
						return err
					}

					var rows [][]string
					for _, group := range files.Categories() {
						for _, file := range group.Files {
							rows = append(rows, []string{
								group.Category,
								file.Name,
								format.Bytes(file.Size),
								artifacts.Classify(file.Name).String(),
								file.Path,
							})
						}
					}

					return writeTable(p.out, []string{"GROUP", "NAME", "SIZE", "KIND", "PATH"}, rows)
				},
			},
			{
				Name:      "cat",
				Usage:     "Print a text file of an execution",
				ArgsUsage: "<execution-id> <path>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "execution-id", "path")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{}); err != nil {
						return err
					}

					text, err := p.app.Client.FileText(ctx, values[0], values[1])
					if err != nil {
						return err
					}

					_, err = io.WriteString(p.out, text)
					if err == nil && !strings.HasSuffix(text, "\n") {
						_, err = fmt.Fprintln(p.out)
					}

					return err
				},
			},
			{
				Name:      "download",
				Usage:     "Save one file of an execution",
				ArgsUsage: "<execution-id> <path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Destination file, defaults to the file name"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "execution-id", "path")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{}); err != nil {
						return err
					}

					destination := command.String("output")
					if destination == "" {
						destination = path.Base(values[1])
					}

					f, err := os.Create(destination)
					if err != nil {
						return err
					}

					written, err := p.app.Client.DownloadFile(ctx, values[0], values[1], f)
					if closeErr := f.Close(); err == nil {
						err = closeErr
					}

					if err != nil {
						_ = os.Remove(destination)
						return err
					}

					_, err = fmt.Fprintf(p.out, "Saved %s (%s)\n", destination, humanize.IBytes(uint64(written)))

					return err
				},
			},
			{
				Name:      "zip",
				Usage:     "Save every file of an execution as a zip archive",
				ArgsUsage: "<execution-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Destination directory", Value: "."},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := p.requireExecution(ctx, command)
					if err != nil {
						return err
					}

					destination, err := p.downloadZip(ctx, values[0], command.String("dir"))
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(p.out, "Saved %s\n", destination)

					return err
				},
			},
		},
	}
}

func (p *portal) executionsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recent executions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bot", Aliases: []string{"b"}, Usage: "Only executions of this bot"},
			&cli.BoolFlag{Name: "active", Aliases: []string{"a"}, Usage: "Only queued or running executions"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Show at most this many rows, 0 for all", Value: 20},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			botID := command.String("bot")

			if err := p.app.Require(ctx, guard.Requirement{BotID: botID}); err != nil {
				return err
			}

			var (
				executions []models.Execution
				err        error
			)

			if botID != "" {
				executions, err = p.app.Client.BotExecutions(ctx, botID)
			} else {
				executions, err = p.app.Client.Executions(ctx)
			}

			if err != nil {
				return err
			}

			if command.Bool("active") {
				active := executions[:0:0]
				for _, execution := range executions {
					if execution.IsActive() {
						active = append(active, execution)
					}
				}

				executions = active
			}

			if limit := command.Int("limit"); limit > 0 && len(executions) > limit {
				executions = executions[:limit]
			}

			if wantsJSON(command) {
				return writeJSON(p.out, executions)
			}

			if len(executions) == 0 {
				_, err := fmt.Fprintln(p.out, "No executions")
				return err
			}

			now := time.Now()
			rows := make([][]string, 0, len(executions))

			for _, execution := range executions {
				rows = append(rows, []string{
					execution.ID,
					execution.BotName,
					format.Status(execution.Status),
					format.Date(execution.QueuedAt),
					timing(execution, now),
					orMissing(execution.TriggeredByName),
				})
			}

			return writeTable(p.out, []string{"ID", "BOT", "STATUS", "QUEUED", "TIME", "BY"}, rows)
		},
	}
}

func (p *portal) requireExecution(ctx context.Context, command *cli.Command) ([]string, error) {
	values, err := args(command, "execution-id")
	if err != nil {
		return nil, err
	}

	if err := p.app.Require(ctx, guard.Requirement{}); err != nil {
		return nil, err
	}

	return values, nil
}

// follow prints every status change pushed for an execution until the
// server ends the stream.
func (p *portal) follow(ctx context.Context, executionID string) error {
	stream, err := p.app.Client.StreamExecution(ctx, executionID)
	if err != nil {
		return err
	}

	defer func() { _ = stream.Close() }()

	timer := elapsed.NewTimer(nil, nil)
	defer timer.Stop()

	var last *models.Execution

	for {
		execution, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return err
		}

		timer.Set(execution.TimerBase(), execution.IsActive())

		if last == nil || last.Status != execution.Status {
			shown := format.Duration(execution.DurationSeconds)
			if execution.IsActive() {
				shown = format.Elapsed(timer.Value())
			}

			fmt.Fprintf(p.out, "%s  %-14s %s\n", time.Now().Format(time.TimeOnly), format.Status(execution.Status), shown)
		}

		last = execution
	}

	if last != nil && last.Status.IsTerminal() && last.Status != models.ExecutionStatusCompleted {
		return fmt.Errorf("execution %s %s: %s", last.ID, last.Status, orMissing(last.ErrorMessage))
	}

	return nil
}

// downloadZip writes the archive under dir with the name the server picks,
// or the local archive name when the server sends none.
func (p *portal) downloadZip(ctx context.Context, executionID, dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".botportal-*.zip")
	if err != nil {
		return "", err
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	filename, err := p.app.Client.DownloadZip(ctx, executionID, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return "", err
	}

	name := filepath.Base(filename)
	if filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		execution, err := p.app.Client.Execution(ctx, executionID)
		if err != nil {
			return "", err
		}

		name = artifacts.ZipFilename(*execution)
	}

	destination := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), destination); err != nil {
		return "", err
	}

	return destination, nil
}

func timing(execution models.Execution, now time.Time) string {
	if execution.IsActive() {
		return format.Elapsed(elapsed.Seconds(execution.TimerBase(), true, now))
	}

	return format.Duration(execution.DurationSeconds)
}

func executionFields(execution models.Execution, now time.Time) [][2]string {
	fields := [][2]string{
		{"ID", execution.ID},
		{"Bot", execution.BotName + " (" + execution.BotID + ")"},
		{"Status", format.Status(execution.Status)},
		{"Queued", format.Date(execution.QueuedAt)},
		{"Started", format.OptionalDate(execution.StartedAt)},
		{"Completed", format.OptionalDate(execution.CompletedAt)},
		{"Time", timing(execution, now)},
		{"Triggered by", orMissing(execution.TriggeredByName)},
		{"Folder", orMissing(execution.RunFolder)},
	}

	if execution.ExitCode != nil {
		fields = append(fields, [2]string{"Exit code", fmt.Sprint(*execution.ExitCode)})
	}

	if execution.ErrorMessage != "" {
		fields = append(fields, [2]string{"Error", execution.ErrorMessage})
	}

	for _, key := range sortedKeys(execution.InputData) {
		fields = append(fields, [2]string{"Input " + key, execution.InputData[key]})
	}

	return fields
}
