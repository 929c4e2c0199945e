package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	botcmd "github.com/dukex/botportal/pkg/cmd"
	"github.com/dukex/botportal/pkg/elapsed"
	"github.com/dukex/botportal/pkg/eventbus"
	"github.com/dukex/botportal/pkg/events"
	"github.com/dukex/botportal/pkg/execsync"
	"github.com/dukex/botportal/pkg/format"
	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/models"
	cli "github.com/urfave/cli/v3"
)

var errBotDisabled = errors.New("bot is disabled")

func (p *portal) runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a bot",
		ArgsUsage: "<bot-id>",
		Flags: []cli.Flag{
			&cli.StringMapFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Input value as key=value, repeatable",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Follow the execution until it finishes",
			},
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "Baseline refresh interval while watching",
				Value: 15 * time.Second,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			values, err := args(command, "bot-id")
			if err != nil {
				return err
			}

			botID := values[0]

			if err := p.app.Require(ctx, guard.Requirement{BotID: botID}); err != nil {
				return err
			}

			bot, err := p.app.Client.Bot(ctx, botID)
			if err != nil {
				return err
			}

			if !bot.Enabled {
				return fmt.Errorf("%w: %s", errBotDisabled, bot.Name)
			}

			input := command.StringMap("input")

			form, ok, err := botcmd.FormFor(p.app.Forms, *bot)
			if err != nil {
				return err
			}

			if ok {
				if err := form.Validate(input); err != nil {
					return err
				}
			}

			tracker := execsync.New(
				execsync.FromClient(p.app.Client, bot.ID),
				execsync.WithLogger(p.app.Logger),
				execsync.WithPublisher(p.app.Bus),
			)
			defer tracker.Close()

			if !command.Bool("watch") {
				execution, err := tracker.Launch(ctx, bot.ID, input)
				if err != nil {
					return err
				}

				if wantsJSON(command) {
					return writeJSON(p.out, execution)
				}

				_, err = fmt.Fprintf(p.out, "Execution %s %s\n", execution.ID, execution.Status)

				return err
			}

			watcher := newWatcher(p.out)

			if err := watcher.listen(ctx, p.app.Bus); err != nil {
				return err
			}

			execution, err := tracker.Launch(ctx, bot.ID, input)
			if err != nil {
				return err
			}

			watcher.track(execution.ID)
			watcher.printf("Execution %s queued for %s\n", execution.ID, bot.Name)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			go tracker.Run(ctx, command.Duration("refresh"))

			final, err := watcher.wait(ctx)
			if err != nil {
				return err
			}

			if final.Status != models.ExecutionStatusCompleted {
				return fmt.Errorf("execution %s %s: %s", final.ID, final.Status, orMissing(final.ErrorMessage))
			}

			return nil
		},
	}
}

// watcher prints status changes of one execution from tracker events.
type watcher struct {
	out   io.Writer
	timer *elapsed.Timer

	mu      sync.Mutex
	id      string
	status  models.ExecutionStatus
	version uint64
	done   chan models.Execution
}

func newWatcher(out io.Writer) *watcher {
	return &watcher{
		out:   out,
		timer: elapsed.NewTimer(nil, nil),
		done:  make(chan models.Execution, 1),
	}
}

func (w *watcher) listen(ctx context.Context, bus eventbus.EventSubscriber) error {
	if err := bus.Handle(events.ExecutionsUpdatedEvent, func(_ context.Context, event any) error {
		updated, ok := event.(*events.ExecutionsUpdated)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		if !w.advance(updated) {
			return nil
		}

		for _, execution := range updated.Executions {
			w.observe(execution)
		}

		return nil
	}); err != nil {
		return err
	}

	if err := bus.Handle(events.ExecutionFinishedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.ExecutionFinished)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		w.observe(finished.Execution)

		return nil
	}); err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}

// advance records the snapshot version and reports whether the snapshot
// is newer than every one seen before.
func (w *watcher) advance(updated *events.ExecutionsUpdated) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !updated.Supersedes(w.version) {
		return false
	}

	w.version = updated.Version

	return true
}

func (w *watcher) observe(execution models.Execution) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.id == "" || execution.ID != w.id || execution.Status == w.status || w.status.IsTerminal() {
		return
	}

	w.status = execution.Status
	w.timer.Set(execution.TimerBase(), execution.IsActive())

	timing := format.Elapsed(w.timer.Value())
	if execution.Status.IsTerminal() {
		timing = format.Duration(execution.DurationSeconds)
	}

	fmt.Fprintf(w.out, "%s  %-14s %s\n", time.Now().Format(time.TimeOnly), format.Status(execution.Status), timing)

	if execution.Status.IsTerminal() {
		w.timer.Stop()
		select {
		case w.done <- execution:
		default:
		}
	}
}

// track selects the execution to follow; earlier events are ignored.
func (w *watcher) track(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.id = id
}

func (w *watcher) printf(layout string, a ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintf(w.out, layout, a...)
}

func (w *watcher) wait(ctx context.Context) (models.Execution, error) {
	select {
	case execution := <-w.done:
		return execution, nil
	case <-ctx.Done():
		w.timer.Stop()
		return models.Execution{}, ctx.Err()
	}
}
