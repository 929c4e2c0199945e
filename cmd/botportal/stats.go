package main

import (
	"context"

	"github.com/dukex/botportal/pkg/format"
	"github.com/dukex/botportal/pkg/guard"
	cli "github.com/urfave/cli/v3"
)

func (p *portal) statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show portal counters",
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := p.app.Require(ctx, guard.Requirement{}); err != nil {
				return err
			}

			stats, err := p.app.Client.Stats(ctx)
			if err != nil {
				return err
			}

			if wantsJSON(command) {
				return writeJSON(p.out, stats)
			}

			return writeFields(p.out, [][2]string{
				{"Executions", format.Count(stats.TotalExecutions)},
				{"Today", format.Count(stats.ExecutionsToday)},
				{"Running", format.Count(stats.ExecutionsRunning)},
				{"Queued", format.Count(stats.ExecutionsQueued)},
				{"Completed", format.Count(stats.ExecutionsCompleted)},
				{"Failed", format.Count(stats.ExecutionsFailed)},
				{"Bots", format.Count(stats.TotalBots)},
				{"Enabled bots", format.Count(stats.BotsEnabled)},
			})
		},
	}
}

func (p *portal) queueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Show how many executions wait in each run queue",
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := p.app.Require(ctx, guard.Requirement{}); err != nil {
				return err
			}

			status, err := p.app.Client.QueueStatus(ctx)
			if err != nil {
				return err
			}

			if wantsJSON(command) {
				return writeJSON(p.out, status)
			}

			return writeFields(p.out, [][2]string{
				{"Desktop queue", format.Count(status.UIQueueSize)},
				{"Headless queue", format.Count(status.HeadlessQueueSize)},
			})
		},
	}
}
