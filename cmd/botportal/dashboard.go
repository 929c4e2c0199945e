package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dukex/botportal/pkg/execsync"
	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/tui"
	cli "github.com/urfave/cli/v3"
)

// Refresh cadence of the global executions view and of a bot history.
const (
	executionsRefresh = 5 * time.Second
	historyRefresh    = 15 * time.Second
)

func (p *portal) dashboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Watch executions live",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bot", Aliases: []string{"b"}, Usage: "Only executions of this bot"},
			&cli.DurationFlag{Name: "refresh", Usage: "Baseline refresh interval (default 5s, 15s with --bot)"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			botID := command.String("bot")

			if err := p.app.Require(ctx, guard.Requirement{BotID: botID}); err != nil {
				return err
			}

			refresh := command.Duration("refresh")
			if refresh <= 0 {
				refresh = executionsRefresh
				if botID != "" {
					refresh = historyRefresh
				}
			}

			title := "Executions"
			if botID != "" {
				bot, err := p.app.Client.Bot(ctx, botID)
				if err != nil {
					return err
				}

				title = bot.Icon.Glyph() + " " + bot.Name
			}

			feed, err := tui.NewFeed(p.app.Bus)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if err := p.app.Bus.Subscribe(ctx); err != nil {
				return err
			}

			tracker := execsync.New(
				execsync.FromClient(p.app.Client, botID),
				execsync.WithLogger(p.app.Logger),
				execsync.WithPublisher(p.app.Bus),
			)
			defer tracker.Close()

			go tracker.Run(ctx, refresh)

			model := tui.NewModel(p.app.Client, tracker, feed,
				tui.WithTitle(title),
				tui.WithContext(ctx),
			)

			_, err = tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(p.in),
				tea.WithOutput(p.out),
			).Run()

			return err
		},
	}
}
