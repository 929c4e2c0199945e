package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/botportal/pkg/format"
	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/models"
	cli "github.com/urfave/cli/v3"
)

var botValidator = models.NewValidator()

// botFlags are shared by create and update.
func botFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Display name"},
		&cli.StringFlag{Name: "description", Usage: "Short description"},
		&cli.StringFlag{Name: "script", Usage: "Script path on the runner host"},
		&cli.StringSliceFlag{Name: "arg", Usage: "Script argument, repeatable"},
		&cli.StringFlag{Name: "slug", Usage: "Unique page slug"},
		&cli.StringFlag{Name: "icon", Usage: "Icon key (Bot, Database, Monitor, ...)"},
		&cli.BoolFlag{Name: "requires-ui", Usage: "Bot needs a desktop session"},
		&cli.BoolFlag{Name: "data-input", Usage: "Bot accepts input data"},
		&cli.BoolFlag{Name: "scheduling", Usage: "Bot may be scheduled", Value: true},
		&cli.BoolFlag{Name: "enabled", Usage: "Bot may be executed", Value: true},
	}
}

func (p *portal) botsCommand() *cli.Command {
	return &cli.Command{
		Name:  "bots",
		Usage: "List and manage bots",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the bots you can see",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := p.app.Require(ctx, guard.Requirement{}); err != nil {
						return err
					}

					bots, err := p.app.Client.Bots(ctx)
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, bots)
					}

					rows := make([][]string, 0, len(bots))
					for _, bot := range bots {
						rows = append(rows, []string{
							bot.Icon.Glyph() + " " + bot.ID,
							bot.Name,
							bot.PageSlug,
							yesNo(bot.RequiresUI),
							yesNo(bot.Enabled),
						})
					}

					return writeTable(p.out, []string{"ID", "NAME", "SLUG", "UI", "ENABLED"}, rows)
				},
			},
			{
				Name:      "show",
				Usage:     "Show one bot",
				ArgsUsage: "<bot-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{BotID: values[0]}); err != nil {
						return err
					}

					bot, err := p.app.Client.Bot(ctx, values[0])
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, bot)
					}

					return writeFields(p.out, [][2]string{
						{"ID", bot.ID},
						{"Name", bot.Icon.Glyph() + " " + bot.Name},
						{"Description", orMissing(bot.Description)},
						{"Slug", bot.PageSlug},
						{"Script", strings.TrimSpace(bot.ScriptPath + " " + strings.Join(bot.ScriptArgs, " "))},
						{"Requires UI", yesNo(bot.RequiresUI)},
						{"Data input", yesNo(bot.SupportsDataInput)},
						{"Scheduling", yesNo(bot.CanSchedule())},
						{"Enabled", yesNo(bot.Enabled)},
						{"Created", format.Date(bot.CreatedAt)},
					})
				},
			},
			{
				Name:  "create",
				Usage: "Register a bot",
				Flags: botFlags(),
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleSuperadmin}); err != nil {
						return err
					}

					data := models.BotCreate{
						Name:               command.String("name"),
						Description:        command.String("description"),
						RequiresUI:         command.Bool("requires-ui"),
						ScriptPath:         command.String("script"),
						ScriptArgs:         command.StringSlice("arg"),
						PageSlug:           command.String("slug"),
						Enabled:            command.Bool("enabled"),
						Icon:               models.ParseIcon(command.String("icon")),
						SupportsDataInput:  command.Bool("data-input"),
						SupportsScheduling: command.Bool("scheduling"),
					}

					if err := botValidator.Struct(data); err != nil {
						return fmt.Errorf("invalid bot: %w", err)
					}

					bot, err := p.app.Client.CreateBot(ctx, data)
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, bot)
					}

					_, err = fmt.Fprintf(p.out, "Created bot %s (%s)\n", bot.ID, bot.PageSlug)

					return err
				},
			},
			{
				Name:      "update",
				Usage:     "Change fields of a bot",
				ArgsUsage: "<bot-id>",
				Flags:     botFlags(),
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleSuperadmin}); err != nil {
						return err
					}

					data := botUpdate(command)
					if err := botValidator.Struct(data); err != nil {
						return fmt.Errorf("invalid bot: %w", err)
					}

					bot, err := p.app.Client.UpdateBot(ctx, values[0], data)
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, bot)
					}

					_, err = fmt.Fprintf(p.out, "Updated bot %s\n", bot.ID)

					return err
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a bot",
				ArgsUsage: "<bot-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "bot-id")
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleSuperadmin}); err != nil {
						return err
					}

					if !command.Bool("yes") && !confirm(p.in, p.out, "Delete bot "+values[0]+"?") {
						_, err := fmt.Fprintln(p.out, "Aborted")
						return err
					}

					if err := p.app.Client.DeleteBot(ctx, values[0]); err != nil {
						return err
					}

					_, err = fmt.Fprintf(p.out, "Deleted bot %s\n", values[0])

					return err
				},
			},
		},
	}
}

// botUpdate sends only the flags given on the command line.
func botUpdate(command *cli.Command) models.BotUpdate {
	var data models.BotUpdate

	if command.IsSet("name") {
		name := command.String("name")
		data.Name = &name
	}

	if command.IsSet("description") {
		description := command.String("description")
		data.Description = &description
	}

	if command.IsSet("script") {
		script := command.String("script")
		data.ScriptPath = &script
	}

	if command.IsSet("arg") {
		data.ScriptArgs = command.StringSlice("arg")
	}

	if command.IsSet("slug") {
		slug := command.String("slug")
		data.PageSlug = &slug
	}

	if command.IsSet("icon") {
		icon := models.ParseIcon(command.String("icon"))
		data.Icon = &icon
	}

	data.RequiresUI = boolIfSet(command, "requires-ui")
	data.SupportsDataInput = boolIfSet(command, "data-input")
	data.SupportsScheduling = boolIfSet(command, "scheduling")
	data.Enabled = boolIfSet(command, "enabled")

	return data
}

func boolIfSet(command *cli.Command, name string) *bool {
	if !command.IsSet(name) {
		return nil
	}

	value := command.Bool(name)

	return &value
}
