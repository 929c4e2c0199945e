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

func (p *portal) usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage portal accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List accounts",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleAdmin}); err != nil {
						return err
					}

					users, err := p.app.Client.AdminUsers(ctx)
					if err != nil {
						return err
					}

					if wantsJSON(command) {
						return writeJSON(p.out, users)
					}

					rows := make([][]string, 0, len(users))
					for _, user := range users {
						bots := "all"
						if !user.Role.IsAdmin() {
							bots = orMissing(strings.Join(user.AllowedBotIDs, ", "))
						}

						rows = append(rows, []string{
							user.ID,
							user.Email,
							user.DisplayName(),
							string(user.Role),
							bots,
							format.OptionalDate(user.LastLogin),
						})
					}

					return writeTable(p.out, []string{"ID", "EMAIL", "NAME", "ROLE", "BOTS", "LAST LOGIN"}, rows)
				},
			},
			{
				Name:      "role",
				Usage:     "Change the role of an account",
				ArgsUsage: "<user-id> <user|admin|superadmin>",
				Action: func(ctx context.Context, command *cli.Command) error {
					values, err := args(command, "user-id", "role")
					if err != nil {
						return err
					}

					role, err := models.ParseRole(values[1])
					if err != nil {
						return err
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleSuperadmin}); err != nil {
						return err
					}

					user, err := p.app.Client.UpdateUserRole(ctx, values[0], role)
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(p.out, "%s is now %s\n", user.Email, user.Role)

					return err
				},
			},
			{
				Name:      "bots",
				Usage:     "Replace the bots an account may run",
				ArgsUsage: "<user-id> [bot-id ...]",
				Action: func(ctx context.Context, command *cli.Command) error {
					if command.Args().Len() < 1 {
						return fmt.Errorf("%w: %s <user-id> [bot-id ...]", errUsage, command.FullName())
					}

					if err := p.app.Require(ctx, guard.Requirement{Role: models.RoleAdmin}); err != nil {
						return err
					}

					botIDs := command.Args().Tail()
					if botIDs == nil {
						botIDs = []string{}
					}

					user, err := p.app.Client.UpdateUserBots(ctx, command.Args().First(), botIDs)
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(p.out, "%s may run: %s\n", user.Email, orMissing(strings.Join(user.AllowedBotIDs, ", ")))

					return err
				},
			},
		},
	}
}
