package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/botportal/pkg/guard"
	cli "github.com/urfave/cli/v3"
)

func (p *portal) loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Store a session token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "token",
				Usage: "Token issued by the portal after Google sign-in",
			},
			&cli.BoolFlag{
				Name:  "print-url",
				Usage: "Print the Google sign-in URL and exit",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Bool("print-url") {
				url, err := p.app.Client.GoogleURL(ctx)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(p.out, url)

				return err
			}

			token := strings.TrimSpace(command.String("token"))
			if token == "" {
				return fmt.Errorf("%w: botportal login --token <token> | --print-url", errUsage)
			}

			if err := p.app.Session.SetToken(ctx, token); err != nil {
				return err
			}

			user := p.app.Session.User()
			_, err := fmt.Fprintf(p.out, "Logged in as %s (%s)\n", user.DisplayName(), user.Role)

			return err
		},
	}
}

func (p *portal) logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session token",
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := p.app.Session.Logout(ctx); err != nil {
				return err
			}

			_, err := fmt.Fprintln(p.out, "Logged out")

			return err
		},
	}
}

func (p *portal) whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := p.app.Require(ctx, guard.Requirement{}); err != nil {
				return err
			}

			user := p.app.Session.User()
			if user == nil {
				return errors.New("no user loaded")
			}

			if wantsJSON(command) {
				return writeJSON(p.out, user)
			}

			bots := "all"
			if !user.Role.IsAdmin() {
				bots = orMissing(strings.Join(user.AllowedBotIDs, ", "))
			}

			return writeFields(p.out, [][2]string{
				{"Name", user.DisplayName()},
				{"Email", user.Email},
				{"Role", string(user.Role)},
				{"Bots", bots},
			})
		},
	}
}
