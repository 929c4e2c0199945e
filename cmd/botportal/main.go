// Command botportal operates the bot portal from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	botcmd "github.com/dukex/botportal/pkg/cmd"
	"github.com/dukex/botportal/pkg/client"
	"github.com/dukex/botportal/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

// portal carries what every subcommand shares: the wired App and the
// terminal streams.
type portal struct {
	app     *botcmd.App
	out     io.Writer
	in      io.Reader
	logFile *os.File
}

func newRootCommand(out io.Writer, in io.Reader) *cli.Command {
	p := &portal{out: out, in: in}

	return &cli.Command{
		Name:                  "botportal",
		Usage:                 "Run and monitor portal bots",
		EnableShellCompletion: true,
		Writer:                out,
		Reader:                in,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Base URL of the portal API",
				Value:   client.DefaultBaseURL,
				Sources: cli.EnvVars("BOTPORTAL_API_URL"),
			},
			&cli.StringFlag{
				Name:    "token-store",
				Usage:   "Where the session token is kept (file://path, redis://host:port/db, memory://)",
				Sources: cli.EnvVars("BOTPORTAL_TOKEN_STORE"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Use this token for the invocation instead of the stored one",
				Sources: cli.EnvVars("BOTPORTAL_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "forms",
				Usage:   "JSON file with execute-action input forms",
				Sources: cli.EnvVars("BOTPORTAL_FORMS"),
			},
			&cli.BoolFlag{
				Name:    "json",
				Usage:   "Print results as JSON",
				Sources: cli.EnvVars("BOTPORTAL_JSON"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export request traces over OTLP/HTTP",
				Sources: cli.EnvVars("BOTPORTAL_OTEL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Append logs to this file instead of stderr",
				Sources: cli.EnvVars("BOTPORTAL_LOG_FILE"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			if path := command.String("log-file"); path != "" {
				f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return ctx, fmt.Errorf("open log file: %w", err)
				}

				p.logFile = f
				log.SetupWriter(f, command.String("log-level"))
			} else {
				log.Setup(command.String("log-level"))
			}

			app, err := botcmd.NewApp(ctx, botcmd.Config{
				APIURL:     command.String("api-url"),
				TokenStore: command.String("token-store"),
				Token:      command.String("token"),
				FormsFile:  command.String("forms"),
				OTel:       command.Bool("otel"),
			}, log.WithModule("botportal"))
			if err != nil {
				return ctx, err
			}

			p.app = app

			return ctx, nil
		},
		After: func(ctx context.Context, _ *cli.Command) error {
			var err error
			if p.app != nil {
				err = p.app.Close(ctx)
			}

			if p.logFile != nil {
				err = errors.Join(err, p.logFile.Close())
			}

			return err
		},
		Commands: []*cli.Command{
			p.loginCommand(),
			p.logoutCommand(),
			p.whoamiCommand(),
			p.botsCommand(),
			p.runCommand(),
			p.executionsCommand(),
			p.schedulesCommand(),
			p.usersCommand(),
			p.statsCommand(),
			p.queueCommand(),
			p.dashboardCommand(),
		},
	}
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand(os.Stdout, os.Stdin).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "botportal:", describeError(err))
		os.Exit(1)
	}
}
