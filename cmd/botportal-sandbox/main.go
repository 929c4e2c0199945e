// Command botportal-sandbox serves an in-memory portal backend for local
// development.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/botportal/pkg/config"
	"github.com/dukex/botportal/pkg/log"
	"github.com/dukex/botportal/pkg/sandbox"
	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 8002

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "botportal-sandbox",
		Usage: "Serve the portal API from memory",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "seed",
				Usage:   "YAML file with users and bots; the built-in seed is used when missing",
				Sources: cli.EnvVars("BOTPORTAL_SANDBOX_SEED"),
			},
			&cli.DurationFlag{
				Name:  "run-duration",
				Usage: "How long a simulated execution runs",
				Value: 5 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "stream-interval",
				Usage: "Gap between pushed execution snapshots",
				Value: time.Second,
			},
			&cli.IntFlag{
				Name:  "max-headless",
				Usage: "Concurrent runs of bots that need no desktop",
				Value: 3,
			},
			&cli.BoolFlag{
				Name:  "access-log",
				Usage: "Log every request to stdout",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("sandbox")

			seed, err := config.LoadSeedOrDefault(command.String("seed"))
			if err != nil {
				return err
			}

			cfg := sandbox.Config{
				StreamInterval: command.Duration("stream-interval"),
				RunDuration:    command.Duration("run-duration"),
				MaxHeadless:    command.Int("max-headless"),
			}

			if command.Bool("access-log") {
				cfg.AccessLog = os.Stdout
			}

			store := sandbox.NewStore(nil)
			store.Load(seed)

			server := sandbox.New(store, nil, logger, cfg)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			go server.Runner().Run(ctx)

			go func() {
				<-ctx.Done()

				if err := server.Shutdown(); err != nil {
					logger.Error("Failed to shut down sandbox", "error", err)
				}
			}()

			for _, u := range seed.Users {
				logger.Info("Sandbox user", "email", u.Email, "role", u.Role, "token", u.Token)
			}

			port := strconv.Itoa(command.Int("port"))
			logger.InfoContext(ctx, "Starting sandbox", "port", port)

			return server.App().Listen(":"+port, fiber.ListenConfig{DisableStartupMessage: true})
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithModule("sandbox").Error("sandbox failed", "error", err)
		os.Exit(1)
	}
}
