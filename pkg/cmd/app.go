package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/botportal/pkg/client"
	"github.com/dukex/botportal/pkg/eventbus"
	"github.com/dukex/botportal/pkg/events"
	"github.com/dukex/botportal/pkg/execform"
	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/otelhelper"
	"github.com/dukex/botportal/pkg/session"
)

// ServiceName identifies the CLI in traces.
const ServiceName = "botportal"

// Config selects the collaborators of an App.
type Config struct {
	APIURL     string
	TokenStore string
	Token      string
	FormsFile  string
	EventBus   string
	OTel       bool
	HTTPClient *http.Client
}

// App holds the collaborators every command shares. It is built once per
// process.
type App struct {
	Logger  *slog.Logger
	Client  *client.Client
	Session *session.Session
	Guard   *guard.Guard
	Bus     eventbus.EventBus
	Forms   *execform.Registry

	shutdown otelhelper.ShutdownFunc
}

func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	store, err := NewTokenStore(cfg.TokenStore, cfg.Token)
	if err != nil {
		return nil, err
	}

	forms, err := NewFormRegistry(cfg.FormsFile)
	if err != nil {
		return nil, err
	}

	bus, err := NewEventBus(cfg.EventBus, logger)
	if err != nil {
		return nil, err
	}

	app := &App{Logger: logger, Bus: bus, Forms: forms}

	if cfg.OTel {
		shutdown, err := otelhelper.Setup(ctx, ServiceName)
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}

		app.shutdown = shutdown
	}

	app.Session = session.New(store, logger)

	opts := []client.Option{client.WithLogger(logger)}
	if cfg.HTTPClient != nil {
		opts = append(opts, client.WithHTTPClient(cfg.HTTPClient))
	}

	app.Client = client.New(cfg.APIURL, app.Session, opts...)
	app.Session.UseFetcher(app.Client)
	app.Session.OnUnauthorized(func() {
		if err := bus.Publish(context.Background(), "session", events.NewSessionInvalidated()); err != nil {
			logger.Debug("Failed to publish session invalidation", "error", err)
		}
	})

	app.Guard = guard.New(app.Session)

	return app, nil
}

// Require loads the session on first use and checks req against it.
func (a *App) Require(ctx context.Context, req guard.Requirement) error {
	if a.Session.State() == session.StateLoading {
		if err := a.Session.Load(ctx); err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				return guard.ErrLoginRequired
			}

			return err
		}
	}

	return a.Guard.Require(req)
}

func (a *App) Close(ctx context.Context) error {
	var errs []error

	if err := a.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}

	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

	return errors.Join(errs...)
}
