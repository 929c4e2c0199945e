// Package sandbox serves the portal REST and server-push contract from memory
// for local development and integration tests.
package sandbox

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/jonboulle/clockwork"
)

// Config tunes the simulated backend.
type Config struct {
	StreamInterval time.Duration // gap between pushed snapshots
	RunnerTick     time.Duration // how often the runner steps
	RunDuration    time.Duration // how long a simulated run takes
	MaxHeadless    int           // concurrent headless runs
	AccessLog      io.Writer     // request log destination, nil disables it
}

func (c Config) withDefaults() Config {
	if c.StreamInterval <= 0 {
		c.StreamInterval = time.Second
	}

	if c.RunnerTick <= 0 {
		c.RunnerTick = time.Second
	}

	if c.RunDuration <= 0 {
		c.RunDuration = 5 * time.Second
	}

	if c.MaxHeadless <= 0 {
		c.MaxHeadless = 3
	}

	return c
}

const userKey = "sandbox.user"

// Server bundles the fiber app with its store and runner.
type Server struct {
	store  *Store
	runner *Runner
	app    *fiber.App
	done   chan struct{}
}

// New builds the sandbox app over store.
func New(store *Store, clock clockwork.Clock, log *slog.Logger, cfg Config) *Server {
	cfg = cfg.withDefaults()

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		store:  store,
		runner: NewRunner(store, clock, log, cfg),
		done:   make(chan struct{}),
	}

	h := &handlers{
		store:     store,
		validator: models.NewValidator(),
		clock:     clock,
		interval:  cfg.StreamInterval,
		done:      s.done,
		logger:    log.With("component", "api"),
	}

	// Route values outlive handlers in stored records and open streams.
	app := fiber.New(fiber.Config{
		AppName:      "botportal-sandbox",
		Immutable:    true,
		UnescapePath: true,
	})
	app.Use(cors.New())

	if cfg.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: cfg.AccessLog, DisableColors: true}))
	}

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/api/health", h.health)
	app.Get("/api/auth/google-url", h.googleURL)

	api := app.Group("/api", h.authenticate)

	api.Get("/auth/me", h.me)

	api.Get("/bots", h.listBots)
	api.Get("/bots/:id", h.getBot)
	api.Post("/bots/:id/execute", h.executeBot)
	api.Get("/bots/:id/executions", h.botExecutions)
	api.Get("/bots/:id/schedules", h.listSchedules)
	api.Post("/bots/:id/schedules", h.createSchedule, requireRole(models.RoleAdmin))

	api.Get("/executions", h.listExecutions)
	api.Get("/executions/:id", h.getExecution)
	api.Get("/executions/:id/stream", h.streamExecution)
	api.Post("/executions/:id/cancel", h.cancelExecution)
	api.Get("/executions/:id/files", h.executionFiles)
	api.Get("/executions/:id/file-text", h.fileText)
	api.Get("/executions/:id/download-zip", h.downloadZip)
	api.Get("/executions/:id/download/*", h.downloadFile)

	api.Put("/schedules/:id", h.updateSchedule, requireRole(models.RoleAdmin))
	api.Delete("/schedules/:id", h.deleteSchedule, requireRole(models.RoleAdmin))

	api.Get("/admin/users", h.listUsers, requireRole(models.RoleAdmin))
	api.Put("/admin/users/:id/role", h.updateUserRole, requireRole(models.RoleSuperadmin))
	api.Put("/admin/users/:id/bots", h.updateUserBots, requireRole(models.RoleAdmin))
	api.Post("/admin/bots", h.createBot, requireRole(models.RoleSuperadmin))
	api.Put("/admin/bots/:id", h.updateBot, requireRole(models.RoleSuperadmin))
	api.Delete("/admin/bots/:id", h.deleteBot, requireRole(models.RoleSuperadmin))

	api.Get("/stats", h.stats)
	api.Get("/queue-status", h.queueStatus)

	s.app = app

	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Store() *Store { return s.store }

func (s *Server) Runner() *Runner { return s.runner }

// Shutdown ends open streams and stops the listener.
func (s *Server) Shutdown() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}

	return s.app.Shutdown()
}

// authenticate resolves the bearer header, or the token query parameter used
// by downloads and the push channel.
func (h *handlers) authenticate(c fiber.Ctx) error {
	token := c.Query("token")

	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			token = strings.TrimSpace(value)
		}
	}

	user, ok := h.store.Authenticate(token)
	if !ok {
		return unauthorized(c)
	}

	c.Locals(userKey, user)

	return c.Next()
}

func currentUser(c fiber.Ctx) models.User {
	return fiber.Locals[models.User](c, userKey)
}

func requireRole(role models.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !currentUser(c).Role.Satisfies(role) {
			return forbidden(c, "requires role "+string(role))
		}

		return c.Next()
	}
}
