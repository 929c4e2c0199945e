package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dukex/botportal/pkg/config"
	"github.com/dukex/botportal/pkg/execform"
	"github.com/dukex/botportal/pkg/guard"
	"github.com/dukex/botportal/pkg/models"
	"github.com/dukex/botportal/pkg/sandbox"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	superadminToken = "superadmin-token"
	adminToken      = "admin-token"
	userToken       = "user-token"

	mongoBot = "robot-extraccion-mongo"
	moniBot  = "rpa-moni-objetos"
)

func startSandbox(t *testing.T) string {
	t.Helper()

	return startSandboxWith(t, 60*time.Millisecond)
}

func startSandboxWith(t *testing.T, runDuration time.Duration) string {
	t.Helper()

	store := sandbox.NewStore(nil)
	store.Load(config.DefaultSeed())

	server := sandbox.New(store, nil, slog.New(slog.DiscardHandler), sandbox.Config{
		StreamInterval: 20 * time.Millisecond,
		RunnerTick:     10 * time.Millisecond,
		RunDuration:    runDuration,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	go server.Runner().Run(ctx)
	go func() { _ = server.App().Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}) }()

	t.Cleanup(func() {
		cancel()
		_ = server.Shutdown()
	})

	return "http://" + ln.Addr().String()
}

type invocation struct {
	baseURL string
	token   string
	store   string
	stdin   string
}

// run executes one CLI invocation and returns what it printed.
func (inv invocation) run(t *testing.T, argv ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	store := inv.store
	if store == "" {
		store = "memory://"
	}

	full := []string{"botportal", "--api-url", inv.baseURL, "--token-store", store, "--log-level", "error"}
	if inv.token != "" {
		full = append(full, "--token", inv.token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := newRootCommand(&out, strings.NewReader(inv.stdin)).Run(ctx, append(full, argv...))

	return out.String(), err
}

func TestWhoami(t *testing.T) {
	t.Parallel()

	baseURL := startSandbox(t)

	out, err := invocation{baseURL: baseURL, token: userToken}.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Operator")
	assert.Contains(t, out, "user@botportal.local")
	assert.Contains(t, out, mongoBot)

	_, err = invocation{baseURL: baseURL}.run(t, "whoami")
	require.ErrorIs(t, err, guard.ErrLoginRequired)
	assert.Equal(t, "not logged in, run: botportal login --token <token>", describeError(err))

	_, err = invocation{baseURL: baseURL, token: "bogus"}.run(t, "whoami")
	require.ErrorIs(t, err, guard.ErrLoginRequired)
}

func TestLogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "botportal.log")

	_, err := invocation{baseURL: startSandbox(t), token: userToken}.run(t, "--log-file", path, "whoami")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestLoginLogout(t *testing.T) {
	t.Parallel()

	baseURL := startSandbox(t)
	store := "file://" + filepath.Join(t.TempDir(), "token")
	session := invocation{baseURL: baseURL, store: store}

	out, err := session.run(t, "login", "--token", adminToken)
	require.NoError(t, err)
	assert.Equal(t, "Logged in as Admin (admin)\n", out)

	out, err = session.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "admin@botportal.local")

	out, err = session.run(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	_, err = session.run(t, "whoami")
	assert.ErrorIs(t, err, guard.ErrLoginRequired)
}

func TestLogin_PrintURL(t *testing.T) {
	t.Parallel()

	out, err := invocation{baseURL: startSandbox(t)}.run(t, "login", "--print-url")
	require.NoError(t, err)
	assert.Contains(t, out, "accounts.google.com")
}

func TestBotsList(t *testing.T) {
	t.Parallel()

	baseURL := startSandbox(t)

	tests := []struct {
		name    string
		token   string
		want    []string
		notWant []string
	}{
		{name: "admin sees every bot", token: adminToken, want: []string{mongoBot, moniBot}},
		{name: "user sees allowed bots", token: userToken, want: []string{mongoBot}, notWant: []string{moniBot}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := invocation{baseURL: baseURL, token: tt.token}.run(t, "bots", "list")
			require.NoError(t, err)

			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}

			for _, notWant := range tt.notWant {
				assert.NotContains(t, out, notWant)
			}
		})
	}
}

func TestBots_GuardsBeforeCallingServer(t *testing.T) {
	t.Parallel()

	baseURL := startSandbox(t)

	_, err := invocation{baseURL: baseURL, token: adminToken}.run(t,
		"bots", "create", "--name", "New", "--script", "/opt/new.py", "--slug", "new-bot")
	require.ErrorIs(t, err, guard.ErrForbidden)
	assert.Contains(t, describeError(err), "requires role superadmin")

	_, err = invocation{baseURL: baseURL, token: userToken}.run(t, "bots", "show", moniBot)
	assert.ErrorIs(t, err, guard.ErrForbidden)
}

func TestBots_CreateUpdateDelete(t *testing.T) {
	t.Parallel()

	root := invocation{baseURL: startSandbox(t), token: superadminToken}

	out, err := root.run(t, "bots", "create",
		"--name", "Facturas", "--script", "/opt/bots/facturas.py", "--slug", "rpa-facturas", "--icon", "FileText")
	require.NoError(t, err)
	assert.Contains(t, out, "Created bot")

	_, err = root.run(t, "bots", "create", "--name", "Dup", "--script", "/x.py", "--slug", "rpa-facturas")
	require.Error(t, err)

	_, err = root.run(t, "bots", "create", "--name", "Bad", "--script", "/x.py", "--slug", "Not A Slug")
	require.ErrorContains(t, err, "invalid bot")

	out, err = root.run(t, "bots", "update", mongoBot, "--enabled=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated bot "+mongoBot)

	out, err = root.run(t, "--json", "bots", "show", mongoBot)
	require.NoError(t, err)

	var bot models.Bot
	require.NoError(t, json.Unmarshal([]byte(out), &bot))
	assert.False(t, bot.Enabled)
	assert.True(t, bot.RequiresUI, "fields not given are left untouched")

	out, err = root.run(t, "bots", "delete", moniBot)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")

	out, err = root.run(t, "bots", "delete", moniBot, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted bot "+moniBot)
}

func TestRun_ValidatesInputBeforeLaunching(t *testing.T) {
	t.Parallel()

	user := invocation{baseURL: startSandbox(t), token: userToken}

	tests := []struct {
		name  string
		input []string
	}{
		{name: "missing dates"},
		{name: "range over the cap", input: []string{"--input", "fecha_desde=2025-01-01", "--input", "fecha_hasta=2025-03-01"}},
		{name: "reversed range", input: []string{"--input", "fecha_desde=2025-03-05", "--input", "fecha_hasta=2025-03-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv := append([]string{"run", mongoBot}, tt.input...)

			_, err := user.run(t, argv...)

			var validation *execform.ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}

	out, err := user.run(t, "executions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No executions")
}

func TestRun_Watch(t *testing.T) {
	t.Parallel()

	user := invocation{baseURL: startSandbox(t), token: userToken}

	out, err := user.run(t, "run", mongoBot,
		"--input", "fecha_desde=2025-03-01", "--input", "fecha_hasta=2025-03-05",
		"--watch", "--refresh", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "queued for Robot Extracción MongoDB")
	assert.Contains(t, out, "completed")
}

func TestExecutions(t *testing.T) {
	t.Parallel()

	user := invocation{baseURL: startSandbox(t), token: userToken}

	out, err := user.run(t, "--json", "run", mongoBot,
		"--input", "fecha_desde=2025-03-01", "--input", "fecha_hasta=2025-03-05")
	require.NoError(t, err)

	var launched models.Execution
	require.NoError(t, json.Unmarshal([]byte(out), &launched))
	require.NotEmpty(t, launched.ID)

	out, err = user.run(t, "executions", "watch", launched.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")

	out, err = user.run(t, "executions", "show", launched.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Input fecha_desde")
	assert.Contains(t, out, "ejecuciones/"+mongoBot)

	out, err = user.run(t, "executions", "list", "--bot", mongoBot)
	require.NoError(t, err)
	assert.Contains(t, out, launched.ID)

	out, err = user.run(t, "executions", "list", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "No executions")

	out, err = user.run(t, "executions", "files", launched.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "reporte.csv")
	assert.Contains(t, out, "captura_01.png")
	assert.Contains(t, out, "image")

	out, err = user.run(t, "executions", "cat", launched.ID, "logs/"+mongoBot+".log")
	require.NoError(t, err)
	assert.Contains(t, out, "finished")

	dir := t.TempDir()

	out, err = user.run(t, "executions", "zip", launched.ID, "--dir", dir)
	require.NoError(t, err)

	zipPath := filepath.Join(dir, "evidencia_"+mongoBot+"_2025-03-01_al_2025-03-05.zip")
	assert.Contains(t, out, zipPath)
	assert.FileExists(t, zipPath)

	out, err = user.run(t, "executions", "cancel", launched.ID)
	require.Error(t, err)
	assert.Empty(t, out)

	_, err = user.run(t, "executions", "watch", "ghost")
	require.Error(t, err)
}

func TestExecutions_Cancel(t *testing.T) {
	t.Parallel()

	admin := invocation{baseURL: startSandboxWith(t, time.Minute), token: adminToken}

	launch := func() models.Execution {
		out, err := admin.run(t, "--json", "run", mongoBot,
			"--input", "fecha_desde=2025-03-01", "--input", "fecha_hasta=2025-03-02")
		require.NoError(t, err)

		var execution models.Execution
		require.NoError(t, json.Unmarshal([]byte(out), &execution))

		return execution
	}

	// One desktop slot: the second execution waits behind the first.
	first, second := launch(), launch()

	out, err := admin.run(t, "executions", "cancel", second.ID)
	require.NoError(t, err)
	assert.Equal(t, "Execution removed from the queue\n", out)

	require.Eventually(t, func() bool {
		out, err := admin.run(t, "--json", "executions", "show", first.ID)
		if err != nil {
			return false
		}

		var execution models.Execution

		return json.Unmarshal([]byte(out), &execution) == nil && execution.Status == models.ExecutionStatusRunning
	}, 5*time.Second, 20*time.Millisecond)

	out, err = admin.run(t, "executions", "cancel", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Execution stopped\n", out)

	out, err = admin.run(t, "executions", "list", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "No executions")
}

func TestSchedules(t *testing.T) {
	t.Parallel()

	baseURL := startSandbox(t)
	admin := invocation{baseURL: baseURL, token: adminToken}

	_, err := invocation{baseURL: baseURL, token: userToken}.run(t,
		"schedules", "create", mongoBot, "--frequency", "daily")
	require.ErrorIs(t, err, guard.ErrForbidden)

	_, err = admin.run(t, "schedules", "create", mongoBot, "--time", "25:00")
	require.Error(t, err)

	out, err := admin.run(t, "schedules", "create", mongoBot,
		"--frequency", "weekly", "--weekday", "2", "--time", "09:30")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Created schedule "), out)

	id := strings.TrimSuffix(strings.Fields(out)[2], ":")
	assert.Contains(t, out, "Weekly (Wednesday) at 09:30")

	out, err = admin.run(t, "schedules", "list", mongoBot)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Weekly (Wednesday) at 09:30")

	out, err = admin.run(t, "schedules", "update", mongoBot, id, "--frequency", "biweekly", "--day", "1", "--day", "15", "--day", "28")
	require.NoError(t, err)
	assert.Contains(t, out, "warning: biweekly schedules usually run on 2 days")
	assert.Contains(t, out, "Biweekly (days 1, 15, 28) at 09:30")

	out, err = admin.run(t, "schedules", "toggle", mongoBot, id)
	require.NoError(t, err)
	assert.Equal(t, "Schedule "+id+" disabled\n", out)

	out, err = admin.run(t, "schedules", "next", mongoBot, id, "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "[disabled]")

	out, err = invocation{baseURL: baseURL, token: adminToken, stdin: "n\n"}.run(t, "schedules", "delete", mongoBot, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")

	out, err = invocation{baseURL: baseURL, token: adminToken, stdin: "y\n"}.run(t, "schedules", "delete", mongoBot, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted schedule "+id)

	_, err = admin.run(t, "schedules", "toggle", mongoBot, id)
	assert.ErrorIs(t, err, errScheduleNotFound)
}

func TestSchedules_Dates(t *testing.T) {
	t.Parallel()

	admin := invocation{baseURL: startSandbox(t), token: adminToken}

	out, err := admin.run(t, "schedules", "create", moniBot, "--date", "2030-01-15", "--date", "2030-01-10", "--time", "07:00")
	require.NoError(t, err)
	assert.Contains(t, out, "2 dates (2030-01-10, 2030-01-15) at 07:00")

	id := strings.TrimSuffix(strings.Fields(out)[2], ":")

	out, err = admin.run(t, "schedules", "next", moniBot, id)
	require.NoError(t, err)
	assert.Contains(t, out, "2030-01-10 07:00")
	assert.Contains(t, out, "2030-01-15 07:00")
}

func TestUsers(t *testing.T) {
	t.Parallel()

	baseURL := startSandbox(t)

	out, err := invocation{baseURL: baseURL, token: adminToken}.run(t, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "root@botportal.local")
	assert.Contains(t, out, "user@botportal.local")

	_, err = invocation{baseURL: baseURL, token: adminToken}.run(t, "users", "role", "u-user", "admin")
	require.ErrorIs(t, err, guard.ErrForbidden)

	_, err = invocation{baseURL: baseURL, token: superadminToken}.run(t, "users", "role", "u-user", "pilot")
	require.ErrorIs(t, err, models.ErrInvalidRole)

	out, err = invocation{baseURL: baseURL, token: adminToken}.run(t, "users", "bots", "u-user", mongoBot, moniBot)
	require.NoError(t, err)
	assert.Equal(t, "user@botportal.local may run: "+mongoBot+", "+moniBot+"\n", out)

	out, err = invocation{baseURL: baseURL, token: superadminToken}.run(t, "users", "role", "u-user", "admin")
	require.NoError(t, err)
	assert.Equal(t, "user@botportal.local is now admin\n", out)
}

func TestStatsAndQueue(t *testing.T) {
	t.Parallel()

	admin := invocation{baseURL: startSandbox(t), token: adminToken}

	out, err := admin.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Enabled bots")

	out, err = admin.run(t, "--json", "queue")
	require.NoError(t, err)

	var status models.QueueStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Zero(t, status.UIQueueSize)
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	inv := invocation{baseURL: startSandbox(t), token: userToken}

	_, err := inv.run(t, "executions", "show")
	require.ErrorIs(t, err, errUsage)

	_, err = inv.run(t, "login")
	require.ErrorIs(t, err, errUsage)
}

func TestDescribeError(t *testing.T) {
	t.Parallel()

	validation := &execform.ValidationError{Problems: []string{"fecha_desde is required"}}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "login", err: guard.ErrLoginRequired, want: "not logged in, run: botportal login --token <token>"},
		{name: "validation", err: validation, want: "invalid input: fecha_desde is required"},
		{name: "plain", err: errors.New("boom"), want: "boom"},
		{name: "not found file", err: os.ErrNotExist, want: os.ErrNotExist.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, describeError(tt.err))
		})
	}
}
