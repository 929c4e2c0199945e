package sandbox

import (
	"bytes"
	"context"
	"encoding/csv"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/jonboulle/clockwork"
)

// SimulateKey is the input key that steers the simulated outcome of a run.
// The value "fail" makes the execution fail.
const SimulateKey = "simulate"

// Runner drives the simulated execution queues and the schedule checker.
type Runner struct {
	store       *Store
	clock       clockwork.Clock
	logger      *slog.Logger
	tick        time.Duration
	runFor      time.Duration
	maxHeadless int
}

func NewRunner(store *Store, clock clockwork.Clock, logger *slog.Logger, cfg Config) *Runner {
	cfg = cfg.withDefaults()

	return &Runner{
		store:       store,
		clock:       clock,
		logger:      logger.With("component", "runner"),
		tick:        cfg.RunnerTick,
		runFor:      cfg.RunDuration,
		maxHeadless: cfg.MaxHeadless,
	}
}

// Step fires due schedules and advances the queues once.
func (r *Runner) Step() {
	for _, exec := range r.store.FireDueSchedules(r.clock.Now()) {
		r.logger.Info("schedule fired", "execution_id", exec.ID, "bot_id", exec.BotID)
	}

	for _, t := range r.store.Advance(r.runFor, r.maxHeadless) {
		r.logger.Debug("execution transition", "execution_id", t.ExecutionID, "from", t.From, "to", t.To)
	}
}

// Run steps on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.tick)
	defer ticker.Stop()

	r.logger.Info("runner started", "tick", r.tick, "run_for", r.runFor, "max_headless", r.maxHeadless)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopped")
			return
		case <-ticker.Chan():
			r.Step()
		}
	}
}

func reportCSV(e *models.Execution) []byte {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"execution_id", "bot_id", "queued_at", "status"})
	_ = w.Write([]string{e.ID, e.BotID, e.QueuedAt, string(e.Status)})

	for k, v := range e.InputData {
		_ = w.Write([]string{"input", k, v, ""})
	}

	w.Flush()

	return buf.Bytes()
}

var screenshot = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			img.Set(x, y, color.RGBA{R: 0x2b, G: 0x6c, B: 0xb0, A: 0xff})
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)

	return buf.Bytes()
}()
