// Package execsync keeps a list of executions fresh by combining periodic
// baseline refreshes with a push channel for the one active execution.
package execsync

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/botportal/pkg/eventbus"
	"github.com/dukex/botportal/pkg/events"
	"github.com/dukex/botportal/pkg/models"
	"github.com/jonboulle/clockwork"
)

// ErrClosed is returned by operations on a closed tracker.
var ErrClosed = errors.New("tracker closed")

// Tracker is the execution list view-model.
//
// Every state change advances a version counter. A refresh remembers the
// version at which it started: entries pushed after that keep their pushed
// copy, and a refresh that finishes after a newer one started is dropped.
type Tracker struct {
	source Source
	bus    eventbus.EventPublisher
	clock  clockwork.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	executions    []models.Execution
	version       uint64
	latestRefresh uint64
	pushedAt      map[string]uint64
	tracked       string
	channel       Channel
	closed        bool
}

type Option func(*Tracker)

func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithPublisher sets the bus list changes are published on.
func WithPublisher(bus eventbus.EventPublisher) Option {
	return func(t *Tracker) {
		t.bus = bus
	}
}

func New(source Source, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())

	t := &Tracker{
		source:   source,
		bus:      eventbus.Nop{},
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		pushedAt: make(map[string]uint64),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.logger = t.logger.With("module", "execsync")

	return t
}

// Executions returns a copy of the current list.
func (t *Tracker) Executions() []models.Execution {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.executions)
}

// Active returns the first active execution in the list.
func (t *Tracker) Active() (models.Execution, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, execution := range t.executions {
		if execution.IsActive() {
			return execution, true
		}
	}

	return models.Execution{}, false
}

// Tracking returns the id of the execution whose channel is open, or "".
func (t *Tracker) Tracking() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.tracked
}

// Refresh fetches the baseline list and applies it. When a listed execution
// is active and no channel is open, a channel is opened for it.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()

		return ErrClosed
	}
	t.version++
	started := t.version
	t.latestRefresh = started
	t.mu.Unlock()

	list, err := t.source.List(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed || t.latestRefresh != started {
		t.mu.Unlock()
		t.logger.Debug("Dropping superseded refresh")

		return nil
	}

	previous := t.executions
	merged := make([]models.Execution, 0, len(list))
	seen := make(map[string]bool, len(list))

	for _, fetched := range list {
		seen[fetched.ID] = true

		if t.pushedAt[fetched.ID] > started {
			if current, ok := find(previous, fetched.ID); ok {
				merged = append(merged, current)

				continue
			}
		}

		merged = append(merged, fetched)
	}

	for id := range t.pushedAt {
		if !seen[id] {
			delete(t.pushedAt, id)
		}
	}

	t.version++
	t.executions = merged
	version := t.version
	openFor := ""

	if t.tracked == "" {
		for _, execution := range merged {
			if execution.IsActive() {
				openFor = execution.ID

				break
			}
		}
	}
	t.mu.Unlock()

	t.publish(events.OriginRefresh, version, previous, merged)

	if openFor != "" {
		t.open(openFor)
	}

	return nil
}

// Launch starts an execution of botID and tracks it, closing any channel
// opened for an earlier execution first.
func (t *Tracker) Launch(ctx context.Context, botID string, input map[string]string) (*models.Execution, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}

	execution, err := t.source.Launch(ctx, botID, input)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()

		return execution, nil
	}

	t.closeChannelLocked()
	t.tracked = execution.ID

	previous := t.executions
	changed := false

	if i := index(t.executions, execution.ID); i >= 0 {
		t.executions = slices.Clone(t.executions)
		t.executions[i] = *execution
		t.version++
		t.pushedAt[execution.ID] = t.version
		changed = true
	}
	version := t.version
	current := t.executions
	t.wg.Add(1)
	t.mu.Unlock()

	if changed {
		t.publish(events.OriginLaunch, version, previous, current)
	}

	t.connect(execution.ID)

	go func() {
		defer t.wg.Done()

		if err := t.Refresh(t.ctx); err != nil && !errors.Is(err, ErrClosed) {
			t.logger.Warn("Refresh after launch failed", "error", err)
		}
	}()

	return execution, nil
}

// Run refreshes on every interval until ctx is done or the tracker closes.
// Errors are logged and the last list is kept.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()

	t.backgroundRefresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.ctx.Done():
			return
		case <-ticker.Chan():
			t.backgroundRefresh(ctx)
		}
	}
}

// Close stops tracking and releases the open channel. Responses that
// arrive afterwards are dropped.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()

		return
	}
	t.closed = true
	t.closeChannelLocked()
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) backgroundRefresh(ctx context.Context) {
	if err := t.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) && ctx.Err() == nil {
		t.logger.Warn("Background refresh failed", "error", err)
	}
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

// open claims tracking for id and connects, unless another execution is
// already tracked.
func (t *Tracker) open(id string) {
	t.mu.Lock()
	if t.closed || t.tracked != "" {
		t.mu.Unlock()

		return
	}
	t.tracked = id
	t.mu.Unlock()

	t.connect(id)
}

// connect opens the channel for a claimed id. A channel that lost its
// claim while connecting is closed right away.
func (t *Tracker) connect(id string) {
	channel, err := t.source.Open(t.ctx, id)
	if err != nil {
		t.logger.Debug("Failed to open push channel", "execution_id", id, "error", err)

		t.mu.Lock()
		if t.tracked == id && t.channel == nil {
			t.tracked = ""
		}
		t.mu.Unlock()

		return
	}

	t.mu.Lock()
	if t.closed || t.tracked != id || t.channel != nil {
		t.mu.Unlock()
		_ = channel.Close()

		return
	}
	t.channel = channel
	t.wg.Add(1)
	t.mu.Unlock()

	go t.follow(id, channel)
}

func (t *Tracker) follow(id string, channel Channel) {
	defer t.wg.Done()

	for {
		execution, err := channel.Next()
		if err != nil {
			t.logger.Debug("Push channel ended", "execution_id", id, "error", err)
			t.release(id, channel)

			return
		}

		if !t.applyPush(id, channel, *execution) {
			return
		}
	}
}

// applyPush replaces the entry with the pushed copy and reports whether
// the channel should keep being read.
func (t *Tracker) applyPush(id string, channel Channel, execution models.Execution) bool {
	t.mu.Lock()
	if t.closed || t.channel != channel {
		t.mu.Unlock()

		return false
	}

	previous := t.executions
	changed := false

	if i := index(t.executions, execution.ID); i >= 0 {
		t.executions = slices.Clone(t.executions)
		t.executions[i] = execution
		t.version++
		t.pushedAt[execution.ID] = t.version
		changed = true
	}
	version := t.version

	terminal := execution.Status.IsTerminal()
	if terminal {
		t.closeChannelLocked()
	}
	current := t.executions
	t.mu.Unlock()

	if changed {
		t.publish(events.OriginPush, version, previous, current)
	}

	if terminal {
		t.logger.Debug("Execution finished, channel closed", "execution_id", id, "status", execution.Status)
	}

	return !terminal
}

func (t *Tracker) release(id string, channel Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.channel == channel {
		t.closeChannelLocked()
	}
}

func (t *Tracker) closeChannelLocked() {
	if t.channel != nil {
		_ = t.channel.Close()
	}

	t.channel = nil
	t.tracked = ""
}

// publish runs outside mu, so concurrent changes may reach the bus out of
// order. The version lets subscribers discard the older snapshot.
func (t *Tracker) publish(origin events.Origin, version uint64, previous, current []models.Execution) {
	ctx := context.Background()

	if err := t.bus.Publish(ctx, string(origin), events.NewExecutionsUpdated(origin, version, slices.Clone(current))); err != nil {
		t.logger.Warn("Failed to publish executions update", "error", err)
	}

	for _, execution := range current {
		if !execution.Status.IsTerminal() {
			continue
		}

		if before, ok := find(previous, execution.ID); ok && before.IsActive() {
			if err := t.bus.Publish(ctx, execution.ID, events.NewExecutionFinished(execution)); err != nil {
				t.logger.Warn("Failed to publish execution finished", "error", err)
			}
		}
	}
}

func index(executions []models.Execution, id string) int {
	return slices.IndexFunc(executions, func(e models.Execution) bool { return e.ID == id })
}

func find(executions []models.Execution, id string) (models.Execution, bool) {
	if i := index(executions, id); i >= 0 {
		return executions[i], true
	}

	return models.Execution{}, false
}
