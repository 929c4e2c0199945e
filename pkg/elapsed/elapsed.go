// Package elapsed computes the live elapsed time of an active execution.
//
// Seconds is the pure computation; Timer is the reusable ticking unit that
// every view uses instead of re-implementing the counter.
package elapsed

import (
	"sync"
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/jonboulle/clockwork"
)

// TickInterval is the cadence of a running Timer.
const TickInterval = time.Second

// Seconds returns the whole seconds between start and now, clamped to zero.
// It returns nil when the timer is inactive or start is absent or unparseable.
func Seconds(start string, active bool, now time.Time) *int64 {
	if !active || start == "" {
		return nil
	}

	startedAt, err := models.ParseTimestamp(start)
	if err != nil {
		return nil
	}

	return since(startedAt, now)
}

func since(startedAt, now time.Time) *int64 {
	seconds := int64(now.Sub(startedAt) / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	return &seconds
}

// Timer is a live elapsed counter. It ticks once per second while active and
// reports nil while inactive. A Timer is safe for concurrent use.
type Timer struct {
	clock  clockwork.Clock
	onTick func(int64)

	mu        sync.Mutex
	start     string
	startedAt time.Time
	value     *int64
	stop      chan struct{}
	done      chan struct{}
}

// NewTimer creates an inactive timer. onTick, when not nil, is called with the
// new value after every tick, from the timer's goroutine; it must not call
// back into Set or Stop.
func NewTimer(clock clockwork.Clock, onTick func(int64)) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Timer{clock: clock, onTick: onTick}
}

// Set updates the timer inputs. The start instant is parsed once per distinct
// string value: calling Set again with an equal string keeps the running
// counter untouched. Deactivating, or passing an empty or unparseable start,
// resets the value to nil and stops ticking immediately.
func (t *Timer) Set(start string, active bool) {
	t.mu.Lock()

	if active && start != "" && start == t.start && t.stop != nil {
		t.mu.Unlock()

		return
	}

	stopped := t.haltLocked()
	t.start = ""
	t.value = nil

	if !active || start == "" {
		t.mu.Unlock()
		wait(stopped)

		return
	}

	startedAt, err := models.ParseTimestamp(start)
	if err != nil {
		t.mu.Unlock()
		wait(stopped)

		return
	}

	t.start = start
	t.startedAt = startedAt
	t.value = since(startedAt, t.clock.Now())

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	ticker := t.clock.NewTicker(TickInterval)
	t.mu.Unlock()

	wait(stopped)

	go t.run(ticker, stop, done)
}

// Value returns the current elapsed seconds, or nil when inactive.
func (t *Timer) Value() *int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.value == nil {
		return nil
	}

	value := *t.value

	return &value
}

// Active reports whether the timer is ticking.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stop != nil
}

// Stop halts ticking and resets the value to nil. It waits for the ticking
// goroutine to exit.
func (t *Timer) Stop() {
	t.Set("", false)
}

func (t *Timer) run(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			t.mu.Lock()
			// A concurrent Set may have replaced this run.
			select {
			case <-stop:
				t.mu.Unlock()

				return
			default:
			}

			next := since(t.startedAt, t.clock.Now())
			if t.value != nil && *next < *t.value {
				next = t.value
			}

			t.value = next
			value := *next
			onTick := t.onTick
			t.mu.Unlock()

			if onTick != nil {
				onTick(value)
			}
		}
	}
}

// haltLocked signals the running goroutine to stop and returns its done
// channel. The caller must hold t.mu and wait outside the lock.
func (t *Timer) haltLocked() chan struct{} {
	if t.stop == nil {
		return nil
	}

	close(t.stop)
	done := t.done
	t.stop = nil
	t.done = nil

	return done
}

func wait(done chan struct{}) {
	if done != nil {
		<-done
	}
}
