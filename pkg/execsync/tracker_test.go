package execsync

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/botportal/pkg/client"
	"github.com/dukex/botportal/pkg/eventbus"
	"github.com/dukex/botportal/pkg/events"
	"github.com/dukex/botportal/pkg/log"
	"github.com/dukex/botportal/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errChannelClosed = errors.New("channel closed")

type fakeChannel struct {
	id        string
	messages  chan *models.Execution
	done      chan struct{}
	closeOnce sync.Once
	nextCalls atomic.Int32
	onClose   func()
}

func newFakeChannel(id string, buffered ...models.Execution) *fakeChannel {
	ch := &fakeChannel{
		id:       id,
		messages: make(chan *models.Execution, len(buffered)+8),
		done:     make(chan struct{}),
	}

	for i := range buffered {
		ch.messages <- &buffered[i]
	}

	return ch
}

func (c *fakeChannel) Next() (*models.Execution, error) {
	c.nextCalls.Add(1)

	select {
	case <-c.done:
		return nil, errChannelClosed
	case execution, ok := <-c.messages:
		if !ok {
			return nil, io.EOF
		}

		return execution, nil
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
		close(c.done)
	})

	return nil
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type fakeSource struct {
	mu       sync.Mutex
	listFn   func(ctx context.Context) ([]models.Execution, error)
	launchFn func(botID string, input map[string]string) (*models.Execution, error)
	channels map[string]*fakeChannel
	opened   []string
	log      []string
	lists    atomic.Int32
}

func newFakeSource(list ...models.Execution) *fakeSource {
	return &fakeSource{
		listFn: func(context.Context) ([]models.Execution, error) {
			return list, nil
		},
		channels: make(map[string]*fakeChannel),
	}
}

func (s *fakeSource) List(ctx context.Context) ([]models.Execution, error) {
	s.lists.Add(1)

	s.mu.Lock()
	fn := s.listFn
	s.mu.Unlock()

	return fn(ctx)
}

func (s *fakeSource) Open(_ context.Context, executionID string) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[executionID]
	if !ok {
		ch = newFakeChannel(executionID)
		s.channels[executionID] = ch
	}

	ch.onClose = func() {
		s.mu.Lock()
		s.log = append(s.log, "close:"+executionID)
		s.mu.Unlock()
	}

	s.opened = append(s.opened, executionID)
	s.log = append(s.log, "open:"+executionID)

	return ch, nil
}

func (s *fakeSource) Launch(_ context.Context, botID string, input map[string]string) (*models.Execution, error) {
	return s.launchFn(botID, input)
}

func (s *fakeSource) setChannel(ch *fakeChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels[ch.id] = ch
}

func (s *fakeSource) openedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.opened...)
}

func (s *fakeSource) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.log...)
}

func exec(id string, status models.ExecutionStatus) models.Execution {
	return models.Execution{ID: id, BotID: "facturas", Status: status}
}

func newTracker(t *testing.T, source Source, opts ...Option) *Tracker {
	t.Helper()

	tracker := New(source, append([]Option{WithLogger(log.Discard())}, opts...)...)
	t.Cleanup(tracker.Close)

	return tracker
}

func TestTracker_PushSequenceClosesAfterTerminal(t *testing.T) {
	source := newFakeSource(
		exec("e0", models.ExecutionStatusCompleted),
		exec("e1", models.ExecutionStatusQueued),
		exec("e2", models.ExecutionStatusFailed),
	)

	channel := newFakeChannel("e1",
		exec("e1", models.ExecutionStatusQueued),
		exec("e1", models.ExecutionStatusRunning),
		exec("e1", models.ExecutionStatusCompleted),
		exec("e1", models.ExecutionStatusRunning),
	)
	source.setChannel(channel)

	tracker := newTracker(t, source)

	require.NoError(t, tracker.Refresh(context.Background()))

	require.Eventually(t, channel.isClosed, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(3), channel.nextCalls.Load(), "no read after the terminal message")
	assert.Empty(t, tracker.Tracking())

	got := tracker.Executions()
	require.Len(t, got, 3)
	assert.Equal(t, "e0", got[0].ID)
	assert.Equal(t, exec("e1", models.ExecutionStatusCompleted), got[1])
	assert.Equal(t, models.ExecutionStatusFailed, got[2].Status)
}

func TestTracker_OpensOneChannelAtATime(t *testing.T) {
	source := newFakeSource(
		exec("e1", models.ExecutionStatusRunning),
		exec("e2", models.ExecutionStatusQueued),
	)

	tracker := newTracker(t, source)

	require.NoError(t, tracker.Refresh(context.Background()))
	require.NoError(t, tracker.Refresh(context.Background()))

	assert.Equal(t, []string{"e1"}, source.openedIDs())
	assert.Equal(t, "e1", tracker.Tracking())

	active, ok := tracker.Active()
	require.True(t, ok)
	assert.Equal(t, "e1", active.ID)
}

func TestTracker_PushForUnknownIDIsNotAppended(t *testing.T) {
	source := newFakeSource(exec("e1", models.ExecutionStatusRunning))
	source.setChannel(newFakeChannel("e1", exec("ghost", models.ExecutionStatusRunning)))

	tracker := newTracker(t, source)
	require.NoError(t, tracker.Refresh(context.Background()))

	require.Eventually(t, func() bool {
		return source.channels["e1"].nextCalls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	got := tracker.Executions()
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}

func TestTracker_LaunchSupersedesTrackedChannel(t *testing.T) {
	source := newFakeSource(exec("e1", models.ExecutionStatusRunning))
	source.launchFn = func(botID string, input map[string]string) (*models.Execution, error) {
		assert.Equal(t, "facturas", botID)
		assert.Equal(t, map[string]string{"mes": "01"}, input)

		e := exec("e2", models.ExecutionStatusQueued)

		return &e, nil
	}

	tracker := newTracker(t, source)
	require.NoError(t, tracker.Refresh(context.Background()))
	require.Equal(t, "e1", tracker.Tracking())

	execution, err := tracker.Launch(context.Background(), "facturas", map[string]string{"mes": "01"})
	require.NoError(t, err)
	assert.Equal(t, "e2", execution.ID)
	assert.Equal(t, "e2", tracker.Tracking())

	assert.Equal(t, []string{"open:e1", "close:e1", "open:e2"}, source.events()[:3])
}

func TestTracker_LaunchFailureSurfacesDetail(t *testing.T) {
	source := newFakeSource()
	source.launchFn = func(string, map[string]string) (*models.Execution, error) {
		return nil, &client.APIError{Op: "ExecuteBot", Status: 400, Detail: "Bot deshabilitado"}
	}

	tracker := newTracker(t, source)

	_, err := tracker.Launch(context.Background(), "facturas", nil)
	require.Error(t, err)
	assert.Equal(t, "Bot deshabilitado", client.Message(err))
	assert.Empty(t, tracker.Tracking())
}

func TestTracker_SupersededRefreshIsDropped(t *testing.T) {
	release := make(chan struct{})

	var calls atomic.Int32

	source := newFakeSource()
	source.listFn = func(context.Context) ([]models.Execution, error) {
		if calls.Add(1) == 1 {
			<-release

			return []models.Execution{exec("old", models.ExecutionStatusCompleted)}, nil
		}

		return []models.Execution{exec("new", models.ExecutionStatusCompleted)}, nil
	}

	tracker := newTracker(t, source)

	done := make(chan error, 1)
	go func() { done <- tracker.Refresh(context.Background()) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, tracker.Refresh(context.Background()))
	close(release)
	require.NoError(t, <-done)

	got := tracker.Executions()
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestTracker_PushAfterRefreshStartWins(t *testing.T) {
	source := newFakeSource(exec("e1", models.ExecutionStatusQueued))
	channel := newFakeChannel("e1")
	source.setChannel(channel)

	tracker := newTracker(t, source)
	require.NoError(t, tracker.Refresh(context.Background()))
	require.Equal(t, "e1", tracker.Tracking())

	release := make(chan struct{})
	source.mu.Lock()
	source.listFn = func(context.Context) ([]models.Execution, error) {
		<-release

		return []models.Execution{exec("e1", models.ExecutionStatusQueued)}, nil
	}
	source.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- tracker.Refresh(context.Background()) }()

	require.Eventually(t, func() bool { return source.lists.Load() == 2 }, time.Second, time.Millisecond)

	pushed := exec("e1", models.ExecutionStatusRunning)
	channel.messages <- &pushed

	require.Eventually(t, func() bool {
		return tracker.Executions()[0].Status == models.ExecutionStatusRunning
	}, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, models.ExecutionStatusRunning, tracker.Executions()[0].Status)
}

func TestTracker_RefreshErrorKeepsLastList(t *testing.T) {
	source := newFakeSource(exec("e1", models.ExecutionStatusCompleted))
	tracker := newTracker(t, source)
	require.NoError(t, tracker.Refresh(context.Background()))

	source.mu.Lock()
	source.listFn = func(context.Context) ([]models.Execution, error) {
		return nil, errors.New("backend down")
	}
	source.mu.Unlock()

	require.Error(t, tracker.Refresh(context.Background()))
	assert.Len(t, tracker.Executions(), 1)
}

func TestTracker_ResponsesAfterCloseAreDropped(t *testing.T) {
	release := make(chan struct{})

	source := newFakeSource()
	source.listFn = func(context.Context) ([]models.Execution, error) {
		<-release

		return []models.Execution{exec("e1", models.ExecutionStatusRunning)}, nil
	}

	tracker := New(source, WithLogger(log.Discard()))

	done := make(chan error, 1)
	go func() { done <- tracker.Refresh(context.Background()) }()

	require.Eventually(t, func() bool { return source.lists.Load() == 1 }, time.Second, time.Millisecond)

	tracker.Close()
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, tracker.Executions())
	assert.Empty(t, source.openedIDs())
	require.ErrorIs(t, tracker.Refresh(context.Background()), ErrClosed)

	_, err := tracker.Launch(context.Background(), "b", nil)
	require.ErrorIs(t, err, ErrClosed)
}

func TestTracker_CloseReleasesChannel(t *testing.T) {
	source := newFakeSource(exec("e1", models.ExecutionStatusRunning))
	tracker := New(source, WithLogger(log.Discard()))

	require.NoError(t, tracker.Refresh(context.Background()))
	require.Equal(t, "e1", tracker.Tracking())

	tracker.Close()
	tracker.Close()

	assert.True(t, source.channels["e1"].isClosed())
}

func TestTracker_StreamEndReopensOnNextRefresh(t *testing.T) {
	source := newFakeSource(exec("e1", models.ExecutionStatusRunning))
	first := newFakeChannel("e1")
	close(first.messages)
	source.setChannel(first)

	tracker := newTracker(t, source)
	require.NoError(t, tracker.Refresh(context.Background()))

	require.Eventually(t, func() bool { return tracker.Tracking() == "" }, time.Second, time.Millisecond)

	source.setChannel(newFakeChannel("e1"))
	require.NoError(t, tracker.Refresh(context.Background()))

	assert.Equal(t, []string{"e1", "e1"}, source.openedIDs())
	assert.Equal(t, "e1", tracker.Tracking())
}

func TestTracker_RunRefreshesOnTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(exec("e1", models.ExecutionStatusCompleted))
	tracker := newTracker(t, source, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		tracker.Run(ctx, 5*time.Second)
		close(stopped)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return source.lists.Load() == 1 }, time.Second, time.Millisecond)

	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return source.lists.Load() == 2 }, time.Second, time.Millisecond)

	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestTracker_PublishesFinishedEvent(t *testing.T) {
	bus := eventbus.NewInProcess(log.Discard())
	t.Cleanup(func() { _ = bus.Close() })

	finished := make(chan models.Execution, 1)
	require.NoError(t, bus.Handle(events.ExecutionFinishedEvent, func(_ context.Context, event any) error {
		finished <- event.(*events.ExecutionFinished).Execution

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bus.Subscribe(ctx))

	source := newFakeSource(exec("e1", models.ExecutionStatusRunning))
	source.setChannel(newFakeChannel("e1", exec("e1", models.ExecutionStatusCompleted)))

	tracker := newTracker(t, source, WithPublisher(bus))
	require.NoError(t, tracker.Refresh(context.Background()))

	select {
	case got := <-finished:
		assert.Equal(t, "e1", got.ID)
		assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("finished event not published")
	}
}

func TestTracker_SnapshotVersionsSettleOnLatest(t *testing.T) {
	for range 25 {
		bus := eventbus.NewInProcess(log.Discard())

		var (
			mu      sync.Mutex
			seen    uint64
			applied []models.Execution
		)

		require.NoError(t, bus.Handle(events.ExecutionsUpdatedEvent, func(_ context.Context, event any) error {
			updated := event.(*events.ExecutionsUpdated)

			mu.Lock()
			defer mu.Unlock()

			if updated.Supersedes(seen) {
				seen = updated.Version
				applied = updated.Executions
			}

			return nil
		}))

		finished := make(chan struct{}, 1)
		require.NoError(t, bus.Handle(events.ExecutionFinishedEvent, func(context.Context, any) error {
			finished <- struct{}{}

			return nil
		}))

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, bus.Subscribe(ctx))

		source := newFakeSource(exec("e1", models.ExecutionStatusQueued))
		source.setChannel(newFakeChannel("e1",
			exec("e1", models.ExecutionStatusRunning),
			exec("e1", models.ExecutionStatusRunning),
			exec("e1", models.ExecutionStatusCompleted),
		))

		tracker := newTracker(t, source, WithPublisher(bus))
		require.NoError(t, tracker.Refresh(context.Background()))

		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Fatal("finished event not published")
		}

		mu.Lock()
		require.Len(t, applied, 1)
		assert.Equal(t, models.ExecutionStatusCompleted, applied[0].Status)
		mu.Unlock()

		cancel()
		_ = bus.Close()
	}
}
