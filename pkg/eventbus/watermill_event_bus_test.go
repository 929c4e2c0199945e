package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/botportal/pkg/events"
	"github.com/dukex/botportal/pkg/log"
	"github.com/dukex/botportal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_DeliversTypedEvents(t *testing.T) {
	bus := NewInProcess(log.Discard())
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.ExecutionsUpdated, 1)

	require.NoError(t, bus.Handle(events.ExecutionsUpdatedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ExecutionsUpdated)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.NewExecutionsUpdated(events.OriginRefresh, 1, []models.Execution{{ID: "e1", Status: models.ExecutionStatusQueued}})
	require.NoError(t, bus.Publish(ctx, "e1", sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, events.OriginRefresh, got.Origin)
		require.Len(t, got.Executions, 1)
		assert.Equal(t, "e1", got.Executions[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := NewInProcess(log.Discard())
	t.Cleanup(func() { _ = bus.Close() })

	finished := make(chan string, 2)

	require.NoError(t, bus.Handle(events.ExecutionFinishedEvent, func(_ context.Context, event any) error {
		finished <- event.(*events.ExecutionFinished).Execution.ID

		return errors.New("handler failure does not block the bus")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "s1", events.NewScheduleChanged("b1", "s1", events.ScheduleDeleted)))
	require.NoError(t, bus.Publish(ctx, "e1", events.NewExecutionFinished(models.Execution{ID: "e1"})))
	require.NoError(t, bus.Publish(ctx, "e2", events.NewExecutionFinished(models.Execution{ID: "e2"})))

	for _, want := range []string{"e1", "e2"} {
		select {
		case got := <-finished:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %s not delivered", want)
		}
	}
}

func TestWatermillEventBus_PreservesPublishOrder(t *testing.T) {
	bus := NewInProcess(log.Discard())
	t.Cleanup(func() { _ = bus.Close() })

	const total = 200
	versions := make(chan uint64, total)

	require.NoError(t, bus.Handle(events.ExecutionsUpdatedEvent, func(_ context.Context, event any) error {
		versions <- event.(*events.ExecutionsUpdated).Version

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	for version := uint64(1); version <= total; version++ {
		require.NoError(t, bus.Publish(ctx, "e1", events.NewExecutionsUpdated(events.OriginPush, version, nil)))
	}

	for want := uint64(1); want <= total; want++ {
		select {
		case got := <-versions:
			require.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("version %d not delivered", want)
		}
	}
}

func TestWatermillEventBus_CloseSharedPubSub(t *testing.T) {
	bus := NewInProcess(log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))
	require.NoError(t, bus.Close())
}

func TestNop(t *testing.T) {
	var bus EventBus = Nop{}

	require.NoError(t, bus.Publish(context.Background(), "k", events.NewSessionInvalidated()))
	require.NoError(t, bus.Subscribe(context.Background()))
	require.NoError(t, bus.Close())
}
