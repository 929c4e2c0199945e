package tui

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dukex/botportal/pkg/eventbus"
	"github.com/dukex/botportal/pkg/events"
	"github.com/dukex/botportal/pkg/models"
)

type executionsMsg struct {
	executions []models.Execution
}

type finishedMsg struct {
	execution models.Execution
}

// Feed turns tracker events from the bus into dashboard messages.
type Feed struct {
	updates chan tea.Msg

	mu      sync.Mutex
	version uint64
}

// NewFeed registers the dashboard handlers on bus. The caller subscribes
// the bus afterwards.
func NewFeed(bus eventbus.EventSubscriber) (*Feed, error) {
	f := &Feed{updates: make(chan tea.Msg, 16)}

	err := bus.Handle(events.ExecutionsUpdatedEvent, func(_ context.Context, event any) error {
		updated, ok := event.(*events.ExecutionsUpdated)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		if !f.advance(updated) {
			return nil
		}

		f.send(executionsMsg{executions: updated.Executions})

		return nil
	})
	if err != nil {
		return nil, err
	}

	err = bus.Handle(events.ExecutionFinishedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.ExecutionFinished)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		f.send(finishedMsg{execution: finished.Execution})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// advance drops snapshots older than the last one forwarded.
func (f *Feed) advance(updated *events.ExecutionsUpdated) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !updated.Supersedes(f.version) {
		return false
	}

	f.version = updated.Version

	return true
}

// send never blocks the bus: when the buffer is full the oldest message
// gives way.
func (f *Feed) send(msg tea.Msg) {
	for {
		select {
		case f.updates <- msg:
			return
		default:
		}

		select {
		case <-f.updates:
		default:
		}
	}
}

// Wait returns a command that delivers the next feed message.
func (f *Feed) Wait() tea.Cmd {
	if f == nil {
		return nil
	}

	return func() tea.Msg {
		return <-f.updates
	}
}
