// Package events defines the notifications the portal components exchange
// over the event bus.
package events

import (
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every portal event.
const Topic = "botportal.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionsUpdatedEvent  EventType = "executions.updated"
	ExecutionFinishedEvent  EventType = "execution.finished"
	ScheduleChangedEvent    EventType = "schedule.changed"
	SessionInvalidatedEvent EventType = "session.invalidated"
)

// Origin tells what produced an executions snapshot.
type Origin string

const (
	OriginRefresh Origin = "refresh"
	OriginPush    Origin = "push"
	OriginLaunch  Origin = "launch"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func newBase(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// ExecutionsUpdated is the tracked execution list after a change. Version
// grows with every change of the tracker that produced it; a consumer that
// saw a higher version drops the event.
type ExecutionsUpdated struct {
	BaseEvent

	Origin     Origin             `json:"origin"`
	Version    uint64             `json:"version"`
	Executions []models.Execution `json:"executions"`
}

func NewExecutionsUpdated(origin Origin, version uint64, executions []models.Execution) *ExecutionsUpdated {
	return &ExecutionsUpdated{
		BaseEvent:  newBase(ExecutionsUpdatedEvent),
		Origin:     origin,
		Version:    version,
		Executions: executions,
	}
}

// Supersedes reports whether e is newer than the snapshot at version seen.
func (e ExecutionsUpdated) Supersedes(seen uint64) bool {
	return e.Version > seen
}

func (e ExecutionsUpdated) GetType() EventType {
	return ExecutionsUpdatedEvent
}

// ExecutionFinished is emitted once when a tracked execution leaves the
// active states.
type ExecutionFinished struct {
	BaseEvent

	Execution models.Execution `json:"execution"`
}

func NewExecutionFinished(execution models.Execution) *ExecutionFinished {
	return &ExecutionFinished{
		BaseEvent: newBase(ExecutionFinishedEvent),
		Execution: execution,
	}
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

// ScheduleAction is the kind of change applied to a schedule.
type ScheduleAction string

const (
	ScheduleCreated ScheduleAction = "created"
	ScheduleUpdated ScheduleAction = "updated"
	ScheduleToggled ScheduleAction = "toggled"
	ScheduleDeleted ScheduleAction = "deleted"
)

type ScheduleChanged struct {
	BaseEvent

	BotID      string         `json:"bot_id"`
	ScheduleID string         `json:"schedule_id"`
	Action     ScheduleAction `json:"action"`
}

func NewScheduleChanged(botID, scheduleID string, action ScheduleAction) *ScheduleChanged {
	return &ScheduleChanged{
		BaseEvent:  newBase(ScheduleChangedEvent),
		BotID:      botID,
		ScheduleID: scheduleID,
		Action:     action,
	}
}

func (e ScheduleChanged) GetType() EventType {
	return ScheduleChangedEvent
}

// SessionInvalidated is emitted after the server rejected the token.
type SessionInvalidated struct {
	BaseEvent
}

func NewSessionInvalidated() *SessionInvalidated {
	return &SessionInvalidated{BaseEvent: newBase(SessionInvalidatedEvent)}
}

func (e SessionInvalidated) GetType() EventType {
	return SessionInvalidatedEvent
}

// New returns an empty event of the given type for decoding, or nil when
// the type is unknown.
func New(eventType EventType) any {
	switch eventType {
	case ExecutionsUpdatedEvent:
		return &ExecutionsUpdated{}
	case ExecutionFinishedEvent:
		return &ExecutionFinished{}
	case ScheduleChangedEvent:
		return &ScheduleChanged{}
	case SessionInvalidatedEvent:
		return &SessionInvalidated{}
	default:
		return nil
	}
}
