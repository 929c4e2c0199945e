package models

import (
	"errors"
	"fmt"
	"slices"
)

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusQueued      ExecutionStatus = "queued"
	ExecutionStatusRunning     ExecutionStatus = "running"
	ExecutionStatusCompleted   ExecutionStatus = "completed"
	ExecutionStatusFailed      ExecutionStatus = "failed"
	ExecutionStatusCancelled   ExecutionStatus = "cancelled"
	ExecutionStatusInterrupted ExecutionStatus = "interrupted"
)

// ErrInvalidExecution is returned when an execution breaks its lifecycle invariants.
var ErrInvalidExecution = errors.New("invalid execution")

// IsActive reports whether the execution is queued or running.
func (s ExecutionStatus) IsActive() bool {
	return s == ExecutionStatusQueued || s == ExecutionStatusRunning
}

// IsTerminal reports whether the execution reached a final state.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusInterrupted:
		return true
	default:
		return false
	}
}

func (s ExecutionStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// Execution is one run instance of a bot.
type Execution struct {
	ID              string            `json:"id"`
	BotID           string            `json:"bot_id"`
	BotName         string            `json:"bot_name"`
	Status          ExecutionStatus   `json:"status"`
	QueuedAt        string            `json:"queued_at"`
	StartedAt       *string           `json:"started_at,omitempty"`
	CompletedAt     *string           `json:"completed_at,omitempty"`
	TriggeredBy     string            `json:"triggered_by"`
	TriggeredByName string            `json:"triggered_by_name"`
	RunFolder       string            `json:"run_folder"`
	ExitCode        *int              `json:"exit_code,omitempty"`
	ErrorMessage    string            `json:"error_message"`
	DurationSeconds float64           `json:"duration_seconds"`
	InputData       map[string]string `json:"input_data,omitempty"`
}

// IsActive reports whether the execution is queued or running.
func (e *Execution) IsActive() bool {
	return e.Status.IsActive()
}

// TimerBase is the instant the live elapsed counter counts from: the real
// start when known, otherwise the queue time.
func (e *Execution) TimerBase() string {
	if e.StartedAt != nil && *e.StartedAt != "" {
		return *e.StartedAt
	}

	return e.QueuedAt
}

// Validate checks the lifecycle invariants: started_at is only set once the
// execution left the queue, completed_at and duration only once terminal.
func (e *Execution) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidExecution)
	}

	if !e.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidExecution, e.Status)
	}

	if e.Status == ExecutionStatusQueued && e.StartedAt != nil && *e.StartedAt != "" {
		return fmt.Errorf("%w: queued execution %s has started_at", ErrInvalidExecution, e.ID)
	}

	if !e.Status.IsTerminal() {
		if e.CompletedAt != nil && *e.CompletedAt != "" {
			return fmt.Errorf("%w: active execution %s has completed_at", ErrInvalidExecution, e.ID)
		}

		if e.DurationSeconds != 0 {
			return fmt.Errorf("%w: active execution %s has a duration", ErrInvalidExecution, e.ID)
		}
	}

	return nil
}

// ExecutionRequest is the body of an execute action.
type ExecutionRequest struct {
	InputData map[string]string `json:"input_data"`
}

// ExecutionFile is one artifact produced by an execution.
type ExecutionFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

// File categories, in display order.
const (
	CategoryLogs       = "logs"
	CategoryResultados = "resultados"
)

// ExecutionFiles holds the artifacts of an execution grouped by category.
type ExecutionFiles struct {
	Logs       []ExecutionFile `json:"logs"`
	Resultados []ExecutionFile `json:"resultados"`
}

// FileGroup is a named, non-empty category of files.
type FileGroup struct {
	Category string
	Files    []ExecutionFile
}

// Categories returns the non-empty categories in fixed order.
func (f *ExecutionFiles) Categories() []FileGroup {
	if f == nil {
		return nil
	}

	var groups []FileGroup
	if len(f.Logs) > 0 {
		groups = append(groups, FileGroup{Category: CategoryLogs, Files: f.Logs})
	}

	if len(f.Resultados) > 0 {
		groups = append(groups, FileGroup{Category: CategoryResultados, Files: f.Resultados})
	}

	return groups
}

// All returns every file, logs first.
func (f *ExecutionFiles) All() []ExecutionFile {
	if f == nil {
		return nil
	}

	return slices.Concat(f.Logs, f.Resultados)
}

// Count is the total number of files.
func (f *ExecutionFiles) Count() int {
	if f == nil {
		return 0
	}

	return len(f.Logs) + len(f.Resultados)
}
