package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/botportal/pkg/eventbus"
	"github.com/dukex/botportal/pkg/events"
	"github.com/dukex/botportal/pkg/models"
)

// API is the subset of the portal client the service uses.
type API interface {
	BotSchedules(ctx context.Context, botID string) ([]models.BotSchedule, error)
	CreateSchedule(ctx context.Context, botID string, data models.ScheduleCreate) (*models.BotSchedule, error)
	UpdateSchedule(ctx context.Context, scheduleID string, data models.ScheduleUpdate) (*models.BotSchedule, error)
	DeleteSchedule(ctx context.Context, scheduleID string) error
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// DeletePrompt is shown before a schedule is deleted.
const DeletePrompt = "Delete this schedule?"

type Service struct {
	api    API
	bus    eventbus.EventPublisher
	logger *slog.Logger
}

func NewService(api API, bus eventbus.EventPublisher, logger *slog.Logger) *Service {
	if bus == nil {
		bus = eventbus.Nop{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{api: api, bus: bus, logger: logger.With("module", "schedule")}
}

func (s *Service) List(ctx context.Context, botID string) ([]models.BotSchedule, error) {
	return s.api.BotSchedules(ctx, botID)
}

// Save creates a schedule for botID when editingID is empty, otherwise it
// rewrites every editable field of the schedule being edited.
func (s *Service) Save(ctx context.Context, botID, editingID string, editor *Editor) (*models.BotSchedule, error) {
	if editingID == "" {
		payload, err := editor.Build()
		if err != nil {
			return nil, err
		}

		created, err := s.api.CreateSchedule(ctx, botID, payload)
		if err != nil {
			return nil, err
		}

		s.publish(ctx, created.BotID, created.ID, events.ScheduleCreated)

		return created, nil
	}

	payload, err := editor.Update()
	if err != nil {
		return nil, err
	}

	updated, err := s.api.UpdateSchedule(ctx, editingID, payload)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated.BotID, updated.ID, events.ScheduleUpdated)

	return updated, nil
}

// Toggle flips the enabled flag with a partial update.
func (s *Service) Toggle(ctx context.Context, schedule models.BotSchedule) (*models.BotSchedule, error) {
	enabled := !schedule.Enabled

	updated, err := s.api.UpdateSchedule(ctx, schedule.ID, models.ScheduleUpdate{Enabled: &enabled})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated.BotID, updated.ID, events.ScheduleToggled)

	return updated, nil
}

// Delete removes a schedule once the confirmer approves. It reports whether
// the call was issued.
func (s *Service) Delete(ctx context.Context, schedule models.BotSchedule, confirmer Confirmer) (bool, error) {
	if confirmer == nil || !confirmer.Confirm(DeletePrompt) {
		return false, nil
	}

	if err := s.api.DeleteSchedule(ctx, schedule.ID); err != nil {
		return true, fmt.Errorf("delete schedule %s: %w", schedule.ID, err)
	}

	s.publish(ctx, schedule.BotID, schedule.ID, events.ScheduleDeleted)

	return true, nil
}

func (s *Service) publish(ctx context.Context, botID, scheduleID string, action events.ScheduleAction) {
	if err := s.bus.Publish(ctx, scheduleID, events.NewScheduleChanged(botID, scheduleID, action)); err != nil {
		s.logger.Warn("Failed to publish schedule change", "schedule_id", scheduleID, "error", err)
	}
}
