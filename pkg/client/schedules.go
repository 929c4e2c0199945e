package client

import (
	"context"
	"net/http"

	"github.com/dukex/botportal/pkg/models"
)

// BotSchedules lists the schedules attached to a bot.
func (c *Client) BotSchedules(ctx context.Context, botID string) ([]models.BotSchedule, error) {
	var schedules []models.BotSchedule
	if err := c.doJSON(ctx, "BotSchedules", http.MethodGet, "/api/bots/"+id(botID)+"/schedules", nil, &schedules); err != nil {
		return nil, err
	}

	return schedules, nil
}

// CreateSchedule attaches a new schedule to a bot.
func (c *Client) CreateSchedule(ctx context.Context, botID string, data models.ScheduleCreate) (*models.BotSchedule, error) {
	var schedule models.BotSchedule
	if err := c.doJSON(ctx, "CreateSchedule", http.MethodPost, "/api/bots/"+id(botID)+"/schedules", data, &schedule); err != nil {
		return nil, err
	}

	return &schedule, nil
}

// UpdateSchedule applies a partial update to a schedule.
func (c *Client) UpdateSchedule(ctx context.Context, scheduleID string, data models.ScheduleUpdate) (*models.BotSchedule, error) {
	var schedule models.BotSchedule
	if err := c.doJSON(ctx, "UpdateSchedule", http.MethodPut, "/api/schedules/"+id(scheduleID), data, &schedule); err != nil {
		return nil, err
	}

	return &schedule, nil
}

// DeleteSchedule removes a schedule.
func (c *Client) DeleteSchedule(ctx context.Context, scheduleID string) error {
	return c.doJSON(ctx, "DeleteSchedule", http.MethodDelete, "/api/schedules/"+id(scheduleID), nil, nil)
}
