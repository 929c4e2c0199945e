package client

import (
	"context"
	"net/http"

	"github.com/dukex/botportal/pkg/models"
)

// Bots lists the registered bots.
func (c *Client) Bots(ctx context.Context) ([]models.Bot, error) {
	var bots []models.Bot
	if err := c.doJSON(ctx, "Bots", http.MethodGet, "/api/bots", nil, &bots); err != nil {
		return nil, err
	}

	return bots, nil
}

// Bot returns one bot.
func (c *Client) Bot(ctx context.Context, botID string) (*models.Bot, error) {
	var bot models.Bot
	if err := c.doJSON(ctx, "Bot", http.MethodGet, "/api/bots/"+id(botID), nil, &bot); err != nil {
		return nil, err
	}

	return &bot, nil
}

// ExecuteBot enqueues an execution of the bot with the given input data.
// A nil input is sent as an empty mapping.
func (c *Client) ExecuteBot(ctx context.Context, botID string, input map[string]string) (*models.Execution, error) {
	if input == nil {
		input = map[string]string{}
	}

	var execution models.Execution

	err := c.doJSON(ctx, "ExecuteBot", http.MethodPost, "/api/bots/"+id(botID)+"/execute",
		models.ExecutionRequest{InputData: input}, &execution)
	if err != nil {
		return nil, err
	}

	return &execution, nil
}

// BotExecutions lists the executions of one bot, newest first.
func (c *Client) BotExecutions(ctx context.Context, botID string) ([]models.Execution, error) {
	var executions []models.Execution
	if err := c.doJSON(ctx, "BotExecutions", http.MethodGet, "/api/bots/"+id(botID)+"/executions", nil, &executions); err != nil {
		return nil, err
	}

	return executions, nil
}

// CreateBot registers a bot.
func (c *Client) CreateBot(ctx context.Context, data models.BotCreate) (*models.Bot, error) {
	var bot models.Bot
	if err := c.doJSON(ctx, "CreateBot", http.MethodPost, "/api/admin/bots", data, &bot); err != nil {
		return nil, err
	}

	return &bot, nil
}

// UpdateBot applies a partial update to a bot.
func (c *Client) UpdateBot(ctx context.Context, botID string, data models.BotUpdate) (*models.Bot, error) {
	var bot models.Bot
	if err := c.doJSON(ctx, "UpdateBot", http.MethodPut, "/api/admin/bots/"+id(botID), data, &bot); err != nil {
		return nil, err
	}

	return &bot, nil
}

// DeleteBot removes a bot registration.
func (c *Client) DeleteBot(ctx context.Context, botID string) error {
	return c.doJSON(ctx, "DeleteBot", http.MethodDelete, "/api/admin/bots/"+id(botID), nil, nil)
}
