package client

import (
	"context"
	"net/http"

	"github.com/dukex/botportal/pkg/models"
)

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, "Me", http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// GoogleURL returns the OAuth redirect URL that starts a login.
func (c *Client) GoogleURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}

	if err := c.doJSON(ctx, "GoogleURL", http.MethodGet, "/api/auth/google-url", nil, &resp); err != nil {
		return "", err
	}

	return resp.URL, nil
}

// Health returns the backend health status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}

	if err := c.doJSON(ctx, "Health", http.MethodGet, "/api/health", nil, &resp); err != nil {
		return "", err
	}

	return resp.Status, nil
}

// Stats returns the portal counters snapshot.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	if err := c.doJSON(ctx, "Stats", http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

// QueueStatus returns the backend run queue sizes.
func (c *Client) QueueStatus(ctx context.Context) (*models.QueueStatus, error) {
	var status models.QueueStatus
	if err := c.doJSON(ctx, "QueueStatus", http.MethodGet, "/api/queue-status", nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}
