package client

import (
	"context"
	"net/http"

	"github.com/dukex/botportal/pkg/models"
)

// AdminUsers lists every portal account.
func (c *Client) AdminUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.doJSON(ctx, "AdminUsers", http.MethodGet, "/api/admin/users", nil, &users); err != nil {
		return nil, err
	}

	return users, nil
}

// UpdateUserRole changes the role of an account.
func (c *Client) UpdateUserRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	var user models.User

	err := c.doJSON(ctx, "UpdateUserRole", http.MethodPut, "/api/admin/users/"+id(userID)+"/role",
		models.UserRoleUpdate{Role: role}, &user)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// UpdateUserBots replaces the bot allow-list of an account.
func (c *Client) UpdateUserBots(ctx context.Context, userID string, botIDs []string) (*models.User, error) {
	if botIDs == nil {
		botIDs = []string{}
	}

	var user models.User

	err := c.doJSON(ctx, "UpdateUserBots", http.MethodPut, "/api/admin/users/"+id(userID)+"/bots",
		models.UserBotsUpdate{AllowedBotIDs: botIDs}, &user)
	if err != nil {
		return nil, err
	}

	return &user, nil
}
