package models

import "slices"

// User is a portal account.
type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	Role          Role     `json:"role"`
	AllowedBotIDs []string `json:"allowed_bot_ids"`
	CreatedAt     string   `json:"created_at"`
	LastLogin     *string  `json:"last_login,omitempty"`
}

// CanAccessBot reports whether the user may execute the given bot.
// Admins and superadmins bypass the allow-list.
func (u *User) CanAccessBot(botID string) bool {
	if u == nil {
		return false
	}

	if u.Role.IsAdmin() {
		return true
	}

	return slices.Contains(u.AllowedBotIDs, botID)
}

// DisplayName returns the name, falling back to the email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}

	return u.Email
}

// UserRoleUpdate is the body of a role change.
type UserRoleUpdate struct {
	Role Role `json:"role" validate:"required,oneof=user admin superadmin"`
}

// UserBotsUpdate is the body of an allow-list change.
type UserBotsUpdate struct {
	AllowedBotIDs []string `json:"allowed_bot_ids" validate:"dive,required"`
}
