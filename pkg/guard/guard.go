// Package guard decides whether the current session may reach a view or run
// a command.
package guard

import (
	"errors"
	"fmt"

	"github.com/dukex/botportal/pkg/models"
	"github.com/dukex/botportal/pkg/session"
)

// Decision is the outcome of evaluating a requirement.
type Decision int

const (
	// Pending means the session is still loading; render nothing yet.
	Pending Decision = iota
	// RedirectLogin sends the user to the login entry, replacing history.
	RedirectLogin
	// RedirectHome sends an authenticated but unprivileged user home.
	RedirectHome
	Allow
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case RedirectLogin:
		return "redirect-login"
	case RedirectHome:
		return "redirect-home"
	case Allow:
		return "allow"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

var (
	ErrLoginRequired  = errors.New("login required")
	ErrForbidden      = errors.New("forbidden")
	ErrSessionLoading = errors.New("session still loading")
)

// Requirement is what a view or command needs. Zero fields are not checked;
// when both are set both must pass.
type Requirement struct {
	Role  models.Role
	BotID string
}

// Evaluate applies a requirement to a session state and user.
func Evaluate(state session.State, user *models.User, req Requirement) Decision {
	switch state {
	case session.StateLoading:
		return Pending
	case session.StateUnauthenticated:
		return RedirectLogin
	}

	if user == nil {
		return RedirectLogin
	}

	if req.Role != "" && !user.Role.Satisfies(req.Role) {
		return RedirectHome
	}

	if req.BotID != "" && !user.CanAccessBot(req.BotID) {
		return RedirectHome
	}

	return Allow
}

// Source is the session view the guard reads.
type Source interface {
	State() session.State
	User() *models.User
}

// Guard evaluates requirements against a live session.
type Guard struct {
	source Source
}

func New(source Source) *Guard {
	return &Guard{source: source}
}

// Check evaluates req against the current session.
func (g *Guard) Check(req Requirement) Decision {
	return Evaluate(g.source.State(), g.source.User(), req)
}

// Require returns nil when req is met, ErrLoginRequired or ErrForbidden
// otherwise.
func (g *Guard) Require(req Requirement) error {
	switch g.Check(req) {
	case Allow:
		return nil
	case Pending:
		return ErrSessionLoading
	case RedirectLogin:
		return ErrLoginRequired
	default:
		if user := g.source.User(); req.Role != "" && user != nil && !user.Role.Satisfies(req.Role) {
			return fmt.Errorf("%w: requires role %s", ErrForbidden, req.Role)
		}

		return fmt.Errorf("%w: no access to bot %s", ErrForbidden, req.BotID)
	}
}
