// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"github.com/dukex/botportal/pkg/execform"
	"github.com/dukex/botportal/pkg/models"
)

// NewFormRegistry loads execute-action forms from path. Without a file the
// registry is empty and FormFor falls back to the date-range form for bots
// that accept input.
func NewFormRegistry(path string) (*execform.Registry, error) {
	if path == "" {
		return execform.NewRegistry(), nil
	}

	return execform.LoadRegistry(path)
}

// FormFor returns the form that validates input for bot. ok is false when
// the bot takes no validated input.
func FormFor(registry *execform.Registry, bot models.Bot) (*execform.Form, bool, error) {
	if form, ok := registry.Lookup(bot.PageSlug); ok {
		return form, true, nil
	}

	if !bot.SupportsDataInput {
		return nil, false, nil
	}

	form, err := execform.NewDateRangeForm(execform.DefaultFromKey, execform.DefaultToKey, execform.DefaultMaxDays)
	if err != nil {
		return nil, false, err
	}

	registry.Register(bot.PageSlug, form)

	return form, true, nil
}
