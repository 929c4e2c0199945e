package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/botportal/pkg/eventbus"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus builds the bus that carries tracker and schedule events.
// Only the in-process provider exists: the CLI and its views share one
// process, and run --watch depends on delivered events.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "", "memory":
		return eventbus.NewInProcess(logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}
