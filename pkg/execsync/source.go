package execsync

import (
	"context"

	"github.com/dukex/botportal/pkg/client"
	"github.com/dukex/botportal/pkg/models"
)

// Channel is an open push channel for one execution.
type Channel interface {
	Next() (*models.Execution, error)
	Close() error
}

// Source is what the tracker reads from and launches through.
type Source interface {
	List(ctx context.Context) ([]models.Execution, error)
	Open(ctx context.Context, executionID string) (Channel, error)
	Launch(ctx context.Context, botID string, input map[string]string) (*models.Execution, error)
}

// API is the subset of the portal client the tracker uses.
type API interface {
	Executions(ctx context.Context) ([]models.Execution, error)
	BotExecutions(ctx context.Context, botID string) ([]models.Execution, error)
	ExecuteBot(ctx context.Context, botID string, input map[string]string) (*models.Execution, error)
	StreamExecution(ctx context.Context, executionID string) (*client.Stream, error)
}

// FromClient adapts the API client. With a botID the baseline list is
// scoped to that bot, otherwise it covers every execution.
func FromClient(api API, botID string) Source {
	return &clientSource{api: api, botID: botID}
}

type clientSource struct {
	api   API
	botID string
}

func (s *clientSource) List(ctx context.Context) ([]models.Execution, error) {
	if s.botID != "" {
		return s.api.BotExecutions(ctx, s.botID)
	}

	return s.api.Executions(ctx)
}

func (s *clientSource) Open(ctx context.Context, executionID string) (Channel, error) {
	return s.api.StreamExecution(ctx, executionID)
}

func (s *clientSource) Launch(ctx context.Context, botID string, input map[string]string) (*models.Execution, error) {
	return s.api.ExecuteBot(ctx, botID, input)
}
