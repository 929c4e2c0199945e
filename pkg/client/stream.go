package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/botportal/pkg/models"
)

// Stream is an open server-push channel for one execution. Each message is
// a full snapshot of the execution. The server ends the channel once the
// execution reaches a terminal status.
type Stream struct {
	executionID string
	body        io.ReadCloser
	scanner     *bufio.Scanner
	cancel      context.CancelFunc
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// StreamExecution opens the push channel for an execution. The caller must
// Close the stream.
func (c *Client) StreamExecution(ctx context.Context, executionID string) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := c.doRaw(ctx, "StreamExecution", "/api/executions/"+id(executionID)+"/stream", c.tokenQuery(), "text/event-stream")
	if err != nil {
		cancel()

		return nil, err
	}

	body := resp.RawBody()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	return &Stream{
		executionID: executionID,
		body:        body,
		scanner:     scanner,
		cancel:      cancel,
		logger:      c.logger.With("execution_id", executionID),
	}, nil
}

// Next blocks until the next execution snapshot arrives. It returns io.EOF
// when the server ends the channel, ErrExecutionNotFound when the server
// reports the execution gone and ErrStreamClosed after Close. Payloads that
// cannot be decoded are skipped.
func (s *Stream) Next() (*models.Execution, error) {
	for {
		if s.isClosed() {
			return nil, ErrStreamClosed
		}

		data, err := s.readEvent()
		if err != nil {
			if s.isClosed() {
				return nil, ErrStreamClosed
			}

			return nil, err
		}

		execution, err := s.decode(data)
		if err != nil {
			if errors.Is(err, ErrExecutionNotFound) {
				return nil, err
			}

			s.logger.Debug("Skipping undecodable stream payload", "error", err)

			continue
		}

		return execution, nil
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	return s.body.Close()
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// readEvent returns the data of the next event, joining multi-line data
// fields with newlines. Comments and other fields are ignored.
func (s *Stream) readEvent() (string, error) {
	var lines []string

	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")

		if line == "" {
			if len(lines) > 0 {
				return strings.Join(lines, "\n"), nil
			}

			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}

		lines = append(lines, strings.TrimPrefix(value, " "))
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("stream %s: %w", s.executionID, err)
	}

	if len(lines) > 0 {
		return strings.Join(lines, "\n"), nil
	}

	return "", io.EOF
}

func (s *Stream) decode(data string) (*models.Execution, error) {
	var envelope struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, err
	}

	if envelope.Error != "" {
		if envelope.Error == "not_found" {
			return nil, fmt.Errorf("stream %s: %w", s.executionID, ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("stream %s: server error %q", s.executionID, envelope.Error)
	}

	var execution models.Execution
	if err := json.Unmarshal([]byte(data), &execution); err != nil {
		return nil, err
	}

	if execution.ID == "" {
		return nil, fmt.Errorf("stream %s: payload without id", s.executionID)
	}

	return &execution, nil
}
