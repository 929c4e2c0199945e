// Package client is the portal REST and server-push client.
//
// The bearer token is read from the Credentials at call time for every
// request, so a login or logout takes effect on the very next call. JSON calls
// send it in the Authorization header; download URLs and the push channel
// carry it as a token query parameter. Any 401 invalidates the credentials and
// yields ErrUnauthorized; no request is retried.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukex/botportal/pkg/otelhelper"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is used when no API base URL is configured.
const DefaultBaseURL = "http://localhost:8002"

// Credentials supplies the bearer token and is told when the server rejects it.
type Credentials interface {
	Token() string
	Invalidate()
}

// StaticToken is a fixed token with no invalidation side effects.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

func (StaticToken) Invalidate() {}

// Client issues authenticated calls against the portal API.
type Client struct {
	baseURL     string
	http        *resty.Client
	credentials Credentials
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(httpClient).SetBaseURL(c.baseURL)
	}
}

// New creates a client for the API at baseURL. An empty baseURL means
// DefaultBaseURL.
func New(baseURL string, credentials Credentials, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if credentials == nil {
		credentials = StaticToken("")
	}

	c := &Client{
		baseURL:     baseURL,
		http:        resty.New().SetBaseURL(baseURL),
		credentials: credentials,
		logger:      slog.Default(),
		tracer:      otelhelper.Tracer("github.com/dukex/botportal/pkg/client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("module", "client")

	return c
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())

	if token := c.credentials.Token(); token != "" {
		req.SetAuthToken(token)
	}

	return req
}

// doJSON performs a JSON call. body and out may be nil.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, op,
		attribute.String(otelhelper.HTTPMethodKey, method),
		attribute.String(otelhelper.HTTPPathKey, path),
	)
	defer span.End()

	req := c.newRequest(ctx).SetHeader("Accept", "application/json")
	span.SetAttributes(attribute.String(otelhelper.RequestIDKey, req.Header.Get("X-Request-ID")))

	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("%s: %w", op, err)
	}

	otelhelper.SetHTTPStatus(span, resp.StatusCode())

	if err := c.check(op, resp.StatusCode(), resp.Body()); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("%s: decode response: %w", op, err)
	}

	return nil
}

// doRaw performs a call whose body the caller streams. The caller must close
// the returned body.
func (c *Client) doRaw(ctx context.Context, op, path string, query url.Values, accept string) (*resty.Response, error) {
	req := c.newRequest(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", accept).
		SetQueryParamsFromValues(query)

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		raw := resp.RawBody()
		data, _ := io.ReadAll(io.LimitReader(raw, 64<<10))
		_ = raw.Close()

		return nil, c.check(op, resp.StatusCode(), data)
	}

	return resp, nil
}

// check turns a response status into an error. A 401 invalidates the
// credentials before returning.
func (c *Client) check(op string, status int, body []byte) error {
	if status == http.StatusUnauthorized {
		c.logger.Warn("Session rejected by server, clearing token", "op", op)
		c.credentials.Invalidate()

		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	if status < 200 || status >= 300 {
		return newAPIError(op, status, body)
	}

	return nil
}

// tokenQuery returns the query carrying the token for URL-based access.
func (c *Client) tokenQuery() url.Values {
	query := url.Values{}
	if token := c.credentials.Token(); token != "" {
		query.Set("token", token)
	}

	return query
}

func escapePath(p string) string {
	segments := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return strings.Join(segments, "/")
}

func id(v string) string {
	return url.PathEscape(v)
}
