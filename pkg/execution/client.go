package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrExecutionUnavailable matches every transport failure returned by Client.
var ErrExecutionUnavailable = errors.New("execution service unavailable")

// Error describes a transport failure: the service was unreachable or answered
// with a non-success status. Detail is the human readable message to show.
type Error struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("execution service returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("execution service unreachable: %s", e.Detail)
}

// Is makes errors.Is(err, ErrExecutionUnavailable) hold.
func (e *Error) Is(target error) bool {
	return target == ErrExecutionUnavailable
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail extracts the user facing message of err, or fallback.
func Detail(err error, fallback string) string {
	var execErr *Error
	if errors.As(err, &execErr) && strings.TrimSpace(execErr.Detail) != "" {
		return execErr.Detail
	}
	return fallback
}

// Client calls the execution service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "execution_client").Logger()
	}
}

// NewHTTPClient returns an http.Client with an OpenTelemetry transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// New builds a client for the service rooted at baseURL, e.g. http://host/api/v1/exec.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient(0),
		tracer:  otel.Tracer("github.com/noah-isme/oelp-api/pkg/execution"),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Run executes code once. It never persists anything.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	var result RunResult
	if err := c.post(ctx, "execution.run", "/run", req, &result); err != nil {
		return RunResult{}, err
	}
	return result, nil
}

// Submit grades code against the question's test cases. This is the only call
// that creates a submission.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var result SubmitResult
	if err := c.post(ctx, "execution.submit", "/submit", req, &result); err != nil {
		return SubmitResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, spanName, path string, payload, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("execution.path", path)))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Warn().Err(err).Str("path", path).Msg("execution service unreachable")
		return &Error{Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		span.RecordError(err)
		return &Error{StatusCode: resp.StatusCode, Detail: "failed to read execution response", Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(raw, resp.StatusCode)
		span.SetStatus(codes.Error, detail)
		c.logger.Warn().Int("status", resp.StatusCode).Str("detail", detail).Str("path", path).Msg("execution service rejected request")
		return &Error{StatusCode: resp.StatusCode, Detail: detail}
	}

	if err := decodePayload(raw, out); err != nil {
		span.RecordError(err)
		return &Error{StatusCode: resp.StatusCode, Detail: "malformed execution response", Err: err}
	}
	return nil
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
}

// decodePayload accepts both the {success, data} envelope and a bare object.
func decodePayload(raw []byte, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Success != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

func errorDetail(raw []byte, status int) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if detail := strings.TrimSpace(env.Detail); detail != "" {
			return detail
		}
		if message := strings.TrimSpace(env.Message); message != "" {
			return message
		}
	}
	return http.StatusText(status)
}
