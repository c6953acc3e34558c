package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SessionChat/internal/session"
	"SessionChat/internal/telemetry"
)

// envelope is the wire wrapper around every response body
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type sendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type sessionPayload struct {
	SessionID string            `json:"sessionId"`
	Messages  []session.Message `json:"messages"`
}

var _ Client = &HTTPClient{}

// HTTPClient implements Client against a remote history service
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// NewHTTPClient creates a client for the service rooted at baseURL
func NewHTTPClient(baseURL string, logger *slog.Logger, p *telemetry.Providers) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = telemetry.Noop()
	}
	duration, err := p.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		logger.Warn("failed to create histogram", "name", "http.client.request.duration", "error", err)
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		tracer:     p.Tracer,
		duration:   duration,
	}
}

func (c *HTTPClient) ListSessions(ctx context.Context) ([]session.Summary, error) {
	var out []session.Summary
	if err := c.call(ctx, "list", http.MethodGet, "/api/chat/history", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []session.Summary{}
	}
	return out, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, sessionID string) ([]session.Message, error) {
	var out sessionPayload
	path := "/api/chat/session/" + url.PathEscape(sessionID)
	if err := c.call(ctx, "get", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []session.Message{}
	}
	return out.Messages, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, text, sessionID string) (SendResult, error) {
	var out SendResult
	body := sendRequest{Message: text, SessionID: sessionID}
	if err := c.call(ctx, "send", http.MethodPost, "/api/chat/message", body, &out); err != nil {
		return SendResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteSession(ctx context.Context, sessionID string) error {
	path := "/api/chat/session/" + url.PathEscape(sessionID)
	return c.call(ctx, "delete", http.MethodDelete, path, nil, nil)
}

// call performs one request and unwraps the response envelope into out
func (c *HTTPClient) call(ctx context.Context, op, method, path string, body, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "history."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return &ServiceError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &ServiceError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("accept", "application/json")
	if requestID, idErr := gonanoid.New(); idErr == nil {
		req.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()
	c.recordDuration(ctx, op, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ServiceError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &ServiceError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))}
		}
		return &ServiceError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}
		var cause error = errors.New(msg)
		if resp.StatusCode == http.StatusNotFound {
			cause = fmt.Errorf("%s: %w", msg, ErrNotFound)
		}
		return &ServiceError{Op: op, Status: resp.StatusCode, Err: cause}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &ServiceError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal data: %w", err)}
	}

	c.logger.Debug("history call", "op", op, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *HTTPClient) recordDuration(ctx context.Context, op string, d time.Duration) {
	if c.duration != nil {
		c.duration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attribute.String("op", op)))
	}
}
