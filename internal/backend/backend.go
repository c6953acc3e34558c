// Package backend generates assistant replies from LLM providers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SessionChat/internal/config"
	"SessionChat/internal/session"
	"SessionChat/internal/telemetry"
)

// Backend produces the assistant's reply to a transcript ending in a user message
type Backend interface {
	Name() string
	Reply(ctx context.Context, messages []session.Message) (string, error)
}

// base carries what every provider needs to make and observe a call
type base struct {
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	usage      metric.Int64Counter
}

func newBase(logger *slog.Logger, p *telemetry.Providers) base {
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
	usage, err := p.Meter.Int64Counter(
		"llm.usage",
		metric.WithDescription("LLM usage reported by the provider, by key"),
	)
	if err != nil {
		logger.Warn("failed to create counter", "name", "llm.usage", "error", err)
	}
	return base{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		tracer:     p.Tracer,
		duration:   duration,
		usage:      usage,
	}
}

// New builds the backend selected by cfg.Backend
func New(cfg config.Config, logger *slog.Logger, p *telemetry.Providers) (Backend, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel, logger, p), nil
	case config.BackendAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return NewAnthropic(anthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel, logger, p), nil
	case config.BackendOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAI(config.BackendOpenAI, "", cfg.OpenAIAPIKey, cfg.OpenAIModel, logger, p), nil
	case config.BackendGrok:
		if cfg.GrokAPIKey == "" {
			return nil, fmt.Errorf("GROK_API_KEY not set")
		}
		return NewOpenAI(config.BackendGrok, grokBaseURL, cfg.GrokAPIKey, cfg.GrokModel, logger, p), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

// postJSON sends body to url and decodes a 200 response into out
func (b base) postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return b.do(ctx, req, out)
}

func (b base) do(ctx context.Context, req *http.Request, out interface{}) error {
	start := time.Now()

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	b.recordDuration(ctx, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (b base) recordDuration(ctx context.Context, d time.Duration) {
	if b.duration != nil {
		b.duration.Record(ctx, float64(d.Milliseconds()))
	}
}

// recordUsage adds the numeric fields of provider usage data to the usage counter
func (b base) recordUsage(ctx context.Context, usage map[string]interface{}) {
	if b.usage == nil {
		return
	}
	for key, value := range usage {
		if n, ok := value.(float64); ok {
			b.usage.Add(ctx, int64(n), metric.WithAttributes(attribute.String("usage.key", key)))
		}
	}
}

func toRoleContent(messages []session.Message) []map[string]string {
	out := make([]map[string]string, len(messages))
	for i, msg := range messages {
		out[i] = map[string]string{
			"role":    string(msg.Role),
			"content": msg.Content,
		}
	}
	return out
}
