package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"SessionChat/internal/config"
	"SessionChat/internal/session"
	"SessionChat/internal/telemetry"
)

// Ollama talks to a local Ollama server
type Ollama struct {
	base
	baseURL string
	model   string
}

// NewOllama creates an Ollama backend for model ("model:version")
func NewOllama(baseURL, model string, logger *slog.Logger, p *telemetry.Providers) *Ollama {
	return &Ollama{
		base:    newBase(logger, p),
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

func (o *Ollama) Name() string { return config.BackendOllama }

// Reply calls /api/chat without streaming
func (o *Ollama) Reply(ctx context.Context, messages []session.Message) (string, error) {
	ctx, span := o.tracer.Start(ctx, "ollama_api_call")
	defer span.End()

	reqBody := OllamaRequest{
		Model:    o.model,
		Messages: toRoleContent(messages),
		Stream:   false,
	}

	var apiResp OllamaResponse
	if err := o.postJSON(ctx, o.baseURL+"/api/chat", nil, reqBody, &apiResp); err != nil {
		span.RecordError(err)
		return "", err
	}

	if apiResp.Message.Content == "" {
		return "", fmt.Errorf("empty response from Ollama")
	}
	return apiResp.Message.Content, nil
}

// ListModels fetches the models available on the server
func (o *Ollama) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var tagsResp OllamaTagsResponse
	if err := o.do(ctx, req, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to list models (is Ollama running?): %w", err)
	}
	return tagsResp.Models, nil
}
