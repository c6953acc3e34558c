package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"SessionChat/internal/config"
	"SessionChat/internal/session"
	"SessionChat/internal/telemetry"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// Anthropic calls the Messages API over plain HTTP
type Anthropic struct {
	base
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
}

// NewAnthropic creates an Anthropic backend
func NewAnthropic(baseURL, apiKey, model string, logger *slog.Logger, p *telemetry.Providers) *Anthropic {
	return &Anthropic{
		base:      newBase(logger, p),
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: 1024,
	}
}

func (a *Anthropic) Name() string { return config.BackendAnthropic }

// Reply returns the first text block of the response
func (a *Anthropic) Reply(ctx context.Context, messages []session.Message) (string, error) {
	ctx, span := a.tracer.Start(ctx, "anthropic_api_call")
	defer span.End()

	reqMessages := make([]AnthropicMessage, len(messages))
	for i, msg := range messages {
		reqMessages[i] = AnthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	reqBody := AnthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  reqMessages,
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var apiResp AnthropicResponse
	if err := a.postJSON(ctx, a.baseURL+"/v1/messages", headers, reqBody, &apiResp); err != nil {
		span.RecordError(err)
		return "", err
	}

	a.recordUsage(ctx, apiResp.Usage)

	for _, content := range apiResp.Content {
		if content.Type == "text" && content.Text != "" {
			return content.Text, nil
		}
	}

	return "", fmt.Errorf("empty response from Anthropic")
}
