package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"SessionChat/internal/session"
	"SessionChat/internal/telemetry"
)

const grokBaseURL = "https://api.x.ai/v1/"

// OpenAI serves any OpenAI-compatible chat completions API (OpenAI, Grok)
type OpenAI struct {
	base
	name   string
	model  string
	client *openai.Client
}

// NewOpenAI creates an OpenAI-compatible backend; an empty baseURL means api.openai.com
func NewOpenAI(name, baseURL, apiKey, model string, logger *slog.Logger, p *telemetry.Providers) *OpenAI {
	var client *openai.Client
	if baseURL != "" {
		client = openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(apiKey))
	} else {
		client = openai.NewClient(option.WithAPIKey(apiKey))
	}
	return &OpenAI{
		base:   newBase(logger, p),
		name:   name,
		model:  model,
		client: client,
	}
}

func (o *OpenAI) Name() string { return o.name }

// Reply runs a non-streaming chat completion
func (o *OpenAI) Reply(ctx context.Context, messages []session.Message) (string, error) {
	ctx, span := o.tracer.Start(ctx, o.name+"_api_call")
	defer span.End()

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			params = append(params, openai.UserMessage(msg.Content))
		case session.RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		}
	}

	start := time.Now()
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(params),
		Model:    openai.F(o.model),
	})
	o.recordDuration(ctx, time.Since(start))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%s completion failed: %w", o.name, err)
	}

	o.recordUsage(ctx, map[string]interface{}{
		"prompt_tokens":     float64(completion.Usage.PromptTokens),
		"completion_tokens": float64(completion.Usage.CompletionTokens),
	})

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from %s", o.name)
	}
	return completion.Choices[0].Message.Content, nil
}
