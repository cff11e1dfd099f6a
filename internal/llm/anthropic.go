package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

type AnthropicCompleter struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

func NewAnthropicCompleter(apiKey string, model string, maxTokens int, logger *zap.Logger) *AnthropicCompleter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)

	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaude3_5Sonnet20241022
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicCompleter{
		client:    &client,
		model:     m,
		maxTokens: int64(maxTokens),
		logger:    logger,
	}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == models.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system := systemPrompt(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("Anthropic completion",
		zap.String("model", string(c.model)),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))
	return text, nil
}
