package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

// deterministicSeed is sent with every request so repeated prompts sample the same way.
const deterministicSeed = 7

type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewOpenAICompleter(apiKey string, model string, maxTokens int, logger *zap.Logger) *OpenAICompleter {
	return NewOpenAICompleterFromClient(openai.NewClient(apiKey), model, maxTokens, logger)
}

func NewOpenAICompleterFromClient(client *openai.Client, model string, maxTokens int, logger *zap.Logger) *OpenAICompleter {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if system := systemPrompt(req); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	// a zero temperature is dropped by omitempty, so send the smallest positive value instead
	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	seed := deterministicSeed
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Seed:        &seed,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("OpenAI completion",
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return text, nil
}
