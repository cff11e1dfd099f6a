package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type GeminiCompleter struct {
	client    *genai.Client
	model     string
	maxTokens int32
	logger    *zap.Logger
}

func NewGeminiCompleter(ctx context.Context, apiKey string, model string, maxTokens int, logger *zap.Logger) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiCompleter{
		client:    client,
		model:     model,
		maxTokens: int32(maxTokens),
		logger:    logger,
	}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: c.maxTokens,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("genai generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("Gemini completion", zap.String("model", c.model))
	return text, nil
}
