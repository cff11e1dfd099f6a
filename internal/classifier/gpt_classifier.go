package classifier

import (
	"context"
	"strings"
	"sync"

	"github.com/xaenox/frontdesk/internal/llm"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

type GPTResponse struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
}

// GPTClassifier asks a model for the label at zero temperature and remembers
// answers so identical text always gets the identical label. Failures and
// low-confidence answers fall back to the keyword classifier, which itself
// resolves ambiguity to else.
type GPTClassifier struct {
	completer     llm.Completer
	prompt        string
	minConfidence float64
	fallback      *KeywordClassifier
	logger        *zap.Logger

	mu       sync.Mutex
	cache    map[string]models.Intent
	order    []string
	cacheCap int
}

func NewGPTClassifier(completer llm.Completer, prompt string, minConfidence float64, cacheSize int, logger *zap.Logger) *GPTClassifier {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &GPTClassifier{
		completer:     completer,
		prompt:        prompt,
		minConfidence: minConfidence,
		fallback:      NewKeywordClassifier(),
		logger:        logger,
		cache:         make(map[string]models.Intent),
		cacheCap:      cacheSize,
	}
}

func (c *GPTClassifier) Classify(ctx context.Context, in Input) (models.Intent, error) {
	prompt := c.prompt
	if in.Instructions != "" {
		prompt = in.Instructions
	}
	key := prompt + "\x00" + normalize(in.Text)

	if intent, ok := c.cached(key); ok {
		return intent, nil
	}

	intent, err := c.ask(ctx, prompt, in.Text)
	if err != nil {
		if ctx.Err() != nil {
			return models.IntentElse, ctx.Err()
		}
		c.logger.Error("Failed to get GPT classification", zap.Error(err))
		// the fallback result is not cached so a later successful call can replace it
		return c.fallback.classify(in.Text), nil
	}

	c.store(key, intent)
	return intent, nil
}

func (c *GPTClassifier) ask(ctx context.Context, prompt, text string) (models.Intent, error) {
	raw, err := c.completer.Complete(ctx, llm.Request{
		System:      prompt,
		Messages:    llm.UserMessage(text),
		Temperature: 0,
		MaxTokens:   40,
		JSON:        true,
	})
	if err != nil {
		return "", err
	}

	var resp GPTResponse
	if err := llm.DecodeJSON(raw, &resp); err != nil {
		return "", err
	}

	intent := models.ParseIntent(resp.Classification)
	if intent != models.IntentElse && resp.Confidence > 0 && resp.Confidence < c.minConfidence {
		c.logger.Debug("Low confidence classification",
			zap.String("label", string(intent)),
			zap.Float64("confidence", resp.Confidence))
		return models.IntentElse, nil
	}
	return intent, nil
}

func (c *GPTClassifier) cached(key string) (models.Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	intent, ok := c.cache[key]
	return intent, ok
}

func (c *GPTClassifier) store(key string, intent models.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache[key]; ok {
		return
	}
	if len(c.order) >= c.cacheCap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}
	c.cache[key] = intent
	c.order = append(c.order, key)
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
