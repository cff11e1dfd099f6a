package slots

import (
	"context"
	"time"

	"github.com/xaenox/frontdesk/internal/llm"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/prompts"
	"go.uber.org/zap"
)

// LLMParser asks a model for the slot and falls back to the rule parser when
// the model cannot be reached or answers with something unusable.
type LLMParser struct {
	completer llm.Completer
	prompt    string
	fallback  *RuleParser
	now       func() time.Time
	logger    *zap.Logger
}

func NewLLMParser(completer llm.Completer, prompt string, now func() time.Time, logger *zap.Logger) *LLMParser {
	if now == nil {
		now = time.Now
	}
	return &LLMParser{
		completer: completer,
		prompt:    prompt,
		fallback:  NewRuleParser(now),
		now:       now,
		logger:    logger,
	}
}

func (p *LLMParser) Parse(ctx context.Context, in Input) (models.TimeSlot, error) {
	today := p.now().In(models.PT())
	system := prompts.Render(p.prompt, map[string]string{
		"today":    today.Format(time.DateOnly),
		"weekday":  today.Weekday().String(),
		"timezone": models.CanonicalTimezone,
	})
	if in.Instructions != "" {
		system += "\n\nBusiness instructions:\n" + in.Instructions
	}

	raw, err := p.completer.Complete(ctx, llm.Request{
		System:      system,
		Messages:    llm.UserMessage(in.Text),
		Temperature: 0,
		MaxTokens:   120,
		JSON:        true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.TimeSlot{}, ctx.Err()
		}
		p.logger.Warn("Slot parser model failed, using rules", zap.Error(err))
		return p.fallback.Parse(ctx, in)
	}

	var slot models.TimeSlot
	if err := llm.DecodeJSON(raw, &slot); err != nil {
		p.logger.Warn("Slot parser returned invalid JSON, using rules", zap.Error(err))
		return p.fallback.Parse(ctx, in)
	}
	return Normalize(slot), nil
}
