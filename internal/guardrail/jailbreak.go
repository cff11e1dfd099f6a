package guardrail

import (
	"context"
	"fmt"

	"github.com/xaenox/frontdesk/internal/llm"
)

// DefaultJailbreakThreshold is the minimum confidence that trips the check.
const DefaultJailbreakThreshold = 0.7

// JailbreakCheck asks a model whether the text tries to subvert the assistant.
type JailbreakCheck struct {
	completer llm.Completer
	prompt    string
	threshold float64
}

func NewJailbreakCheck(completer llm.Completer, prompt string, threshold float64) *JailbreakCheck {
	if threshold <= 0 {
		threshold = DefaultJailbreakThreshold
	}
	return &JailbreakCheck{
		completer: completer,
		prompt:    prompt,
		threshold: threshold,
	}
}

func (c *JailbreakCheck) Name() string { return "jailbreak" }

func (c *JailbreakCheck) Run(ctx context.Context, text string) (Result, error) {
	raw, err := c.completer.Complete(ctx, llm.Request{
		System:    c.prompt,
		Messages:  llm.UserMessage(text),
		MaxTokens: 60,
		JSON:      true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("jailbreak completion: %w", err)
	}

	var out struct {
		Flagged    bool    `json:"flagged"`
		Confidence float64 `json:"confidence"`
	}
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return Result{}, err
	}

	res := Result{CheckName: c.Name()}
	if out.Flagged && out.Confidence >= c.threshold {
		res.Tripwire = true
		res.Categories = []string{"jailbreak"}
	}
	return res, nil
}
