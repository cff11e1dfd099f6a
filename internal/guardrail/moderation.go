package guardrail

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultModerationCategories are the categories that trip the moderation check
// when no explicit list is configured.
var DefaultModerationCategories = []string{
	"sexual/minors",
	"hate/threatening",
	"harassment/threatening",
	"self-harm/instructions",
	"violence/graphic",
	"illicit/violent",
}

// Moderator is the part of the OpenAI client used by ModerationCheck.
type Moderator interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// ModerationCheck trips when the moderation endpoint flags any configured category.
type ModerationCheck struct {
	client     Moderator
	model      string
	categories map[string]struct{}
}

func NewModerationCheck(client Moderator, model string, categories []string) *ModerationCheck {
	if model == "" {
		model = openai.ModerationOmniLatest
	}
	if len(categories) == 0 {
		categories = DefaultModerationCategories
	}
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return &ModerationCheck{
		client:     client,
		model:      model,
		categories: set,
	}
}

func (c *ModerationCheck) Name() string { return "moderation" }

func (c *ModerationCheck) Run(ctx context.Context, text string) (Result, error) {
	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: c.model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("moderation request: %w", err)
	}

	res := Result{CheckName: c.Name()}
	seen := make(map[string]struct{})
	for _, r := range resp.Results {
		for _, name := range flaggedCategories(r.Categories) {
			if _, ok := c.categories[name]; !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			res.Categories = append(res.Categories, name)
		}
	}
	res.Tripwire = len(res.Categories) > 0
	return res, nil
}

func flaggedCategories(c openai.ResultCategories) []string {
	all := []struct {
		name    string
		flagged bool
	}{
		{"hate", c.Hate},
		{"hate/threatening", c.HateThreatening},
		{"harassment", c.Harassment},
		{"harassment/threatening", c.HarassmentThreatening},
		{"self-harm", c.SelfHarm},
		{"self-harm/intent", c.SelfHarmIntent},
		{"self-harm/instructions", c.SelfHarmInstructions},
		{"sexual", c.Sexual},
		{"sexual/minors", c.SexualMinors},
		{"violence", c.Violence},
		{"violence/graphic", c.ViolenceGraphic},
	}
	var out []string
	for _, cat := range all {
		if cat.flagged {
			out = append(out, cat.name)
		}
	}
	return out
}
