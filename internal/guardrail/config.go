package guardrail

import (
	"fmt"

	"github.com/xaenox/frontdesk/internal/llm"
)

// CheckConfig describes one entry of a check list.
type CheckConfig struct {
	Name       string   `mapstructure:"name" yaml:"name"`
	Threshold  float64  `mapstructure:"threshold" yaml:"threshold"`
	Categories []string `mapstructure:"categories" yaml:"categories"`
	Phrases    []string `mapstructure:"phrases" yaml:"phrases"`
	Model      string   `mapstructure:"model" yaml:"model"`
}

// Deps are the collaborators the checks may need.
type Deps struct {
	Moderator       Moderator
	Completer       llm.Completer
	JailbreakPrompt string
}

// Build turns an ordered configuration into checks, keeping the order.
func Build(cfgs []CheckConfig, deps Deps) ([]Check, error) {
	checks := make([]Check, 0, len(cfgs))
	for _, cfg := range cfgs {
		switch cfg.Name {
		case "moderation":
			if deps.Moderator == nil {
				return nil, fmt.Errorf("guardrail %q needs a moderation client", cfg.Name)
			}
			checks = append(checks, NewModerationCheck(deps.Moderator, cfg.Model, cfg.Categories))
		case "jailbreak":
			if deps.Completer == nil {
				return nil, fmt.Errorf("guardrail %q needs a completer", cfg.Name)
			}
			checks = append(checks, NewJailbreakCheck(deps.Completer, deps.JailbreakPrompt, cfg.Threshold))
		case "blocklist":
			c, err := NewBlocklistCheck(cfg.Phrases)
			if err != nil {
				return nil, err
			}
			checks = append(checks, c)
		default:
			return nil, fmt.Errorf("unknown guardrail check %q", cfg.Name)
		}
	}
	return checks, nil
}
