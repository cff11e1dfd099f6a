// Package prompts holds the default instructions given to the language models.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xaenox/frontdesk/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Set is the full collection of instructions.
type Set struct {
	BusinessName   string `yaml:"business_name"`
	Classification string `yaml:"classification"`
	WhenParser     string `yaml:"when_parser"`
	Information    string `yaml:"information"`
	Jailbreak      string `yaml:"jailbreak"`
}

// Default returns the embedded instructions.
func Default() (Set, error) {
	return Parse(defaultPrompts)
}

// Parse decodes a prompt file. Missing keys keep the embedded default.
func Parse(data []byte) (Set, error) {
	var base Set
	if err := yaml.Unmarshal(defaultPrompts, &base); err != nil {
		return Set{}, fmt.Errorf("decoding embedded prompts: %w", err)
	}
	if len(data) == 0 {
		return base, nil
	}

	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Set{}, fmt.Errorf("decoding prompts: %w", err)
	}
	return base.Merge(override), nil
}

// Merge returns s with every non-empty field of o applied on top.
func (s Set) Merge(o Set) Set {
	if o.BusinessName != "" {
		s.BusinessName = o.BusinessName
	}
	if o.Classification != "" {
		s.Classification = o.Classification
	}
	if o.WhenParser != "" {
		s.WhenParser = o.WhenParser
	}
	if o.Information != "" {
		s.Information = o.Information
	}
	if o.Jailbreak != "" {
		s.Jailbreak = o.Jailbreak
	}
	return s
}

// ForUser applies the per-user agent settings.
func (s Set) ForUser(settings *models.AgentSettings) Set {
	if settings == nil {
		return s
	}
	return s.Merge(Set{
		Classification: settings.ClassificationPrompt,
		Information:    settings.InformationPrompt,
	})
}

// Render replaces {{key}} placeholders.
func Render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
