package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// BlocklistCheck trips on any configured phrase, matched case-insensitively on
// word boundaries. It needs no remote call.
type BlocklistCheck struct {
	patterns []*regexp.Regexp
}

func NewBlocklistCheck(phrases []string) (*BlocklistCheck, error) {
	c := &BlocklistCheck{}
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling blocklist phrase %q: %w", p, err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

func (c *BlocklistCheck) Name() string { return "blocklist" }

func (c *BlocklistCheck) Run(_ context.Context, text string) (Result, error) {
	for _, re := range c.patterns {
		if re.MatchString(text) {
			return Result{CheckName: c.Name(), Tripwire: true, Categories: []string{"blocklist"}}, nil
		}
	}
	return Result{CheckName: c.Name()}, nil
}
