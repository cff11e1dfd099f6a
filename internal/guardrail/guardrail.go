// Package guardrail screens inbound and outbound text against an ordered list
// of safety checks. A single tripped check stops the evaluation.
package guardrail

import (
	"context"

	"go.uber.org/zap"
)

// CategoryCheckError is reported when a check could not produce a result.
// The gate treats it as a trip.
const CategoryCheckError = "check_error"

// Result is the outcome of one named check.
type Result struct {
	CheckName  string   `json:"check_name"`
	Tripwire   bool     `json:"tripwire"`
	Categories []string `json:"categories,omitempty"`
}

// Verdict is the combined outcome of a check list. It never carries the
// screened text.
type Verdict struct {
	Tripwire   bool
	CheckName  string
	Categories []string
}

// Check is one screening step.
type Check interface {
	Name() string
	Run(ctx context.Context, text string) (Result, error)
}

// Evaluate folds results into a verdict, stopping at the first trip.
func Evaluate(results []Result) Verdict {
	for _, r := range results {
		if r.Tripwire {
			return Verdict{Tripwire: true, CheckName: r.CheckName, Categories: r.Categories}
		}
	}
	return Verdict{}
}

type Gate struct {
	input  []Check
	output []Check
	logger *zap.Logger
}

func NewGate(input, output []Check, logger *zap.Logger) *Gate {
	return &Gate{
		input:  input,
		output: output,
		logger: logger,
	}
}

// CheckInput screens user text before any classification or generation.
func (g *Gate) CheckInput(ctx context.Context, text string) Verdict {
	return g.run(ctx, "input", g.input, text)
}

// CheckOutput screens a reply before it is returned.
func (g *Gate) CheckOutput(ctx context.Context, text string) Verdict {
	return g.run(ctx, "output", g.output, text)
}

// Classify runs every check of the list and returns all results without
// short-circuiting.
func (g *Gate) Classify(ctx context.Context, checks []Check, text string) []Result {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		results = append(results, g.runOne(ctx, c, text))
	}
	return results
}

func (g *Gate) run(ctx context.Context, stage string, checks []Check, text string) Verdict {
	for _, c := range checks {
		res := g.runOne(ctx, c, text)
		if res.Tripwire {
			g.logger.Info("Guardrail tripped",
				zap.String("stage", stage),
				zap.String("check", res.CheckName),
				zap.Strings("categories", res.Categories))
			return Evaluate([]Result{res})
		}
	}
	return Verdict{}
}

func (g *Gate) runOne(ctx context.Context, c Check, text string) Result {
	res, err := c.Run(ctx, text)
	if err != nil {
		g.logger.Error("Guardrail check failed",
			zap.String("check", c.Name()),
			zap.Error(err))
		return Result{CheckName: c.Name(), Tripwire: true, Categories: []string{CategoryCheckError}}
	}
	if res.CheckName == "" {
		res.CheckName = c.Name()
	}
	return res
}
