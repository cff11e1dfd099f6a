// Package information answers factual questions from the user's knowledge index.
package information

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/frontdesk/internal/llm"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/prompts"
	"go.uber.org/zap"
)

// Fallback is returned verbatim whenever no knowledge matches.
const Fallback = "I couldn’t find information about that, I’m sorry. Try asking a different question."

// Searcher looks up passages in the user's knowledge index.
type Searcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]models.KnowledgeHit, error)
}

type Options struct {
	BusinessName string
	MaxResults   int
	MinScore     float64
}

type Responder struct {
	completer llm.Completer
	searcher  Searcher
	prompt    string
	opts      Options
	logger    *zap.Logger
}

func NewResponder(completer llm.Completer, searcher Searcher, prompt string, opts Options, logger *zap.Logger) *Responder {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	return &Responder{
		completer: completer,
		searcher:  searcher,
		prompt:    prompt,
		opts:      opts,
		logger:    logger,
	}
}

// Answer replies to the question in turn. instructions replace the default
// prompt when set. Only knowledge passages are used as facts; without any the
// reply is Fallback.
func (r *Responder) Answer(ctx context.Context, turn models.ConversationTurn, instructions string) (string, error) {
	system := r.prompt
	if instructions != "" {
		system = instructions
	}
	system = prompts.Render(system, map[string]string{
		"business": r.opts.BusinessName,
		"fallback": Fallback,
	})

	hits := r.search(ctx, turn.UserID, turn.Text)
	if len(hits) == 0 {
		draft, err := r.completer.Complete(ctx, llm.Request{
			System:    system + "\n\nWrite a one-sentence draft answer. It is only used to search the reference material.",
			Messages:  llm.UserMessage(turn.Text),
			MaxTokens: 80,
		})
		if err != nil {
			return "", fmt.Errorf("drafting answer: %w", err)
		}
		if draft = strings.TrimSpace(draft); draft != "" && draft != Fallback {
			hits = r.search(ctx, turn.UserID, draft)
		}
	}
	if len(hits) == 0 {
		r.logger.Debug("No knowledge matched", zap.String("user_id", turn.UserID))
		return Fallback, nil
	}

	answer, err := r.completer.Complete(ctx, llm.Request{
		System:   system,
		Messages: llm.FromHistory(turn.History, groundedQuestion(turn.Text, hits)),
	})
	if err != nil {
		return "", fmt.Errorf("answering question: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Fallback, nil
	}
	return answer, nil
}

func (r *Responder) search(ctx context.Context, userID, query string) []models.KnowledgeHit {
	if r.searcher == nil {
		return nil
	}
	hits, err := r.searcher.Search(ctx, userID, query, r.opts.MaxResults)
	if err != nil {
		r.logger.Warn("Knowledge search failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	out := hits[:0:0]
	for _, h := range hits {
		if h.Score < r.opts.MinScore || strings.TrimSpace(h.Text) == "" {
			continue
		}
		out = append(out, h)
	}
	return out
}

func groundedQuestion(question string, hits []models.KnowledgeHit) string {
	var b strings.Builder
	b.WriteString("Reference material:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, h.Filename, strings.TrimSpace(h.Text))
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
