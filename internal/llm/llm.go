// Package llm wraps the text-generation backends behind a single Completer
// interface. Callers build a Request with instructions and messages; the
// backend returns the assistant text.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/frontdesk/internal/models"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one entry of the prompt conversation.
type Message struct {
	Role models.Role
	Text string
}

// Request is a single completion call.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the backend for a single JSON object.
	JSON bool
}

// Completer produces the assistant text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// UserMessage is a convenience for single-message prompts.
func UserMessage(text string) []Message {
	return []Message{{Role: models.RoleUser, Text: text}}
}

// FromHistory converts stored messages into prompt messages, followed by text.
func FromHistory(history []models.Message, text string) []Message {
	msgs := make([]Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, Message{Role: m.Role, Text: m.Text})
	}
	return append(msgs, Message{Role: models.RoleUser, Text: text})
}

// DecodeJSON extracts the first JSON object from raw model output, tolerating
// markdown fences and leading prose, and decodes it into v.
func DecodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return fmt.Errorf("llm: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("llm: decoding JSON response: %w", err)
	}
	return nil
}

const jsonInstruction = "Respond with a single JSON object and nothing else."

func systemPrompt(req Request) string {
	if !req.JSON {
		return req.System
	}
	if req.System == "" {
		return jsonInstruction
	}
	return req.System + "\n\n" + jsonInstruction
}
