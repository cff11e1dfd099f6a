// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/xaenox/frontdesk/internal/llm"
)

// Fake answers each request with Respond, or with Reply/Err when Respond is nil.
// Every request is recorded.
type Fake struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Respond  func(req llm.Request) (string, error)
	requests []llm.Request
}

func (f *Fake) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.Respond
	f.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return f.Reply, f.Err
}

// Calls returns how many requests were made.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the recorded requests.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}
