package information

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/frontdesk/internal/llm"
	"github.com/xaenox/frontdesk/internal/llm/llmtest"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

type fakeSearcher struct {
	hits    map[string][]models.KnowledgeHit
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, query string, _ int) ([]models.KnowledgeHit, error) {
	f.queries = append(f.queries, query)
	return f.hits[query], f.err
}

func turn(text string) models.ConversationTurn {
	return models.ConversationTurn{UserID: "u1", Text: text}
}

func TestAnswer_NoKnowledgeReturnsFallback(t *testing.T) {
	searcher := &fakeSearcher{}
	fake := &llmtest.Fake{Reply: "We are open 9 to 5."}
	r := NewResponder(fake, searcher, "Answer for {{business}}.", Options{BusinessName: "Acme"}, zap.NewNop())

	got, err := r.Answer(context.Background(), turn("What are your hours?"), "")
	require.NoError(t, err)
	assert.Equal(t, Fallback, got)
	assert.Equal(t, []string{"What are your hours?", "We are open 9 to 5."}, searcher.queries)
	assert.Equal(t, 1, fake.Calls())
}

func TestAnswer_GroundedOnQuestionHits(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]models.KnowledgeHit{
		"What are your hours?": {{FileID: "f1", Filename: "faq.md", Score: 0.8, Text: "Open Mon-Fri 8am-6pm."}},
	}}
	fake := &llmtest.Fake{Reply: "We're open Monday to Friday, 8am to 6pm."}
	r := NewResponder(fake, searcher, "Answer for {{business}}. Else say {{fallback}}", Options{BusinessName: "Acme"}, zap.NewNop())

	got, err := r.Answer(context.Background(), turn("What are your hours?"), "")
	require.NoError(t, err)
	assert.Equal(t, "We're open Monday to Friday, 8am to 6pm.", got)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Answer for Acme. Else say "+Fallback, reqs[0].System)
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.Contains(t, last.Text, "Open Mon-Fri 8am-6pm.")
	assert.Contains(t, last.Text, "Question: What are your hours?")
}

func TestAnswer_GroundedOnDraftHits(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]models.KnowledgeHit{
		"Parking is free.": {{Filename: "visit.md", Score: 0.9, Text: "Free parking behind the building."}},
	}}
	fake := &llmtest.Fake{}
	fake.Respond = func(req llm.Request) (string, error) {
		if fake.Calls() == 1 {
			return "Parking is free.", nil
		}
		return "Yes, parking behind the building is free.", nil
	}
	r := NewResponder(fake, searcher, "p", Options{}, zap.NewNop())

	got, err := r.Answer(context.Background(), turn("Where do I park?"), "")
	require.NoError(t, err)
	assert.Equal(t, "Yes, parking behind the building is free.", got)
	assert.Equal(t, 2, fake.Calls())
}

func TestAnswer_LowScoreHitsIgnored(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]models.KnowledgeHit{
		"q": {{Filename: "x", Score: 0.1, Text: "unrelated"}},
	}}
	r := NewResponder(&llmtest.Fake{Reply: "draft"}, searcher, "p", Options{MinScore: 0.5}, zap.NewNop())

	got, err := r.Answer(context.Background(), turn("q"), "")
	require.NoError(t, err)
	assert.Equal(t, Fallback, got)
}

func TestAnswer_SearchErrorFallsBack(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index unavailable")}
	r := NewResponder(&llmtest.Fake{Reply: "draft"}, searcher, "p", Options{}, zap.NewNop())

	got, err := r.Answer(context.Background(), turn("q"), "")
	require.NoError(t, err)
	assert.Equal(t, Fallback, got)
}

func TestAnswer_CustomInstructions(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]models.KnowledgeHit{
		"q": {{Filename: "x", Score: 1, Text: "fact"}},
	}}
	fake := &llmtest.Fake{Reply: "answer"}
	r := NewResponder(fake, searcher, "default", Options{}, zap.NewNop())

	_, err := r.Answer(context.Background(), turn("q"), "Speak like a pirate.")
	require.NoError(t, err)
	assert.Equal(t, "Speak like a pirate.", fake.Requests()[0].System)
}

func TestAnswer_CompletionError(t *testing.T) {
	r := NewResponder(&llmtest.Fake{Err: errors.New("down")}, &fakeSearcher{}, "p", Options{}, zap.NewNop())
	_, err := r.Answer(context.Background(), turn("q"), "")
	assert.Error(t, err)
}
