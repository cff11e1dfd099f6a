package classifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/xaenox/frontdesk/internal/models"
)

// Input is the text to classify plus optional replacement instructions.
type Input struct {
	Text         string
	Instructions string
}

type Classifier interface {
	Classify(ctx context.Context, in Input) (models.Intent, error)
}

// KeywordClassifier labels text from fixed keyword lists. It is used on its own
// in offline setups and as the fallback of GPTClassifier.
type KeywordClassifier struct {
	keywords map[models.Intent][]*regexp.Regexp
}

var defaultKeywords = map[models.Intent][]string{
	models.IntentAppointment: {
		"appointment", "meet", "meeting", "schedule", "book", "booking", "reschedule",
		"cancel", "availability", "available", "free slot", "calendar", "call", "move my",
	},
	models.IntentInformation: {
		"hours", "open", "price", "pricing", "cost", "how much", "services", "offer",
		"located", "location", "address", "parking", "insurance", "policy", "what do you do",
	},
}

func NewKeywordClassifier() *KeywordClassifier {
	c := &KeywordClassifier{keywords: make(map[models.Intent][]*regexp.Regexp)}
	for intent, words := range defaultKeywords {
		for _, w := range words {
			c.keywords[intent] = append(c.keywords[intent], regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
		}
	}
	return c
}

// Classify returns the single intent whose keywords match. No match, or
// matches for both intents, resolves to else.
func (c *KeywordClassifier) Classify(_ context.Context, in Input) (models.Intent, error) {
	return c.classify(in.Text), nil
}

func (c *KeywordClassifier) classify(text string) models.Intent {
	content := strings.ToLower(text)

	var matched []models.Intent
	for _, intent := range []models.Intent{models.IntentAppointment, models.IntentInformation} {
		for _, re := range c.keywords[intent] {
			if re.MatchString(content) {
				matched = append(matched, intent)
				break
			}
		}
	}

	if len(matched) != 1 {
		return models.IntentElse
	}
	return matched[0]
}
