package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/frontdesk/internal/models"
)

func TestDecodeJSON(t *testing.T) {
	type label struct {
		Classification string `json:"classification"`
	}

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: `{"classification":"else"}`, want: "else"},
		{name: "fenced", raw: "```json\n{\"classification\": \"get_information\"}\n```", want: "get_information"},
		{name: "prose around", raw: "Sure! {\"classification\":\"appointment_related\"} hope that helps", want: "appointment_related"},
		{name: "no object", raw: "appointment_related", wantErr: true},
		{name: "broken", raw: `{"classification":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got label
			err := DecodeJSON(tt.raw, &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Classification)
		})
	}
}

func TestFromHistory(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Text: "hi"},
		{Role: models.RoleAssistant, Text: "hello"},
	}
	msgs := FromHistory(history, "book me")
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, Message{Role: models.RoleUser, Text: "book me"}, msgs[2])
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, "be brief", systemPrompt(Request{System: "be brief"}))
	assert.Equal(t, jsonInstruction, systemPrompt(Request{JSON: true}))
	assert.Contains(t, systemPrompt(Request{System: "classify", JSON: true}), "classify\n\n"+jsonInstruction)
}
