package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/frontdesk/pkg/config"
	"go.uber.org/zap"
)

func TestDefaultGuardrails(t *testing.T) {
	input, output := defaultGuardrails(true)
	require.Len(t, input, 2)
	assert.Equal(t, "moderation", input[0].Name)
	assert.Equal(t, "jailbreak", input[1].Name)
	require.Len(t, output, 1)

	input, output = defaultGuardrails(false)
	require.Len(t, input, 1)
	assert.Empty(t, output)
}

func TestLoadPrompts(t *testing.T) {
	set, err := loadPrompts("")
	require.NoError(t, err)
	assert.NotEmpty(t, set.Classification)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("business_name: Acme Dental\n"), 0o600))
	set, err = loadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "Acme Dental", set.BusinessName)
	assert.NotEmpty(t, set.Information)
}

func TestNewCompleterRequiresOpenAIKey(t *testing.T) {
	logger = zap.NewNop()
	cfg := &config.Config{LLM: config.LLMConfig{Provider: "openai"}}
	_, err := newCompleter(context.Background(), cfg, "gpt-4o-mini", nil)
	assert.Error(t, err)
}

func TestNewAppWithMemoryStorage(t *testing.T) {
	logger = zap.NewNop()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.assistant)
	assert.NotNil(t, a.indexer)
	assert.Nil(t, a.connections)
	assert.Nil(t, a.verifier)
}
