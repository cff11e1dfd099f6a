package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/frontdesk/internal/assistant"
	"github.com/xaenox/frontdesk/internal/calendar"
	"github.com/xaenox/frontdesk/internal/classifier"
	"github.com/xaenox/frontdesk/internal/connections"
	"github.com/xaenox/frontdesk/internal/guardrail"
	"github.com/xaenox/frontdesk/internal/identity"
	"github.com/xaenox/frontdesk/internal/information"
	"github.com/xaenox/frontdesk/internal/knowledge"
	"github.com/xaenox/frontdesk/internal/llm"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/prompts"
	"github.com/xaenox/frontdesk/internal/scheduling"
	"github.com/xaenox/frontdesk/internal/slots"
	"github.com/xaenox/frontdesk/internal/storage"
	"github.com/xaenox/frontdesk/internal/tools"
	"github.com/xaenox/frontdesk/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// app holds every wired component.
type app struct {
	cfg          *config.Config
	store        storage.Storage
	assistant    *assistant.Orchestrator
	indexer      *knowledge.Indexer
	connections  *connections.Service
	verifier     identity.Verifier
	firebaseApp  *firebase.App
	openaiClient *openai.Client
}

func (a *app) Close() error {
	return a.store.Close()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newStorageApp builds only what the knowledge commands need.
func newStorageApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if cfg.OpenAI.APIKey != "" {
		oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			oc.BaseURL = cfg.OpenAI.BaseURL
		}
		a.openaiClient = openai.NewClientWithConfig(oc)
	}

	if cfg.Database.Driver == "firestore" || cfg.Firebase.ProjectID != "" {
		fb, err := newFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		a.firebaseApp = fb
	}

	store, err := newStorage(ctx, cfg, a.firebaseApp)
	if err != nil {
		return nil, err
	}
	a.store = store

	if cfg.OpenAI.APIKey != "" {
		index := knowledge.NewOpenAIIndex(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger)
		a.indexer = knowledge.NewIndexer(index, store, cfg.Knowledge.IndexPrefix, logger)
	} else {
		logger.Warn("OpenAI API key not set; knowledge features are disabled")
	}
	return a, nil
}

// newApp wires the full assistant.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := newStorageApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	set, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	completer := func(role string) (llm.Completer, error) {
		return newCompleter(ctx, cfg, cfg.LLM.ModelFor(role), a.openaiClient)
	}

	// Guardrails
	guardCompleter, err := completer("jailbreak")
	if err != nil {
		return nil, err
	}
	deps := guardrail.Deps{Completer: guardCompleter, JailbreakPrompt: set.Jailbreak}
	if a.openaiClient != nil {
		deps.Moderator = a.openaiClient
	}
	inputCfg, outputCfg := cfg.Guardrails.Input, cfg.Guardrails.Output
	if len(inputCfg) == 0 && len(outputCfg) == 0 {
		inputCfg, outputCfg = defaultGuardrails(a.openaiClient != nil)
	}
	input, err := guardrail.Build(inputCfg, deps)
	if err != nil {
		return nil, fmt.Errorf("building input guardrails: %w", err)
	}
	output, err := guardrail.Build(outputCfg, deps)
	if err != nil {
		return nil, fmt.Errorf("building output guardrails: %w", err)
	}
	gate := guardrail.NewGate(input, output, logger.Named("guardrail"))

	// Classifier
	var cls classifier.Classifier = classifier.NewKeywordClassifier()
	if !cfg.Classifier.Offline {
		c, err := completer("classifier")
		if err != nil {
			return nil, err
		}
		cls = classifier.NewGPTClassifier(c, set.Classification, cfg.Classifier.MinConfidence, cfg.Classifier.CacheSize, logger.Named("classifier"))
	}

	// Scheduling
	var parser slots.Parser = slots.NewRuleParser(time.Now)
	if cfg.Scheduling.SlotParser == "llm" {
		c, err := completer("slot_parser")
		if err != nil {
			return nil, err
		}
		parser = slots.NewLLMParser(c, set.WhenParser, time.Now, logger.Named("slots"))
	}

	oauthConfigs := map[models.Provider]*oauth2.Config{}
	if cfg.Google.ClientID != "" {
		for _, p := range models.Providers {
			oauthConfigs[p] = connections.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI, p)
		}
		a.connections = connections.NewService(oauthConfigs, a.store, connections.GmailProfile, logger.Named("connections"))
	} else {
		logger.Warn("Google OAuth client not configured; calendar connections are disabled")
		oauthConfigs[models.ProviderCalendar] = connections.OAuthConfig("", "", "", models.ProviderCalendar)
	}

	cal := calendar.NewGoogleCalendar(oauthConfigs[models.ProviderCalendar], a.store, logger.Named("calendar"))
	executor := tools.NewExecutor(cal, tools.Options{
		BusinessStart: cfg.Scheduling.BusinessStart,
		BusinessEnd:   cfg.Scheduling.BusinessEnd,
		MaxWindows:    cfg.Scheduling.MaxWindows,
	}, time.Now, logger.Named("tools"))
	machine := scheduling.NewMachine(parser, executor, a.store, time.Now, logger.Named("scheduling"))

	// Information
	infoCompleter, err := completer("information")
	if err != nil {
		return nil, err
	}
	var searcher information.Searcher
	if a.indexer != nil {
		searcher = a.indexer
	}
	responder := information.NewResponder(infoCompleter, searcher, set.Information, information.Options{
		BusinessName: set.BusinessName,
		MaxResults:   cfg.Knowledge.MaxResults,
		MinScore:     cfg.Knowledge.MinScore,
	}, logger.Named("information"))

	// Identity
	if a.firebaseApp != nil {
		authClient, err := a.firebaseApp.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("initializing firebase auth: %w", err)
		}
		a.verifier = identity.NewFirebaseVerifier(authClient, logger.Named("identity"))
	} else if cfg.Server.RequireAuth {
		return nil, errors.New("server.require_auth needs firebase.project_id")
	}

	a.assistant = assistant.NewOrchestrator(assistant.Deps{
		Guard:      gate,
		Classifier: cls,
		Scheduler:  machine,
		Responder:  responder,
		Store:      a.store,
		Prompts:    set,
	}, assistant.Options{HistoryWindow: cfg.Scheduling.HistoryWindow}, logger.Named("assistant"))
	return a, nil
}

func defaultGuardrails(moderation bool) (input, output []guardrail.CheckConfig) {
	input = []guardrail.CheckConfig{{Name: "jailbreak"}}
	if moderation {
		input = append([]guardrail.CheckConfig{{Name: "moderation"}}, input...)
		output = []guardrail.CheckConfig{{Name: "moderation"}}
	}
	return input, output
}

func loadPrompts(path string) (prompts.Set, error) {
	if path == "" {
		return prompts.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return prompts.Set{}, fmt.Errorf("reading prompts: %w", err)
	}
	return prompts.Parse(data)
}

func newCompleter(ctx context.Context, cfg *config.Config, model string, client *openai.Client) (llm.Completer, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return llm.NewAnthropicCompleter(cfg.LLM.AnthropicAPIKey, model, cfg.LLM.MaxTokens, logger.Named("llm")), nil
	case "gemini":
		return llm.NewGeminiCompleter(ctx, cfg.LLM.GeminiAPIKey, model, cfg.LLM.MaxTokens, logger.Named("llm"))
	default:
		if client == nil {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return llm.NewOpenAICompleterFromClient(client, model, cfg.LLM.MaxTokens, logger.Named("llm")), nil
	}
}

func newFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.ServiceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
	}
	fb, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase: %w", err)
	}
	return fb, nil
}

func newStorage(ctx context.Context, cfg *config.Config, fb *firebase.App) (storage.Storage, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	case "firestore":
		logger.Info("Using Firestore storage", zap.String("project_id", cfg.Firebase.ProjectID))
		client, err := fb.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("initializing firestore: %w", err)
		}
		return storage.NewFirestoreStorage(client, logger.Named("storage")), nil
	default:
		logger.Info("Using SQL storage", zap.String("driver", cfg.Database.Driver))
		store, err := storage.NewSQLStorage(ctx, cfg.Database.SQL(), logger.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	}
}
