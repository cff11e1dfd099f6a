package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/xaenox/frontdesk/internal/guardrail"
	"github.com/xaenox/frontdesk/internal/storage"
)

type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Database    DatabaseConfig   `mapstructure:"database"`
	LLM         LLMConfig        `mapstructure:"llm"`
	OpenAI      OpenAIConfig     `mapstructure:"openai"`
	Classifier  ClassifierConfig `mapstructure:"classifier"`
	Guardrails  GuardrailsConfig `mapstructure:"guardrails"`
	Scheduling  SchedulingConfig `mapstructure:"scheduling"`
	Knowledge   KnowledgeConfig  `mapstructure:"knowledge"`
	Google      GoogleConfig     `mapstructure:"google"`
	Firebase    FirebaseConfig   `mapstructure:"firebase"`
	PromptsFile string           `mapstructure:"prompts_file"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	RequireAuth    bool   `mapstructure:"require_auth"`
	AllowedOrigin  string `mapstructure:"allowed_origin"`
	OAuthRedirect  string `mapstructure:"oauth_redirect"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	// Driver is one of memory, postgres, sqlite or firestore.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// SQL returns the storage settings for the SQL drivers.
func (c DatabaseConfig) SQL() storage.DatabaseConfig {
	return storage.DatabaseConfig{
		Driver:   c.Driver,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		DBName:   c.DBName,
		SSLMode:  c.SSLMode,
		Path:     c.Path,
	}
}

type LLMConfig struct {
	// Provider is one of openai, anthropic or gemini.
	Provider        string     `mapstructure:"provider"`
	Model           string     `mapstructure:"model"`
	MaxTokens       int        `mapstructure:"max_tokens"`
	AnthropicAPIKey string     `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string     `mapstructure:"gemini_api_key"`
	Models          RoleModels `mapstructure:"models"`
}

// RoleModels overrides the model per caller. Empty values use LLMConfig.Model.
type RoleModels struct {
	Classifier  string `mapstructure:"classifier"`
	SlotParser  string `mapstructure:"slot_parser"`
	Information string `mapstructure:"information"`
	Jailbreak   string `mapstructure:"jailbreak"`
}

// ModelFor returns the model configured for a role.
func (c LLMConfig) ModelFor(role string) string {
	var m string
	switch role {
	case "classifier":
		m = c.Models.Classifier
	case "slot_parser":
		m = c.Models.SlotParser
	case "information":
		m = c.Models.Information
	case "jailbreak":
		m = c.Models.Jailbreak
	}
	if m == "" {
		return c.Model
	}
	return m
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type ClassifierConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	CacheSize     int     `mapstructure:"cache_size"`
	// Offline uses keyword matching only.
	Offline bool `mapstructure:"offline"`
}

type GuardrailsConfig struct {
	Input  []guardrail.CheckConfig `mapstructure:"input"`
	Output []guardrail.CheckConfig `mapstructure:"output"`
}

type SchedulingConfig struct {
	BusinessStart int `mapstructure:"business_start"`
	BusinessEnd   int `mapstructure:"business_end"`
	MaxWindows    int `mapstructure:"max_windows"`
	HistoryWindow int `mapstructure:"history_window"`
	// SlotParser is llm or rules.
	SlotParser string `mapstructure:"slot_parser"`
}

type KnowledgeConfig struct {
	IndexPrefix string  `mapstructure:"index_prefix"`
	MaxResults  int     `mapstructure:"max_results"`
	MinScore    float64 `mapstructure:"min_score"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type FirebaseConfig struct {
	ProjectID          string `mapstructure:"project_id"`
	ServiceAccountPath string `mapstructure:"service_account_path"`
}

// envBindings maps well-known environment variables onto config keys.
var envBindings = map[string]string{
	"openai.api_key":                "OPENAI_API_KEY",
	"llm.anthropic_api_key":         "ANTHROPIC_API_KEY",
	"llm.gemini_api_key":            "GEMINI_API_KEY",
	"telegram.token":                "TELEGRAM_TOKEN",
	"google.client_id":              "GOOGLE_OAUTH_CLIENT_ID",
	"google.client_secret":          "GOOGLE_OAUTH_CLIENT_SECRET",
	"google.redirect_uri":           "OAUTH_REDIRECT_URI",
	"firebase.project_id":           "FIREBASE_PROJECT_ID",
	"firebase.service_account_path": "FIREBASE_SERVICE_ACCOUNT_PATH",
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	switch u.Scheme {
	case "sqlite", "file":
		path := u.Opaque
		if path == "" {
			path = u.Host + u.Path
		}
		return DatabaseConfig{Driver: storage.DriverSQLite, Path: path}, nil
	case "postgres", "postgresql":
	default:
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port: %w", err)
		}
	}
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   storage.DriverPostgres,
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path (when set) and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "frontdesk.db")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("classifier.min_confidence", 0.5)
	v.SetDefault("classifier.cache_size", 1024)
	v.SetDefault("scheduling.business_start", 9)
	v.SetDefault("scheduling.business_end", 17)
	v.SetDefault("scheduling.max_windows", 3)
	v.SetDefault("scheduling.history_window", 20)
	v.SetDefault("scheduling.slot_parser", "llm")
	v.SetDefault("knowledge.index_prefix", "frontdesk")
	v.SetDefault("knowledge.max_results", 5)
	v.SetDefault("knowledge.min_score", 0.3)

	// Enable environment variable support
	v.SetEnvPrefix("FRONTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "FRONTDESK_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if err := v.BindEnv("database_url", "DATABASE_URL"); err != nil {
		return nil, err
	}
	if dbURL := v.GetString("database_url"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "memory", storage.DriverPostgres, storage.DriverSQLite, "firestore":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	switch c.Scheduling.SlotParser {
	case "llm", "rules":
	default:
		errs = append(errs, fmt.Errorf("unknown slot parser %q", c.Scheduling.SlotParser))
	}
	if c.Scheduling.BusinessStart < 0 || c.Scheduling.BusinessEnd > 24 || c.Scheduling.BusinessStart >= c.Scheduling.BusinessEnd {
		errs = append(errs, fmt.Errorf("invalid business hours %d-%d", c.Scheduling.BusinessStart, c.Scheduling.BusinessEnd))
	}
	return errors.Join(errs...)
}
