package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Context modes for SQL synthesis.
const (
	ContextAware = "aware"
	ContextFree  = "free"
)

// Supported target engine drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DefaultSchema describes the store tables the model may query.
const DefaultSchema = `users(id INTEGER, username TEXT, email TEXT, role TEXT, joined_at INTEGER)
queries(id INTEGER, user_id INTEGER, query_text TEXT, response_text TEXT, asked_at INTEGER)
conversations(id INTEGER, user_id INTEGER, title TEXT, started_at INTEGER)
conversation_messages(id INTEGER, conversation_id INTEGER, seq INTEGER, role TEXT, content TEXT, written_at INTEGER)`

// Config holds configuration for every querygate command.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Target  TargetConfig  `yaml:"target"`
	LLM     LLMConfig     `yaml:"llm"`
	Context ContextConfig `yaml:"context"`
	Guard   GuardConfig   `yaml:"guard"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Circuit CircuitConfig `yaml:"circuit"`
}

// StoreConfig locates the SQLite store holding users, conversations and the query log.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// TargetConfig identifies the relational engine the executor queries.
// An empty DSN means the store database opened read-only.
type TargetConfig struct {
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LLMConfig configures the SQL synthesis endpoint.
type LLMConfig struct {
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DummyScript    string `yaml:"dummy_script"`
}

// ContextConfig shapes what the model sees.
type ContextConfig struct {
	Mode          string `yaml:"mode"`
	HistoryWindow int    `yaml:"history_window"`
	Schema        string `yaml:"schema"`
}

// GuardConfig extends the validator's deny list. The built-in keywords always apply.
type GuardConfig struct {
	ExtraDenylist []string `yaml:"extra_denylist"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// CircuitConfig configures the synthesis circuit breaker.
type CircuitConfig struct {
	Threshold       int `yaml:"threshold"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// ValidationError reports a configuration key with an unusable value.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Key, e.Reason)
}

// Default returns the configuration used when neither a file nor the environment
// overrides a value.
func Default() Config {
	return Config{
		Store:  StoreConfig{Path: "/state/querygate.db"},
		Target: TargetConfig{Driver: DriverSQLite, TimeoutSeconds: 15},
		LLM: LLMConfig{
			Provider:       "openai",
			URL:            "https://api.perplexity.ai/chat/completions",
			Model:          "sonar-pro",
			TimeoutSeconds: 30,
			DummyScript:    "UNSUPPORTED",
		},
		Context: ContextConfig{Mode: ContextAware, HistoryWindow: 40, Schema: DefaultSchema},
		Server:  ServerConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info"},
		Circuit: CircuitConfig{Threshold: 5, CooldownSeconds: 30},
	}
}

// Load reads the optional YAML file at path, applies QUERYGATE_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStoreOnly is Load for commands that only touch the store; model and target
// settings are not validated.
func LoadStoreOnly(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return Config{}, &ValidationError{Key: "store.path", Reason: "is required"}
	}
	return cfg, nil
}

func read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Store.Path = envOrDefault("QUERYGATE_DB_PATH", cfg.Store.Path)
	cfg.Target.Driver = envOrDefault("QUERYGATE_TARGET_DRIVER", cfg.Target.Driver)
	cfg.Target.DSN = envOrDefault("QUERYGATE_TARGET_DSN", cfg.Target.DSN)
	cfg.Target.TimeoutSeconds = envIntOrDefault("QUERYGATE_TARGET_TIMEOUT_SECONDS", cfg.Target.TimeoutSeconds)
	cfg.LLM.Provider = envOrDefault("QUERYGATE_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.APIKey = envOrDefault("QUERYGATE_LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.URL = envOrDefault("QUERYGATE_LLM_URL", cfg.LLM.URL)
	cfg.LLM.Model = envOrDefault("QUERYGATE_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.TimeoutSeconds = envIntOrDefault("QUERYGATE_LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)
	cfg.LLM.DummyScript = envOrDefault("QUERYGATE_DUMMY_SCRIPT", cfg.LLM.DummyScript)
	cfg.Context.Mode = envOrDefault("QUERYGATE_CONTEXT_MODE", cfg.Context.Mode)
	cfg.Context.HistoryWindow = envIntOrDefault("QUERYGATE_HISTORY_WINDOW", cfg.Context.HistoryWindow)
	cfg.Context.Schema = envOrDefault("QUERYGATE_SCHEMA", cfg.Context.Schema)
	if extra := os.Getenv("QUERYGATE_GUARD_EXTRA_DENYLIST"); extra != "" {
		cfg.Guard.ExtraDenylist = parseCSV(extra)
	}
	cfg.Server.Addr = envOrDefault("QUERYGATE_ADDR", cfg.Server.Addr)
	cfg.Log.Level = envOrDefault("QUERYGATE_LOG_LEVEL", cfg.Log.Level)
	cfg.Circuit.Threshold = envIntOrDefault("QUERYGATE_CIRCUIT_THRESHOLD", cfg.Circuit.Threshold)
	cfg.Circuit.CooldownSeconds = envIntOrDefault("QUERYGATE_CIRCUIT_COOLDOWN_SECONDS", cfg.Circuit.CooldownSeconds)
}

// Validate checks the configuration for values no component can work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return &ValidationError{Key: "store.path", Reason: "is required"}
	}
	switch c.Target.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Target.DSN == "" {
			return &ValidationError{Key: "target.dsn", Reason: "is required when target.driver=pgx"}
		}
	default:
		return &ValidationError{Key: "target.driver", Reason: fmt.Sprintf("unsupported driver %q", c.Target.Driver)}
	}
	if c.Target.TimeoutSeconds <= 0 {
		return &ValidationError{Key: "target.timeout_seconds", Reason: "must be > 0"}
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return &ValidationError{Key: "llm.api_key", Reason: "is required when llm.provider=openai (QUERYGATE_LLM_API_KEY)"}
		}
	case "dummy":
	default:
		return &ValidationError{Key: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return &ValidationError{Key: "llm.timeout_seconds", Reason: "must be > 0"}
	}
	if c.Context.Mode != ContextAware && c.Context.Mode != ContextFree {
		return &ValidationError{Key: "context.mode", Reason: fmt.Sprintf("must be %q or %q", ContextAware, ContextFree)}
	}
	if c.Context.HistoryWindow < 0 {
		return &ValidationError{Key: "context.history_window", Reason: "must be >= 0"}
	}
	return nil
}

// LLMTimeout returns the per-call synthesis timeout.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// TargetTimeout returns the per-statement execution timeout.
func (c Config) TargetTimeout() time.Duration {
	return time.Duration(c.Target.TimeoutSeconds) * time.Second
}

// CircuitCooldown returns how long the synthesis breaker stays open.
func (c Config) CircuitCooldown() time.Duration {
	return time.Duration(c.Circuit.CooldownSeconds) * time.Second
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		item := strings.TrimSpace(p)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
