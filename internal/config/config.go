package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
)

const (
	// ModeLocal serves history from the embedded SQLite store and an LLM backend
	ModeLocal = "local"
	// ModeRemote talks to a history service over HTTP
	ModeRemote = "remote"
)

// Config holds application configuration
type Config struct {
	Mode        string        `yaml:"mode"`
	Backend     string        `yaml:"backend"`
	SessionID   string        `yaml:"-"`
	Debug       bool          `yaml:"debug"`
	ServerURL   string        `yaml:"server_url"`
	ListenAddr  string        `yaml:"listen_addr"`
	DBPath      string        `yaml:"db_path"`
	LogDir      string        `yaml:"log_dir"`
	SendTimeout time.Duration `yaml:"send_timeout"`

	ConfirmDelete bool `yaml:"confirm_delete"`
	CacheReplies  bool `yaml:"cache_replies"`

	OllamaURL      string `yaml:"ollama_url"`
	OllamaModel    string `yaml:"ollama_model"` // Model specification in format "model:version" (e.g., "llama3:latest")
	AnthropicModel string `yaml:"anthropic_model"`
	OpenAIModel    string `yaml:"openai_model"`
	GrokModel      string `yaml:"grok_model"`

	// API keys only come from the environment
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	GrokAPIKey      string `yaml:"-"`
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		Mode:           ModeLocal,
		Backend:        BackendOllama,
		ServerURL:      "http://localhost:8080",
		ListenAddr:     ":8080",
		DBPath:         "sessionchat.db",
		LogDir:         "logs",
		ConfirmDelete:  true,
		CacheReplies:   true,
		OllamaURL:      "http://localhost:11434",
		OllamaModel:    "llama3:latest",
		AnthropicModel: "claude-sonnet-4-20250514",
		OpenAIModel:    "gpt-4o-mini",
		GrokModel:      "grok-2-latest",
	}
}

// Load builds a Config from defaults, an optional YAML file, a .env file and
// the process environment, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.GrokAPIKey = getEnv("GROK_API_KEY", c.GrokAPIKey)

	c.Mode = getEnv("SESSIONCHAT_MODE", c.Mode)
	c.Backend = getEnv("SESSIONCHAT_BACKEND", c.Backend)
	c.ServerURL = getEnv("SESSIONCHAT_SERVER_URL", c.ServerURL)
	c.DBPath = getEnv("SESSIONCHAT_DB", c.DBPath)
	c.LogDir = getEnv("SESSIONCHAT_LOG_DIR", c.LogDir)
	c.OllamaURL = getEnv("OLLAMA_URL", c.OllamaURL)

	if raw, ok := os.LookupEnv("SESSIONCHAT_SEND_TIMEOUT"); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid SESSIONCHAT_SEND_TIMEOUT %q: %w", raw, err)
		}
		c.SendTimeout = d
	}
	if raw, ok := os.LookupEnv("SESSIONCHAT_DEBUG"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid SESSIONCHAT_DEBUG %q: %w", raw, err)
		}
		c.Debug = v
	}
	return nil
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
		if c.DBPath == "" {
			return fmt.Errorf("db path is required in %s mode", ModeLocal)
		}
	case ModeRemote:
		if c.ServerURL == "" {
			return fmt.Errorf("server url is required in %s mode", ModeRemote)
		}
	default:
		return fmt.Errorf("unknown mode: %s", c.Mode)
	}

	switch c.Backend {
	case BackendOllama, BackendAnthropic, BackendGrok, BackendOpenAI:
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}

	if c.SendTimeout < 0 {
		return fmt.Errorf("send timeout must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
