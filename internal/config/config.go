package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Knowledge KnowledgeConfig
	Bank      BankConfig
	Session   SessionConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// NodeID distinguishes ID generators when several processes share a database.
	NodeID int
}

type StorageConfig struct {
	Driver  string // "sqlite" or "postgres"
	DataDir string
	DSN     string
}

type LLMConfig struct {
	Provider   string // "openai" or "mock"
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    string
	MaxRetries int

	// MaxContextTokens bounds the context block sent with each draft request.
	MaxContextTokens int
}

type KnowledgeConfig struct {
	Dir           string
	DefaultTopics string // comma-separated
}

type BankConfig struct {
	Timezone            string
	DefaultDeadlineDays int
}

type SessionConfig struct {
	TTL string
}

type LogConfig struct {
	Level string
}

// TimeoutDuration returns the LLM transport timeout.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

func (c SessionConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Location loads the bank's civil time zone.
func (c BankConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c KnowledgeConfig) DefaultTopicList() []string {
	var out []string
	for _, t := range strings.Split(c.DefaultTopics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Addr returns the HTTP listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: dataDir,
		},
		LLM: LLMConfig{
			Provider:         "openai",
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4o-mini",
			Timeout:          "60s",
			MaxRetries:       3,
			MaxContextTokens: 4000,
		},
		Knowledge: KnowledgeConfig{
			Dir: filepath.Join(dataDir, "knowledge"),
		},
		Bank: BankConfig{
			Timezone:            "Europe/Moscow",
			DefaultDeadlineDays: 10,
		},
		Session: SessionConfig{
			TTL: "24h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML config file and environment
// variables. The file lives at $XDG_CONFIG_HOME/letterdesk/config.yaml unless
// LETTERDESK_CONFIG points elsewhere. Environment variables (LETTERDESK_*)
// override file values. Secrets are read from the environment only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("missing required config: LLM API key. " +
				"Set it via environment variable LETTERDESK_LLM_API_KEY or use llm.provider=mock")
		}
	case "mock":
	default:
		return fmt.Errorf("invalid llm.provider %q: want openai or mock", cfg.LLM.Provider)
	}

	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("missing required config: storage.dsn for postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q: want sqlite or postgres", cfg.Storage.Driver)
	}

	if _, err := cfg.Bank.Location(); err != nil {
		return fmt.Errorf("invalid bank.timezone %q: %w", cfg.Bank.Timezone, err)
	}
	if cfg.Bank.DefaultDeadlineDays <= 0 {
		return fmt.Errorf("invalid letters.default_deadline_days %d: must be positive", cfg.Bank.DefaultDeadlineDays)
	}
	if cfg.Server.NodeID < 0 || cfg.Server.NodeID > 1023 {
		return fmt.Errorf("invalid server.node_id %d: must be within 0..1023", cfg.Server.NodeID)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "letterdesk-data"
		}
	}
	return filepath.Join(dir, "letterdesk")
}
