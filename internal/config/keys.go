package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "LETTERDESK_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "LETTERDESK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.node_id", typ: kInt, env: "LETTERDESK_SERVER_NODE_ID",
		apply:   func(cfg *Config, v any) { cfg.Server.NodeID = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.NodeID },
	},
	{
		key: "storage.driver", typ: kString, env: "LETTERDESK_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LETTERDESK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.dsn", typ: kString, env: "LETTERDESK_STORAGE_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "llm.provider", typ: kString, env: "LETTERDESK_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "LETTERDESK_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "LETTERDESK_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "LETTERDESK_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.timeout", typ: kString, env: "LETTERDESK_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.max_retries", typ: kInt, env: "LETTERDESK_LLM_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxRetries },
	},
	{
		key: "llm.max_context_tokens", typ: kInt, env: "LETTERDESK_LLM_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxContextTokens },
	},
	{
		key: "knowledge.dir", typ: kString, env: "LETTERDESK_KNOWLEDGE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.Dir },
	},
	{
		key: "knowledge.default_topics", typ: kString, env: "LETTERDESK_KNOWLEDGE_DEFAULT_TOPICS",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.DefaultTopics = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.DefaultTopics },
	},
	{
		key: "bank.timezone", typ: kString, env: "LETTERDESK_BANK_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Bank.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Bank.Timezone },
	},
	{
		key: "letters.default_deadline_days", typ: kInt, env: "LETTERDESK_LETTERS_DEFAULT_DEADLINE_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Bank.DefaultDeadlineDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Bank.DefaultDeadlineDays },
	},
	{
		key: "session.ttl", typ: kString, env: "LETTERDESK_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.TTL },
	},
	{
		key: "log.level", typ: kString, env: "LETTERDESK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
