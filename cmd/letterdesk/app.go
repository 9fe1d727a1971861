package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/letterdesk/internal/classifier"
	"github.com/kalambet/letterdesk/internal/composer"
	"github.com/kalambet/letterdesk/internal/config"
	"github.com/kalambet/letterdesk/internal/facts"
	"github.com/kalambet/letterdesk/internal/generator"
	"github.com/kalambet/letterdesk/internal/ids"
	"github.com/kalambet/letterdesk/internal/knowledge"
	"github.com/kalambet/letterdesk/internal/letters"
	"github.com/kalambet/letterdesk/internal/llm"
	"github.com/kalambet/letterdesk/internal/routing"
	"github.com/kalambet/letterdesk/internal/stats"
	"github.com/kalambet/letterdesk/internal/storage"
	"github.com/kalambet/letterdesk/internal/users"
)

// app bundles the services shared by serve, mcp and the local commands.
type app struct {
	cfg        config.Config
	store      *storage.Store
	classifier *classifier.Classifier
	knowledge  *knowledge.Retriever
	letters    *letters.Service
	users      *users.Service
	stats      *stats.Service
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func openStore(ctx context.Context, cfg config.StorageConfig) (*storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return storage.OpenPostgres(ctx, cfg.DSN)
	default:
		return storage.Open(cfg.DataDir)
	}
}

func newLLMClient(cfg config.LLMConfig) (llm.Client, error) {
	if cfg.Provider == "mock" {
		slog.Warn("using offline mock LLM provider")
		return llm.NewMock(), nil
	}
	c, err := llm.NewOpenAI(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.TimeoutDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}
	tries := cfg.MaxRetries
	if tries < 1 {
		tries = 1
	}
	return llm.WithRetry(c, uint(tries)), nil
}

// newApp loads configuration and wires storage, the LLM and every service.
// The caller must close a.store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)

	if err := ids.Init(int64(cfg.Server.NodeID)); err != nil {
		return nil, fmt.Errorf("initializing id generator: %w", err)
	}
	loc, err := cfg.Bank.Location()
	if err != nil {
		return nil, err
	}
	client, err := newLLMClient(cfg.LLM)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	cls := classifier.New(client, loc, cfg.Bank.DefaultDeadlineDays)
	kb := knowledge.NewRetriever(cfg.Knowledge.Dir, nil, cfg.Knowledge.DefaultTopicList())
	if len(kb.Available()) == 0 {
		slog.Warn("knowledge base is empty", "dir", cfg.Knowledge.Dir)
	}

	return &app{
		cfg:        cfg,
		store:      store,
		classifier: cls,
		knowledge:  kb,
		letters: letters.NewService(letters.Deps{
			Store:      store,
			Classifier: cls,
			Extractor:  facts.NewExtractor(client),
			Facts:      facts.NewBook(store),
			Router:     routing.New(store),
			Retriever:  kb,
			Composer:   composer.New(loc, cfg.LLM.MaxContextTokens),
			Generator:  generator.New(client),
		}),
		users: users.NewService(store),
		stats: stats.NewService(store),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
