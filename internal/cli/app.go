package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/leadreach/internal/agent"
	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/hooks"
	"github.com/soyeahso/leadreach/internal/llm"
	"github.com/soyeahso/leadreach/internal/mailer"
	"github.com/soyeahso/leadreach/internal/metrics"
	"github.com/soyeahso/leadreach/internal/review"
	"github.com/soyeahso/leadreach/internal/scrape"
	"github.com/soyeahso/leadreach/internal/store"
)

const defaultLLMRetries = 2

// app holds the wired components shared by the serve, lead and review
// commands.
type app struct {
	cfg     config.Config
	store   store.Checkpointer
	hooks   *hooks.Manager
	metrics *metrics.Metrics
	engine  *agent.Engine
	closers []func()
}

// loadConfig reads the config file, applies command-line overrides and
// validates the result. The root logger is rebuilt from the logging section.
func loadConfig(overrides ...func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return cfg, err
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openStore opens the configured checkpoint backend, defaulting its location
// to the data directory.
func openStore(cfg config.Config) (store.Checkpointer, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}
	dsn := cfg.Store.DSN
	if dsn == "" {
		dsn = paths.StorePath(cfg.Store.Driver)
	}
	return store.Open(cfg.Store.Driver, dsn, log)
}

// buildApp wires store, model, tools, review bridge, mailer, hooks and
// metrics into a workflow engine.
func buildApp(ctx context.Context, overrides ...func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(overrides...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.store, err = openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := a.store.Close(); err != nil {
			log.Error().Err(err).Msg("closing store")
		}
	})

	registry := llm.NewRegistryFromConfig(cfg.LLM, log)
	retries := defaultLLMRetries
	if cfg.LLM.MaxRetries != nil {
		retries = *cfg.LLM.MaxRetries
	}
	model := agent.NewFailoverClient(registry, cfg.LLM.Model, cfg.LLM.Fallbacks, log).
		WithRetry(retries, time.Second)
	log.Debug().Strs("models", model.Models()).Int("retries", retries).Msg("model chain")

	profile := agent.SenderProfile{
		Name:               cfg.Agent.SenderName,
		Company:            cfg.Agent.SenderCompany,
		CompanyDescription: cfg.Agent.CompanyDescription,
	}
	tools := agent.DefaultTools(scrape.New(cfg.Scraper, log), model, profile, cfg.LLM.MaxTokens)

	a.hooks = hooks.NewManager(log)

	bridge, stopBridge, err := review.New(ctx, cfg.Review, a.hooks, log)
	if err != nil {
		return nil, fmt.Errorf("review bridge: %w", err)
	}
	// drain async hooks before the notifier disconnects
	a.closers = append(a.closers, stopBridge, a.hooks.Wait)

	sender, err := mailer.New(ctx, cfg.Mailer, paths, log)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}

	a.metrics = metrics.New(log)
	a.metrics.Attach(a.hooks)
	a.metrics.WatchStore(a.store)

	a.engine = agent.NewEngine(agent.Config{
		MaxToolRounds:  cfg.Agent.MaxToolRounds,
		MaxRunDuration: time.Duration(cfg.Agent.MaxRunDuration) * time.Second,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.Agent.Temperature,
		Subject:        cfg.Mailer.Subject,
		Sender:         profile,
	}, model, tools, a.store, bridge, sender, a.hooks, log)

	ok = true
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] != nil {
			a.closers[i]()
		}
	}
	a.closers = nil
}
