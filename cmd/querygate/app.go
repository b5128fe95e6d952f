package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/stupiduntilnot/querygate/internal/agent"
	"github.com/stupiduntilnot/querygate/internal/config"
	ctxpkg "github.com/stupiduntilnot/querygate/internal/context"
	"github.com/stupiduntilnot/querygate/internal/control"
	"github.com/stupiduntilnot/querygate/internal/db"
	"github.com/stupiduntilnot/querygate/internal/dummy"
	"github.com/stupiduntilnot/querygate/internal/executor"
	modelpkg "github.com/stupiduntilnot/querygate/internal/model"
	"github.com/stupiduntilnot/querygate/internal/openai"
	"github.com/stupiduntilnot/querygate/internal/sqlguard"
	"github.com/stupiduntilnot/querygate/internal/store"
	"github.com/stupiduntilnot/querygate/internal/synth"
)

// app holds the opened databases and the wired agent for one command run.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	database *sql.DB
	target   *sql.DB
	store    *store.Store
	agent    *agent.Agent
}

// openStore opens and migrates the store only. The returned agent can serve
// history and conversation replay but not Ask.
func openStore(cfg config.Config, logger *slog.Logger) (*app, error) {
	database, err := db.OpenDB(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	st := store.New(database)
	return &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		store:    st,
		agent:    &agent.Agent{Store: st, Logger: logger},
	}, nil
}

// openApp opens the store and the target engine and wires the full pipeline.
func openApp(cfg config.Config, logger *slog.Logger, role string) (*app, error) {
	a, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	var processID *int64
	id, err := db.LogEvent(a.database, nil, db.EventProcessStarted, map[string]any{
		"role":     role,
		"pid":      os.Getpid(),
		"provider": cfg.LLM.Provider,
		"target":   cfg.Target.Driver,
		"mode":     cfg.Context.Mode,
	})
	if err != nil {
		logger.Warn("failed to log process.started", "err", err)
	} else {
		processID = &id
	}

	target, err := db.OpenTarget(cfg.Target.Driver, cfg.Target.DSN, cfg.Store.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.target = target

	provider, err := newModelProvider(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init model provider: %w", err)
	}

	policy := control.Policy{
		SynthesisTimeout: cfg.LLMTimeout(),
		ExecutionTimeout: cfg.TargetTimeout(),
	}
	breaker := control.NewCircuitBreaker(cfg.Circuit.Threshold, cfg.CircuitCooldown())
	synthClient := synth.New(provider, policy, breaker, cfg.Context.Schema, logger)
	synthClient.OnEvent = func(eventType string, payload map[string]any) {
		if _, err := db.LogEvent(a.database, processID, eventType, payload); err != nil {
			logger.Warn("failed to log event", "type", eventType, "err", err)
		}
	}

	a.agent = &agent.Agent{
		Store:           a.store,
		HistoryProvider: &ctxpkg.StoreProvider{Store: a.store},
		Window:          &ctxpkg.WindowCompressor{MaxMessages: cfg.Context.HistoryWindow},
		Assembler:       &ctxpkg.AlternatingAssembler{},
		Synth:           synthClient,
		Guard:           sqlguard.New(cfg.Guard.ExtraDenylist...),
		Exec:            executor.New(target, policy, logger),
		Mode:            cfg.Context.Mode,
		Schema:          cfg.Context.Schema,
		Logger:          logger,
		Events:          a.database,
		ParentEvent:     processID,
	}
	return a, nil
}

func newModelProvider(cfg config.Config) (modelpkg.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewClient(cfg.LLM.APIKey, cfg.LLM.URL, cfg.LLM.Model, cfg.LLMTimeout()), nil
	case "dummy":
		p, err := dummy.NewProvider(cfg.LLM.DummyScript)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}

func (a *app) Close() {
	if a.target != nil {
		a.target.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}
