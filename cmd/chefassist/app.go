package main

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"chefassist/internal/api"
	"chefassist/internal/business"
	"chefassist/internal/capability"
	"chefassist/internal/config"
	"chefassist/internal/conversation"
	"chefassist/internal/database"
	"chefassist/internal/engine"
	"chefassist/internal/guard"
	"chefassist/internal/logger"
	"chefassist/internal/monitoring"
	"chefassist/internal/session"
	"chefassist/internal/tools"
)

// app is the wired process: storage, tools, engine, session and HTTP surface.
type app struct {
	db        *gorm.DB
	server    *api.Server
	monitor   *monitoring.Monitor
	collector *monitoring.Collector
}

// buildApp wires every component from configuration. The engine is passed in
// so tests can substitute a scripted one.
func buildApp(cfg *config.Config, log *logger.Logger, eng engine.Engine) (*app, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.Database.Seed {
		if err := database.Seed(db, time.Now().UTC()); err != nil {
			db.Close()
			return nil, err
		}
	}

	store := conversation.NewStore(db)
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	dir := business.NewDirectory(db)
	reg, err := capability.NewRegistry(capability.DefaultPolicy(), tools.ChefTools(dir)...)
	if err != nil {
		db.Close()
		return nil, err
	}
	g := guard.New(reg, guard.DefaultRules()...)

	monitor := monitoring.NewMonitor()
	collector := monitoring.NewCollector(monitor)

	disp, err := tools.NewDispatcher(reg, g,
		tools.WithLogger(log.With("component", "dispatcher")),
		tools.WithMetrics(collector),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	orch := session.New(session.Deps{
		Registry:   reg,
		Guard:      g,
		Dispatcher: disp,
		Engine:     eng,
		Store:      store,
		Directory:  dir,
		Logger:     log.With("component", "session"),
		Metrics:    collector,
	}, cfg.Assistant.Session())

	server := api.NewServer(api.Deps{
		Assistant:     orch,
		Conversations: store,
		Registry:      reg,
		Monitor:       monitor,
		Logger:        log,
		JWTSecret:     cfg.Auth.JWTSecret,
		StreamBuffer:  cfg.Assistant.StreamBuffer,
	})

	return &app{db: db, server: server, monitor: monitor, collector: collector}, nil
}

func (a *app) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
