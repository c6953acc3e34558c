package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"SessionChat/internal/backend"
	"SessionChat/internal/cache"
	"SessionChat/internal/chatbot"
	"SessionChat/internal/config"
	"SessionChat/internal/controller"
	"SessionChat/internal/history"
	"SessionChat/internal/local"
	"SessionChat/internal/store"
	"SessionChat/internal/telemetry"
)

const replyCacheTTL = time.Hour

// app holds everything a command needs, built from one Config
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	telemetry *telemetry.Providers
	client    history.Client
	models    chatbot.ModelLister

	logCloser io.Closer
	store     *store.Store
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, logCloser, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := telemetry.InitTelemetry(ctx, cfg.LogDir, version)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
		logCloser: logCloser,
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	switch cfg.Mode {
	case config.ModeRemote:
		a.client = history.NewHTTPClient(cfg.ServerURL, logger, providers)
		logger.Info("using remote history service", "server_url", cfg.ServerURL)

	default:
		if err := a.openLocal(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openLocal() error {
	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.store = st

	be, err := backend.New(a.cfg, a.logger, a.telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}
	if lister, ok := be.(chatbot.ModelLister); ok {
		a.models = lister
	}
	if a.cfg.CacheReplies {
		be = cache.Wrap(be, replyCacheTTL, a.logger)
	}

	a.client = local.NewService(st, be, a.logger, a.telemetry)
	a.logger.Info("using local history", "db", a.cfg.DBPath, "backend", be.Name())
	return nil
}

// controller builds a session controller over the app's history client
func (a *app) controller(confirm controller.ConfirmFunc) *controller.Controller {
	return controller.New(a.client, controller.Options{
		Logger:      a.logger,
		Telemetry:   a.telemetry,
		Confirm:     confirm,
		SendTimeout: a.cfg.SendTimeout,
	})
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}
	a.telemetry.Shutdown()
	a.logCloser.Close()
}
