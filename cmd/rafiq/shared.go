package main

import (
	"fmt"
	"log/slog"
	"os"

	goutils "github.com/jkaninda/go-utils"

	"github.com/rafiqlabs/rafiq/internal/backend"
	"github.com/rafiqlabs/rafiq/internal/config"
	"github.com/rafiqlabs/rafiq/internal/format"
	"github.com/rafiqlabs/rafiq/internal/history"
	"github.com/rafiqlabs/rafiq/internal/kvstore"
	"github.com/rafiqlabs/rafiq/internal/observability"
	"github.com/rafiqlabs/rafiq/internal/settings"
)

// SharedComponents holds everything a command needs wired together.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	KV        kvstore.Store
	History   *history.Store
	Settings  *settings.Manager
	Client    *backend.Client
	Formatter *format.Formatter
	Metrics   *observability.MetricsCollector
}

// buildComponents loads config and wires the component graph.
// The returned cleanup closes the database.
func buildComponents(configPath string) (*SharedComponents, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("RAFIQ_CONFIG", configPath))
	if err != nil {
		return nil, nil, err
	}

	kv, err := kvstore.Open(kvstore.Config{
		Path:        cfg.DatabasePath(),
		JournalMode: cfg.JournalMode(),
		QuotaBytes:  cfg.QuotaBytes(),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening local store: %w", err)
	}
	cleanup := func() {
		if err := kv.Close(); err != nil {
			logger.Error("closing local store", slog.String("error", err.Error()))
		}
	}

	formatOpts := []format.Option{format.WithEscapeHTML(cfg.EscapeHTML())}
	if cfg.Format.CollapseSpaces {
		formatOpts = append(formatOpts, format.WithCollapseSpaces(true))
	}

	sc := &SharedComponents{
		Config:    cfg,
		Logger:    logger,
		KV:        kv,
		History:   history.NewStore(kv, logger, history.WithRetentionCap(cfg.RetentionCap())),
		Settings:  settings.NewManager(kv, logger, settings.WithDefaults(cfg.SettingsDefaults())),
		Client:    backend.NewClient(cfg.ResolvedBackendURL(), logger, backend.WithTimeout(cfg.ExchangeTimeout())),
		Formatter: format.New(formatOpts...),
		Metrics:   observability.NewMetricsCollector(),
	}
	return sc, cleanup, nil
}
