package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/app"
	"buslader.app/db/internal/appconf"
	"buslader.app/db/internal/clock"
	"buslader.app/db/internal/gtfs"
	"buslader.app/db/internal/logging"
	"buslader.app/db/internal/metrics"
	"buslader.app/db/internal/registry"
)

const dbStatsInterval = 5 * time.Second

// BuildApplication opens the database, reads the registry and wires the
// refresh pipeline. The caller owns the returned Application and must Close it.
func BuildApplication(cfg appconf.Config, logger *slog.Logger) (*app.Application, error) {
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	dbConfig := gtfsdb.NewConfig(cfg.DBPath, cfg.Env, cfg.Verbose)
	dbConfig.BulkInsertBatchSize = cfg.BulkInsertBatchSize
	db, err := gtfsdb.NewClient(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}

	m := metrics.NewWithLogger(logger)
	if cfg.MetricsFile != "" {
		m.StartDBStatsCollector(db.DB, dbStatsInterval)
	}

	c := newClock(cfg)
	gtfsCfg := gtfs.NewConfig(cfg)
	refresher := gtfs.NewRefresher(db, gtfs.NewFetcher(gtfsCfg), c, m, gtfsCfg)

	return &app.Application{
		Config:     cfg,
		GtfsConfig: gtfsCfg,
		Logger:     logger,
		Clock:      c,
		Metrics:    m,
		DB:         db,
		Registry:   reg,
		Driver:     gtfs.NewDriver(db, reg, refresher, c, m, gtfsCfg),
	}, nil
}

// newClock pins "now" to BUSLADER_CLOCK_TIME when it is set.
func newClock(cfg appconf.Config) clock.Clock {
	if cfg.ClockEnvVar != "" && os.Getenv(cfg.ClockEnvVar) != "" {
		return clock.NewEnvironmentClock(cfg.ClockEnvVar, cfg.Location())
	}
	return clock.RealClock{}
}

func newLogger(w io.Writer, cfg appconf.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	if cfg.Env == appconf.Production {
		return logging.NewStructuredLogger(w, level)
	}
	return logging.NewConsoleLogger(w, level)
}
