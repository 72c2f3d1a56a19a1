package app

import (
	"errors"
	"fmt"
	"log/slog"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/appconf"
	"buslader.app/db/internal/clock"
	"buslader.app/db/internal/gtfs"
	"buslader.app/db/internal/metrics"
	"buslader.app/db/internal/registry"
)

// Application holds the dependencies shared by the CLI commands for the
// length of one run.
type Application struct {
	Config     appconf.Config
	GtfsConfig gtfs.Config
	Logger     *slog.Logger
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	DB         *gtfsdb.Client
	Registry   *registry.Registry
	Driver     *gtfs.Driver
}

// Close stops background collection, writes the metrics textfile when one
// is configured and closes the database.
func (app *Application) Close() error {
	var errs []error

	if app.Metrics != nil {
		app.Metrics.Shutdown()
		if app.Config.MetricsFile != "" {
			if app.DB != nil {
				app.Metrics.CollectDBStats(app.DB.DB)
			}
			if err := app.Metrics.WriteTextfile(app.Config.MetricsFile); err != nil {
				errs = append(errs, fmt.Errorf("writing metrics to %s: %w", app.Config.MetricsFile, err))
			}
		}
	}

	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}
