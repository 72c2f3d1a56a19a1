package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/app"
	"buslader.app/db/internal/appconf"
	"buslader.app/db/internal/gtfs"
	"buslader.app/db/internal/logging"
)

type cli struct {
	cfg    appconf.Config
	env    string
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(cfg appconf.Config, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{cfg: cfg, env: cfg.Env.String(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:          "bus-lader-db",
		Short:        "Keep a local SQLite copy of transit companies' GTFS feeds up to date",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flags.StringVar(&c.cfg.RegistryPath, "registry", cfg.RegistryPath, "company registry file")
	flags.StringVar(&c.cfg.ScratchDir, "scratch", cfg.ScratchDir, "directory for per-company scratch space")
	flags.StringVar(&c.env, "env", c.env, "environment (development|test|production)")
	flags.BoolVarP(&c.cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging and a full report dump")
	flags.StringVar(&c.cfg.Timezone, "timezone", cfg.Timezone, "time zone that decides which day is today")
	flags.StringVar(&c.cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this textfile")

	root.AddCommand(c.checkCommand(), c.updateCommand(), c.statsCommand())
	return root
}

func (c *cli) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "List which companies are up to date and which need an update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, application *app.Application) error {
				decisions, err := application.Driver.Check(ctx)
				if err != nil {
					return err
				}
				printCheck(c.stdout, decisions)
				return nil
			})
		},
	}
}

func (c *cli) updateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update [companyID]",
		Short: "Refresh stale companies, or one company unconditionally",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, application *app.Application) error {
				var (
					report *gtfs.Report
					err    error
				)
				if len(args) == 1 {
					report, err = application.Driver.UpdateOne(ctx, args[0])
				} else {
					report, err = application.Driver.UpdateAll(ctx)
				}
				if err != nil {
					return err
				}
				printReport(c.stdout, report)
				if application.Config.Verbose {
					spew.Fdump(c.stdout, report.Outcomes)
				}
				return nil
			})
		},
	}
}

func (c *cli) statsCommand() *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print row counts per table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, application *app.Application) error {
				counts, err := application.DB.TableCounts()
				if err != nil {
					return err
				}
				printCounts(c.stdout, application.DB.GetDBPath(), counts)
				if schema {
					return gtfsdb.PrintSimpleSchema(c.stdout, application.DB.DB)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "also print the database schema")
	return cmd
}

// run builds the application for one command and tears it down afterwards.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, application *app.Application) error) error {
	c.cfg.Env = appconf.EnvFlagToEnvironment(c.env)

	logger := newLogger(c.stderr, c.cfg).With(
		slog.String("run_id", uuid.NewString()),
		slog.String("command", cmd.Name()))

	application, err := BuildApplication(c.cfg, logger)
	if err != nil {
		logging.LogError(logger, "startup_failed", err)
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logging.LogError(logger, "shutdown_failed", err)
		}
	}()

	return fn(logging.WithLogger(cmd.Context(), logger), application)
}

func printCheck(w io.Writer, decisions []gtfs.Freshness) {
	fmt.Fprintln(w, "Up to date :")
	for _, d := range decisions {
		if !d.NeedsRefresh {
			fmt.Fprintf(w, "  ID %s  %s\n", d.Company.ID, d.Company.Name)
		}
	}
	fmt.Fprintln(w, "Update needed :")
	for _, d := range decisions {
		if d.NeedsRefresh {
			fmt.Fprintf(w, "  ID %s  %s    %s\n", d.Company.ID, d.Company.Name, d.Reason)
		}
	}
}

func printCounts(w io.Writer, dbPath string, counts map[string]int) {
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	fmt.Fprintf(w, "Database : %s\n", dbPath)
	for _, table := range tables {
		fmt.Fprintf(w, "  %-14s %d\n", table, counts[table])
	}
}

func printReport(w io.Writer, report *gtfs.Report) {
	for _, o := range report.Outcomes {
		switch o.Status {
		case gtfs.StatusFailed:
			fmt.Fprintf(w, "  ID %s  %s    failed at %s: %v\n", o.CompanyID, o.CompanyName, o.Stage, o.Err)
		case gtfs.StatusRefreshed:
			fmt.Fprintf(w, "  ID %s  %s    refreshed (%s)\n", o.CompanyID, o.CompanyName, o.Reason)
		default:
			fmt.Fprintf(w, "  ID %s  %s    up to date\n", o.CompanyID, o.CompanyName)
		}
	}
	fmt.Fprintln(w, report.String())
}
