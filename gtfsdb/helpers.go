package gtfsdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"buslader.app/db/internal/appconf"
	"buslader.app/db/internal/logging"
)

//go:embed schema.sql
var ddl string

// createDB creates a new SQLite database with the company-scoped GTFS tables
func createDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got path: %s", config.DBPath)
	}

	// Foreign keys are a per-connection setting; the DSN applies it to every pooled connection.
	db, err := sql.Open("sqlite3", config.DBPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Configure connection pool settings before anything else touches the pool
	configureConnectionPool(db, config)

	ctx := context.Background()
	err = configureSQLitePerformance(ctx, db, config)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}

	err = performDatabaseMigration(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	statements := strings.Split(ddl, "-- migrate") // Split DDL into individual statements
	for _, stmt := range statements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmedStmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmedStmt, err)
		}
	}
	return nil
}

// configureSQLitePerformance applies PRAGMA settings suited to large bulk loads.
func configureSQLitePerformance(ctx context.Context, db *sql.DB, config Config) error {
	pragmas := []struct {
		name        string
		description string
	}{
		// Increase cache size to 64MB (negative value means KB)
		{"PRAGMA cache_size=-64000", "Set cache size to 64MB"},
		// Store temp tables and indices in memory for faster operations
		{"PRAGMA temp_store=MEMORY", "Store temporary data in memory"},
	}
	if config.DBPath != ":memory:" {
		pragmas = append(pragmas, struct {
			name        string
			description string
		}{"PRAGMA journal_mode=WAL", "Enable write-ahead logging"})
	}

	logger := slog.Default().With(slog.String("component", "sqlite_performance"))

	for _, pragma := range pragmas {
		_, err := db.ExecContext(ctx, pragma.name)
		if err != nil {
			logging.LogError(logger, fmt.Sprintf("Failed to set %s", pragma.description), err)
			return fmt.Errorf("failed to execute %s: %w", pragma.name, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if config.verbose {
		logging.LogOperation(logger, "sqlite_performance_settings_applied",
			slog.Int("pragma_count", len(pragmas)))
	}

	return nil
}

// configureConnectionPool sets up connection pool settings for SQLite.
//
// :memory: databases get a single connection because every connection to
// :memory: opens its own private database. The refresh pipeline is strictly
// sequential, so file databases only need a small pool.
func configureConnectionPool(db *sql.DB, config Config) {
	if config.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// bulkInsert writes rowCount rows into table inside one transaction, using
// multi-row INSERT statements of at most GetBulkInsertBatchSize rows.
// SECURITY: values are always bound as placeholders by squirrel.
func (c *Client) bulkInsert(ctx context.Context, table string, columns []string, rowCount int, values func(i int) []interface{}) error {
	if rowCount == 0 {
		return nil
	}

	logger := slog.Default().With(slog.String("component", "bulk_insert"))
	batchSize := c.config.GetBulkInsertBatchSize()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "bulk_insert_"+table)

	for start := 0; start < rowCount; start += batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := start + batchSize
		if end > rowCount {
			end = rowCount
		}

		insert := sq.Insert(table).Columns(columns...)
		for i := start; i < end; i++ {
			insert = insert.Values(values(i)...)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("building %s insert: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert %s batch at row %d: %w", table, start, err)
		}

		// Log progress every 100k records
		if c.config.verbose && (end%100000 == 0 || end == rowCount) {
			logging.LogOperation(logger, table+"_progress",
				slog.Int("inserted", end),
				slog.Int("total", rowCount))
		}
	}

	return tx.Commit()
}

// ToNullString converts a string to sql.NullString, with empty strings becoming NULL.
func ToNullString(s string) sql.NullString {
	return sql.NullString{
		String: s,
		Valid:  s != "",
	}
}
