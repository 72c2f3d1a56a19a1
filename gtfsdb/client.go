package gtfsdb

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"buslader.app/db/internal/logging"
)

// Client is the persistence handle for company-scoped GTFS tables. It is
// constructed once by the caller and passed down to the refresh pipeline.
type Client struct {
	config Config
	DB     *sql.DB
	dbx    *sqlx.DB
}

// NewClient opens (and migrates) the database described by config.
func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	} else if config.verbose {
		logging.LogOperation(slog.Default().With(slog.String("component", "gtfsdb")),
			"tables_created", slog.String("db_path", config.DBPath))
	}

	return &Client{
		config: config,
		DB:     db,
		dbx:    sqlx.NewDb(db, "sqlite3"),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}
