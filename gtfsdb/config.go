package gtfsdb

import "buslader.app/db/internal/appconf"

// Config holds configuration options for the Client
type Config struct {
	DBPath              string // Path to SQLite database file
	Env                 appconf.Environment
	BulkInsertBatchSize int // Rows per multi-row INSERT statement
	verbose             bool
}

const defaultBulkInsertBatchSize = 1000

// maxBatchRows keeps a multi-row INSERT below SQLite's host parameter limit
// for the widest table (stop_times, 9 columns).
const maxBatchRows = 3000

func NewConfig(dbPath string, env appconf.Environment, verbose bool) Config {
	return Config{
		DBPath:  dbPath,
		Env:     env,
		verbose: verbose,
	}
}

// GetBulkInsertBatchSize returns the configured batch size, clamped to a safe range.
func (c Config) GetBulkInsertBatchSize() int {
	switch {
	case c.BulkInsertBatchSize <= 0:
		return defaultBulkInsertBatchSize
	case c.BulkInsertBatchSize > maxBatchRows:
		return maxBatchRows
	default:
		return c.BulkInsertBatchSize
	}
}
