package gtfsdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"buslader.app/db/internal/logging"
)

// PrintSimpleSchema writes every table, index, view and trigger definition to w.
func PrintSimpleSchema(w io.Writer, db *sql.DB) error {
	rows, err := db.Query(`
		SELECT type, name, sql
		FROM sqlite_master
		WHERE type IN ('table', 'index', 'view', 'trigger')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY type, name
	`)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "debugging")),
		"database_rows")

	fmt.Fprintln(w, "DATABASE SCHEMA:")
	fmt.Fprintln(w, "----------------")

	for rows.Next() {
		var objType, objName string
		var objSQL sql.NullString
		if err := rows.Scan(&objType, &objName, &objSQL); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", strings.ToUpper(objType), objName)
		fmt.Fprintf(w, "%s\n\n", objSQL.String)
	}

	return rows.Err()
}

// countableTables is the whitelist TableCounts and CompanyCounts may
// interpolate into a query.
var countableTables = map[string]bool{
	"feed_info":    true,
	"routes":       true,
	"shapes":       true,
	"shape_points": true,
	"trips":        true,
	"stop_times":   true,
}

func (c *Client) TableCounts() (map[string]int, error) {
	rows, err := c.DB.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to query table names: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "debugging")),
		"database_rows")

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, table := range tables {
		if !countableTables[table] {
			continue
		}

		var count int
		err := c.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		if err != nil {
			return nil, err
		}
		counts[table] = count
	}

	return counts, nil
}

// CompanyCounts returns the number of detail rows one company has in each table.
func (c *Client) CompanyCounts(ctx context.Context, companyID string) (map[string]int, error) {
	counts := make(map[string]int, len(companyTables))
	for _, table := range companyTables {
		query, args, err := sq.Select("COUNT(*)").From(table).Where(sq.Eq{"company_id": companyID}).ToSql()
		if err != nil {
			return nil, err
		}

		var count int
		if err := c.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}
