package gtfsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rickb777/date"

	"buslader.app/db/internal/logging"
)

// isoDate is how feed_end_date is stored.
const isoDate = "2006-01-02"

// companyTables lists the detail tables in child-to-parent order so that
// deleting in this order never trips a foreign key.
var companyTables = []string{"stop_times", "trips", "shape_points", "shapes", "routes"}

// DeleteCompanyData removes every detail row for companyID and clears the
// end date of its feed_info row, all in one transaction. The feed_info row
// itself and its company_name survive.
func (c *Client) DeleteCompanyData(ctx context.Context, companyID string) error {
	logger := slog.Default().With(slog.String("component", "company_data"))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "delete_company_data")

	for _, table := range companyTables {
		query, args, err := sq.Delete(table).Where(sq.Eq{"company_id": companyID}).ToSql()
		if err != nil {
			return fmt.Errorf("building delete for %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}

	query, args, err := sq.Update("feed_info").
		Set("feed_end_date", nil).
		Where(sq.Eq{"company_id": companyID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building feed_info reset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing feed end date: %w", err)
	}

	return tx.Commit()
}

func (c *Client) InsertRoutes(ctx context.Context, routes []Route) error {
	return c.bulkInsert(ctx, "routes",
		[]string{"route_id", "company_id", "short_name", "long_name"},
		len(routes), func(i int) []interface{} {
			r := routes[i]
			return []interface{}{r.RouteID, r.CompanyID, r.ShortName, r.LongName}
		})
}

func (c *Client) InsertShapes(ctx context.Context, shapes []Shape) error {
	return c.bulkInsert(ctx, "shapes",
		[]string{"shape_id", "company_id", "polyline", "length_meters"},
		len(shapes), func(i int) []interface{} {
			s := shapes[i]
			return []interface{}{s.ShapeID, s.CompanyID, s.Polyline, s.LengthMeters}
		})
}

func (c *Client) InsertShapePoints(ctx context.Context, points []ShapePoint) error {
	return c.bulkInsert(ctx, "shape_points",
		[]string{"shape_id", "company_id", "shape_pt_sequence", "shape_pt_lat", "shape_pt_lon"},
		len(points), func(i int) []interface{} {
			p := points[i]
			return []interface{}{p.ShapeID, p.CompanyID, p.Sequence, p.Lat, p.Lon}
		})
}

func (c *Client) InsertTrips(ctx context.Context, trips []Trip) error {
	return c.bulkInsert(ctx, "trips",
		[]string{"trip_id", "company_id", "route_id", "shape_id"},
		len(trips), func(i int) []interface{} {
			t := trips[i]
			return []interface{}{t.TripID, t.CompanyID, t.RouteID, t.ShapeID}
		})
}

func (c *Client) InsertStopTimes(ctx context.Context, stopTimes []StopTime) error {
	return c.bulkInsert(ctx, "stop_times",
		[]string{"trip_id", "company_id", "stop_sequence", "arrival_time", "departure_time",
			"stop_headsign", "stop_name", "stop_lat", "stop_lon"},
		len(stopTimes), func(i int) []interface{} {
			st := stopTimes[i]
			return []interface{}{st.TripID, st.CompanyID, st.StopSequence, st.ArrivalTime, st.DepartureTime,
				st.StopHeadsign, st.StopName, st.StopLat, st.StopLon}
		})
}

// UpsertFeedInfo creates the feed_info row for a company or, when one
// exists, updates its end date. company_name is only written on creation.
func (c *Client) UpsertFeedInfo(ctx context.Context, info FeedInfo) error {
	var endDate interface{}
	if info.FeedEndDate != nil {
		endDate = info.FeedEndDate.Format(isoDate)
	}
	updatedAt := info.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query, args, err := sq.Insert("feed_info").
		Columns("company_id", "company_name", "feed_end_date", "updated_at").
		Values(info.CompanyID, info.CompanyName, endDate, updatedAt.Unix()).
		Suffix("ON CONFLICT(company_id) DO UPDATE SET feed_end_date = excluded.feed_end_date, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building feed_info upsert: %w", err)
	}

	_, err = c.DB.ExecContext(ctx, query, args...)
	return err
}

// ListFeedInfo returns every feed_info row keyed by company id.
func (c *Client) ListFeedInfo(ctx context.Context) (map[string]FeedInfo, error) {
	query, args, err := feedInfoSelect().OrderBy("company_id").ToSql()
	if err != nil {
		return nil, err
	}

	var rows []feedInfoRow
	if err := c.dbx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	infos := make(map[string]FeedInfo, len(rows))
	for _, row := range rows {
		info, err := row.toFeedInfo()
		if err != nil {
			return nil, err
		}
		infos[info.CompanyID] = info
	}
	return infos, nil
}

// GetFeedInfo returns the feed_info row for companyID, or nil when there is none.
func (c *Client) GetFeedInfo(ctx context.Context, companyID string) (*FeedInfo, error) {
	query, args, err := feedInfoSelect().Where(sq.Eq{"company_id": companyID}).ToSql()
	if err != nil {
		return nil, err
	}

	var row feedInfoRow
	if err := c.dbx.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	info, err := row.toFeedInfo()
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func feedInfoSelect() sq.SelectBuilder {
	return sq.Select("company_id", "company_name", "feed_end_date", "updated_at").From("feed_info")
}

func (r feedInfoRow) toFeedInfo() (FeedInfo, error) {
	info := FeedInfo{
		CompanyID:   r.CompanyID,
		CompanyName: r.CompanyName,
		UpdatedAt:   time.Unix(r.UpdatedAt, 0),
	}
	if r.FeedEndDate.Valid && r.FeedEndDate.String != "" {
		d, err := date.Parse(isoDate, r.FeedEndDate.String)
		if err != nil {
			return FeedInfo{}, fmt.Errorf("company %s has unreadable feed_end_date %q: %w",
				r.CompanyID, r.FeedEndDate.String, err)
		}
		info.FeedEndDate = &d
	}
	return info, nil
}
