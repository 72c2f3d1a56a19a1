package gtfsdb

import (
	"database/sql"
	"time"

	"github.com/rickb777/date"
)

// FeedInfo is the per-company freshness record. FeedEndDate is nil when no
// complete load has been recorded since the last delete.
type FeedInfo struct {
	CompanyID   string
	CompanyName string
	FeedEndDate *date.Date
	UpdatedAt   time.Time
}

type Route struct {
	RouteID   string
	CompanyID string
	ShortName string
	LongName  string
}

type Shape struct {
	ShapeID      string
	CompanyID    string
	Polyline     string
	LengthMeters float64
}

type ShapePoint struct {
	ShapeID   string
	CompanyID string
	Sequence  int64
	Lat       float64
	Lon       float64
}

type Trip struct {
	TripID    string
	CompanyID string
	RouteID   string
	ShapeID   sql.NullString
}

type StopTime struct {
	TripID        string
	CompanyID     string
	StopSequence  int64
	ArrivalTime   string
	DepartureTime string
	StopHeadsign  string
	StopName      string
	StopLat       float64
	StopLon       float64
}

// feedInfoRow is the scan target for feed_info.
type feedInfoRow struct {
	CompanyID   string         `db:"company_id"`
	CompanyName string         `db:"company_name"`
	FeedEndDate sql.NullString `db:"feed_end_date"`
	UpdatedAt   int64          `db:"updated_at"`
}
