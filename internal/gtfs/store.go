package gtfs

import (
	"context"

	"buslader.app/db/gtfsdb"
)

// Store is the persistence contract the refresh pipeline writes through.
// Each Insert call commits on its own.
type Store interface {
	DeleteCompanyData(ctx context.Context, companyID string) error
	InsertRoutes(ctx context.Context, routes []gtfsdb.Route) error
	InsertShapes(ctx context.Context, shapes []gtfsdb.Shape) error
	InsertShapePoints(ctx context.Context, points []gtfsdb.ShapePoint) error
	InsertTrips(ctx context.Context, trips []gtfsdb.Trip) error
	InsertStopTimes(ctx context.Context, stopTimes []gtfsdb.StopTime) error
	UpsertFeedInfo(ctx context.Context, info gtfsdb.FeedInfo) error
	ListFeedInfo(ctx context.Context) (map[string]gtfsdb.FeedInfo, error)
}

// companyCounter is implemented by stores that can report per-company row counts.
type companyCounter interface {
	CompanyCounts(ctx context.Context, companyID string) (map[string]int, error)
}

var (
	_ Store          = (*gtfsdb.Client)(nil)
	_ companyCounter = (*gtfsdb.Client)(nil)
)
