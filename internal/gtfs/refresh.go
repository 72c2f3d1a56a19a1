package gtfs

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickb777/date"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/clock"
	"buslader.app/db/internal/logging"
	"buslader.app/db/internal/metrics"
	"buslader.app/db/internal/registry"
)

// Stage is a step of a company refresh, in the order they run.
type Stage int

const (
	StageFetch Stage = iota
	StageDeleteOld
	StageLoadRoutes
	StageLoadShapesAndTrips
	StageLoadTripsNoShapes
	StageLoadStopTimes
	StageUpsertFeedInfo
	StageCleanup
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageFetch:
		return "FETCH"
	case StageDeleteOld:
		return "DELETE_OLD"
	case StageLoadRoutes:
		return "LOAD_ROUTES"
	case StageLoadShapesAndTrips:
		return "LOAD_SHAPES_AND_TRIPS"
	case StageLoadTripsNoShapes:
		return "LOAD_TRIPS_NO_SHAPES"
	case StageLoadStopTimes:
		return "LOAD_STOPTIMES"
	case StageUpsertFeedInfo:
		return "UPSERT_FEEDINFO"
	case StageCleanup:
		return "CLEANUP"
	case StageDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Status is how a company's turn in a run ended.
type Status int

const (
	StatusRefreshed Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRefreshed:
		return "refreshed"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Outcome records what happened to one company. For failures, Stage is the
// stage that failed and Err the cause.
type Outcome struct {
	CompanyID   string
	CompanyName string
	Status      Status
	Stage       Stage
	Err         error
	Reason      string
	FeedEndDate *date.Date
	Rows        map[string]int
	Duration    time.Duration
}

// Refresher runs the replace-and-load sequence for one company at a time.
type Refresher struct {
	store   Store
	fetcher *Fetcher
	clock   clock.Clock
	metrics *metrics.Metrics
	config  Config
}

// NewRefresher wires a Refresher. m may be nil.
func NewRefresher(store Store, fetcher *Fetcher, c clock.Clock, m *metrics.Metrics, config Config) *Refresher {
	return &Refresher{
		store:   store,
		fetcher: fetcher,
		clock:   c,
		metrics: m,
		config:  config,
	}
}

// RefreshCompany replaces every stored row of company with the contents of
// its current feed. It never returns an error: failures are logged and
// reported in the Outcome. The scratch workspace is removed on every path.
func (r *Refresher) RefreshCompany(ctx context.Context, company registry.Company) (outcome Outcome) {
	started := time.Now()
	logger := logging.FromContext(ctx).With(slog.String("component", "gtfs_refresher"))
	for _, attr := range logging.CompanyAttrs(company.ID, company.Name) {
		logger = logger.With(attr)
	}

	outcome = Outcome{
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Stage:       StageFetch,
		Rows:        make(map[string]int),
	}

	defer func() {
		outcome.Duration = time.Since(started)
		if outcome.Err != nil {
			outcome.Status = StatusFailed
			logging.LogError(logger, "company_refresh_failed", outcome.Err,
				slog.String("stage", outcome.Stage.String()),
				slog.Duration("duration", outcome.Duration))
			r.metrics.ObserveRefresh(company.ID, metrics.ResultFailed, outcome.Duration)
			return
		}
		outcome.Status = StatusRefreshed
		outcome.Stage = StageDone
		logging.LogOperation(logger, "company_refreshed",
			slog.Int("routes", outcome.Rows["routes"]),
			slog.Int("trips", outcome.Rows["trips"]),
			slog.Int("stop_times", outcome.Rows["stop_times"]),
			slog.Duration("duration", outcome.Duration))
		r.metrics.ObserveRefresh(company.ID, metrics.ResultSuccess, outcome.Duration)
	}()

	logging.LogOperation(logger, "company_refresh_started")

	ws, err := NewWorkspace(r.config.ScratchDir, company.ID)
	if err != nil {
		outcome.Err = &FetchError{Source: company.GTFSURL, Err: err}
		return outcome
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			logging.LogError(logger, "workspace_cleanup_failed", err,
				slog.String("stage", StageCleanup.String()),
				slog.String("path", ws.Root()))
		}
	}()

	outcome.Err = r.load(ctx, logger, company, ws, &outcome)
	return outcome
}

// load runs every stage from FETCH to UPSERT_FEEDINFO, updating out.Stage
// as it goes.
func (r *Refresher) load(ctx context.Context, logger *slog.Logger, company registry.Company, ws *Workspace, out *Outcome) error {
	enter := func(stage Stage) error {
		out.Stage = stage
		if r.config.Verbose {
			logger.Debug("stage_started", slog.String("stage", stage.String()))
		}
		return ctx.Err()
	}

	if err := enter(StageFetch); err != nil {
		return err
	}
	if err := r.fetcher.Fetch(ctx, company, ws); err != nil {
		return err
	}

	if err := enter(StageDeleteOld); err != nil {
		return err
	}
	if err := r.store.DeleteCompanyData(ctx, company.ID); err != nil {
		return &StoreError{Op: "delete_company_data", Err: err}
	}

	if err := enter(StageLoadRoutes); err != nil {
		return err
	}
	routes, err := LoadRoutes(ws, company.ID)
	if err != nil {
		return err
	}
	if err := r.store.InsertRoutes(ctx, routes); err != nil {
		return &StoreError{Op: "insert_routes", Err: err}
	}
	r.countRows(out, "routes", len(routes))

	var geometry Geometry = WithoutGeometry{}
	if ws.Has(shapesFile) {
		if err := enter(StageLoadShapesAndTrips); err != nil {
			return err
		}
		shapes, err := LoadShapes(ws, company.ID)
		if err != nil {
			return err
		}
		if err := r.store.InsertShapes(ctx, shapes.Shapes); err != nil {
			return &StoreError{Op: "insert_shapes", Err: err}
		}
		r.countRows(out, "shapes", len(shapes.Shapes))
		if err := r.store.InsertShapePoints(ctx, shapes.Points); err != nil {
			return &StoreError{Op: "insert_shape_points", Err: err}
		}
		r.countRows(out, "shape_points", len(shapes.Points))
		if bounds, ok := shapes.Bounds(); ok && r.config.Verbose {
			logger.Debug("shape_bounds",
				slog.Float64("min_lat", bounds.MinLat), slog.Float64("max_lat", bounds.MaxLat),
				slog.Float64("min_lon", bounds.MinLon), slog.Float64("max_lon", bounds.MaxLon))
		}
		geometry = shapes
	} else if err := enter(StageLoadTripsNoShapes); err != nil {
		return err
	}

	trips, err := LoadTrips(ws, company.ID, geometry)
	if err != nil {
		return err
	}
	if err := r.store.InsertTrips(ctx, trips); err != nil {
		return &StoreError{Op: "insert_trips", Err: err}
	}
	r.countRows(out, "trips", len(trips))

	if err := enter(StageLoadStopTimes); err != nil {
		return err
	}
	stopTimes, err := LoadStopTimes(ws, company.ID)
	if err != nil {
		return err
	}
	if err := r.store.InsertStopTimes(ctx, stopTimes); err != nil {
		return &StoreError{Op: "insert_stop_times", Err: err}
	}
	r.countRows(out, "stop_times", len(stopTimes))

	if err := enter(StageUpsertFeedInfo); err != nil {
		return err
	}
	end, err := LoadFeedEndDate(ws)
	if err != nil {
		return err
	}
	if err := r.store.UpsertFeedInfo(ctx, gtfsdb.FeedInfo{
		CompanyID:   company.ID,
		CompanyName: company.Name,
		FeedEndDate: &end,
		UpdatedAt:   r.clock.Now(),
	}); err != nil {
		return &StoreError{Op: "upsert_feed_info", Err: err}
	}
	out.FeedEndDate = &end
	r.metrics.SetFeedEndDate(company.ID, end.In(r.config.location()))

	out.Stage = StageCleanup
	r.logCounts(ctx, logger, company.ID)
	return nil
}

func (r *Refresher) countRows(out *Outcome, table string, n int) {
	out.Rows[table] = n
	r.metrics.AddRows(table, n)
}

// logCounts reports what the store holds for the company after a load.
func (r *Refresher) logCounts(ctx context.Context, logger *slog.Logger, companyID string) {
	if !r.config.Verbose {
		return
	}
	counter, ok := r.store.(companyCounter)
	if !ok {
		return
	}
	counts, err := counter.CompanyCounts(ctx, companyID)
	if err != nil {
		logging.LogError(logger, "company_counts_failed", err)
		return
	}
	attrs := make([]any, 0, len(counts))
	for table, n := range counts {
		attrs = append(attrs, slog.Int(table, n))
	}
	logger.Debug("company_row_counts", attrs...)
}
