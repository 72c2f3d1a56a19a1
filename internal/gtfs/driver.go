package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"buslader.app/db/internal/clock"
	"buslader.app/db/internal/logging"
	"buslader.app/db/internal/metrics"
	"buslader.app/db/internal/registry"
)

// Report collects the outcome of every company a run touched.
type Report struct {
	Outcomes []Outcome
	byID     map[string]Outcome
}

func newReport() *Report {
	return &Report{byID: make(map[string]Outcome)}
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.byID[o.CompanyID] = o
}

// Outcome returns the outcome recorded for companyID.
func (r *Report) Outcome(companyID string) (Outcome, bool) {
	o, ok := r.byID[companyID]
	return o, ok
}

// Count returns how many companies ended with status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (r *Report) String() string {
	return fmt.Sprintf("%d refreshed, %d up to date, %d failed",
		r.Count(StatusRefreshed), r.Count(StatusSkipped), r.Count(StatusFailed))
}

// Driver walks the registry and refreshes companies one after another.
// A failing company never stops the run.
type Driver struct {
	store     Store
	registry  *registry.Registry
	refresher *Refresher
	clock     clock.Clock
	metrics   *metrics.Metrics
	config    Config
}

func NewDriver(store Store, reg *registry.Registry, refresher *Refresher, c clock.Clock, m *metrics.Metrics, config Config) *Driver {
	return &Driver{
		store:     store,
		registry:  reg,
		refresher: refresher,
		clock:     c,
		metrics:   m,
		config:    config,
	}
}

// Check returns the freshness of every registered company.
func (d *Driver) Check(ctx context.Context) ([]Freshness, error) {
	snapshot, err := d.store.ListFeedInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading feed info: %w", err)
	}
	return Check(d.registry.Companies, snapshot, d.now()), nil
}

// UpdateAll refreshes every company whose data is missing, incomplete or
// expired, in registry order. The feed_info snapshot is read once up front.
func (d *Driver) UpdateAll(ctx context.Context) (*Report, error) {
	logger := logging.FromContext(ctx).With(slog.String("component", "gtfs_driver"))

	decisions, err := d.Check(ctx)
	if err != nil {
		return nil, err
	}

	logging.LogOperation(logger, "update_all_started",
		slog.String("today", clock.Today(d.clock, d.config.location()).String()),
		slog.Int("companies", len(decisions)))

	report := newReport()
	for _, decision := range decisions {
		company := decision.Company

		if !decision.NeedsRefresh {
			logging.LogOperation(logger, "company_up_to_date", logging.CompanyAttrs(company.ID, company.Name)...)
			d.metrics.ObserveRefresh(company.ID, metrics.ResultSkipped, 0)
			report.add(Outcome{
				CompanyID:   company.ID,
				CompanyName: company.Name,
				Status:      StatusSkipped,
				Stage:       StageDone,
			})
			continue
		}

		outcome := d.refresher.RefreshCompany(ctx, company)
		outcome.Reason = decision.Reason
		report.add(outcome)

		if ctx.Err() != nil {
			logging.LogError(logger, "run_cancelled", ctx.Err(),
				slog.Int("companies_done", len(report.Outcomes)),
				slog.Int("companies_total", len(decisions)))
			break
		}
	}

	logging.LogOperation(logger, "update_all_finished",
		slog.Int("refreshed", report.Count(StatusRefreshed)),
		slog.Int("up_to_date", report.Count(StatusSkipped)),
		slog.Int("failed", report.Count(StatusFailed)))
	return report, nil
}

// UpdateOne refreshes companyID regardless of freshness. An id that is not
// in the registry is an error; a failed refresh is reported in the Report.
func (d *Driver) UpdateOne(ctx context.Context, companyID string) (*Report, error) {
	company, err := d.registry.Get(companyID)
	if err != nil {
		return nil, err
	}

	report := newReport()
	outcome := d.refresher.RefreshCompany(ctx, company)
	outcome.Reason = "Forced"
	report.add(outcome)
	return report, nil
}

func (d *Driver) now() time.Time {
	return d.clock.Now().In(d.config.location())
}
