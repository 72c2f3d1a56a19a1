package gtfs

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rickb777/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/clock"
	"buslader.app/db/internal/metrics"
	"buslader.app/db/internal/registry"
)

func newTestDriver(t *testing.T, store *gtfsdb.Client, companies ...registry.Company) (*Driver, string) {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), "tmp")
	cfg := Config{ScratchDir: scratch, Location: time.UTC}
	c := clock.NewMockClock(fixedNow)
	m := metrics.New()
	refresher := NewRefresher(store, NewFetcher(cfg), c, m, cfg)
	reg := &registry.Registry{Companies: companies}
	return NewDriver(store, reg, refresher, c, m, cfg), scratch
}

func seedFeedInfo(t *testing.T, store *gtfsdb.Client, id, name string, end *date.Date) {
	t.Helper()
	require.NoError(t, store.UpsertFeedInfo(context.Background(), gtfsdb.FeedInfo{
		CompanyID:   id,
		CompanyName: name,
		FeedEndDate: end,
		UpdatedAt:   fixedNow.Add(-24 * time.Hour),
	}))
}

func TestUpdateAllSkipsFreshCompanies(t *testing.T) {
	store := newTestStore(t)
	fresh := date.New(2026, time.January, 1)
	seedFeedInfo(t, store, "7", "Harbor Ferry", &fresh)

	stale := registry.Company{ID: "42", Name: "Example Bus", GTFSURL: feedServer(t, func() []byte { return scenarioFeed().zipBytes(t) }).URL}
	// Any request for the fresh company would fail its refresh.
	upToDate := registry.Company{ID: "7", Name: "Harbor Ferry", GTFSURL: failingServer(t, http.StatusInternalServerError).URL}

	driver, scratch := newTestDriver(t, store, stale, upToDate)
	report, err := driver.UpdateAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "42", report.Outcomes[0].CompanyID, "registry order is kept")
	assert.Equal(t, "7", report.Outcomes[1].CompanyID)

	refreshed, ok := report.Outcome("42")
	require.True(t, ok)
	assert.Equal(t, StatusRefreshed, refreshed.Status)
	assert.Equal(t, ReasonNoData, refreshed.Reason)

	skipped, ok := report.Outcome("7")
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.NoError(t, skipped.Err)

	info, err := store.GetFeedInfo(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", info.FeedEndDate.String(), "fresh company left alone")

	assert.Equal(t, "1 refreshed, 1 up to date, 0 failed", report.String())
	assert.Empty(t, scratchEntries(t, scratch))
}

func TestUpdateAllRefreshesExpiredCompanies(t *testing.T) {
	store := newTestStore(t)
	today := date.New(2025, time.June, 15)
	seedFeedInfo(t, store, "42", "Example Bus", &today)

	company := registry.Company{ID: "42", Name: "Example Bus", GTFSURL: feedServer(t, func() []byte { return scenarioFeed().zipBytes(t) }).URL}
	driver, _ := newTestDriver(t, store, company)

	report, err := driver.UpdateAll(context.Background())
	require.NoError(t, err)

	outcome, ok := report.Outcome("42")
	require.True(t, ok)
	assert.Equal(t, StatusRefreshed, outcome.Status)
	assert.Equal(t, "Expired on 2025-06-15", outcome.Reason)

	info, err := store.GetFeedInfo(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "2025-12-31", info.FeedEndDate.String())
}

func TestUpdateAllIsolatesFailures(t *testing.T) {
	store := newTestStore(t)
	broken := registry.Company{ID: "1", Name: "Broken Lines", GTFSURL: failingServer(t, http.StatusInternalServerError).URL}
	working := registry.Company{ID: "42", Name: "Example Bus", GTFSURL: feedServer(t, func() []byte { return scenarioFeed().zipBytes(t) }).URL}

	driver, scratch := newTestDriver(t, store, broken, working)
	report, err := driver.UpdateAll(context.Background())
	require.NoError(t, err, "company failures are reported, not returned")

	failed, ok := report.Outcome("1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, StageFetch, failed.Stage)
	var fetchErr *FetchError
	assert.ErrorAs(t, failed.Err, &fetchErr)

	succeeded, ok := report.Outcome("42")
	require.True(t, ok)
	assert.Equal(t, StatusRefreshed, succeeded.Status)

	assert.Equal(t, 1, report.Count(StatusRefreshed))
	assert.Equal(t, 0, report.Count(StatusSkipped))
	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Equal(t, "1 refreshed, 0 up to date, 1 failed", report.String())

	info, err := store.GetFeedInfo(context.Background(), "1")
	require.NoError(t, err)
	assert.Nil(t, info, "a failed fetch writes nothing")
	assert.Empty(t, scratchEntries(t, scratch))
}

func TestUpdateAllStopsWhenCancelled(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first download interrupts the run.
	first := registry.Company{ID: "1", Name: "First", GTFSURL: feedServer(t, func() []byte {
		cancel()
		return scenarioFeed().zipBytes(t)
	}).URL}
	second := registry.Company{ID: "2", Name: "Second", GTFSURL: feedServer(t, func() []byte { return scenarioFeed().zipBytes(t) }).URL}
	driver, _ := newTestDriver(t, store, first, second)

	report, err := driver.UpdateAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1, "the run ends after the interrupted company")
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Err, context.Canceled)
}

func TestUpdateOne(t *testing.T) {
	store := newTestStore(t)
	fresh := date.New(2026, time.January, 1)
	seedFeedInfo(t, store, "42", "Example Bus", &fresh)

	company := registry.Company{ID: "42", Name: "Example Bus", GTFSURL: feedServer(t, func() []byte { return scenarioFeed().zipBytes(t) }).URL}
	driver, _ := newTestDriver(t, store, company)

	report, err := driver.UpdateOne(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)

	outcome := report.Outcomes[0]
	assert.Equal(t, StatusRefreshed, outcome.Status, "a fresh company is still refreshed on request")
	assert.Equal(t, "Forced", outcome.Reason)

	info, err := store.GetFeedInfo(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "2025-12-31", info.FeedEndDate.String())
}

func TestUpdateOneUnknownCompany(t *testing.T) {
	store := newTestStore(t)
	driver, _ := newTestDriver(t, store, registry.Company{ID: "42", Name: "Example Bus", GTFSURL: "https://example.org/42.zip"})

	report, err := driver.UpdateOne(context.Background(), "999")
	assert.ErrorIs(t, err, registry.ErrUnknownCompany)
	assert.Nil(t, report)
}

func TestDriverCheck(t *testing.T) {
	store := newTestStore(t)
	fresh := date.New(2026, time.January, 1)
	seedFeedInfo(t, store, "7", "Harbor Ferry", &fresh)
	seedFeedInfo(t, store, "8", "Night Owl", nil)

	driver, _ := newTestDriver(t, store,
		registry.Company{ID: "42", Name: "Example Bus", GTFSURL: "https://example.org/42.zip"},
		registry.Company{ID: "7", Name: "Harbor Ferry", GTFSURL: "https://example.org/7.zip"},
		registry.Company{ID: "8", Name: "Night Owl", GTFSURL: "https://example.org/8.zip"},
	)

	decisions, err := driver.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	assert.True(t, decisions[0].NeedsRefresh)
	assert.Equal(t, ReasonNoData, decisions[0].Reason)
	assert.False(t, decisions[1].NeedsRefresh)
	assert.Empty(t, decisions[1].Reason)
	assert.True(t, decisions[2].NeedsRefresh)
	assert.Equal(t, ReasonIncomplete, decisions[2].Reason)
}
