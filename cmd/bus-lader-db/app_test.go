package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buslader.app/db/internal/appconf"
	"buslader.app/db/internal/clock"
	"buslader.app/db/internal/registry"
)

func writeRegistry(t *testing.T, url string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yml")
	content := "companies:\n" +
		"  - id: \"42\"\n" +
		"    name: \"Example Bus\"\n" +
		"    gtfsUrl: \"" + url + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func feedArchive(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"routes.txt":     "route_id,route_short_name,route_long_name\nR1,1,Main Line\n",
		"trips.txt":      "route_id,service_id,trip_id\nR1,WK,T1\n",
		"stops.txt":      "stop_id,stop_name,stop_lat,stop_lon\nS1,Main St,1.0,2.0\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\nT1,08:00:00,08:00:00,S1,1\n",
		"feed_info.txt":  "feed_end_date\n20251231\n",
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testConfig(t *testing.T, registryPath string) appconf.Config {
	t.Helper()
	return appconf.Config{
		Env:          appconf.Test,
		DBPath:       ":memory:",
		RegistryPath: registryPath,
		ScratchDir:   filepath.Join(t.TempDir(), "tmp"),
		Timezone:     "UTC",
		ClockEnvVar:  appconf.DefaultClockEnvVar,
	}
}

func execute(t *testing.T, cfg appconf.Config, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(cfg, &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestBuildApplicationWithMemoryDB(t *testing.T) {
	cfg := testConfig(t, writeRegistry(t, "https://example.org/42.zip"))
	logger := newLogger(&bytes.Buffer{}, cfg)

	application, err := BuildApplication(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	assert.Equal(t, cfg, application.Config)
	assert.NotNil(t, application.Logger)
	assert.NotNil(t, application.DB)
	assert.NotNil(t, application.Driver)
	assert.NotNil(t, application.Metrics)
	assert.Equal(t, []string{"42"}, application.Registry.IDs())
	assert.Equal(t, cfg.ScratchDir, application.GtfsConfig.ScratchDir)
	assert.IsType(t, clock.RealClock{}, application.Clock)
}

func TestBuildApplicationPinnedClock(t *testing.T) {
	t.Setenv(appconf.DefaultClockEnvVar, "2025-06-15T09:00:00Z")
	cfg := testConfig(t, writeRegistry(t, "https://example.org/42.zip"))

	application, err := BuildApplication(cfg, newLogger(&bytes.Buffer{}, cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	assert.IsType(t, &clock.EnvironmentClock{}, application.Clock)
	assert.Equal(t, 2025, application.Clock.Now().Year())
}

func TestBuildApplicationFailures(t *testing.T) {
	t.Run("missing registry", func(t *testing.T) {
		cfg := testConfig(t, filepath.Join(t.TempDir(), "nope.yml"))
		_, err := BuildApplication(cfg, newLogger(&bytes.Buffer{}, cfg))
		assert.Error(t, err)
	})

	t.Run("file database in test environment", func(t *testing.T) {
		cfg := testConfig(t, writeRegistry(t, "https://example.org/42.zip"))
		cfg.DBPath = filepath.Join(t.TempDir(), "bus.db")
		_, err := BuildApplication(cfg, newLogger(&bytes.Buffer{}, cfg))
		assert.Error(t, err)
	})
}

func TestRootCommandPrintsHelp(t *testing.T) {
	out, err := execute(t, testConfig(t, "unused.yml"))
	require.NoError(t, err)
	assert.Contains(t, out, "check")
	assert.Contains(t, out, "update")
}

func TestCheckCommand(t *testing.T) {
	cfg := testConfig(t, writeRegistry(t, "https://example.org/42.zip"))

	out, err := execute(t, cfg, "check")
	require.NoError(t, err)
	assert.Equal(t, "Up to date :\nUpdate needed :\n  ID 42  Example Bus    No data on database\n", out)
}

func TestUpdateCommand(t *testing.T) {
	archive := feedArchive(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(t, writeRegistry(t, server.URL))
	metricsFile := filepath.Join(t.TempDir(), "buslader.prom")

	out, err := execute(t, cfg, "update", "--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "  ID 42  Example Bus    refreshed (No data on database)\n")
	assert.Contains(t, out, "1 refreshed, 0 up to date, 0 failed\n")

	written, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(written), `buslader_refresh_total{company="42",result="success"} 1`)
}

func TestUpdateCommandReportsCompanyFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(server.Close)

	out, err := execute(t, testConfig(t, writeRegistry(t, server.URL)), "update")
	require.NoError(t, err, "company failures do not fail the command")
	assert.Contains(t, out, "failed at FETCH")
	assert.Contains(t, out, "0 refreshed, 0 up to date, 1 failed\n")
}

func TestUpdateCommandUnknownCompany(t *testing.T) {
	_, err := execute(t, testConfig(t, writeRegistry(t, "https://example.org/42.zip")), "update", "999")
	assert.ErrorIs(t, err, registry.ErrUnknownCompany)
}

func TestStatsCommand(t *testing.T) {
	cfg := testConfig(t, writeRegistry(t, "https://example.org/42.zip"))

	out, err := execute(t, cfg, "stats", "--schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Database : :memory:\n")
	assert.Contains(t, out, "  routes         0\n")
	assert.Contains(t, out, "TABLE: feed_info")
}
