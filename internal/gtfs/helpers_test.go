package gtfs

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/appconf"
)

// feed maps file names to their contents.
type feed map[string]string

// scenarioFeed is company 42's minimal feed: one route, one trip, one stop
// and one stop time, no shapes.
func scenarioFeed() feed {
	return feed{
		"routes.txt":     "route_id,route_short_name,route_long_name\nR1,1,Main Line\n",
		"trips.txt":      "route_id,service_id,trip_id\nR1,WK,T1\n",
		"stops.txt":      "stop_id,stop_name,stop_lat,stop_lon\nS1,Main St,1.0,2.0\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\nT1,08:00:00,08:00:00,S1,1\n",
		"feed_info.txt":  "feed_publisher_name,feed_publisher_url,feed_lang,feed_end_date\nExample,https://example.org,en,20251231\n",
	}
}

// shapedFeed extends scenarioFeed with a two-point shape used by T1.
func shapedFeed() feed {
	f := scenarioFeed()
	f["shapes.txt"] = "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\nSH1,1.0,2.0,1\nSH1,1.001,2.001,2\n"
	f["trips.txt"] = "route_id,service_id,trip_id,shape_id\nR1,WK,T1,SH1\n"
	return f
}

func (f feed) with(name, content string) feed {
	out := make(feed, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[name] = content
	return out
}

func (f feed) without(name string) feed {
	out := make(feed, len(f))
	for k, v := range f {
		if k != name {
			out[k] = v
		}
	}
	return out
}

// zipBytes archives the feed in a stable order.
func (f feed) zipBytes(t *testing.T) []byte {
	t.Helper()
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(f[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// expandInto writes the feed straight into a workspace's dist directory.
func (f feed) expandInto(t *testing.T, ws *Workspace) {
	t.Helper()
	require.NoError(t, os.MkdirAll(ws.Dist(), 0o755))
	for name, content := range f {
		require.NoError(t, os.WriteFile(ws.Path(name), []byte(content), 0o644))
	}
}

func newTestWorkspace(t *testing.T, f feed) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir(), "42")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Remove() })
	f.expandInto(t, ws)
	return ws
}

// feedServer serves the archive returned by current on every request.
func feedServer(t *testing.T, current func() []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(current())
	}))
	t.Cleanup(server.Close)
	return server
}

func failingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", status)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestStore(t *testing.T) *gtfsdb.Client {
	t.Helper()
	client, err := gtfsdb.NewClient(gtfsdb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// scratchEntries lists what is left in a scratch root.
func scratchEntries(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, filepath.Join(root, e.Name()))
	}
	return names
}
