package gtfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/time/rate"

	"buslader.app/db/internal/logging"
	"buslader.app/db/internal/registry"
)

// maxExpansionRatio bounds how much larger the expanded feed may be than the
// configured archive limit.
const maxExpansionRatio = 20

// Fetcher downloads company archives and expands them into a Workspace.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewFetcher builds a Fetcher from config. A non-zero FetchMinInterval
// spaces consecutive downloads at least that far apart.
func NewFetcher(config Config) *Fetcher {
	var limiter *rate.Limiter
	if config.FetchMinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(config.FetchMinInterval), 1)
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			}},
		maxBytes: config.maxFeedBytes(),
		limiter:  limiter,
		logger:   slog.Default().With(slog.String("component", "gtfs_fetcher")),
	}
}

// Fetch obtains the company's archive and expands it into ws.Dist(). The
// workspace is only reset once the archive has been obtained in full.
// Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, company registry.Company, ws *Workspace) error {
	source := company.GTFSURL

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return &FetchError{Source: source, Err: err}
		}
	}

	data, err := f.read(ctx, company)
	if err != nil {
		return &FetchError{Source: source, Err: err}
	}

	if err := ws.Reset(); err != nil {
		return &FetchError{Source: source, Err: fmt.Errorf("resetting workspace: %w", err)}
	}
	if err := os.WriteFile(ws.ArchivePath(), data, 0o644); err != nil {
		return &FetchError{Source: source, Err: fmt.Errorf("writing archive: %w", err)}
	}
	if err := extractArchive(ws.ArchivePath(), ws.Dist(), f.maxBytes*maxExpansionRatio); err != nil {
		return &FetchError{Source: source, Err: err}
	}

	logging.LogOperation(f.logger, "archive_fetched",
		slog.String("company_id", company.ID),
		slog.Int("bytes", len(data)))
	return nil
}

func (f *Fetcher) read(ctx context.Context, company registry.Company) ([]byte, error) {
	if path, ok := localPath(company.GTFSURL); ok {
		return f.readFile(path)
	}
	return f.download(ctx, company)
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error reading local GTFS file: %w", err)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("local GTFS file exceeds size limit of %d bytes", f.maxBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading local GTFS file: %w", err)
	}
	return b, nil
}

func (f *Fetcher) download(ctx context.Context, company registry.Company) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, company.GTFSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GTFS request: %w", err)
	}

	// Add auth header if provided
	if company.AuthHeaderKey != "" && company.AuthHeaderValue != "" {
		req.Header.Set(company.AuthHeaderKey, company.AuthHeaderValue)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, f.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download GTFS data: received HTTP status %s", resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	if int64(len(b)) > f.maxBytes {
		return nil, fmt.Errorf("GTFS response exceeds size limit of %d bytes", f.maxBytes)
	}
	return b, nil
}

// localPath reports whether source names a file rather than an http(s) URL.
func localPath(source string) (string, bool) {
	if strings.HasPrefix(source, "file://") {
		return strings.TrimPrefix(source, "file://"), true
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return "", false
	}
	return source, true
}

// extractArchive expands the zip at archivePath into dest. Entries that
// would land outside dest are rejected, as is expansion beyond maxBytes.
func extractArchive(archivePath, dest string, maxBytes int64) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer logging.SafeCloseWithLogging(zr,
		slog.Default().With(slog.String("component", "gtfs_fetcher")),
		"zip_reader")

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	cleanDest := filepath.Clean(dest) + string(os.PathSeparator)

	remaining := maxBytes
	for _, file := range zr.File {
		target := filepath.Join(dest, file.Name)
		if !strings.HasPrefix(target, cleanDest) {
			return fmt.Errorf("archive entry %q escapes the destination directory", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		written, err := extractFile(file, target, remaining)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", file.Name, err)
		}
		remaining -= written
	}
	return nil
}

var errExpansionLimit = errors.New("expanded archive exceeds size limit")

func extractFile(file *zip.File, target string, limit int64) (written int64, err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	rc, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer logging.HandleDeferredError(&err, out.Close,
		slog.Default().With(slog.String("component", "gtfs_fetcher")), "close_extracted_file")

	written, err = io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		return written, err
	}
	if written > limit {
		return written, errExpansionLimit
	}
	return written, nil
}
