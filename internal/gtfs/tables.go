package gtfs

import (
	"encoding/csv"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"buslader.app/db/internal/logging"
)

// Feed file names.
const (
	routesFile    = "routes.txt"
	shapesFile    = "shapes.txt"
	tripsFile     = "trips.txt"
	stopsFile     = "stops.txt"
	stopTimesFile = "stop_times.txt"
	feedInfoFile  = "feed_info.txt"
)

// Row types hold every field as the raw string found in the file. Columns
// that are absent from the header decode as empty strings.

type routeRecord struct {
	RouteID   string `csv:"route_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
}

type shapeRecord struct {
	ShapeID  string `csv:"shape_id"`
	Sequence string `csv:"shape_pt_sequence"`
	Lat      string `csv:"shape_pt_lat"`
	Lon      string `csv:"shape_pt_lon"`
}

type tripRecord struct {
	TripID  string `csv:"trip_id"`
	RouteID string `csv:"route_id"`
	ShapeID string `csv:"shape_id"`
}

type stopRecord struct {
	StopID string `csv:"stop_id"`
	Name   string `csv:"stop_name"`
	Lat    string `csv:"stop_lat"`
	Lon    string `csv:"stop_lon"`
}

type stopTimeRecord struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopHeadsign  string `csv:"stop_headsign"`
}

type feedInfoRecord struct {
	FeedEndDate string `csv:"feed_end_date"`
}

// readTable decodes the expanded feed file name into rows of T. A missing
// file is a *MissingFileError; a file without a header yields no rows.
func readTable[T any](ws *Workspace, name string) ([]T, error) {
	f, err := os.Open(ws.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingFileError{File: name}
		}
		return nil, err
	}
	defer logging.SafeCloseWithLogging(f,
		slog.Default().With(slog.String("component", "gtfs_tables")),
		name)

	// Strip a leading byte order mark.
	r := transform.NewReader(f, unicode.BOMOverride(transform.Nop))

	// Whitespace is kept: values are stored as published.
	reader := csv.NewReader(r)
	reader.LazyQuotes = true

	var rows []T
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, &ParseError{File: name, Err: err}
	}
	return rows, nil
}

// lineOf maps a record index to its line in the file, counting the header.
func lineOf(index int) int {
	return index + 2
}

func parseFloat(file string, index int, column, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, &ParseError{File: file, Line: lineOf(index), Column: column, Err: numericError(value, err)}
	}
	return f, nil
}

func parseInt(file string, index int, column, value string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, &ParseError{File: file, Line: lineOf(index), Column: column, Err: numericError(value, err)}
	}
	return n, nil
}

var errMissingValue = errors.New("missing value")

func numericError(value string, err error) error {
	if strings.TrimSpace(value) == "" {
		return errMissingValue
	}
	return err
}
