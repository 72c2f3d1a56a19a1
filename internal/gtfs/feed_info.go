package gtfs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickb777/date"
)

// feedDateLayout is the GTFS date format, YYYYMMDD.
const feedDateLayout = "20060102"

// LoadFeedEndDate returns feed_end_date of the first record of feed_info.txt.
func LoadFeedEndDate(ws *Workspace) (date.Date, error) {
	records, err := readTable[feedInfoRecord](ws, feedInfoFile)
	if err != nil {
		return date.Date{}, err
	}
	if len(records) == 0 {
		return date.Date{}, &ParseError{File: feedInfoFile, Err: errors.New("no records")}
	}

	raw := strings.TrimSpace(records[0].FeedEndDate)
	if raw == "" {
		return date.Date{}, &ParseError{File: feedInfoFile, Line: lineOf(0), Column: "feed_end_date", Err: errMissingValue}
	}
	end, err := date.Parse(feedDateLayout, raw)
	if err != nil {
		return date.Date{}, &ParseError{
			File:   feedInfoFile,
			Line:   lineOf(0),
			Column: "feed_end_date",
			Err:    fmt.Errorf("expected YYYYMMDD, got %q: %w", raw, err),
		}
	}
	return end, nil
}
