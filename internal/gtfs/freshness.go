package gtfs

import (
	"fmt"
	"time"

	"github.com/rickb777/date"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/registry"
)

// Reasons reported by Check.
const (
	ReasonNoData     = "No data on database"
	ReasonIncomplete = "Incomplete previous load"
)

// Freshness is the refresh decision for one company.
type Freshness struct {
	Company      registry.Company
	NeedsRefresh bool
	Reason       string
}

// NeedsRefresh reports whether a company with the given feed_info row must
// be reloaded. The calendar day of now, in now's location, is "today"; a feed
// ending today or earlier is stale.
func NeedsRefresh(info *gtfsdb.FeedInfo, now time.Time) bool {
	needs, _ := freshness(info, now)
	return needs
}

func freshness(info *gtfsdb.FeedInfo, now time.Time) (bool, string) {
	switch {
	case info == nil:
		return true, ReasonNoData
	case info.FeedEndDate == nil:
		return true, ReasonIncomplete
	case !info.FeedEndDate.After(date.NewAt(now)):
		return true, fmt.Sprintf("Expired on %s", info.FeedEndDate.String())
	default:
		return false, ""
	}
}

// Check decides freshness for every company in registry order against one
// snapshot of the feed_info table.
func Check(companies []registry.Company, snapshot map[string]gtfsdb.FeedInfo, now time.Time) []Freshness {
	result := make([]Freshness, 0, len(companies))
	for _, company := range companies {
		var info *gtfsdb.FeedInfo
		if row, ok := snapshot[company.ID]; ok {
			info = &row
		}
		needs, reason := freshness(info, now)
		result = append(result, Freshness{
			Company:      company,
			NeedsRefresh: needs,
			Reason:       reason,
		})
	}
	return result
}
