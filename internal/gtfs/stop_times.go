package gtfs

import (
	"fmt"

	"buslader.app/db/gtfsdb"
)

type stop struct {
	name string
	lat  float64
	lon  float64
}

// loadStops reads stops.txt into a lookup keyed by stop_id.
func loadStops(ws *Workspace) (map[string]stop, error) {
	records, err := readTable[stopRecord](ws, stopsFile)
	if err != nil {
		return nil, err
	}

	stops := make(map[string]stop, len(records))
	for i, rec := range records {
		lat, err := parseFloat(stopsFile, i, "stop_lat", rec.Lat)
		if err != nil {
			return nil, err
		}
		lon, err := parseFloat(stopsFile, i, "stop_lon", rec.Lon)
		if err != nil {
			return nil, err
		}
		stops[rec.StopID] = stop{name: rec.Name, lat: lat, lon: lon}
	}
	return stops, nil
}

// LoadStopTimes reads stops.txt in full, then stop_times.txt, copying the
// referenced stop's name and position onto each stop time.
func LoadStopTimes(ws *Workspace, companyID string) ([]gtfsdb.StopTime, error) {
	stops, err := loadStops(ws)
	if err != nil {
		return nil, err
	}

	records, err := readTable[stopTimeRecord](ws, stopTimesFile)
	if err != nil {
		return nil, err
	}

	stopTimes := make([]gtfsdb.StopTime, 0, len(records))
	for i, rec := range records {
		seq, err := parseInt(stopTimesFile, i, "stop_sequence", rec.StopSequence)
		if err != nil {
			return nil, err
		}
		s, ok := stops[rec.StopID]
		if !ok {
			return nil, &ParseError{
				File:   stopTimesFile,
				Line:   lineOf(i),
				Column: "stop_id",
				Err:    fmt.Errorf("unknown stop %q", rec.StopID),
			}
		}
		stopTimes = append(stopTimes, gtfsdb.StopTime{
			TripID:        rec.TripID,
			CompanyID:     companyID,
			StopSequence:  seq,
			ArrivalTime:   rec.ArrivalTime,
			DepartureTime: rec.DepartureTime,
			StopHeadsign:  rec.StopHeadsign,
			StopName:      s.name,
			StopLat:       s.lat,
			StopLon:       s.lon,
		})
	}
	return stopTimes, nil
}
