package gtfs

import "buslader.app/db/gtfsdb"

// LoadTrips reads trips.txt. Whether and how shape_id is kept depends on geometry.
func LoadTrips(ws *Workspace, companyID string, geometry Geometry) ([]gtfsdb.Trip, error) {
	records, err := readTable[tripRecord](ws, tripsFile)
	if err != nil {
		return nil, err
	}

	trips := make([]gtfsdb.Trip, 0, len(records))
	for i, rec := range records {
		shapeID, err := geometry.shapeFor(rec, i)
		if err != nil {
			return nil, err
		}
		trips = append(trips, gtfsdb.Trip{
			TripID:    rec.TripID,
			CompanyID: companyID,
			RouteID:   rec.RouteID,
			ShapeID:   shapeID,
		})
	}
	return trips, nil
}
