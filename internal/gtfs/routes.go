package gtfs

import "buslader.app/db/gtfsdb"

// LoadRoutes reads routes.txt. Names are kept exactly as published.
func LoadRoutes(ws *Workspace, companyID string) ([]gtfsdb.Route, error) {
	records, err := readTable[routeRecord](ws, routesFile)
	if err != nil {
		return nil, err
	}

	routes := make([]gtfsdb.Route, 0, len(records))
	for _, rec := range records {
		routes = append(routes, gtfsdb.Route{
			RouteID:   rec.RouteID,
			CompanyID: companyID,
			ShortName: rec.ShortName,
			LongName:  rec.LongName,
		})
	}
	return routes, nil
}
