package gtfs

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/twpayne/go-polyline"

	"buslader.app/db/gtfsdb"
	"buslader.app/db/internal/utils"
)

// Geometry is decided once per feed from the presence of shapes.txt and
// controls how trips reference shapes.
type Geometry interface {
	// shapeFor resolves the shape_id a trip record should be stored with.
	shapeFor(rec tripRecord, index int) (sql.NullString, error)
}

// WithGeometry is a feed that ships shapes.txt.
type WithGeometry struct {
	Shapes []gtfsdb.Shape
	Points []gtfsdb.ShapePoint

	ids map[string]struct{}
}

// WithoutGeometry is a feed without shapes.txt; trips never carry a shape.
type WithoutGeometry struct{}

func (WithoutGeometry) shapeFor(tripRecord, int) (sql.NullString, error) {
	return sql.NullString{}, nil
}

func (g *WithGeometry) shapeFor(rec tripRecord, index int) (sql.NullString, error) {
	if rec.ShapeID == "" {
		return sql.NullString{}, nil
	}
	if _, ok := g.ids[rec.ShapeID]; !ok {
		return sql.NullString{}, &ParseError{
			File:   tripsFile,
			Line:   lineOf(index),
			Column: "shape_id",
			Err:    fmt.Errorf("shape %q has no point with shape_pt_sequence 1", rec.ShapeID),
		}
	}
	return gtfsdb.ToNullString(rec.ShapeID), nil
}

// HasShape reports whether shapeID is in the Shape set.
func (g *WithGeometry) HasShape(shapeID string) bool {
	_, ok := g.ids[shapeID]
	return ok
}

// LoadShapes reads shapes.txt. A shape exists when it has a point with
// shape_pt_sequence 1; every point, that one included, is kept as a
// ShapePoint. A point of a shape that does not exist is a *ParseError.
func LoadShapes(ws *Workspace, companyID string) (*WithGeometry, error) {
	records, err := readTable[shapeRecord](ws, shapesFile)
	if err != nil {
		return nil, err
	}

	g := &WithGeometry{
		Points: make([]gtfsdb.ShapePoint, 0, len(records)),
		ids:    make(map[string]struct{}),
	}

	var order []string
	for i, rec := range records {
		point, err := parseShapePoint(rec, i, companyID)
		if err != nil {
			return nil, err
		}
		if point.Sequence == 1 {
			if _, seen := g.ids[point.ShapeID]; !seen {
				g.ids[point.ShapeID] = struct{}{}
				order = append(order, point.ShapeID)
			}
		}
		g.Points = append(g.Points, point)
	}

	byShape := make(map[string][]gtfsdb.ShapePoint, len(order))
	for i, point := range g.Points {
		if !g.HasShape(point.ShapeID) {
			return nil, &ParseError{
				File:   shapesFile,
				Line:   lineOf(i),
				Column: "shape_id",
				Err:    fmt.Errorf("shape %q has no point with shape_pt_sequence 1", point.ShapeID),
			}
		}
		byShape[point.ShapeID] = append(byShape[point.ShapeID], point)
	}

	g.Shapes = make([]gtfsdb.Shape, 0, len(order))
	for _, shapeID := range order {
		g.Shapes = append(g.Shapes, buildShape(shapeID, companyID, byShape[shapeID]))
	}
	return g, nil
}

func parseShapePoint(rec shapeRecord, index int, companyID string) (gtfsdb.ShapePoint, error) {
	seq, err := parseInt(shapesFile, index, "shape_pt_sequence", rec.Sequence)
	if err != nil {
		return gtfsdb.ShapePoint{}, err
	}
	lat, err := parseFloat(shapesFile, index, "shape_pt_lat", rec.Lat)
	if err != nil {
		return gtfsdb.ShapePoint{}, err
	}
	lon, err := parseFloat(shapesFile, index, "shape_pt_lon", rec.Lon)
	if err != nil {
		return gtfsdb.ShapePoint{}, err
	}
	return gtfsdb.ShapePoint{
		ShapeID:   rec.ShapeID,
		CompanyID: companyID,
		Sequence:  seq,
		Lat:       lat,
		Lon:       lon,
	}, nil
}

// buildShape derives the encoded polyline and length of a shape from its points.
func buildShape(shapeID, companyID string, points []gtfsdb.ShapePoint) gtfsdb.Shape {
	ordered := make([]gtfsdb.ShapePoint, len(points))
	copy(ordered, points)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	coords := make([][]float64, len(ordered))
	path := make([]utils.LatLon, len(ordered))
	for i, p := range ordered {
		coords[i] = []float64{p.Lat, p.Lon}
		path[i] = utils.LatLon{Lat: p.Lat, Lon: p.Lon}
	}

	return gtfsdb.Shape{
		ShapeID:      shapeID,
		CompanyID:    companyID,
		Polyline:     string(polyline.EncodeCoords(coords)),
		LengthMeters: utils.PathLength(path),
	}
}

// Bounds returns the bounding box of every shape point in the feed.
func (g *WithGeometry) Bounds() (utils.CoordinateBounds, bool) {
	path := make([]utils.LatLon, len(g.Points))
	for i, p := range g.Points {
		path[i] = utils.LatLon{Lat: p.Lat, Lon: p.Lon}
	}
	return utils.BoundsOf(path)
}
