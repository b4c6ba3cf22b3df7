package geofence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
)

// ErrNoPolygon is returned when a GeoJSON document holds no polygon.
var ErrNoPolygon = errors.New("geofence: no polygon in GeoJSON")

// LoadGeoJSON reads the first polygon's outer ring from a GeoJSON file.
func LoadGeoJSON(path string) (orb.Ring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fence file: %w", err)
	}
	ring, err := ParseGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse fence file %s: %w", path, err)
	}
	return ring, nil
}

// ParseGeoJSON extracts the first polygon's outer ring from a
// FeatureCollection, a Feature or a bare Polygon/MultiPolygon geometry.
func ParseGeoJSON(data []byte) (orb.Ring, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		for _, f := range fc.Features {
			if ring, ok := outerRing(f.Geometry); ok {
				return ring, nil
			}
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		if ring, ok := outerRing(f.Geometry); ok {
			return ring, nil
		}
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		if ring, ok := outerRing(g); ok {
			return ring, nil
		}
	}
	return nil, ErrNoPolygon
}

func outerRing(g *geojson.Geometry) (orb.Ring, bool) {
	if g == nil {
		return nil, false
	}
	var coords [][]float64
	switch {
	case g.IsPolygon() && len(g.Polygon) > 0:
		coords = g.Polygon[0]
	case g.IsMultiPolygon() && len(g.MultiPolygon) > 0 && len(g.MultiPolygon[0]) > 0:
		coords = g.MultiPolygon[0][0]
	default:
		return nil, false
	}
	ring := make(orb.Ring, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		ring = append(ring, orb.Point{c[0], c[1]})
	}
	return ring, len(ring) > 0
}

// Geometry renders the fence as a closed GeoJSON polygon.
func (f Fence) Geometry() *geojson.Geometry {
	coords := make([][]float64, 0, len(f.Ring)+1)
	for _, p := range f.Ring {
		coords = append(coords, []float64{p.Lon(), p.Lat()})
	}
	if len(coords) > 0 {
		coords = append(coords, coords[0])
	}
	return geojson.NewPolygonGeometry([][][]float64{coords})
}
