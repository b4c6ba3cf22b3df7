package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Vertices of the ranch paddock, listed in a crossing order.
var ranch = orb.Ring{
	LatLon(19.2500061, -103.6982934),
	LatLon(19.2490052, -103.6969552),
	LatLon(19.2482673, -103.6975558),
	LatLon(19.2492521, -103.6989217),
}

var square = orb.Ring{
	LatLon(0, 0), LatLon(0, 0.01), LatLon(0.01, 0.01), LatLon(0.01, 0),
}

func TestPointInPolygon(t *testing.T) {
	assert.True(t, PointInPolygon(LatLon(0.005, 0.005), square))
	assert.False(t, PointInPolygon(LatLon(0.02, 0.005), square))
	assert.False(t, PointInPolygon(LatLon(-0.001, 0.005), square))

	sorted := SortCircular(ranch)
	assert.True(t, PointInPolygon(LatLon(19.2491367, -103.69793845), sorted))
	assert.False(t, PointInPolygon(LatLon(19.2510, -103.6979), sorted))
}

func TestPointInPolygonDegenerate(t *testing.T) {
	assert.False(t, PointInPolygon(LatLon(0, 0), nil))
	assert.False(t, PointInPolygon(LatLon(0, 0), orb.Ring{LatLon(0, 0)}))
}

func TestVertexClassificationIsStable(t *testing.T) {
	sorted := SortCircular(ranch)
	for _, v := range ranch {
		first := PointInPolygon(v, sorted)
		for _i := 0; _i < 5; _i++ {
			assert.Equal(t, first, PointInPolygon(v, SortCircular(ranch)))
		}
	}
}

func TestSortCircular(t *testing.T) {
	sorted := SortCircular(ranch)
	require.Len(t, sorted, len(ranch))
	assert.ElementsMatch(t, ranch, sorted)

	c := Centroid(sorted)
	prev := math.Inf(-1)
	for _, p := range sorted {
		a := math.Atan2(p.Lat()-c.Lat(), p.Lon()-c.Lon())
		assert.GreaterOrEqual(t, a, prev)
		prev = a
	}

	// The input is left untouched.
	assert.Equal(t, LatLon(19.2500061, -103.6982934), ranch[0])
}

func TestMetersPerPixel(t *testing.T) {
	assert.InDelta(t, 156543.03, MetersPerPixel(0, 0), 0.01)
	assert.InDelta(t, 156543.03/2, MetersPerPixel(60, 0), 0.01)
	assert.InDelta(t, MetersPerPixel(19.25, 18)*2, MetersPerPixel(19.25, 17), 1e-9)
}

func TestDistanceToEdgeMeters(t *testing.T) {
	// 0.001 degrees of latitude north of the southern edge, near the equator.
	p := LatLon(0.001, 0.005)
	d := DistanceToEdgeMeters(18, square, p)
	assert.InDelta(t, 111.3, d, 0.5)

	// Zoom only changes the pixel grid, not the ground distance.
	assert.InDelta(t, d, DistanceToEdgeMeters(12, square, p), 1e-6)

	assert.True(t, math.IsInf(DistanceToEdgeMeters(18, nil, p), 1))
}

func TestDistanceToEdgeIncludesClosingSegment(t *testing.T) {
	// Closest edge is the one from the last vertex back to the first.
	p := LatLon(0.005, 0.0002)
	assert.InDelta(t, 22.3, DistanceToEdgeMeters(18, square, p), 0.5)
}

func TestHaversineMeters(t *testing.T) {
	assert.InDelta(t, 0, HaversineMeters(LatLon(19, -103), LatLon(19, -103)), 1e-9)
	assert.InDelta(t, 111319.5, HaversineMeters(LatLon(0, 0), LatLon(1, 0)), 1)
}

func TestAreaSquareMeters(t *testing.T) {
	assert.Zero(t, AreaSquareMeters(orb.Ring{LatLon(0, 0), LatLon(1, 1)}))
	area := AreaSquareMeters(SortCircular(ranch))
	assert.Greater(t, area, 10000.0)
	assert.Less(t, area, 50000.0)
}
