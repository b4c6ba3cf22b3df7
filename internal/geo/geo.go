// Copyright (c) 2026 The Ranch Monitoring Authors
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geo holds the pure geometry used by geofencing. Points and rings
// follow orb's GeoJSON order: X is longitude and Y is latitude.
package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

const (
	// EarthCircumference is the equatorial circumference in meters used by
	// Web-Mercator tiling.
	EarthCircumference = 40075016.686

	// TileSize is the pixel edge of one slippy-map tile.
	TileSize = 256
)

// LatLon builds an orb point from latitude and longitude.
func LatLon(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// PointInPolygon reports whether p lies inside ring using ray-casting parity.
// The ring may be open or closed; points exactly on an edge may land on
// either side but always the same side for the same input.
func PointInPolygon(p orb.Point, ring orb.Ring) bool {
	inside := false
	lat, lon := p.Lat(), p.Lon()
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i].Lon(), ring[i].Lat()
		xj, yj := ring[j].Lon(), ring[j].Lat()
		if (yi > lat) != (yj > lat) && lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// PixelAt projects p to Web-Mercator world pixel coordinates at zoom.
func PixelAt(p orb.Point, zoom float64) orb.Point {
	m := project.Point(p, project.WGS84.ToMercator)
	half := EarthCircumference / 2
	scale := TileSize * math.Exp2(zoom) / EarthCircumference
	return orb.Point{(m.X() + half) * scale, (half - m.Y()) * scale}
}

// MetersPerPixel is the ground resolution at lat for the given zoom.
func MetersPerPixel(lat, zoom float64) float64 {
	return math.Cos(lat*math.Pi/180) * EarthCircumference / (TileSize * math.Exp2(zoom))
}

// DistanceToEdgeMeters returns the shortest distance from p to any edge of
// the closed ring, measured in pixel space at zoom and scaled to meters at
// p's latitude. An empty ring yields +Inf.
func DistanceToEdgeMeters(zoom float64, ring orb.Ring, p orb.Point) float64 {
	if len(ring) == 0 {
		return math.Inf(1)
	}
	pp := PixelAt(p, zoom)
	best := math.Inf(1)
	for i := range ring {
		a := PixelAt(ring[i], zoom)
		b := PixelAt(ring[(i+1)%len(ring)], zoom)
		best = min(best, planar.DistanceFromSegment(a, b, pp))
	}
	return best * MetersPerPixel(p.Lat(), zoom)
}

// Centroid is the arithmetic mean of the ring's vertices.
func Centroid(ring orb.Ring) orb.Point {
	if len(ring) == 0 {
		return orb.Point{}
	}
	var sx, sy float64
	for _, p := range ring {
		sx += p.X()
		sy += p.Y()
	}
	n := float64(len(ring))
	return orb.Point{sx / n, sy / n}
}

// SortCircular returns a copy of ring ordered by angle around its vertex
// mean, turning an arbitrarily ordered vertex list into a simple polygon.
func SortCircular(ring orb.Ring) orb.Ring {
	c := Centroid(ring)
	out := make(orb.Ring, len(ring))
	copy(out, ring)
	sort.SliceStable(out, func(i, j int) bool {
		ai := math.Atan2(out[i].Lat()-c.Lat(), out[i].Lon()-c.Lon())
		aj := math.Atan2(out[j].Lat()-c.Lat(), out[j].Lon()-c.Lon())
		return ai < aj
	})
	return out
}

// HaversineMeters is the great-circle distance between a and b.
func HaversineMeters(a, b orb.Point) float64 {
	return orbgeo.DistanceHaversine(a, b)
}

// AreaSquareMeters is the geodesic area enclosed by ring.
func AreaSquareMeters(ring orb.Ring) float64 {
	if len(ring) < 3 {
		return 0
	}
	closed := ring.Clone()
	if !closed.Closed() {
		closed = append(closed, closed[0])
	}
	return orbgeo.Area(closed)
}
