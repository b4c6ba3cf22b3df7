// Copyright (c) 2026 The Ranch Monitoring Authors
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geofence classifies device positions against a paddock polygon
// and reports status transitions.
package geofence

import (
	"github.com/paulmach/orb"

	"github.com/abril-student/ranch-monitoring/internal/geo"
)

// Status is a device's position relative to the fence.
type Status string

const (
	StatusOK   Status = "ok"
	StatusEdge Status = "edge"
	StatusOut  Status = "out"
)

// Defaults used when configuration leaves them unset.
const (
	DefaultZoom            = 18
	DefaultThresholdMeters = 25.0
)

// Fence is the polygon plus the parameters evaluation needs.
type Fence struct {
	Ring            orb.Ring // vertices in circular order, not closed
	Zoom            float64  // Web-Mercator zoom the edge distance is measured at
	ThresholdMeters float64  // inside and at most this far from an edge is edge
	Enabled         bool     // alerts are emitted only when set
}

// RanchRing is the built-in paddock outline.
var RanchRing = orb.Ring{
	geo.LatLon(19.2500061, -103.6982934),
	geo.LatLon(19.2490052, -103.6969552),
	geo.LatLon(19.2482673, -103.6975558),
	geo.LatLon(19.2492521, -103.6989217),
}

// DefaultFence returns the built-in paddock with default parameters,
// alerting disabled.
func DefaultFence() Fence {
	return NewFence(RanchRing, DefaultZoom, DefaultThresholdMeters, false)
}

// NewFence orders ring circularly and drops a repeated closing vertex.
func NewFence(ring orb.Ring, zoom, thresholdMeters float64, enabled bool) Fence {
	r := ring.Clone()
	if len(r) > 1 && r[0].Equal(r[len(r)-1]) {
		r = r[:len(r)-1]
	}
	return Fence{
		Ring:            geo.SortCircular(r),
		Zoom:            zoom,
		ThresholdMeters: thresholdMeters,
		Enabled:         enabled,
	}
}

// Center is the vertex mean of the fence.
func (f Fence) Center() orb.Point {
	return geo.Centroid(f.Ring)
}

// Evaluate classifies a position against ring. A ring with fewer than three
// vertices or an unknown coordinate is ok.
func Evaluate(ring orb.Ring, zoom float64, lat, lon *float64, thresholdMeters float64) Status {
	if len(ring) < 3 || lat == nil || lon == nil {
		return StatusOK
	}
	p := geo.LatLon(*lat, *lon)
	if !geo.PointInPolygon(p, ring) {
		return StatusOut
	}
	if geo.DistanceToEdgeMeters(zoom, ring, p) <= thresholdMeters {
		return StatusEdge
	}
	return StatusOK
}

// Evaluate classifies a position against the fence.
func (f Fence) Evaluate(lat, lon *float64) Status {
	return Evaluate(f.Ring, f.Zoom, lat, lon, f.ThresholdMeters)
}
