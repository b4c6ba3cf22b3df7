package gps

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

const metersPerDegree = 111320.0

// Simulator walks a small herd around a centre point and produces the
// packets their collars would send. Each animal circles at its own phase
// and drifts between half and the full radius.
type Simulator struct {
	center orb.Point
	radius float64 // meters
	ids    []string
	clock  timeutil.Clock
	start  time.Time
}

// NewSimulator creates a herd of n animals named SIM-001, SIM-002, ...
func NewSimulator(center orb.Point, radiusMeters float64, n int, clock timeutil.Clock) *Simulator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("SIM-%03d", i+1)
	}
	return &Simulator{center: center, radius: radiusMeters, ids: ids, clock: clock, start: clock.Now()}
}

// Next returns one packet per animal for the current time.
func (s *Simulator) Next() []Packet {
	now := s.clock.Now().UTC()
	elapsed := now.Sub(s.start).Seconds()
	sats := int64(8)
	hdop := 0.9
	batt := round(max(3.6, 4.2-elapsed/3600*0.01), 2)

	out := make([]Packet, len(s.ids))
	for i, id := range s.ids {
		phase := 2 * math.Pi * float64(i) / float64(len(s.ids))
		angle := elapsed*0.01 + phase
		r := s.radius * (0.75 + 0.25*math.Sin(elapsed*0.007+phase))

		lat := s.center.Lat() + r*math.Cos(angle)/metersPerDegree
		lon := s.center.Lon() + r*math.Sin(angle)/(metersPerDegree*math.Cos(s.center.Lat()*math.Pi/180))

		out[i] = Packet{
			ID:           id,
			Latitude:     round(lat, 6),
			Longitude:    round(lon, 6),
			Satellites:   &sats,
			HDOP:         &hdop,
			SpeedKnots:   round(r*0.01/0.514444, 1),
			CourseDeg:    round(math.Mod(angle*180/math.Pi+90, 360), 1),
			Date:         now.Format("020106"),
			Time:         now.Format("150405.000"),
			BatteryVolts: &batt,
		}
	}
	return out
}
