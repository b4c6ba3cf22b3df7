// Package gps turns the collar's NMEA stream into telemetry packets.
package gps

import (
	"errors"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// ErrNotNMEA is returned for lines that are not NMEA sentences.
var ErrNotNMEA = errors.New("gps: not an NMEA sentence")

// Accumulator keeps the latest RMC and GGA sentences so a packet can be
// built from both at send time.
type Accumulator struct {
	rmc *nmea.RMC
	gga *nmea.GGA
}

// Feed parses one line. It returns the sentence type it stored, or "" for
// sentence types that carry nothing a packet needs.
func (a *Accumulator) Feed(line string) (string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return "", ErrNotNMEA
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return "", err
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		a.rmc = &m
		return nmea.TypeRMC, nil
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		a.gga = &m
		return nmea.TypeGGA, nil
	default:
		return "", nil
	}
}

// HasFix reports whether the last RMC was valid.
func (a *Accumulator) HasFix() bool {
	return a.rmc != nil && a.rmc.Validity == nmea.ValidRMC
}

// Packet builds the packet for the current state. ok is false until a
// valid RMC has been seen. GGA quality fields are added when a GGA with a
// fix is available.
func (a *Accumulator) Packet(id string, batteryVolts *float64) (Packet, bool) {
	if !a.HasFix() {
		return Packet{}, false
	}
	m := a.rmc
	p := Packet{
		ID:           id,
		Latitude:     round(m.Latitude, 6),
		Longitude:    round(m.Longitude, 6),
		SpeedKnots:   round(m.Speed, 1),
		CourseDeg:    round(m.Course, 1),
		Date:         FormatDate(m.Date),
		Time:         FormatTime(m.Time),
		BatteryVolts: batteryVolts,
	}
	if g := a.gga; g != nil && g.FixQuality != nmea.Invalid {
		sats, hdop, alt := g.NumSatellites, g.HDOP, g.Altitude
		p.Satellites = &sats
		p.HDOP = &hdop
		p.Altitude = &alt
	}
	return p, true
}
