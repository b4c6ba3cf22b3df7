package gps

import (
	"fmt"
	"math"

	nmea "github.com/adrianmo/go-nmea"
)

// Packet is the compact JSON a collar transmits, one per send interval.
type Packet struct {
	ID           string   `json:"id"`
	Latitude     float64  `json:"lat"`              // decimal degrees, 6 places
	Longitude    float64  `json:"lon"`              // decimal degrees, 6 places
	Altitude     *float64 `json:"alt,omitempty"`    // meters, from GGA
	Satellites   *int64   `json:"sats,omitempty"`   // from GGA
	HDOP         *float64 `json:"hdop,omitempty"`   // from GGA
	SpeedKnots   float64  `json:"spd_kn"`           // speed over ground
	CourseDeg    float64  `json:"crs"`              // course over ground
	Date         string   `json:"date,omitempty"`   // DDMMYY
	Time         string   `json:"time,omitempty"`   // HHMMSS.sss UTC
	BatteryVolts *float64 `json:"bat_v,omitempty"`
}

// FormatDate renders an NMEA date as DDMMYY.
func FormatDate(d nmea.Date) string {
	if !d.Valid {
		return ""
	}
	return fmt.Sprintf("%02d%02d%02d", d.DD, d.MM, d.YY)
}

// FormatTime renders an NMEA time as HHMMSS.sss.
func FormatTime(t nmea.Time) string {
	if !t.Valid {
		return ""
	}
	return fmt.Sprintf("%02d%02d%02d.%03d", t.Hour, t.Minute, t.Second, t.Millisecond)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
