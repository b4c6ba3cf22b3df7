// Package telemetry holds the canonical collar telemetry record and the
// helpers that turn loosely typed feed records into it.
package telemetry

// Record is one canonical telemetry packet. Pointer fields are nil when the
// value is unknown; zero is a valid reading and must stay distinguishable.
type Record struct {
	ID        string   `json:"id"`        // trimmed, upper-cased device identity
	Timestamp *int64   `json:"timestamp"` // UTC epoch seconds
	Lat       *float64 `json:"lat"`       // decimal degrees
	Lon       *float64 `json:"lon"`       // decimal degrees
	Alt       *float64 `json:"alt"`       // meters
	Sats      *float64 `json:"sats"`      // satellites in use
	HDOP      *float64 `json:"hdop"`      // horizontal dilution of precision
	Kmh       *float64 `json:"kmh"`       // ground speed
	Crs       *float64 `json:"crs"`       // course over ground, degrees
	Batt      *float64 `json:"batt"`      // volts (<= 5) or percent (> 5)
	RSSI      *float64 `json:"rssi"`      // dBm
	SNR       *float64 `json:"snr"`       // dB
	FixOK     *bool    `json:"fix_ok"`
}

// HasPosition reports whether both coordinates are known.
func (r Record) HasPosition() bool {
	return r.Lat != nil && r.Lon != nil
}

// Merge overlays next onto prev field by field. Only fields that are known in
// next replace the previous value, so a packet that omits a field never
// erases what was already known about the device.
func Merge(prev, next Record) Record {
	out := prev
	if next.ID != "" {
		out.ID = next.ID
	}
	if next.Timestamp != nil {
		out.Timestamp = next.Timestamp
	}
	overlay(&out.Lat, next.Lat)
	overlay(&out.Lon, next.Lon)
	overlay(&out.Alt, next.Alt)
	overlay(&out.Sats, next.Sats)
	overlay(&out.HDOP, next.HDOP)
	overlay(&out.Kmh, next.Kmh)
	overlay(&out.Crs, next.Crs)
	overlay(&out.Batt, next.Batt)
	overlay(&out.RSSI, next.RSSI)
	overlay(&out.SNR, next.SNR)
	if next.FixOK != nil {
		out.FixOK = next.FixOK
	}
	return out
}

func overlay(dst **float64, src *float64) {
	if src != nil {
		*dst = src
	}
}

// Clone returns a deep copy so snapshots never share storage with the live record.
func (r Record) Clone() Record {
	out := r
	if r.Timestamp != nil {
		ts := *r.Timestamp
		out.Timestamp = &ts
	}
	out.Lat = cloneFloat(r.Lat)
	out.Lon = cloneFloat(r.Lon)
	out.Alt = cloneFloat(r.Alt)
	out.Sats = cloneFloat(r.Sats)
	out.HDOP = cloneFloat(r.HDOP)
	out.Kmh = cloneFloat(r.Kmh)
	out.Crs = cloneFloat(r.Crs)
	out.Batt = cloneFloat(r.Batt)
	out.RSSI = cloneFloat(r.RSSI)
	out.SNR = cloneFloat(r.SNR)
	if r.FixOK != nil {
		ok := *r.FixOK
		out.FixOK = &ok
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
