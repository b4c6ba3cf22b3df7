package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// KnotsToKmh is the knot to km/h conversion factor.
const KnotsToKmh = 1.852

// Minimum GPS quality for a derived fix.
const (
	minFixSats = 4
	maxFixHDOP = 2.5
)

// handheldFields are the keys that mark a record as a raw collar packet.
var handheldFields = []string{"bat_v", "sats", "hdop", "spd_kn", "date", "time", "gps_time"}

// NeedsNormalization reports whether raw exposes any raw collar field.
// Records without one are taken as already canonical.
func NeedsNormalization(raw map[string]any) bool {
	for _, k := range handheldFields {
		if _, ok := raw[k]; ok {
			return true
		}
	}
	return false
}

// Decode turns any feed record into a Record, normalizing raw collar packets
// and reading canonical ones as they are. ok is false when no device identity
// can be resolved.
func Decode(raw map[string]any, fallbackID string, now time.Time) (Record, bool) {
	if NeedsNormalization(raw) {
		return Normalize(raw, fallbackID, now)
	}
	return FromCanonical(raw, fallbackID)
}

// Normalize converts a raw collar packet into a Record.
func Normalize(raw map[string]any, fallbackID string, now time.Time) (Record, bool) {
	if raw == nil {
		return Record{}, false
	}
	id := resolveID(raw["id"], fallbackID)
	if id == "" {
		return Record{}, false
	}

	sats := ParseNum(raw["sats"])
	hdop := ParseNum(raw["hdop"])

	kmh := knots(ParseNum(raw["spd_kn"]))
	if kmh == nil {
		kmh = ParseNum(raw["kmh"])
	}

	batt := ParseNum(raw["bat_v"])
	if batt == nil {
		batt = ParseNum(raw["batt"])
	}

	clock := raw["time"]
	if blank(clock) {
		clock = raw["gps_time"]
	}
	ts := ParseNMEADateTime(raw["date"], clock, receivedAt(raw, now))

	var fix bool
	if v, ok := raw["fix_ok"]; ok && v != nil {
		fix = truthy(v)
	} else {
		fix = FixFromQuality(sats, hdop)
	}

	return Record{
		ID:        id,
		Timestamp: &ts,
		Lat:       ParseNum(raw["lat"]),
		Lon:       ParseNum(raw["lon"]),
		Alt:       ParseNum(raw["alt"]),
		Sats:      sats,
		HDOP:      hdop,
		Kmh:       kmh,
		Crs:       ParseNum(raw["crs"]),
		Batt:      batt,
		RSSI:      ParseNum(raw["rssi"]),
		SNR:       ParseNum(raw["snr"]),
		FixOK:     &fix,
	}, true
}

// FromCanonical reads a record that already uses the canonical field names.
// Missing fields stay nil; nothing is derived.
func FromCanonical(raw map[string]any, fallbackID string) (Record, bool) {
	if raw == nil {
		return Record{}, false
	}
	id := resolveID(raw["id"], fallbackID)
	if id == "" {
		return Record{}, false
	}

	rec := Record{
		ID:   id,
		Lat:  ParseNum(raw["lat"]),
		Lon:  ParseNum(raw["lon"]),
		Alt:  ParseNum(raw["alt"]),
		Sats: ParseNum(raw["sats"]),
		HDOP: ParseNum(raw["hdop"]),
		Kmh:  ParseNum(raw["kmh"]),
		Crs:  ParseNum(raw["crs"]),
		Batt: ParseNum(raw["batt"]),
		RSSI: ParseNum(raw["rssi"]),
		SNR:  ParseNum(raw["snr"]),
	}
	if ts := ParseNum(raw["timestamp"]); ts != nil {
		rec.Timestamp = Int64(int64(math.Floor(*ts)))
	}
	if v, ok := raw["fix_ok"]; ok && v != nil {
		rec.FixOK = Bool(truthy(v))
	}
	return rec, true
}

// NormalizeID folds compatibility characters, trims and upper-cases a device id.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(id)))
}

func resolveID(v any, fallbackID string) string {
	if id := NormalizeID(stringOf(v)); id != "" {
		return id
	}
	return NormalizeID(fallbackID)
}

// ParseNum parses a loosely typed numeric field. Every character that is not
// a digit, sign, decimal point or exponent marker is dropped and the rest
// must parse as a whole. Anything that does not yield a finite number is
// nil, never zero.
func ParseNum(v any) *float64 {
	if v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return finite(n)
	case int:
		return Float(float64(n))
	case int64:
		return Float(float64(n))
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+', r == 'e', r == 'E':
			return r
		}
		return -1
	}, stringOf(v))
	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return finite(f)
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func knots(kn *float64) *float64 {
	if kn == nil {
		return nil
	}
	return Float(*kn * KnotsToKmh)
}

// FixFromQuality derives fix validity from GPS quality signals when the
// packet carries no explicit flag.
func FixFromQuality(sats, hdop *float64) bool {
	if sats == nil && hdop == nil {
		return true
	}
	if sats != nil && *sats < minFixSats {
		return false
	}
	if hdop != nil && *hdop > maxFixHDOP {
		return false
	}
	return true
}

// receivedAt is the receiver's arrival stamp when the packet carries one,
// else now. Replayed logs then keep the day each packet was heard on.
func receivedAt(raw map[string]any, now time.Time) time.Time {
	tl := ParseNum(raw["timestamp_local"])
	if tl == nil || *tl <= 0 {
		return now
	}
	return time.Unix(0, int64(*tl*float64(time.Second))).UTC()
}

// ParseNMEADateTime composes a UTC epoch-seconds timestamp from an NMEA
// DDMMYY date and HHMMSS[.fff] time. With neither present it returns now.
// A time without a date lands on whichever day puts it within 12 hours of
// now; a date without a time is taken at midnight. Two-digit years map to
// 2000+YY.
func ParseNMEADateTime(date, clock any, now time.Time) int64 {
	noDate, noClock := blank(date), blank(clock)
	if noDate && noClock {
		return now.Unix()
	}

	utc := now.UTC()
	year, month, day := utc.Year(), int(utc.Month()), utc.Day()
	if !noDate {
		d := keep(stringOf(date), "")
		day = leadingInt(slice(d, 0, 2), 1)
		month = leadingInt(slice(d, 2, 4), 1)
		year = 2000 + leadingInt(slice(d, 4, 6), 70)
	}

	t := keep(stringOf(clock), ".")
	hh := leadingInt(slice(t, 0, 2), 0)
	mm := leadingInt(slice(t, 2, 4), 0)
	secs := leadingFloat(slice(t, 4, len(t)))
	whole := math.Floor(secs)
	ms := int(math.Floor((secs - whole) * 1000))

	ts := time.Date(year, time.Month(month), day, hh, mm, int(whole), ms*int(time.Millisecond), time.UTC)
	if noDate {
		switch skew := ts.Sub(utc); {
		case skew > 12*time.Hour:
			ts = ts.AddDate(0, 0, -1)
		case skew < -12*time.Hour:
			ts = ts.AddDate(0, 0, 1)
		}
	}
	return ts.Unix()
}

// keep returns the digits of s plus any rune listed in extra.
func keep(s, extra string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || strings.ContainsRune(extra, r) {
			return r
		}
		return -1
	}, s)
}

func slice(s string, from, to int) string {
	if from >= len(s) {
		return ""
	}
	return s[from:min(to, len(s))]
}

func leadingInt(s string, def int) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return def
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return def
	}
	return n
}

func leadingFloat(s string) float64 {
	end, dot := 0, false
	for end < len(s) {
		c := s[end]
		if c == '.' {
			if dot {
				break
			}
			dot = true
		} else if c < '0' || c > '9' {
			break
		}
		end++
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

func blank(v any) bool {
	return stringOf(v) == ""
}

// truthy follows the loose truthiness collars rely on for fix_ok
// ("1", 1 and true are all valid fixes; 0, "" and false are not).
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	case float64:
		return b != 0 && !math.IsNaN(b)
	case int:
		return b != 0
	default:
		return true
	}
}
