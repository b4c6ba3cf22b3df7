package telemetry

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	require.NoError(t, dec.Decode(&raw))
	return raw
}

func TestParseNum(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{"nil", nil, nil},
		{"float", 3.5, Float(3.5)},
		{"zero stays zero", 0.0, Float(0)},
		{"numeric string", "19.25", Float(19.25)},
		{"unit suffix", "3.95V", Float(3.95)},
		{"negative with spaces", " -103.69 ", Float(-103.69)},
		{"leftover exponent marker", "-103.69 deg", nil},
		{"exponent", "1.5e2", Float(150)},
		{"json number", json.Number("-110"), Float(-110)},
		{"empty after strip", "abc", nil},
		{"empty string", "", nil},
		{"lone sign", "-", nil},
		{"overflow", "1e999", nil},
		{"bool", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNum(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "VAC-001", NormalizeID("  vac-001 "))
	assert.Equal(t, "VAC-001", NormalizeID("VAC-001"))
	// Full-width characters fold to their ASCII form.
	assert.Equal(t, "VAC-001", NormalizeID("ｖａｃ-００１"))
	assert.Equal(t, "", NormalizeID("   "))
}

func TestParseNMEADateTime(t *testing.T) {
	t.Run("date and time", func(t *testing.T) {
		got := ParseNMEADateTime("150324", "103015.50", testNow)
		assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 15, 0, time.UTC).Unix(), got)
	})
	t.Run("both absent uses now", func(t *testing.T) {
		assert.Equal(t, testNow.Unix(), ParseNMEADateTime(nil, "", testNow))
	})
	t.Run("time only uses current date", func(t *testing.T) {
		got := ParseNMEADateTime(nil, "083000", testNow)
		assert.Equal(t, time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC).Unix(), got)
	})
	t.Run("time only just before midnight stays on yesterday", func(t *testing.T) {
		now := time.Date(2024, 3, 16, 0, 0, 20, 0, time.UTC)
		got := ParseNMEADateTime(nil, "235955", now)
		assert.Equal(t, time.Date(2024, 3, 15, 23, 59, 55, 0, time.UTC).Unix(), got)
	})
	t.Run("time only just after midnight moves to tomorrow", func(t *testing.T) {
		now := time.Date(2024, 3, 15, 23, 59, 58, 0, time.UTC)
		got := ParseNMEADateTime(nil, "000003", now)
		assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 3, 0, time.UTC).Unix(), got)
	})
	t.Run("date only is midnight", func(t *testing.T) {
		got := ParseNMEADateTime("010125", nil, testNow)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), got)
	})
	t.Run("numeric time", func(t *testing.T) {
		got := ParseNMEADateTime(json.Number("150324"), json.Number("120000"), testNow)
		assert.Equal(t, testNow.Unix(), got)
	})
}

func TestNormalizeTimeOnlyUsesReceiveStamp(t *testing.T) {
	// Heard late on the 14th, replayed two days later.
	raw := decodeLine(t, `{"id":"vac-001","gps_time":"235955","bat_v":3.9,"timestamp_local":1710460797.5}`)

	rec, ok := Normalize(raw, "", testNow.AddDate(0, 0, 2))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 14, 23, 59, 55, 0, time.UTC).Unix(), *rec.Timestamp)
}

func TestFixFromQuality(t *testing.T) {
	assert.True(t, FixFromQuality(nil, nil))
	assert.True(t, FixFromQuality(Float(7), Float(1.1)))
	assert.False(t, FixFromQuality(Float(3), nil))
	assert.False(t, FixFromQuality(nil, Float(2.6)))
	assert.True(t, FixFromQuality(Float(4), Float(2.5)))
}

func TestNeedsNormalization(t *testing.T) {
	assert.True(t, NeedsNormalization(map[string]any{"id": "1", "bat_v": 3.9}))
	assert.True(t, NeedsNormalization(map[string]any{"gps_time": "101010"}))
	assert.False(t, NeedsNormalization(map[string]any{"id": "1", "lat": 1.0, "batt": 3.9}))
}

func TestNormalizeCollarPacket(t *testing.T) {
	raw := decodeLine(t, `{"id":"vac-001","lat":"19.2491","lon":-103.6979,"sats":8,"hdop":"0.9",`+
		`"spd_kn":"2.0","crs":90,"date":"150324","time":"101500.00","bat_v":"3.95","rssi":-110,"snr":7.5}`)

	rec, ok := Normalize(raw, "", testNow)
	require.True(t, ok)

	want := Record{
		ID:        "VAC-001",
		Timestamp: Int64(time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC).Unix()),
		Lat:       Float(19.2491),
		Lon:       Float(-103.6979),
		Sats:      Float(8),
		HDOP:      Float(0.9),
		Kmh:       Float(2 * KnotsToKmh),
		Crs:       Float(90),
		Batt:      Float(3.95),
		RSSI:      Float(-110),
		SNR:       Float(7.5),
		FixOK:     Bool(true),
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeFixFallback(t *testing.T) {
	rec, ok := Normalize(map[string]any{"id": "a", "sats": "3"}, "", testNow)
	require.True(t, ok)
	require.NotNil(t, rec.FixOK)
	assert.False(t, *rec.FixOK)

	rec, ok = Normalize(map[string]any{"id": "a", "sats": "3", "fix_ok": "1"}, "", testNow)
	require.True(t, ok)
	assert.True(t, *rec.FixOK)

	rec, ok = Normalize(map[string]any{"id": "a", "sats": 9, "fix_ok": 0.0}, "", testNow)
	require.True(t, ok)
	assert.False(t, *rec.FixOK)
}

func TestNormalizeIdentity(t *testing.T) {
	rec, ok := Normalize(map[string]any{"bat_v": 3.9}, "collar-7", testNow)
	require.True(t, ok)
	assert.Equal(t, "COLLAR-7", rec.ID)

	rec, ok = Normalize(map[string]any{"id": json.Number("1"), "bat_v": 3.9}, "", testNow)
	require.True(t, ok)
	assert.Equal(t, "1", rec.ID)

	_, ok = Normalize(map[string]any{"id": "  ", "bat_v": 3.9}, "", testNow)
	assert.False(t, ok)
}

func TestNormalizeGPSTimeFallback(t *testing.T) {
	rec, ok := Normalize(map[string]any{"id": "a", "date": "150324", "gps_time": "090000"}, "", testNow)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC).Unix(), *rec.Timestamp)
}

func TestNormalizeUnparsableFieldsStayNil(t *testing.T) {
	rec, ok := Normalize(map[string]any{"id": "a", "bat_v": "n/a", "lat": "", "lon": "x"}, "", testNow)
	require.True(t, ok)
	assert.Nil(t, rec.Batt)
	assert.Nil(t, rec.Lat)
	assert.Nil(t, rec.Lon)
	assert.False(t, rec.HasPosition())
}

func TestFromCanonical(t *testing.T) {
	raw := decodeLine(t, `{"id":" vac-002 ","timestamp":1710500000,"lat":19.2,"lon":-103.6,"batt":87,"fix_ok":true}`)
	rec, ok := FromCanonical(raw, "")
	require.True(t, ok)
	assert.Equal(t, "VAC-002", rec.ID)
	assert.Equal(t, int64(1710500000), *rec.Timestamp)
	assert.Equal(t, 87.0, *rec.Batt)
	assert.True(t, *rec.FixOK)
	assert.Nil(t, rec.Kmh)
	assert.Nil(t, rec.SNR)
}

func TestDecodeDispatch(t *testing.T) {
	rec, ok := Decode(map[string]any{"id": "a", "lat": 1.0, "lon": 2.0}, "", testNow)
	require.True(t, ok)
	assert.Nil(t, rec.Timestamp, "canonical records are not stamped")

	rec, ok = Decode(map[string]any{"id": "a", "bat_v": 4.0}, "", testNow)
	require.True(t, ok)
	assert.Equal(t, testNow.Unix(), *rec.Timestamp)
}
