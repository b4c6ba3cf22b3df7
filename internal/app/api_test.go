package app

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abril-student/ranch-monitoring/internal/export"
	"github.com/abril-student/ranch-monitoring/internal/feed"
	"github.com/abril-student/ranch-monitoring/internal/geo"
)

func newTestServer(t *testing.T) (*Monitor, *httptest.Server) {
	t.Helper()
	m, _, _ := newTestMonitor(t, false)
	srv := httptest.NewServer(m.Routes())
	t.Cleanup(srv.Close)
	return m, srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// seed adds two devices heard shortly before t0.
func seed(m *Monitor) {
	m.Ingest(feed.Record{"id": "VAC-001", "timestamp": 1710503900.0, "lat": 19.2491, "lon": -103.6979, "batt": 3.95}, "")
	m.Ingest(feed.Record{"id": "VAC-002", "timestamp": 1710503950.0, "lat": 19.2492, "lon": -103.6978, "batt": 3.7}, "")
}

func TestAPIListDevices(t *testing.T) {
	m, srv := newTestServer(t)
	seed(m)

	resp := do(t, http.MethodGet, srv.URL+"/api/devices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var devices []map[string]any
	decodeJSON(t, resp, &devices)
	require.Len(t, devices, 2)
	assert.Equal(t, "VAC-002", devices[0]["id"], "most recent first")
	assert.Equal(t, 17.0, devices[0]["battery_pct"])
	assert.Equal(t, true, devices[0]["low_battery"])
	assert.Equal(t, 58.0, devices[1]["battery_pct"])
	assert.Equal(t, "ok", devices[1]["fence"])
}

func TestAPIDeviceLookup(t *testing.T) {
	m, srv := newTestServer(t)
	seed(m)

	resp := do(t, http.MethodGet, srv.URL+"/api/devices/vac-001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d map[string]any
	decodeJSON(t, resp, &d)
	assert.Equal(t, "VAC-001", d["id"])
	assert.Equal(t, 1.0, d["samples"])
	assert.Equal(t, 1.0, d["trail_points"])

	resp = do(t, http.MethodGet, srv.URL+"/api/devices/VAC-404", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var apiErr apiError
	decodeJSON(t, resp, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "VAC-404", apiErr.Details["id"])
}

func TestAPIHistoryAndTrail(t *testing.T) {
	m, srv := newTestServer(t)
	seed(m)

	resp := do(t, http.MethodGet, srv.URL+"/api/devices/VAC-001/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var samples []map[string]any
	decodeJSON(t, resp, &samples)
	require.Len(t, samples, 1)
	assert.Equal(t, 1710503900.0, samples[0]["timestamp"])

	resp = do(t, http.MethodGet, srv.URL+"/api/devices/VAC-001/trail", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var points []map[string]any
	decodeJSON(t, resp, &points)
	require.Len(t, points, 1)
	assert.Equal(t, 1710503900000.0, points[0]["time_ms"])

	resp = do(t, http.MethodGet, srv.URL+"/api/devices/VAC-404/trail", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIAddAndDeleteDevice(t *testing.T) {
	m, srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/devices", `{"id":"vac-010"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var d map[string]any
	decodeJSON(t, resp, &d)
	assert.Equal(t, "VAC-010", d["id"])
	assert.Equal(t, centre(m)[0], d["lat"])

	resp = do(t, http.MethodPost, srv.URL+"/api/devices", `{"id":"vac-011","lat":19.1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, http.MethodPost, srv.URL+"/api/devices", `{"lat":19.1,"lon":-103.1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, http.MethodPost, srv.URL+"/api/devices", `{"id":"x","colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown fields are rejected")

	resp = do(t, http.MethodDelete, srv.URL+"/api/devices/vac-010", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodDelete, srv.URL+"/api/devices/vac-010", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, m.Registry().Len())
}

func TestAPIDistance(t *testing.T) {
	m, srv := newTestServer(t)
	seed(m)

	resp := do(t, http.MethodGet, srv.URL+"/api/distance?a=vac-001&b=VAC-002", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decodeJSON(t, resp, &body)
	want := geo.HaversineMeters(geo.LatLon(19.2491, -103.6979), geo.LatLon(19.2492, -103.6978))
	assert.InDelta(t, want, body["meters"], 1e-9)

	resp = do(t, http.MethodGet, srv.URL+"/api/distance?a=VAC-001&b=VAC-404", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPISampling(t *testing.T) {
	m, srv := newTestServer(t)
	seed(m)

	resp := do(t, http.MethodPut, srv.URL+"/api/sampling", `{"sample_window_seconds":60}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg map[string]any
	decodeJSON(t, resp, &cfg)
	assert.Equal(t, 60.0, cfg["sample_window_seconds"])
	assert.Equal(t, 24.0, cfg["retention_hours"], "fields left out keep their value")
	assert.Equal(t, 60, m.Registry().HistoryConfig().SampleWindowSeconds)

	resp = do(t, http.MethodPut, srv.URL+"/api/sampling", `{"sample_window_seconds":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/sampling", "")
	decodeJSON(t, resp, &cfg)
	assert.Equal(t, 60.0, cfg["sample_window_seconds"])

	resp = do(t, http.MethodPost, srv.URL+"/api/history/reset", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	for id, h := range m.Registry().Histories() {
		assert.Empty(t, h, id)
	}
}

func TestAPIGeofence(t *testing.T) {
	m, srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/geofence", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Enabled   bool            `json:"enabled"`
		Zoom      float64         `json:"zoom"`
		Threshold float64         `json:"threshold_m"`
		Geometry  json.RawMessage `json:"geometry"`
		Center    [2]float64      `json:"center"`
		Area      float64         `json:"area_m2"`
	}
	decodeJSON(t, resp, &got)
	assert.False(t, got.Enabled)
	assert.Equal(t, 18.0, got.Zoom)
	assert.Equal(t, 25.0, got.Threshold)
	assert.InDelta(t, 18937, got.Area, 200)
	assert.Equal(t, centre(m), got.Center)
	assert.Contains(t, string(got.Geometry), `"Polygon"`)

	resp = do(t, http.MethodPut, srv.URL+"/api/geofence", `{"enabled":true,"threshold_m":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f := m.Fence()
	assert.True(t, f.Enabled)
	assert.Equal(t, 10.0, f.ThresholdMeters)
	assert.Len(t, f.Ring, 4, "ring kept when no geometry is sent")

	square := `{"geometry":{"type":"Polygon","coordinates":[[[-103.70,19.24],[-103.69,19.24],[-103.69,19.25],[-103.70,19.25],[-103.70,19.24]]]}}`
	resp = do(t, http.MethodPut, srv.URL+"/api/geofence", square)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, m.Fence().Ring, 4)
	assert.InDelta(t, 19.245, m.Fence().Center().Lat(), 1e-9)

	resp = do(t, http.MethodPut, srv.URL+"/api/geofence", `{"geometry":{"type":"Point","coordinates":[1,2]}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, http.MethodPut, srv.URL+"/api/geofence", `{"zoom":40}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIExports(t *testing.T) {
	m, srv := newTestServer(t)
	seed(m)

	resp := do(t, http.MethodGet, srv.URL+"/api/export.csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "ranch_history_")
	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Columns, rows[0])
	assert.Equal(t, "VAC-001", rows[1][0])

	resp = do(t, http.MethodGet, srv.URL+"/api/export.kml", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<kml")
	assert.Contains(t, string(body), "VAC-002")

	resp = do(t, http.MethodGet, srv.URL+"/api/export.xlsx", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("PK")), "xlsx is a zip archive")
}

func TestAPIMetrics(t *testing.T) {
	_, srv := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
