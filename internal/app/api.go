package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abril-student/ranch-monitoring/internal/export"
	"github.com/abril-student/ranch-monitoring/internal/geo"
	"github.com/abril-student/ranch-monitoring/internal/geofence"
	"github.com/abril-student/ranch-monitoring/internal/metrics"
	"github.com/abril-student/ranch-monitoring/internal/registry"
	"github.com/abril-student/ranch-monitoring/internal/telemetry"
)

var errMissingID = errors.New("device id is required")

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// geofenceBody is the GET/PUT shape of /api/geofence. On PUT every field
// is optional and only the ones present change.
type geofenceBody struct {
	Enabled         *bool           `json:"enabled"`
	Zoom            *float64        `json:"zoom"`
	ThresholdMeters *float64        `json:"threshold_m"`
	Geometry        json.RawMessage `json:"geometry,omitempty"` // GeoJSON Polygon or Feature
	Center          *[2]float64     `json:"center,omitempty"`   // lat, lon
	AreaSquareM     *float64        `json:"area_m2,omitempty"`
}

// newDevice is the body of POST /api/devices.
type newDevice struct {
	ID   string   `json:"id"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	Batt *float64 `json:"batt"`
}

// Routes builds the monitor's HTTP API.
func (m *Monitor) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", m.handleListDevices)
		r.Post("/devices", m.handleAddDevice)
		r.Route("/devices/{id}", func(r chi.Router) {
			r.Get("/", m.handleGetDevice)
			r.Delete("/", m.handleDeleteDevice)
			r.Get("/history", m.handleDeviceHistory)
			r.Get("/trail", m.handleDeviceTrail)
		})
		r.Get("/distance", m.handleDistance)

		r.Post("/history/reset", m.handleResetHistory)
		r.Get("/sampling", m.handleGetSampling)
		r.Put("/sampling", m.handlePutSampling)

		r.Get("/geofence", m.handleGetGeofence)
		r.Put("/geofence", m.handlePutGeofence)

		r.Get("/export.csv", m.handleExport("csv"))
		r.Get("/export.kml", m.handleExport("kml"))
		r.Get("/export.xlsx", m.handleExport("xlsx"))
	})

	r.Handle("/ws", m.hub)
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/*", http.FileServer(http.Dir("web")))
	return r
}

func (m *Monitor) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Devices())
}

func (m *Monitor) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := m.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (m *Monitor) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var body newDevice
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	if (body.Lat == nil) != (body.Lon == nil) {
		writeError(w, http.StatusBadRequest, "validation_failed", "lat and lon must be provided together", nil)
		return
	}
	d, err := m.AddDevice(telemetry.Record{
		ID:        body.ID,
		Timestamp: telemetry.Int64(m.clock.Now().Unix()),
		Lat:       body.Lat,
		Lon:       body.Lon,
		Batt:      body.Batt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (m *Monitor) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := m.Delete(chi.URLParam(r, "id")); err != nil {
		writeLookupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	samples, err := m.reg.History(chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (m *Monitor) handleDeviceTrail(w http.ResponseWriter, r *http.Request) {
	points, err := m.reg.Trail(chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// handleDistance reports the great-circle distance between two devices'
// latest positions.
func (m *Monitor) handleDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, err := m.reg.Device(q.Get("a"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": q.Get("a")})
		return
	}
	b, err := m.reg.Device(q.Get("b"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": q.Get("b")})
		return
	}
	if !a.Record.HasPosition() || !b.Record.HasPosition() {
		writeError(w, http.StatusConflict, "no_position", "both devices need a position", nil)
		return
	}
	meters := geo.HaversineMeters(
		geo.LatLon(*a.Record.Lat, *a.Record.Lon),
		geo.LatLon(*b.Record.Lat, *b.Record.Lon),
	)
	writeJSON(w, http.StatusOK, map[string]any{"a": a.Record.ID, "b": b.Record.ID, "meters": meters})
}

func (m *Monitor) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	m.reg.ResetHistory()
	log.Printf("monitor: history reset")
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) handleGetSampling(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.reg.HistoryConfig())
}

func (m *Monitor) handlePutSampling(w http.ResponseWriter, r *http.Request) {
	cfg := m.reg.HistoryConfig()
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	if cfg.SampleWindowSeconds < 1 || cfg.RetentionHours <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed",
			"sample_window_seconds must be >= 1 and retention_hours > 0",
			map[string]any{"sample_window_seconds": cfg.SampleWindowSeconds, "retention_hours": cfg.RetentionHours})
		return
	}
	m.reg.Reconfigure(cfg)
	log.Printf("monitor: sampling set to %ds buckets, %.1fh retention (%d samples)",
		cfg.SampleWindowSeconds, cfg.RetentionHours, cfg.MaxSamples())
	writeJSON(w, http.StatusOK, cfg)
}

func (m *Monitor) handleGetGeofence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, describeFence(m.Fence()))
}

func (m *Monitor) handlePutGeofence(w http.ResponseWriter, r *http.Request) {
	var body geofenceBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	f := m.Fence()
	ring := f.Ring
	if len(body.Geometry) > 0 {
		parsed, err := geofence.ParseGeoJSON(body.Geometry)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_geometry", err.Error(), nil)
			return
		}
		ring = parsed
	}
	zoom, threshold, enabled := f.Zoom, f.ThresholdMeters, f.Enabled
	if body.Zoom != nil {
		zoom = *body.Zoom
	}
	if body.ThresholdMeters != nil {
		threshold = *body.ThresholdMeters
	}
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	if zoom < 0 || zoom > 24 || threshold < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "zoom must be 0-24 and threshold_m >= 0",
			map[string]any{"zoom": zoom, "threshold_m": threshold})
		return
	}

	next := geofence.NewFence(ring, zoom, threshold, enabled)
	m.SetFence(next)
	log.Printf("monitor: geofence updated (%d vertices, zoom %.1f, %.0fm, alerts %t)",
		len(next.Ring), next.Zoom, next.ThresholdMeters, next.Enabled)
	writeJSON(w, http.StatusOK, describeFence(next))
}

func describeFence(f geofence.Fence) geofenceBody {
	geometry, err := json.Marshal(f.Geometry())
	if err != nil {
		geometry = nil
	}
	c := f.Center()
	area := geo.AreaSquareMeters(f.Ring)
	return geofenceBody{
		Enabled:         &f.Enabled,
		Zoom:            &f.Zoom,
		ThresholdMeters: &f.ThresholdMeters,
		Geometry:        geometry,
		Center:          &[2]float64{c.Lat(), c.Lon()},
		AreaSquareM:     &area,
	}
}

func (m *Monitor) handleExport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		histories := m.reg.Histories()
		name := fmt.Sprintf("ranch_history_%s.%s", m.clock.Now().UTC().Format("20060102_150405"), format)

		var buf bytes.Buffer
		var err error
		var contentType string
		switch format {
		case "csv":
			contentType = "text/csv; charset=utf-8"
			err = export.WriteCSV(&buf, histories)
		case "kml":
			contentType = "application/vnd.google-earth.kml+xml"
			err = export.WriteKML(&buf, histories, m.clock.Now())
		case "xlsx":
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			err = export.WriteXLSX(&buf, histories)
		}
		if err != nil {
			log.Printf("monitor: %s export failed: %v", format, err)
			writeError(w, http.StatusInternalServerError, "export_failed", "failed to build export", map[string]any{"format": format})
			return
		}

		metrics.IncExport(format)
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buf.Bytes()); err != nil {
			log.Printf("monitor: export write error: %v", err)
		}
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	id := chi.URLParam(r, "id")
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "device not found", map[string]any{"id": id})
		return
	}
	log.Printf("monitor: lookup %s: %v", id, err)
	writeError(w, http.StatusInternalServerError, "internal", "lookup failed", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, apiError{Code: code, Message: message, Details: details})
}
