// Copyright (c) 2026 The Ranch Monitoring Authors
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package registry is the in-memory store of every tracked device: its
// merged latest record, sampled history, live trail and fence status.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/abril-student/ranch-monitoring/internal/geofence"
	"github.com/abril-student/ranch-monitoring/internal/history"
	"github.com/abril-student/ranch-monitoring/internal/telemetry"
	"github.com/abril-student/ranch-monitoring/internal/timeutil"
	"github.com/abril-student/ranch-monitoring/internal/trail"
)

// ErrNotFound is returned for operations on an unknown device.
var ErrNotFound = errors.New("registry: device not found")

type entry struct {
	last    telemetry.Record
	history history.Log
	trail   *trail.Buffer
	fence   geofence.Status
	alerted geofence.Status
}

// Device is a point-in-time view of one entry.
type Device struct {
	Record      telemetry.Record `json:"last"`
	Fence       geofence.Status  `json:"fence"`
	Samples     int              `json:"samples"`
	TrailPoints int              `json:"trail_points"`
}

// Registry serializes every operation behind one mutex.
type Registry struct {
	mu          sync.Mutex
	entries     map[string]*entry
	cfg         history.Config
	trailWindow time.Duration
	trailMax    int
	clock       timeutil.Clock
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for default timestamps and trail pruning.
func WithClock(c timeutil.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithHistory sets the initial sampling configuration.
func WithHistory(cfg history.Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithTrail sets the live trail bounds.
func WithTrail(window time.Duration, maxPoints int) Option {
	return func(r *Registry) {
		r.trailWindow = window
		r.trailMax = maxPoints
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:     make(map[string]*entry),
		cfg:         history.DefaultConfig(),
		trailWindow: trail.DefaultWindow,
		trailMax:    trail.DefaultMaxPoints,
		clock:       timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert ingests one feed record. Raw collar packets are normalized first;
// fallbackID names the device when the record carries no id. It returns the
// merged latest record and false when the record had no usable identity.
func (r *Registry) Upsert(raw map[string]any, fallbackID string) (telemetry.Record, bool) {
	now := r.clock.Now()
	rec, ok := telemetry.Decode(raw, fallbackID, now)
	if !ok {
		return telemetry.Record{}, false
	}
	return r.upsert(rec, now), true
}

// UpsertRecord ingests an already canonical record.
func (r *Registry) UpsertRecord(rec telemetry.Record) (telemetry.Record, bool) {
	rec.ID = telemetry.NormalizeID(rec.ID)
	if rec.ID == "" {
		return telemetry.Record{}, false
	}
	return r.upsert(rec, r.clock.Now()), true
}

func (r *Registry) upsert(rec telemetry.Record, now time.Time) telemetry.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[rec.ID]
	if !ok {
		e = &entry{
			trail:   trail.New(r.trailWindow, r.trailMax),
			fence:   geofence.StatusOK,
			alerted: geofence.StatusOK,
		}
		r.entries[rec.ID] = e
	}

	e.last = telemetry.Merge(e.last, rec.Clone())
	// The trail sees the merged timestamp before it is defaulted, so a
	// packet without one is placed at the current time.
	e.trail.Push(e.last.Lat, e.last.Lon, e.last.Timestamp, now)
	if e.last.Timestamp == nil {
		e.last.Timestamp = telemetry.Int64(now.Unix())
	}
	e.history.Sample(e.last, r.cfg)
	return e.last.Clone()
}

// Delete removes every piece of state kept for id, alert memory included.
func (r *Registry) Delete(id string) error {
	id = telemetry.NormalizeID(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return ErrNotFound
	}
	delete(r.entries, id)
	return nil
}

// Reconfigure installs a new sampling configuration and clears every
// device's history and bucket memory so the next packet commits.
func (r *Registry) Reconfigure(cfg history.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	for _, e := range r.entries {
		e.history.Reset()
	}
}

// ResetHistory clears histories and bucket memory, keeping the configuration.
func (r *Registry) ResetHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.history.Reset()
	}
}

// HistoryConfig returns the active sampling configuration.
func (r *Registry) HistoryConfig() history.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Last returns the merged latest record of id.
func (r *Registry) Last(id string) (telemetry.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[telemetry.NormalizeID(id)]
	if !ok {
		return telemetry.Record{}, false
	}
	return e.last.Clone(), true
}

// Device returns the view of one device.
func (r *Registry) Device(id string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[telemetry.NormalizeID(id)]
	if !ok {
		return Device{}, ErrNotFound
	}
	return e.view(), nil
}

// Devices lists every device, most recently heard first, ties by id.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	out := make([]Device, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.view())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := stamp(out[i].Record), stamp(out[j].Record)
		if ti != tj {
			return ti > tj
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out
}

// History returns the sampled history of id, oldest first.
func (r *Registry) History(id string) ([]telemetry.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[telemetry.NormalizeID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return e.history.Samples(), nil
}

// Trail returns the live trail of id, oldest first.
func (r *Registry) Trail(id string) ([]trail.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[telemetry.NormalizeID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return e.trail.Points(), nil
}

// Histories returns every device's full history keyed by id.
func (r *Registry) Histories() map[string][]telemetry.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]telemetry.Record, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.history.Samples()
	}
	return out
}

// Evaluation is the outcome of one fence pass over every device.
type Evaluation struct {
	Statuses    map[string]geofence.Status
	Transitions []geofence.Transition // sorted by device id
}

// EvaluateFences classifies every device's latest position against f and
// stores the result on the entry. With alerting enabled it also compares
// each status with the one the device was last alerted at and returns the
// changes; with alerting off every device's alert memory goes back to ok.
func (r *Registry) EvaluateFences(f geofence.Fence) Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := Evaluation{Statuses: make(map[string]geofence.Status, len(r.entries))}
	for id, e := range r.entries {
		e.fence = f.Evaluate(e.last.Lat, e.last.Lon)
		ev.Statuses[id] = e.fence
		if !f.Enabled {
			e.alerted = geofence.StatusOK
			continue
		}
		if tr, changed := geofence.Step(id, e.alerted, e.fence); changed {
			e.alerted = e.fence
			ev.Transitions = append(ev.Transitions, tr)
		}
	}
	sort.Slice(ev.Transitions, func(i, j int) bool {
		return ev.Transitions[i].DeviceID < ev.Transitions[j].DeviceID
	})
	return ev
}

// Len is the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (e *entry) view() Device {
	return Device{
		Record:      e.last.Clone(),
		Fence:       e.fence,
		Samples:     e.history.Len(),
		TrailPoints: e.trail.Len(),
	}
}

func stamp(r telemetry.Record) int64 {
	if r.Timestamp == nil {
		return 0
	}
	return *r.Timestamp
}
