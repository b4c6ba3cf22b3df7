package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/abril-student/ranch-monitoring/internal/feed"
	"github.com/abril-student/ranch-monitoring/internal/geofence"
	"github.com/abril-student/ranch-monitoring/internal/hub"
	"github.com/abril-student/ranch-monitoring/internal/metrics"
	"github.com/abril-student/ranch-monitoring/internal/registry"
	"github.com/abril-student/ranch-monitoring/internal/render"
	"github.com/abril-student/ranch-monitoring/internal/telemetry"
	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

// DemoID is the device seeded when the feed starts out empty.
const DemoID = "VAC-001"

// DeviceView is a device as the API and websocket clients see it.
type DeviceView struct {
	telemetry.Record
	BatteryPct  *int            `json:"battery_pct"`
	LowBattery  bool            `json:"low_battery"`
	Fence       geofence.Status `json:"fence"`
	Samples     int             `json:"samples"`
	TrailPoints int             `json:"trail_points"`
}

func viewOf(d registry.Device) DeviceView {
	return DeviceView{
		Record:      d.Record,
		BatteryPct:  telemetry.BatteryPercent(d.Record.Batt),
		LowBattery:  telemetry.LowBattery(d.Record.Batt),
		Fence:       d.Fence,
		Samples:     d.Samples,
		TrailPoints: d.TrailPoints,
	}
}

// Monitor owns the device registry and everything that reacts to it:
// debounced renders, fence evaluation, alerts and the websocket hub.
type Monitor struct {
	reg     *registry.Registry
	hub     *hub.Hub
	clock   timeutil.Clock
	alerter *geofence.Alerter
	render  *render.Debouncer

	mu    sync.RWMutex
	fence geofence.Fence
}

// NewMonitor wires a Monitor around reg. Alerts go to the log, to websocket
// clients and to every extra sink.
func NewMonitor(reg *registry.Registry, fence geofence.Fence, clock timeutil.Clock, delay time.Duration, sinks ...geofence.Sink) *Monitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	m := &Monitor{
		reg:   reg,
		hub:   hub.New(),
		clock: clock,
		fence: fence,
	}
	all := append([]geofence.Sink{
		geofence.LogSink{},
		geofence.SinkFunc(m.broadcastAlert),
	}, sinks...)
	m.alerter = geofence.NewAlerter(geofence.NewMultiSink(all...), clock)
	m.render = render.NewDebouncer(delay, clock, m.renderNow)
	m.hub.Snapshot = m.snapshot
	return m
}

// Hub is the websocket hub renders are pushed to.
func (m *Monitor) Hub() *hub.Hub { return m.hub }

// Registry is the device registry behind the monitor.
func (m *Monitor) Registry() *registry.Registry { return m.reg }

// Ingest is the feed.Handler for polled and pushed records.
func (m *Monitor) Ingest(rec feed.Record, fallbackID string) {
	_, ok := m.reg.Upsert(rec, fallbackID)
	metrics.IncPacket(ok)
	if ok {
		m.render.Trigger()
	}
}

// Fence returns the active fence.
func (m *Monitor) Fence() geofence.Fence {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fence
}

// SetFence replaces the active fence and schedules a render against it.
// A render with alerts disabled clears every device's alert memory, so
// re-enabling starts from ok.
func (m *Monitor) SetFence(f geofence.Fence) {
	m.mu.Lock()
	m.fence = f
	m.mu.Unlock()
	m.render.Trigger()
}

// Devices lists every device, most recent first.
func (m *Monitor) Devices() []DeviceView {
	devices := m.reg.Devices()
	out := make([]DeviceView, len(devices))
	for i, d := range devices {
		out[i] = viewOf(d)
	}
	return out
}

// Device returns one device view.
func (m *Monitor) Device(id string) (DeviceView, error) {
	d, err := m.reg.Device(id)
	if err != nil {
		return DeviceView{}, err
	}
	return viewOf(d), nil
}

// AddDevice places a device by hand. Without a position it lands on the
// fence centre.
func (m *Monitor) AddDevice(rec telemetry.Record) (DeviceView, error) {
	if rec.Lat == nil || rec.Lon == nil {
		c := m.Fence().Center()
		rec.Lat = telemetry.Float(c.Lat())
		rec.Lon = telemetry.Float(c.Lon())
	}
	stored, ok := m.reg.UpsertRecord(rec)
	if !ok {
		return DeviceView{}, errMissingID
	}
	m.render.Trigger()
	return m.Device(stored.ID)
}

// Delete drops a device and its alert state.
func (m *Monitor) Delete(id string) error {
	if err := m.reg.Delete(id); err != nil {
		return err
	}
	m.render.Trigger()
	return nil
}

// SeedDemo adds the demo collar inside the ranch.
func (m *Monitor) SeedDemo() {
	m.reg.UpsertRecord(telemetry.Record{
		ID:        DemoID,
		Timestamp: telemetry.Int64(m.clock.Now().Unix()),
		Lat:       telemetry.Float(19.2491367),
		Lon:       telemetry.Float(-103.69793845),
		Batt:      telemetry.Float(3.95),
		RSSI:      telemetry.Float(-110),
		SNR:       telemetry.Float(7.5),
		FixOK:     telemetry.Bool(true),
	})
	log.Printf("monitor: feed empty, seeded demo device %s", DemoID)
	m.render.Trigger()
}

// Follow loads the feed once, seeding the demo device when that first load
// is empty, then keeps polling until ctx is done.
func (m *Monitor) Follow(ctx context.Context, p *feed.Poller) {
	n, err := p.Poll(ctx)
	if err != nil {
		log.Printf("monitor: initial poll failed: %v", err)
	}
	if n == 0 && m.reg.Len() == 0 {
		m.SeedDemo()
	}
	p.Run(ctx)
}

// Close stops any pending render.
func (m *Monitor) Close() {
	m.render.Stop()
}

// renderNow evaluates every device against the fence, pushes a snapshot to
// clients and raises an alert for every transition the registry reported.
// The debouncer never runs two of these at once.
func (m *Monitor) renderNow() {
	ev := m.reg.EvaluateFences(m.Fence())

	byStatus := make(map[string]int, 3)
	for _, st := range ev.Statuses {
		byStatus[string(st)]++
	}
	metrics.ObserveRender(len(ev.Statuses), byStatus)
	m.hub.Broadcast(m.snapshot())

	for _, tr := range ev.Transitions {
		m.alerter.Raise(tr)
	}
}

func (m *Monitor) snapshot() hub.Message {
	return hub.Message{Type: hub.KindSnapshot, Data: m.Devices()}
}

func (m *Monitor) broadcastAlert(a geofence.Alert) {
	metrics.IncAlert(string(a.Status))
	m.hub.Broadcast(hub.Message{Type: hub.KindAlert, Data: a})
}
