package geofence

import (
	"time"

	"github.com/google/uuid"

	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

// Alert records one status transition of a device.
type Alert struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"device_id"`
	Status   Status    `json:"status"`
	Previous Status    `json:"previous"`
	At       time.Time `json:"at"`
}

// Transition is a change in the status a device was last alerted at.
type Transition struct {
	DeviceID string
	Previous Status
	Status   Status
}

// Step compares the last alerted status with a fresh evaluation and
// reports the transition, if any.
func Step(id string, last, next Status) (Transition, bool) {
	if last == next {
		return Transition{}, false
	}
	return Transition{DeviceID: id, Previous: last, Status: next}, true
}

// Alerter turns transitions into alerts and hands them to a sink. It keeps
// no per-device state; the caller owns the last alerted status.
type Alerter struct {
	sink  Sink
	clock timeutil.Clock
}

// NewAlerter creates an Alerter delivering to sink. A nil sink only builds
// alerts.
func NewAlerter(sink Sink, clock timeutil.Clock) *Alerter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Alerter{sink: sink, clock: clock}
}

// Raise builds the alert for tr and delivers it.
func (a *Alerter) Raise(tr Transition) Alert {
	alert := Alert{
		ID:       uuid.NewString(),
		DeviceID: tr.DeviceID,
		Status:   tr.Status,
		Previous: tr.Previous,
		At:       a.clock.Now(),
	}
	if a.sink != nil {
		a.sink.Notify(alert)
	}
	return alert
}
