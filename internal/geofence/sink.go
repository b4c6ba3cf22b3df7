package geofence

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Sink receives geofence alerts.
type Sink interface {
	Notify(a Alert)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Alert)

// Notify calls f.
func (f SinkFunc) Notify(a Alert) { f(a) }

// LogSink writes alerts to the standard logger.
type LogSink struct{}

// Notify logs a.
func (LogSink) Notify(a Alert) {
	log.Printf("geofence: %s %s -> %s", a.DeviceID, a.Previous, a.Status)
}

// MultiSink fans alerts out to several sinks in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink, skipping nil entries.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify forwards a to every sink.
func (m *MultiSink) Notify(a Alert) {
	if m == nil {
		return
	}
	for _, s := range m.sinks {
		s.Notify(a)
	}
}

// Publisher is the part of an MQTT client MQTTSink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes alerts as JSON on a topic.
type MQTTSink struct {
	client  Publisher
	topic   string
	timeout time.Duration
}

// NewMQTTSink publishes to topic through client.
func NewMQTTSink(client Publisher, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, timeout: 5 * time.Second}
}

// Notify hands a to the client and returns without waiting for the
// broker; the outcome is logged from a separate goroutine.
func (s *MQTTSink) Notify(a Alert) {
	token, err := s.send(a)
	if err != nil {
		log.Printf("geofence: %v", err)
		return
	}
	go func() {
		if err := s.await(a, token); err != nil {
			log.Printf("geofence: %v", err)
		}
	}()
}

func (s *MQTTSink) publish(a Alert) error {
	token, err := s.send(a)
	if err != nil {
		return err
	}
	return s.await(a, token)
}

func (s *MQTTSink) send(a Alert) (mqtt.Token, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal alert: %w", err)
	}
	return s.client.Publish(s.topic, 1, false, payload), nil
}

func (s *MQTTSink) await(a Alert, token mqtt.Token) error {
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish alert for %s: timed out", a.DeviceID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish alert for %s: %w", a.DeviceID, err)
	}
	return nil
}
