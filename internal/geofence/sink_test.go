package geofence

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return doneToken{err: p.err}
}

func TestMultiSink(t *testing.T) {
	var a, b int
	m := NewMultiSink(SinkFunc(func(Alert) { a++ }), nil, SinkFunc(func(Alert) { b++ }))
	m.Notify(Alert{DeviceID: "X"})
	m.Notify(Alert{DeviceID: "Y"})
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)

	var nilSink *MultiSink
	assert.NotPanics(t, func() { nilSink.Notify(Alert{}) })
}

func TestMQTTSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTTSink(pub, "ranch/alerts")
	at := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	s.Notify(Alert{ID: "1", DeviceID: "VAC-001", Status: StatusOut, Previous: StatusEdge, At: at})

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "ranch/alerts", pub.topics[0])

	var got Alert
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "VAC-001", got.DeviceID)
	assert.Equal(t, StatusOut, got.Status)
	assert.Equal(t, StatusEdge, got.Previous)
	assert.True(t, at.Equal(got.At))
}

type stuckToken struct{ doneToken }

func (stuckToken) WaitTimeout(d time.Duration) bool {
	time.Sleep(d)
	return false
}

type stuckPublisher struct{ calls int }

func (p *stuckPublisher) Publish(string, byte, bool, interface{}) mqtt.Token {
	p.calls++
	return stuckToken{}
}

func TestMQTTSinkNotifyDoesNotWaitForBroker(t *testing.T) {
	pub := &stuckPublisher{}
	s := NewMQTTSink(pub, "ranch/alerts")
	s.timeout = 50 * time.Millisecond

	start := time.Now()
	s.Notify(Alert{DeviceID: "VAC-001", Status: StatusOut})
	assert.Less(t, time.Since(start), s.timeout)
	assert.Equal(t, 1, pub.calls)

	err := s.publish(Alert{DeviceID: "VAC-001"})
	assert.ErrorContains(t, err, "timed out")
}

func TestMQTTSinkReportsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	s := NewMQTTSink(pub, "ranch/alerts")
	err := s.publish(Alert{DeviceID: "VAC-001"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "not connected")
}
