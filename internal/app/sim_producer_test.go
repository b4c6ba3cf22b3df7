package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abril-student/ranch-monitoring/internal/feed"
	"github.com/abril-student/ranch-monitoring/internal/geofence"
	"github.com/abril-student/ranch-monitoring/internal/gps"
	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

func TestSimulatedHerdStaysInsideRanch(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	fence := geofence.DefaultFence()
	sim := gps.NewSimulator(fence.Center(), 30, 4, clock)
	pub := &recordingPublisher{}

	n, err := PublishSimulated(pub, "ranch/packets", sim)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	m, _, _ := newTestMonitor(t, true)
	sub := feed.NewSubscriber(nil, "ranch/packets", m.Ingest)
	for _, p := range pub.sent {
		assert.False(t, p.retained)
		sub.Deliver(p.topic, p.payload)
	}
	require.Equal(t, 4, m.Registry().Len())
	for id, st := range m.Registry().EvaluateFences(fence).Statuses {
		assert.NotEqual(t, geofence.StatusOut, st, id)
	}

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.sent[0].payload, &raw))
	assert.Equal(t, "SIM-001", raw["id"])
}
