package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesSubscribers(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.Subscribe(ctx, 1)
	b := h.Subscribe(ctx, 1)
	h.Broadcast(Message{Type: KindAlert, Data: "x"})

	assert.Equal(t, KindAlert, (<-a).Type)
	assert.Equal(t, KindAlert, (<-b).Type)
}

func TestBroadcastDropsForSlowSubscriber(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Subscribe(ctx, 1)
	h.Broadcast(Message{Type: "first"})
	h.Broadcast(Message{Type: "second"})

	assert.Equal(t, "first", (<-ch).Type)
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %q", m.Type)
	default:
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx, 1)
	require.Equal(t, 1, h.Clients())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, h.Clients())
}

func TestServeHTTPStreamsSnapshotThenBroadcasts(t *testing.T) {
	h := New()
	h.Snapshot = func() Message { return Message{Type: KindSnapshot, Data: []string{"VAC-001"}} }
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, KindSnapshot, first.Type)

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	h.Broadcast(Message{Type: KindAlert, Data: map[string]string{"device_id": "VAC-001"}})

	var next Message
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, KindAlert, next.Type)

	conn.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
