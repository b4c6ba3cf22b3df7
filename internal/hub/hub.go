// Package hub fans monitor events out to websocket clients.
package hub

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event kinds pushed to clients.
const (
	KindSnapshot = "snapshot"
	KindAlert    = "alert"
)

// Message is one event as sent on the wire.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	writeWait   = 10 * time.Second
	clientQueue = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // monitor runs on the ranch LAN
	},
}

// Hub broadcasts messages to subscribers. Slow subscribers miss messages
// instead of stalling the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Message]struct{}

	// Snapshot, when set, supplies the first message for new websocket
	// clients so they do not wait for the next render.
	Snapshot func() Message
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[chan Message]struct{})}
}

// Broadcast offers m to every subscriber without blocking.
func (h *Hub) Broadcast(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// Subscribe registers a listener. The channel is closed once ctx ends.
func (h *Hub) Subscribe(ctx context.Context, buffer int) <-chan Message {
	ch := make(chan Message, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

// Clients is the number of live subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a websocket and streams messages until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	msgs := h.Subscribe(ctx, clientQueue)

	// Clients only listen; reading detects when they close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if h.Snapshot != nil {
		if err := write(conn, h.Snapshot()); err != nil {
			return
		}
	}
	for m := range msgs {
		if err := write(conn, m); err != nil {
			log.Printf("hub: websocket write error: %v", err)
			return
		}
	}
}

func write(conn *websocket.Conn, m Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}
