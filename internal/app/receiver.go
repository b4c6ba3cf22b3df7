package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"

	"github.com/abril-student/ranch-monitoring/internal/config"
	"github.com/abril-student/ranch-monitoring/internal/feed"
	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

// Receiver appends every collar packet it hears to an NDJSON log and
// serves that log as the monitor's feed.
type Receiver struct {
	path  string
	clock timeutil.Clock
	mu    sync.Mutex
}

// NewReceiver logs to path.
func NewReceiver(path string, clock timeutil.Clock) *Receiver {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Receiver{path: path, clock: clock}
}

// Append stores one packet as a line. Payloads that are not a JSON object
// are rejected.
func (r *Receiver) Append(payload []byte) error {
	rec, err := feed.DecodeObject(payload)
	if err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return r.Store(rec, "")
}

// Handle is the feed.Handler for packets heard over MQTT.
func (r *Receiver) Handle(rec feed.Record, fallbackID string) {
	if err := r.Store(rec, fallbackID); err != nil {
		log.Printf("receiver: dropped packet: %v", err)
		return
	}
	log.Printf("receiver: stored packet in %s", r.path)
}

// Store appends rec stamped with timestamp_local in epoch seconds. A record
// without an id takes fallbackID, the device level of its topic.
func (r *Receiver) Store(rec feed.Record, fallbackID string) error {
	if fallbackID != "" && !hasID(rec) {
		rec["id"] = fallbackID
	}
	rec["timestamp_local"] = float64(r.clock.Now().UnixNano()) / 1e9

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append data file: %w", err)
	}
	return f.Close()
}

// ServeHTTP serves the log. A missing log is an empty array.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	body, err := os.ReadFile(r.path)
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	switch {
	case errors.Is(err, os.ErrNotExist):
		body = []byte("[]")
	case err != nil:
		log.Printf("receiver: read %s: %v", r.path, err)
		http.Error(w, "data file unavailable", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(body); err != nil {
		log.Printf("receiver: write error: %v", err)
	}
}

func hasID(rec feed.Record) bool {
	switch v := rec["id"].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	}
	return true
}

// Routes serves /data.json.
func (r *Receiver) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/data.json", r)
	return mux
}

// RunReceiver subscribes to TOPIC_PACKETS and its per-device subtopics,
// appends every packet to DATA_FILE and serves it on RECEIVER_PORT.
func RunReceiver() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	recv := NewReceiver(cfg.DataFile, timeutil.RealClock{})

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDReceiver).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("receiver: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to packets
	sub := feed.NewSubscriber(client, cfg.TopicPackets, recv.Handle)
	if err := sub.Start(); err != nil {
		return err
	}
	defer sub.Stop()

	// 3) Serve the log
	addr := fmt.Sprintf(":%d", cfg.ReceiverPort)
	srv := &http.Server{Addr: addr, Handler: recv.Routes()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("receiver: serving %s on %s/data.json", cfg.DataFile, addr)
		errCh <- srv.ListenAndServe()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("receiver: shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
