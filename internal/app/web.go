package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/abril-student/ranch-monitoring/internal/config"
	"github.com/abril-student/ranch-monitoring/internal/feed"
	"github.com/abril-student/ranch-monitoring/internal/geofence"
	"github.com/abril-student/ranch-monitoring/internal/history"
	"github.com/abril-student/ranch-monitoring/internal/metrics"
	"github.com/abril-student/ranch-monitoring/internal/registry"
	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

// RunWeb runs the ranch monitor: it follows the collar feed, keeps the
// device registry, evaluates the geofence on every render and serves the
// HTTP API and websocket on WEB_SERVER_PORT.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	metrics.Init()

	fence, err := fenceFromConfig(cfg)
	if err != nil {
		return err
	}

	// 1) Connect to MQTT broker; alerts are published there and, when
	// FEED_MQTT is set, packets are taken from it too.
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMonitor).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Registry and monitor
	reg := registry.New(
		registry.WithHistory(history.Config{
			SampleWindowSeconds: cfg.SampleWindowSeconds,
			RetentionHours:      cfg.RetentionHours,
		}),
		registry.WithTrail(cfg.TrailWindow(), cfg.TrailMaxPoints),
	)
	var sinks []geofence.Sink
	if cfg.TopicAlerts != "" {
		sinks = append(sinks, geofence.NewMQTTSink(client, cfg.TopicAlerts))
	}
	mon := NewMonitor(reg, fence, timeutil.RealClock{}, cfg.RenderDelay(), sinks...)
	defer mon.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 3) Feed: polled source, pushed packets, or both
	if cfg.FeedMQTT {
		sub := feed.NewSubscriber(client, cfg.TopicPackets, mon.Ingest)
		if err := sub.Start(); err != nil {
			return err
		}
		defer sub.Stop()
	}
	if src := sourceFromConfig(cfg); src != nil {
		poller := feed.NewPoller(timedSource{src}, cfg.PollEvery(), mon.Ingest)
		go mon.Follow(ctx, poller)
	} else if !cfg.FeedMQTT {
		log.Println("monitor: no feed configured")
		mon.SeedDemo()
	}

	// 4) HTTP API, websocket and static files from ./web
	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	srv := &http.Server{Addr: addr, Handler: mon.Routes()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("monitor: web server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("monitor: shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func fenceFromConfig(cfg *config.Config) (geofence.Fence, error) {
	ring := geofence.RanchRing
	if cfg.GeofenceFile != "" {
		loaded, err := geofence.LoadGeoJSON(cfg.GeofenceFile)
		if err != nil {
			return geofence.Fence{}, fmt.Errorf("load geofence: %w", err)
		}
		ring = loaded
		log.Printf("monitor: geofence loaded from %s (%d vertices)", cfg.GeofenceFile, len(ring))
	}
	return geofence.NewFence(ring, cfg.GeofenceZoom, cfg.FenceMeters, cfg.GeofenceEnabled), nil
}

func sourceFromConfig(cfg *config.Config) feed.Source {
	switch {
	case cfg.FeedURL != "":
		return feed.NewHTTPSource(cfg.FeedURL)
	case cfg.FeedFile != "":
		return feed.FileSource{Path: cfg.FeedFile}
	}
	return nil
}

// timedSource records every fetch in the poll metrics.
type timedSource struct {
	feed.Source
}

func (s timedSource) Fetch(ctx context.Context) ([]feed.Record, error) {
	start := time.Now()
	records, err := s.Source.Fetch(ctx)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObservePoll(result, time.Since(start))
	return records, err
}
