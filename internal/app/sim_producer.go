package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/abril-student/ranch-monitoring/internal/config"
	"github.com/abril-student/ranch-monitoring/internal/gps"
	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

// PublishSimulated sends one packet per simulated animal to topic and
// returns how many went out.
func PublishSimulated(client publisher, topic string, sim *gps.Simulator) (int, error) {
	sent := 0
	for _, p := range sim.Next() {
		payload, err := json.Marshal(p)
		if err != nil {
			return sent, fmt.Errorf("marshal packet: %w", err)
		}
		token := client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			return sent, token.Error()
		}
		sent++
	}
	return sent, nil
}

// RunSimProducer publishes packets for a simulated herd grazing inside the
// configured fence, for running the monitor without collars.
func RunSimProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	fence, err := fenceFromConfig(cfg)
	if err != nil {
		return err
	}

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDCollar + "-sim")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("sim: connected to MQTT broker at %s", cfg.MQTTBroker)

	sim := gps.NewSimulator(fence.Center(), cfg.SimRadiusMeters, cfg.SimDevices, timeutil.RealClock{})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(cfg.SendEvery())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("sim: shutting down")
			return nil
		case t := <-ticker.C:
			n, err := PublishSimulated(client, cfg.TopicPackets, sim)
			if err != nil {
				log.Printf("sim: publish error: %v", err)
				continue
			}
			log.Printf("%s published %d simulated packets", t.Format(time.RFC3339), n)
		}
	}
}
