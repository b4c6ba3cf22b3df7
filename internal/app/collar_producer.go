package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/abril-student/ranch-monitoring/internal/config"
	"github.com/abril-student/ranch-monitoring/internal/gps"
)

// publisher is the part of an MQTT client the collar needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Collar accumulates NMEA from the GPS and turns it into packets. Reading
// and sending run on different goroutines.
type Collar struct {
	id      string
	battery *float64

	mu  sync.Mutex
	acc gps.Accumulator
}

// NewCollar creates a Collar reporting as id. battery is the fixed bat_v
// reading, nil when unknown.
func NewCollar(id string, battery *float64) *Collar {
	return &Collar{id: id, battery: battery}
}

// Feed stores one NMEA line. Noise and partial sentences are ignored.
func (c *Collar) Feed(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// noisy GPS or partial sentences; too chatty to log
	_, _ = c.acc.Feed(line)
}

// Packet encodes the current packet. ok is false while there is no valid fix.
func (c *Collar) Packet() ([]byte, bool, error) {
	c.mu.Lock()
	p, ok := c.acc.Packet(c.id, c.battery)
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, false, fmt.Errorf("marshal packet: %w", err)
	}
	return payload, true, nil
}

// ReadFrom feeds every line of r until it fails.
func (c *Collar) ReadFrom(r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			c.Feed(line)
		}
		if err != nil {
			return err
		}
	}
}

// Send publishes the current packet to topic. It returns false without
// publishing while there is no fix.
func (c *Collar) Send(client publisher, topic string) (bool, error) {
	payload, ok, err := c.Packet()
	if err != nil || !ok {
		return false, err
	}
	token := client.Publish(topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		return false, token.Error()
	}
	return true, nil
}

// RunCollarProducer opens the GPS serial port, keeps the latest RMC and GGA
// and publishes one packet per COLLAR_SEND_INTERVAL to TOPIC_PACKETS.
func RunCollarProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	// ---- 1) Connect to MQTT broker ----
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDCollar).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("collar: connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 2) Open GPS serial port ----
	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("collar: GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	collar := NewCollar(cfg.CollarID, cfg.CollarBatteryVolts)
	readErr := make(chan error, 1)
	go func() { readErr <- collar.ReadFrom(port) }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- 3) Publish on the send interval ----
	ticker := time.NewTicker(cfg.SendEvery())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("collar: shutting down")
			return nil
		case err := <-readErr:
			log.Printf("collar: GPS read error: %v", err)
			return err
		case <-ticker.C:
			sent, err := collar.Send(client, cfg.TopicPackets)
			switch {
			case err != nil:
				log.Printf("collar: publish error: %v", err)
			case !sent:
				log.Println("collar: no GPS fix yet, skipping send")
			default:
				log.Printf("collar: published packet to %s", cfg.TopicPackets)
			}
		}
	}
}
