package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/abril-student/ranch-monitoring/internal/config"
	"github.com/abril-student/ranch-monitoring/internal/feed"
	"github.com/abril-student/ranch-monitoring/internal/geofence"
	"github.com/abril-student/ranch-monitoring/internal/telemetry"
)

func age(then, now time.Time) string {
	return humanize.RelTime(then, now, "ago", "from now")
}

func optional(v *float64, format string) string {
	if v == nil {
		return "NA"
	}
	return fmt.Sprintf(format, *v)
}

// FormatPacket renders one collar packet as a console line.
func FormatPacket(rec telemetry.Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[PKT ] %-8s lat=%s lon=%s",
		rec.ID, optional(rec.Lat, "%.6f"), optional(rec.Lon, "%.6f"))
	fmt.Fprintf(&b, " sats=%s hdop=%s kmh=%s",
		optional(rec.Sats, "%.0f"), optional(rec.HDOP, "%.1f"), optional(rec.Kmh, "%.1f"))

	if pct := telemetry.BatteryPercent(rec.Batt); pct != nil {
		fmt.Fprintf(&b, " batt=%d%%", *pct)
		if telemetry.LowBattery(rec.Batt) {
			b.WriteString(" LOW")
		}
	} else {
		b.WriteString(" batt=NA")
	}
	if rec.FixOK != nil && !*rec.FixOK {
		b.WriteString(" nofix")
	}
	if rec.Timestamp != nil {
		fmt.Fprintf(&b, " (%s)", age(time.Unix(*rec.Timestamp, 0), now))
	}
	return b.String()
}

// FormatAlert renders one geofence alert as a console line.
func FormatAlert(a geofence.Alert, now time.Time) string {
	return fmt.Sprintf("[ALRT] %-8s %s -> %s (%s)",
		a.DeviceID, strings.ToUpper(string(a.Previous)), strings.ToUpper(string(a.Status)), age(a.At, now))
}

// RunConsole prints collar packets and geofence alerts as they arrive.
func RunConsole() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Packets, decoded the same way the monitor does
	packets := feed.NewSubscriber(client, cfg.TopicPackets, func(raw feed.Record, fallbackID string) {
		now := time.Now()
		rec, ok := telemetry.Decode(raw, fallbackID, now)
		if !ok {
			log.Printf("console: packet without id")
			return
		}
		fmt.Println(FormatPacket(rec, now))
	})
	if err := packets.Start(); err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", cfg.TopicPackets)

	// Alerts
	alertToken := client.Subscribe(cfg.TopicAlerts, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var a geofence.Alert
		if err := json.Unmarshal(msg.Payload(), &a); err != nil {
			log.Printf("console: alert unmarshal error: %v", err)
			return
		}
		fmt.Println(FormatAlert(a, time.Now()))
	})
	alertToken.Wait()
	if alertToken.Error() != nil {
		return alertToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicAlerts)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	packets.Stop()
	client.Disconnect(250)
	return nil
}
