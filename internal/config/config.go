package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDCollar   string
	MQTTClientIDMonitor  string
	MQTTClientIDConsole  string
	MQTTClientIDReceiver string

	// Topics
	TopicPackets string
	TopicAlerts  string

	// Feed: polled over HTTP or from a file, and/or pushed over MQTT
	FeedURL      string
	FeedFile     string
	FeedMQTT     bool
	PollInterval int // milliseconds

	// Monitor
	RenderDebounce int // milliseconds
	WebServerPort  int

	// Receiver
	ReceiverPort int
	DataFile     string

	// History and trail
	SampleWindowSeconds int
	RetentionHours      float64
	TrailWindowMinutes  int
	TrailMaxPoints      int

	// Geofence
	GeofenceEnabled bool
	GeofenceFile    string // GeoJSON; empty uses the built-in paddock
	GeofenceZoom    float64
	FenceMeters     float64

	// Collar
	GPSSerialPort      string
	GPSBaudRate        int
	CollarID           string
	CollarSendInterval int      // milliseconds
	CollarBatteryVolts *float64 // fixed reading until a fuel gauge is wired

	// Simulated herd
	SimDevices      int
	SimRadiusMeters float64
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys a file leaves unset.
func Default() *Config {
	return &Config{
		MQTTClientIDCollar:   "ranch-collar",
		MQTTClientIDMonitor:  "ranch-monitor",
		MQTTClientIDConsole:  "ranch-console",
		MQTTClientIDReceiver: "ranch-receiver",

		TopicPackets: "ranch/packets",
		TopicAlerts:  "ranch/alerts",

		PollInterval:   5000,
		RenderDebounce: 300,
		WebServerPort:  8080,
		ReceiverPort:   8081,
		DataFile:       "data.json",

		SampleWindowSeconds: 300,
		RetentionHours:      24,
		TrailWindowMinutes:  10,
		TrailMaxPoints:      300,

		GeofenceZoom: 18,
		FenceMeters:  25,

		GPSSerialPort:      "/dev/serial0",
		GPSBaudRate:        9600,
		CollarID:           "1",
		CollarSendInterval: 60000,

		SimDevices:      3,
		SimRadiusMeters: 30,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_COLLAR":
		c.MQTTClientIDCollar = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_RECEIVER":
		c.MQTTClientIDReceiver = value

	// Topics
	case "TOPIC_PACKETS":
		c.TopicPackets = value
	case "TOPIC_ALERTS":
		c.TopicAlerts = value

	// Feed
	case "FEED_URL":
		c.FeedURL = value
	case "FEED_FILE":
		c.FeedFile = value
	case "FEED_MQTT":
		c.FeedMQTT, err = parseBool(key, value)
	case "POLL_INTERVAL":
		c.PollInterval, err = parseInt(key, value, 100, 3600000)

	// Monitor
	case "RENDER_DEBOUNCE":
		c.RenderDebounce, err = parseInt(key, value, 1, 60000)
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	// Receiver
	case "RECEIVER_PORT":
		c.ReceiverPort, err = parseInt(key, value, 1, 65535)
	case "DATA_FILE":
		c.DataFile = value

	// History and trail
	case "SAMPLE_WINDOW_SECONDS":
		c.SampleWindowSeconds, err = parseInt(key, value, 1, 86400)
	case "RETENTION_HOURS":
		c.RetentionHours, err = parseFloat(key, value, 0, 24*365)
	case "TRAIL_WINDOW_MINUTES":
		c.TrailWindowMinutes, err = parseInt(key, value, 1, 24*60)
	case "TRAIL_MAX_POINTS":
		c.TrailMaxPoints, err = parseInt(key, value, 1, 100000)

	// Geofence
	case "GEOFENCE_ENABLED":
		c.GeofenceEnabled, err = parseBool(key, value)
	case "GEOFENCE_FILE":
		c.GeofenceFile = value
	case "GEOFENCE_ZOOM":
		c.GeofenceZoom, err = parseFloat(key, value, 0, 24)
	case "FENCE_METERS":
		c.FenceMeters, err = parseFloat(key, value, 0, 10000)

	// Collar
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value, 300, 921600)
	case "COLLAR_ID":
		c.CollarID = value
	case "COLLAR_SEND_INTERVAL":
		c.CollarSendInterval, err = parseInt(key, value, 100, 86400000)
	case "COLLAR_BATTERY_VOLTS":
		var v float64
		v, err = parseFloat(key, value, 0, 5)
		c.CollarBatteryVolts = &v

	// Simulated herd
	case "SIM_DEVICES":
		c.SimDevices, err = parseInt(key, value, 1, 1000)
	case "SIM_RADIUS_METERS":
		c.SimRadiusMeters, err = parseFloat(key, value, 0, 100000)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string, min, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

func parseFloat(key, value string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %g-%g, got %g", key, min, max, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicPackets == "" {
		return fmt.Errorf("TOPIC_PACKETS is required")
	}
	if c.FeedURL != "" && c.FeedFile != "" {
		return fmt.Errorf("FEED_URL and FEED_FILE are mutually exclusive")
	}
	if c.CollarID == "" {
		return fmt.Errorf("COLLAR_ID is required")
	}
	return nil
}

// HasPolledFeed reports whether a polled feed source is configured.
func (c *Config) HasPolledFeed() bool {
	return c.FeedURL != "" || c.FeedFile != ""
}

// PollEvery is POLL_INTERVAL as a duration.
func (c *Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// RenderDelay is RENDER_DEBOUNCE as a duration.
func (c *Config) RenderDelay() time.Duration {
	return time.Duration(c.RenderDebounce) * time.Millisecond
}

// TrailWindow is TRAIL_WINDOW_MINUTES as a duration.
func (c *Config) TrailWindow() time.Duration {
	return time.Duration(c.TrailWindowMinutes) * time.Minute
}

// SendEvery is COLLAR_SEND_INTERVAL as a duration.
func (c *Config) SendEvery() time.Duration {
	return time.Duration(c.CollarSendInterval) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
