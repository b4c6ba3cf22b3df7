package feed

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient is the part of a paho client the Subscriber needs.
type MQTTClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Subscriber takes packets pushed on an MQTT topic. Payloads may hold one
// JSON object or several NDJSON lines. When the topic has a trailing level
// below the subscribed prefix (ranch/packets/VAC-001), it names the device
// for packets without an id.
type Subscriber struct {
	client MQTTClient
	topic  string
	handle Handler
}

// NewSubscriber creates a Subscriber for topic.
func NewSubscriber(client MQTTClient, topic string, handle Handler) *Subscriber {
	return &Subscriber{client: client, topic: topic, handle: handle}
}

// Start subscribes to the topic and to every device subtopic below it.
func (s *Subscriber) Start() error {
	for _, t := range s.topics() {
		token := s.client.Subscribe(t, 1, s.onMessage)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("subscribe %s: timed out", t)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
		Logf("feed: subscribed to %s", t)
	}
	return nil
}

// Stop unsubscribes.
func (s *Subscriber) Stop() {
	token := s.client.Unsubscribe(s.topics()...)
	token.WaitTimeout(2 * time.Second)
}

func (s *Subscriber) topics() []string {
	return []string{s.topic, strings.TrimSuffix(s.topic, "/") + "/+"}
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.Deliver(msg.Topic(), msg.Payload())
}

// Deliver decodes payload received on topic and hands the records over.
func (s *Subscriber) Deliver(topic string, payload []byte) {
	records, err := Decode(payload)
	if err != nil {
		Logf("feed: bad payload on %s: %v", topic, err)
		return
	}
	fallback := s.deviceFromTopic(topic)
	for _, rec := range records {
		s.handle(rec, fallback)
	}
}

func (s *Subscriber) deviceFromTopic(topic string) string {
	prefix := strings.TrimSuffix(s.topic, "/") + "/"
	if !strings.HasPrefix(topic, prefix) {
		return ""
	}
	rest := topic[len(prefix):]
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
