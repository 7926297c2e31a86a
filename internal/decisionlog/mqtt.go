package decisionlog

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the subset of the MQTT client the publisher needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTPublisher publishes each event as JSON to a per-type topic.
type MQTTPublisher struct {
	client Publisher
	topic  func(eventType string) string
	qos    byte
}

var _ Writer = (*MQTTPublisher)(nil)

// NewMQTTPublisher creates a publisher.
//
// Parameters:
//   - client: Connected MQTT client
//   - topic: Builds the topic for an event type, e.g. mqtt.Topics{}.Decision
//   - qos: Delivery QoS (0-2)
func NewMQTTPublisher(client Publisher, topic func(eventType string) string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

// Write implements Writer.
func (p *MQTTPublisher) Write(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling decision event: %w", err)
	}
	topic := p.topic(string(e.Type))
	if err := p.client.Publish(topic, payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}
