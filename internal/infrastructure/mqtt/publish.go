package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Failures are returned, never queued: a publish attempted while the broker
// is unreachable returns ErrNotConnected and the message is lost.
//
// Example:
//
//	err := client.Publish("topic/esp32_tx", payload, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	_, err := c.PublishWithID(topic, payload, qos, retained)
	return err
}

// PublishWithID is Publish that also returns the packet identifier assigned
// by the client. The identifier is 0 for QoS 0 publishes.
func (c *Client) PublishWithID(topic string, payload []byte, qos byte, retained bool) (uint16, error) {
	if err := ValidatePublishTopic(topic); err != nil {
		return 0, err
	}
	if qos > maxQoS {
		return 0, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return 0, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return 0, fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return messageID(token), nil
}

// PublishRetained publishes a retained message with the configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

func messageID(token pahomqtt.Token) uint16 {
	if pt, ok := token.(*pahomqtt.PublishToken); ok {
		return pt.MessageID()
	}
	return 0
}
