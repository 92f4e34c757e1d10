// Package mqtt provides MQTT client connectivity for the parcel bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees and packet identifiers
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) on the status topic
//   - Topic name and filter validation and matching
//
// # Architecture
//
//	parcel bridge ↔ MQTT broker ↔ parcel backend
//
// The bridge publishes parcel records and lookup requests on the outbound
// topic and consumes backend actions from the inbound topic. Online/offline
// status is retained on a separate status topic.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.MQTT.Topics.Inbound, 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	id, err := client.PublishWithID(cfg.MQTT.Topics.Outbound, payload, 1, false)
package mqtt
