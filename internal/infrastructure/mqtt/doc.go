// Package mqtt provides MQTT client connectivity for bluecore.
//
// This package manages:
//   - Connection to the bridge broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// bluecore uses MQTT as the bridge bus connecting the coordination core
// to the native stack process (HCI transport, GATT, profile wire
// protocols). The broker decouples the core from the stack runtime.
//
//	bluecore core ↔ MQTT Broker ↔ native stack process
//
// The stack publishes HCI-level events (connection state, group nodes,
// bond state, audio configuration) under bluecore/event/ and consumes
// host commands under bluecore/command/.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all stack events
//	err = client.Subscribe(mqtt.Topics{}.AllStackEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a profile command
//	topic := mqtt.Topics{}.ProfileCommand("le_audio", "AA:BB:CC:DD:EE:FF")
//	client.Publish(topic, []byte(`{"op":"connect"}`), 1, false)
package mqtt
