// Package telemetry provides InfluxDB metric recording for bluecore.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched writes of coordination telemetry
//   - Connection health monitoring
//
// # Measurements
//
//   - connection_events: per-device-profile connection transitions
//   - active_device: active-device slot changes per audio direction
//   - adapter_state: adapter lifecycle transitions
//   - preference_requests: preferred-audio-profile negotiation outcomes
//
// # Usage
//
//	tsdb, err := telemetry.Connect(cfg.InfluxDB)
//	if err != nil {
//	    // telemetry is optional; log and continue
//	}
//	defer tsdb.Close()
//
//	tsdb.WriteConnectionEvent("AA:BB:CC:DD:EE:FF", "le_audio", "connected", 0)
//
// Telemetry is strictly fire-and-forget: all writers silently no-op when
// the client is disconnected, so call sites never branch on availability.
package telemetry
