package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteConnectionEvent records a profile connection transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - address: Device address (e.g., "AA:BB:CC:DD:EE:FF")
//   - profile: Profile name (e.g., "le_audio")
//   - state: Resulting connection state ("connected", "disconnected", ...)
//   - reason: Stack-reported reason code (0 = success)
//
// Example:
//
//	client.WriteConnectionEvent("AA:BB:CC:DD:EE:FF", "a2dp", "connected", 0)
func (c *Client) WriteConnectionEvent(address, profile, state string, reason int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection_events",
		map[string]string{
			"address": address,
			"profile": profile,
		},
		map[string]interface{}{
			"state":  state,
			"reason": reason,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActiveDeviceChange records an active-device slot change for one
// audio direction.
//
// Parameters:
//   - direction: "output" or "input"
//   - address: New active device address ("" when the slot cleared)
//   - profile: Serving profile name ("" when the slot cleared)
func (c *Client) WriteActiveDeviceChange(direction, address, profile string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"active_device",
		map[string]string{
			"direction": direction,
		},
		map[string]interface{}{
			"address": address,
			"profile": profile,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAdapterState records an adapter lifecycle transition.
//
// Parameters:
//   - state: Adapter state name (e.g., "ble_on", "on")
func (c *Client) WriteAdapterState(state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"adapter_state",
		map[string]string{},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePreferenceOutcome records the result of a preferred-audio-profile
// negotiation.
//
// Parameters:
//   - groupID: Coordinated set identifier the request targeted
//   - status: Outcome ("success", "timeout", "rejected", ...)
//   - durationMs: Wall time from request to resolution
func (c *Client) WritePreferenceOutcome(groupID int, status string, durationMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"preference_requests",
		map[string]string{
			"status": status,
		},
		map[string]interface{}{
			"group_id":    groupID,
			"duration_ms": durationMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
