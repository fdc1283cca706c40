package stack

import (
	"encoding/json"
	"fmt"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/profile"
)

// Stack event types. The native stack process publishes one topic per
// type: bluecore/event/<type>.
const (
	EventConnectionStateChanged = "connection_state_changed"
	EventGroupNodeAdded         = "group_node_added"
	EventGroupNodeRemoved       = "group_node_removed"
	EventGroupStatusChanged     = "group_status_changed"
	EventAudioConfChanged       = "audio_conf_changed"
	EventBondStateChanged       = "bond_state_changed"
	EventVolumeChanged          = "volume_changed"
	EventProfileStarted         = "profile_started"
	EventProfileStopped         = "profile_stopped"
)

// Group status values carried by group_status_changed events.
const (
	GroupStatusActive         = "active"
	GroupStatusInactive       = "inactive"
	GroupStatusIdleDuringCall = "idle_during_call"
)

// ConnectionStateChanged reports a profile-level connection transition
// for one device.
type ConnectionStateChanged struct {
	Address string `json:"address"`
	Profile string `json:"profile"`
	State   string `json:"state"`
	Reason  int    `json:"reason"`
}

// GroupNode reports a coordinated-set membership change.
type GroupNode struct {
	Address string `json:"address"`
	GroupID int    `json:"group_id"`
}

// GroupStatusChanged reports a set-level activation transition.
type GroupStatusChanged struct {
	Profile string `json:"profile"`
	GroupID int    `json:"group_id"`
	Status  string `json:"status"`
}

// AudioConfChanged reports a renegotiated audio configuration: the
// directions a device serves and the contexts its group accepts.
type AudioConfChanged struct {
	Address           string `json:"address"`
	GroupID           int    `json:"group_id"`
	Directions        uint8  `json:"directions"`
	AvailableContexts uint16 `json:"available_contexts"`
	AudioLocation     uint32 `json:"audio_location,omitempty"`
}

// BondStateChanged reports a pairing transition.
type BondStateChanged struct {
	Address string `json:"address"`
	State   string `json:"state"`
}

// VolumeChanged reports an absolute volume update from the remote side.
type VolumeChanged struct {
	Address string `json:"address"`
	Volume  int    `json:"volume"`
}

// ProfileLifecycle reports a profile module starting or stopping inside
// the native stack process.
type ProfileLifecycle struct {
	Profile string `json:"profile"`
}

// decode unmarshals an event payload into v with a typed error.
func decode(eventType string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrMalformedEvent, eventType, err)
	}
	return nil
}

// parseConnectionState maps a wire state name to a ConnectionState.
func parseConnectionState(s string) (profile.ConnectionState, error) {
	switch s {
	case "disconnected":
		return profile.StateDisconnected, nil
	case "connecting":
		return profile.StateConnecting, nil
	case "connected":
		return profile.StateConnected, nil
	case "disconnecting":
		return profile.StateDisconnecting, nil
	}
	return profile.StateDisconnected, fmt.Errorf("%w: connection state %q", ErrMalformedEvent, s)
}

// parseBondState maps a wire bond state name to a BondState.
func parseBondState(s string) (device.BondState, error) {
	switch s {
	case "none":
		return device.BondNone, nil
	case "bonding":
		return device.Bonding, nil
	case "bonded":
		return device.Bonded, nil
	}
	return device.BondNone, fmt.Errorf("%w: bond state %q", ErrMalformedEvent, s)
}
