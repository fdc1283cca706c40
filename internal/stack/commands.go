package stack

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/bluecore-io/bluecore/internal/arbiter"
	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/infrastructure/mqtt"
	"github.com/bluecore-io/bluecore/internal/profile"
)

// Command operations understood by the native stack process.
const (
	OpConnect             = "connect"
	OpDisconnect          = "disconnect"
	OpSetActive           = "set_active"
	OpSetPreferredProfile = "set_preferred_profile"
	OpActiveDeviceChanged = "active_device_changed"
)

// commandQoS is the QoS level for outbound commands. At-least-once:
// the stack treats repeated commands as idempotent.
const commandQoS byte = 1

// Publisher is the slice of the MQTT client the command sender needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// command is the JSON envelope carried on every command topic. The ID
// lets the stack de-duplicate redelivered commands.
type command struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	Address   string `json:"address,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Active    *bool  `json:"active,omitempty"`
	Direction string `json:"direction,omitempty"`

	PrevAddress string     `json:"prev_address,omitempty"`
	Route       *routeInfo `json:"route,omitempty"`
}

// routeInfo rides along on active_device_changed commands only.
type routeInfo struct {
	SuppressNoisy bool `json:"suppress_noisy"`
	Volume        int  `json:"volume"`
}

// Commands publishes host commands to the native stack. It satisfies
// the command-side interfaces of the profile managers, the arbiter and
// the preference negotiator, so the domain packages stay free of any
// transport knowledge.
//
// Thread Safety: all methods are safe for concurrent use; the MQTT
// client serialises publishes internally.
type Commands struct {
	pub    Publisher
	topics mqtt.Topics
	logger Logger
}

// NewCommands builds a command sender over the given publisher.
func NewCommands(pub Publisher) *Commands {
	return &Commands{pub: pub, logger: noopLogger{}}
}

// SetLogger replaces the command sender logger.
func (c *Commands) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// ConnectRequest asks the stack to open a profile-level connection.
// Implements profile.Commander.
func (c *Commands) ConnectRequest(p profile.ID, address string) error {
	return c.publish(c.topics.ProfileCommand(string(p), address), command{
		Op:      OpConnect,
		Address: address,
		Profile: string(p),
	})
}

// DisconnectRequest asks the stack to tear a profile-level connection
// down. Implements profile.Commander.
func (c *Commands) DisconnectRequest(p profile.ID, address string) error {
	return c.publish(c.topics.ProfileCommand(string(p), address), command{
		Op:      OpDisconnect,
		Address: address,
		Profile: string(p),
	})
}

// GroupSetActive asks the stack to (de)activate a coordinated set.
// Implements arbiter.GroupCommander.
func (c *Commands) GroupSetActive(groupID int, active bool) error {
	return c.publish(c.topics.GroupCommand(groupID), command{
		Op:     OpSetActive,
		Active: &active,
	})
}

// PreferredProfileChanged asks the audio framework to re-evaluate the
// active device for one role after a preference change. Implements
// preference.Framework; publish failures are logged, the negotiation
// window then expires on its own.
func (c *Commands) PreferredProfileChanged(address string, dir device.Direction, p profile.ID) {
	err := c.publish(c.topics.AdapterCommand(), command{
		Op:        OpSetPreferredProfile,
		Address:   address,
		Profile:   string(p),
		Direction: dir.String(),
	})
	if err != nil {
		c.logger.Error("preferred profile command failed",
			"address", address, "direction", dir.String(), "error", err)
	}
}

// ActiveDeviceChanged announces a routing decision to the audio
// framework. Implements arbiter.AudioRouter; the arbiter never fails,
// so publish errors are logged and dropped.
func (c *Commands) ActiveDeviceChanged(dir device.Direction, newAddress, prevAddress string, info arbiter.RouteInfo) {
	err := c.publish(c.topics.AdapterCommand(), command{
		Op:          OpActiveDeviceChanged,
		Address:     newAddress,
		Direction:   dir.String(),
		PrevAddress: prevAddress,
		Route:       &routeInfo{SuppressNoisy: info.SuppressNoisy, Volume: info.Volume},
	})
	if err != nil {
		c.logger.Error("active device announcement failed",
			"address", newAddress, "direction", dir.String(), "error", err)
	}
}

func (c *Commands) publish(topic string, cmd command) error {
	cmd.ID = uuid.NewString()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, cmd.Op, err)
	}
	if err := c.pub.Publish(topic, payload, commandQoS, false); err != nil {
		return fmt.Errorf("%w: %s on %s: %w", ErrPublishFailed, cmd.Op, topic, err)
	}
	c.logger.Debug("command published", "topic", topic, "op", cmd.Op, "id", cmd.ID)
	return nil
}
