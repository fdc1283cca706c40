package mqtt

import "fmt"

// Topic prefixes for the bluecore bridge bus.
//
// The native stack process publishes HCI-level events under the event
// prefix and consumes host commands under the command prefix. Core
// lifecycle announcements live under the system prefix.
const (
	// TopicPrefix is the base for all bluecore topics.
	TopicPrefix = "bluecore"

	// TopicPrefixEvent is the base for stack event topics.
	TopicPrefixEvent = "bluecore/event"

	// TopicPrefixCommand is the base for host command topics.
	TopicPrefixCommand = "bluecore/command"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "bluecore/system"
)

// Topics provides builders for bluecore MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.StackEvent("connection_state_changed")
//	// Returns: "bluecore/event/connection_state_changed"
type Topics struct{}

// =============================================================================
// Stack Event Topics (native stack -> core)
// =============================================================================

// StackEvent returns the topic for a stack event type.
//
// Example: bluecore/event/connection_state_changed
func (Topics) StackEvent(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, eventType)
}

// AllStackEvents returns a pattern matching every stack event.
//
// Pattern: bluecore/event/+
func (Topics) AllStackEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvent)
}

// =============================================================================
// Command Topics (core -> native stack)
// =============================================================================

// ProfileCommand returns the topic for a profile-level command addressed
// to one device.
//
// Example: bluecore/command/le_audio/AA:BB:CC:DD:EE:FF
func (Topics) ProfileCommand(profile, address string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCommand, profile, address)
}

// GroupCommand returns the topic for a group-level command.
//
// Example: bluecore/command/group/3
func (Topics) GroupCommand(groupID int) string {
	return fmt.Sprintf("%s/group/%d", TopicPrefixCommand, groupID)
}

// AdapterCommand returns the topic for adapter-level commands.
//
// Example: bluecore/command/adapter
func (Topics) AdapterCommand() string {
	return fmt.Sprintf("%s/adapter", TopicPrefixCommand)
}

// AllCommands returns a pattern matching every host command.
//
// Pattern: bluecore/command/#
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/#", TopicPrefixCommand)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: bluecore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: bluecore/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all bluecore topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: bluecore/#
func (Topics) AllTopics() string {
	return "bluecore/#"
}
