package mqtt

import "fmt"

// Topic prefixes for the Ovenlink MQTT surface.
//
// The scheme is flat: ovenlink/{category}/{device_id}. State topics are
// retained so the platform sees the latest snapshot immediately after
// subscribing; command and result topics are not retained.
const (
	// TopicPrefix is the base for all Ovenlink topics.
	TopicPrefix = "ovenlink"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "ovenlink/system"
)

// Topics provides builders for Ovenlink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("oven-abc123")
//	// Returns: "ovenlink/state/oven-abc123"
type Topics struct{}

// DeviceState returns the topic for oven state snapshots.
// Published retained so late subscribers receive the current state.
//
// Example: ovenlink/state/oven-abc123
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// DeviceCommand returns the topic the platform publishes service calls to.
//
// Example: ovenlink/command/oven-abc123
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceResult returns the topic command results are published to.
//
// Example: ovenlink/result/oven-abc123
func (Topics) DeviceResult(deviceID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, deviceID)
}

// DeviceInfo returns the topic for device metadata (name, type, version).
// Published retained when a device is discovered.
//
// Example: ovenlink/device/oven-abc123/info
func (Topics) DeviceInfo(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/info", TopicPrefix, deviceID)
}

// DeviceAvailability returns the per-device availability topic.
// Published retained; "online" while the device is connected to the cloud.
//
// Example: ovenlink/device/oven-abc123/availability
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/availability", TopicPrefix, deviceID)
}

// CookEvent returns the topic for recipe execution lifecycle events
// (started, stage_advanced, completed, cancelled, failed).
//
// Example: ovenlink/cook/oven-abc123/event
func (Topics) CookEvent(deviceID string) string {
	return fmt.Sprintf("%s/cook/%s/event", TopicPrefix, deviceID)
}

// SystemStatus returns the service status topic (LWT target).
//
// Example: ovenlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceCommands returns a pattern matching command topics for all devices.
//
// Pattern: ovenlink/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllDeviceStates returns a pattern matching state topics for all devices.
//
// Pattern: ovenlink/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Ovenlink topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: ovenlink/#
func (Topics) AllTopics() string {
	return "ovenlink/#"
}
