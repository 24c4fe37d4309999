package mqtt

import "fmt"

// TopicPrefix is the root of every topic the agent publishes.
const TopicPrefix = "handsetagent"

// Topics provides builders for the agent's MQTT topics.
type Topics struct{}

// AgentStatus returns the retained online/offline topic for an agent.
// The broker publishes the LWT here if the agent disappears.
//
// Example: handsetagent/agent/lab-rack-3/status
func (Topics) AgentStatus(agentID string) string {
	return fmt.Sprintf("%s/agent/%s/status", TopicPrefix, agentID)
}

// DeviceStatus returns the retained status topic for a device.
//
// Example: handsetagent/device/R58M123ABC/status
func (Topics) DeviceStatus(serial string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, serial)
}

// DeviceEvent returns the lifecycle event topic for a device.
//
// Example: handsetagent/device/R58M123ABC/event/attached
func (Topics) DeviceEvent(serial, eventType string) string {
	return fmt.Sprintf("%s/device/%s/event/%s", TopicPrefix, serial, eventType)
}

// AllDeviceStatuses matches every device status topic.
//
// Pattern: handsetagent/device/+/status
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/device/+/status", TopicPrefix)
}

// AllDeviceEvents matches every lifecycle event topic.
//
// Pattern: handsetagent/device/+/event/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/device/+/event/+", TopicPrefix)
}
