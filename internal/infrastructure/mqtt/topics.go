package mqtt

import "fmt"

// TopicPrefix is the root of every topic the simulator publishes or
// subscribes to.
const TopicPrefix = "graylogic/sim"

// Topics provides builders for the simulator's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("ac_1")   // graylogic/sim/device/ac_1/state
//	topics.Decision("rule")      // graylogic/sim/decision/rule
type Topics struct{}

// Decision returns the topic a decision event of the given type is
// published to.
//
// Example: graylogic/sim/decision/manual_action
func (Topics) Decision(eventType string) string {
	return fmt.Sprintf("%s/decision/%s", TopicPrefix, eventType)
}

// DeviceState returns the retained state topic for one device.
//
// Example: graylogic/sim/device/fan_1/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// Command returns the default topic external systems publish manual
// commands to.
//
// Example: graylogic/sim/command
func (Topics) Command() string {
	return TopicPrefix + "/command"
}

// Status returns the simulator's online/offline status topic (also the
// Last Will topic).
//
// Example: graylogic/sim/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// AllDecisions matches every decision event topic.
//
// Pattern: graylogic/sim/decision/+
func (Topics) AllDecisions() string {
	return TopicPrefix + "/decision/+"
}

// AllDeviceStates matches every device state topic.
//
// Pattern: graylogic/sim/device/+/state
func (Topics) AllDeviceStates() string {
	return TopicPrefix + "/device/+/state"
}

// AllTopics matches all simulator traffic.
//
// Pattern: graylogic/sim/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
