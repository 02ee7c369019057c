package mqtt

import "fmt"

// Topic prefixes for the bulbrelay MQTT surface.
//
// All topics use the flat scheme: bulbrelay/{category}/{bulb_or_id}
const (
	// TopicPrefix is the base for all bulbrelay topics.
	TopicPrefix = "bulbrelay"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "bulbrelay/system"
)

// Topics provides builders for bulbrelay MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("desk-lamp")
//	// Returns: "bulbrelay/state/desk-lamp"
type Topics struct{}

// Command returns the topic the platform publishes bulb commands to.
//
// Example: bulbrelay/command/desk-lamp
func (Topics) Command(bulb string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, bulb)
}

// State returns the retained per-bulb state topic.
//
// Example: bulbrelay/state/desk-lamp
func (Topics) State(bulb string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, bulb)
}

// Ack returns the per-command acknowledgement topic for a bulb.
//
// Example: bulbrelay/ack/desk-lamp
func (Topics) Ack(bulb string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, bulb)
}

// Refresh returns the topic that triggers an on-demand rescan.
//
// Example: bulbrelay/request/refresh
func (Topics) Refresh() string {
	return fmt.Sprintf("%s/request/refresh", TopicPrefix)
}

// Health returns the topic for periodic daemon health payloads.
//
// Example: bulbrelay/system/health
func (Topics) Health() string {
	return fmt.Sprintf("%s/health", TopicPrefixSystem)
}

// SystemStatus returns the online/offline status topic, also used as the
// LWT target.
//
// Example: bulbrelay/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching every bulb command topic.
//
// Pattern: bulbrelay/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// CommandBulb extracts the bulb name from a command topic. Returns the
// empty string when the topic does not match the command scheme.
func (Topics) CommandBulb(topic string) string {
	prefix := TopicPrefix + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	bulb := topic[len(prefix):]
	for i := 0; i < len(bulb); i++ {
		if bulb[i] == '/' {
			return ""
		}
	}
	return bulb
}
