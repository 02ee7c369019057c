package platform

import (
	"errors"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/dispatch"
	"github.com/bulbrelay/bulb-relay-core/internal/relay"
	"github.com/bulbrelay/bulb-relay-core/internal/resolver"
	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

// CommandMessage is the JSON payload accepted on bulbrelay/command/{bulb}.
//
// The bulb name comes from the topic, not the payload. Only the fields
// the action uses are read.
//
// Examples:
//
//	{"action": "on"}
//	{"action": "brightness", "level": 60}
//	{"action": "rgb", "r": 255, "g": 120, "b": 0}
//	{"action": "temperature", "kelvin": 2700}
type CommandMessage struct {
	// Action is the command verb: on, off, brightness, rgb, temperature,
	// connect, disconnect.
	Action string `json:"action"`

	// Level is the brightness percentage for the brightness action.
	Level int `json:"level,omitempty"`

	// R, G, B are the colour channels for the rgb action.
	R int `json:"r,omitempty"`
	G int `json:"g,omitempty"`
	B int `json:"b,omitempty"`

	// Kelvin is the colour temperature for the temperature action.
	Kelvin int `json:"kelvin,omitempty"`
}

// Params converts the payload values to dispatch parameters.
func (m CommandMessage) Params() relay.Params {
	return relay.Params{
		Level:  m.Level,
		R:      m.R,
		G:      m.G,
		B:      m.B,
		Kelvin: m.Kelvin,
	}
}

// AckStatus is the outcome of one command.
type AckStatus string

const (
	// AckOK indicates the controller executed the command.
	AckOK AckStatus = "ok"

	// AckFailed indicates the command was not executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is published to bulbrelay/ack/{bulb} after every command.
type AckMessage struct {
	// Bulb is the bulb name from the command topic.
	Bulb string `json:"bulb"`

	// Action echoes the requested action, empty when the payload did not
	// parse.
	Action string `json:"action,omitempty"`

	// Status is "ok" or "failed".
	Status AckStatus `json:"status"`

	// DeviceID is the controller that served the command, empty on
	// failure before resolution.
	DeviceID string `json:"device_id,omitempty"`

	// Timestamp is when the acknowledgement was sent (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Error carries details when Status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError describes a command failure.
type AckError struct {
	// Code is a stable machine-readable failure kind.
	Code string `json:"code"`

	// Message is the human-readable error text.
	Message string `json:"message"`
}

// Error codes carried in failed acks.
const (
	ErrCodeBulbNotFound   = "BULB_NOT_FOUND"
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeUnreachable    = "DEVICE_UNREACHABLE"
	ErrCodeProtocol       = "PROTOCOL_ERROR"
	ErrCodeCommandFailed  = "COMMAND_FAILED"
	ErrCodeShuttingDown   = "SHUTTING_DOWN"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// errorCode maps a dispatch failure to its ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, relay.ErrBulbNotFound):
		return ErrCodeBulbNotFound
	case errors.Is(err, relay.ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, relay.ErrCommandFailed):
		return ErrCodeCommandFailed
	case errors.Is(err, transport.ErrTimeout):
		return ErrCodeTimeout
	case errors.Is(err, transport.ErrParse):
		return ErrCodeProtocol
	case errors.Is(err, transport.ErrTransport):
		return ErrCodeUnreachable
	case errors.Is(err, dispatch.ErrShutdown):
		return ErrCodeShuttingDown
	default:
		return ErrCodeInternal
	}
}

// StateMessage is the retained payload on bulbrelay/state/{bulb}.
//
// It reflects the last rescan, not live state; a bulb can lose its BLE
// link between rescans without the retained message changing.
type StateMessage struct {
	// Bulb is the bulb name.
	Bulb string `json:"bulb"`

	// DeviceID is the controller currently serving the bulb.
	DeviceID string `json:"device_id"`

	// Slot is the controller's slot index for the bulb.
	Slot int `json:"slot"`

	// Address is the bulb's hardware address as reported by the
	// controller.
	Address string `json:"address,omitempty"`

	// Connected is whether the controller held a live BLE link to the
	// bulb at rescan time.
	Connected bool `json:"connected"`

	// Timestamp is when the state was published (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus summarises the daemon's view of the fleet.
type HealthStatus string

const (
	// HealthHealthy means every configured device answered the last
	// rescan.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means at least one device did not answer.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy means no device answered.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStopping is published once during shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained payload on bulbrelay/system/health.
type HealthMessage struct {
	Status  HealthStatus `json:"status"`
	Version string       `json:"version"`

	// UptimeSeconds is how long the daemon has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Bulbs is the number of currently bound bulb names.
	Bulbs int `json:"bulbs"`

	// Devices reports every configured controller.
	Devices []DeviceHealth `json:"devices"`

	// Pending is the queued-or-in-flight command count per device.
	Pending map[string]int `json:"pending"`

	// Timestamp is when the health was published (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// DeviceHealth is one controller's entry in a health message.
type DeviceHealth struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Online  bool   `json:"online"`
	Bulbs   int    `json:"bulbs"`
}

// healthStatus derives the fleet status from the last rescan.
func healthStatus(devices []resolver.DeviceStatus) HealthStatus {
	if len(devices) == 0 {
		return HealthUnhealthy
	}
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}
	switch online {
	case len(devices):
		return HealthHealthy
	case 0:
		return HealthUnhealthy
	default:
		return HealthDegraded
	}
}
