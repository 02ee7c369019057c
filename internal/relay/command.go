package relay

import "fmt"

// Action is one verb of the controller wire vocabulary.
type Action string

// Wire actions shared by every controller regardless of transport.
const (
	ActionOn          Action = "on"
	ActionOff         Action = "off"
	ActionBrightness  Action = "brightness"
	ActionRGB         Action = "rgb"
	ActionTemperature Action = "temperature"

	// Debug actions: force the controller to drop or re-establish its
	// BLE link to one bulb.
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
)

// Value ranges accepted by the controller firmware. Out-of-range values
// are clamped rather than rejected.
const (
	brightnessMin = 0
	brightnessMax = 100

	rgbMin = 0
	rgbMax = 255

	temperatureMin = 2000
	temperatureMax = 9000
)

// Params carries the value arguments of an action. Only the fields the
// action uses are read.
type Params struct {
	// Level is the brightness percentage for ActionBrightness.
	Level int

	// R, G, B are the colour channels for ActionRGB.
	R, G, B int

	// Kelvin is the colour temperature for ActionTemperature.
	Kelvin int
}

// commandPath builds the wire path for one action against one bulb.
//
// The rgb segment uses a literal query-style string; it is part of the
// path on both transports, not an HTTP query.
func commandPath(name string, action Action, p Params) (string, error) {
	base := "/bulb/" + name
	switch action {
	case ActionOn, ActionOff, ActionConnect, ActionDisconnect:
		return fmt.Sprintf("%s/%s", base, action), nil
	case ActionBrightness:
		return fmt.Sprintf("%s/brightness/%d", base, clamp(p.Level, brightnessMin, brightnessMax)), nil
	case ActionRGB:
		return fmt.Sprintf("%s/rgb/r=%d&g=%d&b=%d",
			base,
			clamp(p.R, rgbMin, rgbMax),
			clamp(p.G, rgbMin, rgbMax),
			clamp(p.B, rgbMin, rgbMax)), nil
	case ActionTemperature:
		return fmt.Sprintf("%s/temperature/%d", base, clamp(p.Kelvin, temperatureMin, temperatureMax)), nil
	default:
		return "", fmt.Errorf("%w: action %q", ErrInvalidCommand, action)
	}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
