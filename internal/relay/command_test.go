package relay

import (
	"errors"
	"testing"
)

func TestCommandPath(t *testing.T) {
	tests := []struct {
		name   string
		bulb   string
		action Action
		params Params
		want   string
	}{
		{
			name:   "on",
			bulb:   "desk",
			action: ActionOn,
			want:   "/bulb/desk/on",
		},
		{
			name:   "off",
			bulb:   "desk",
			action: ActionOff,
			want:   "/bulb/desk/off",
		},
		{
			name:   "brightness",
			bulb:   "shelf",
			action: ActionBrightness,
			params: Params{Level: 42},
			want:   "/bulb/shelf/brightness/42",
		},
		{
			name:   "brightness clamped high",
			bulb:   "shelf",
			action: ActionBrightness,
			params: Params{Level: 150},
			want:   "/bulb/shelf/brightness/100",
		},
		{
			name:   "brightness clamped low",
			bulb:   "shelf",
			action: ActionBrightness,
			params: Params{Level: -10},
			want:   "/bulb/shelf/brightness/0",
		},
		{
			name:   "rgb",
			bulb:   "desk",
			action: ActionRGB,
			params: Params{R: 255, G: 0, B: 64},
			want:   "/bulb/desk/rgb/r=255&g=0&b=64",
		},
		{
			name:   "rgb clamped",
			bulb:   "desk",
			action: ActionRGB,
			params: Params{R: 300, G: -20, B: 128},
			want:   "/bulb/desk/rgb/r=255&g=0&b=128",
		},
		{
			name:   "temperature",
			bulb:   "desk",
			action: ActionTemperature,
			params: Params{Kelvin: 4000},
			want:   "/bulb/desk/temperature/4000",
		},
		{
			name:   "temperature clamped high",
			bulb:   "desk",
			action: ActionTemperature,
			params: Params{Kelvin: 12000},
			want:   "/bulb/desk/temperature/9000",
		},
		{
			name:   "temperature clamped low",
			bulb:   "desk",
			action: ActionTemperature,
			params: Params{Kelvin: 100},
			want:   "/bulb/desk/temperature/2000",
		},
		{
			name:   "connect",
			bulb:   "desk",
			action: ActionConnect,
			want:   "/bulb/desk/connect",
		},
		{
			name:   "disconnect",
			bulb:   "desk",
			action: ActionDisconnect,
			want:   "/bulb/desk/disconnect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commandPath(tt.bulb, tt.action, tt.params)
			if err != nil {
				t.Fatalf("commandPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("commandPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandPath_UnknownAction(t *testing.T) {
	_, err := commandPath("desk", Action("strobe"), Params{})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("commandPath() error = %v, want ErrInvalidCommand", err)
	}
}
