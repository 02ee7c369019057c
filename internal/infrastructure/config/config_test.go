package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
devices:
  - id: "relay-hall"
    transport: "serial"
    serial:
      path: "/dev/ttyUSB0"
  - id: "relay-attic"
    transport: "http"
    http:
      host: "192.168.1.40"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}

	// Transport-dependent defaults are filled in.
	if cfg.Devices[0].Serial.Baud != 115200 {
		t.Errorf("Devices[0].Serial.Baud = %d, want 115200", cfg.Devices[0].Serial.Baud)
	}
	if cfg.Devices[1].HTTP.Port != 80 {
		t.Errorf("Devices[1].HTTP.Port = %d, want 80", cfg.Devices[1].HTTP.Port)
	}

	if cfg.Dispatch.MinInterval() != 500*time.Millisecond {
		t.Errorf("Dispatch.MinInterval() = %v, want 500ms", cfg.Dispatch.MinInterval())
	}
	if cfg.Resolver.Interval() != 30*time.Second {
		t.Errorf("Resolver.Interval() = %v, want 30s", cfg.Resolver.Interval())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_NoDevices(t *testing.T) {
	content := `
site:
  id: "test-site"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty device list, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	serialDevice := DeviceConfig{
		ID:        "relay-a",
		Transport: TransportSerial,
		Serial:    SerialConfig{Path: "/dev/ttyUSB0", Baud: 115200},
	}
	httpDevice := DeviceConfig{
		ID:        "relay-b",
		Transport: TransportHTTP,
		HTTP:      HTTPConfig{Host: "10.0.0.2", Port: 80},
	}

	base := func() *Config {
		cfg := defaultConfig()
		cfg.Devices = []DeviceConfig{serialDevice, httpDevice}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "no devices",
			mutate:  func(c *Config) { c.Devices = nil },
			wantErr: true,
		},
		{
			name: "duplicate device ID",
			mutate: func(c *Config) {
				dup := httpDevice
				dup.HTTP.Host = "10.0.0.3"
				c.Devices = append(c.Devices, dup)
			},
			wantErr: true,
		},
		{
			name: "duplicate transport address",
			mutate: func(c *Config) {
				dup := httpDevice
				dup.ID = "relay-c"
				c.Devices = append(c.Devices, dup)
			},
			wantErr: true,
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Devices[0].Transport = "bluetooth" },
			wantErr: true,
		},
		{
			name:    "serial without path",
			mutate:  func(c *Config) { c.Devices[0].Serial.Path = "" },
			wantErr: true,
		},
		{
			name:    "http without host",
			mutate:  func(c *Config) { c.Devices[1].HTTP.Host = "" },
			wantErr: true,
		},
		{
			name:    "negative min interval",
			mutate:  func(c *Config) { c.Dispatch.MinIntervalMS = -1 },
			wantErr: true,
		},
		{
			name:    "zero command timeout",
			mutate:  func(c *Config) { c.Dispatch.CommandTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero rescan interval",
			mutate:  func(c *Config) { c.Resolver.RescanInterval = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "influx enabled without URL",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Token = "tok" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("BULBRELAY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("BULBRELAY_MQTT_USERNAME", "testuser")
	t.Setenv("BULBRELAY_MQTT_PASSWORD", "testpass")
	t.Setenv("BULBRELAY_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Dispatch.MinIntervalMS != 500 {
		t.Errorf("defaultConfig Dispatch.MinIntervalMS = %d, want 500", cfg.Dispatch.MinIntervalMS)
	}
	if cfg.Dispatch.CommandTimeout != 10 {
		t.Errorf("defaultConfig Dispatch.CommandTimeout = %d, want 10", cfg.Dispatch.CommandTimeout)
	}
	if cfg.Resolver.RescanInterval != 30 {
		t.Errorf("defaultConfig Resolver.RescanInterval = %d, want 30", cfg.Resolver.RescanInterval)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
