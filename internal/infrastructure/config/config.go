package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kind identifiers for device entries.
const (
	TransportSerial = "serial"
	TransportHTTP   = "http"
)

// Config is the root configuration structure for Bulb Relay Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Devices  []DeviceConfig `yaml:"devices"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Resolver ResolverConfig `yaml:"resolver"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig describes one physical relay controller and how to reach it.
//
// The order of entries is significant: rescans process devices in this
// order, so when two devices report the same bulb name the later entry
// wins deterministically.
type DeviceConfig struct {
	// ID is the stable logical identifier for this controller.
	// It survives port/host reassignment across reboots.
	ID string `yaml:"id"`

	// Transport selects the channel variant: "serial" or "http".
	Transport string `yaml:"transport"`

	Serial SerialConfig `yaml:"serial,omitempty"`
	HTTP   HTTPConfig   `yaml:"http,omitempty"`
}

// SerialConfig contains line-oriented serial channel settings.
type SerialConfig struct {
	// Path is the serial device path (e.g., "/dev/ttyUSB0").
	Path string `yaml:"path"`

	// Baud is the line speed. Default: 115200.
	Baud int `yaml:"baud"`
}

// HTTPConfig contains HTTP channel settings.
type HTTPConfig struct {
	Host string `yaml:"host"`

	// Port defaults to 80.
	Port int `yaml:"port"`
}

// DispatchConfig contains per-device command dispatch settings.
type DispatchConfig struct {
	// MinIntervalMS is the minimum spacing between the starts of two
	// consecutive non-status commands on the same device, in milliseconds.
	// Default: 500.
	MinIntervalMS int `yaml:"min_interval_ms"`

	// CommandTimeout is the per-command round-trip bound in seconds.
	// Default: 10.
	CommandTimeout int `yaml:"command_timeout"`
}

// ResolverConfig contains bulb-name resolution settings.
type ResolverConfig struct {
	// RescanInterval is the period of the background catalog rescan,
	// in seconds. Default: 30.
	RescanInterval int `yaml:"rescan_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// connectivity-history writer.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDeviceDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Bulb Relay",
		},
		Dispatch: DispatchConfig{
			MinIntervalMS:  500,
			CommandTimeout: 10,
		},
		Resolver: ResolverConfig{
			RescanInterval: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bulbrelay-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BULBRELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("BULBRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BULBRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BULBRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BULBRELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// applyDeviceDefaults fills per-device defaults that depend on the
// transport variant.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		switch d.Transport {
		case TransportSerial:
			if d.Serial.Baud == 0 {
				d.Serial.Baud = 115200
			}
		case TransportHTTP:
			if d.HTTP.Port == 0 {
				d.HTTP.Port = 80
			}
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}

	seen := make(map[string]bool, len(c.Devices))
	addrs := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)

		if d.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, d.ID))
		}
		seen[d.ID] = true

		switch d.Transport {
		case TransportSerial:
			if d.Serial.Path == "" {
				errs = append(errs, prefix+".serial.path is required")
			} else if addrs[d.Serial.Path] {
				errs = append(errs, fmt.Sprintf("%s.serial.path %q is duplicated", prefix, d.Serial.Path))
			}
			addrs[d.Serial.Path] = true
		case TransportHTTP:
			if d.HTTP.Host == "" {
				errs = append(errs, prefix+".http.host is required")
			} else {
				addr := fmt.Sprintf("%s:%d", d.HTTP.Host, d.HTTP.Port)
				if addrs[addr] {
					errs = append(errs, fmt.Sprintf("%s http address %q is duplicated", prefix, addr))
				}
				addrs[addr] = true
			}
			if d.HTTP.Port < 0 || d.HTTP.Port > 65535 {
				errs = append(errs, prefix+".http.port must be between 0 and 65535")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s.transport must be %q or %q", prefix, TransportSerial, TransportHTTP))
		}
	}

	if c.Dispatch.MinIntervalMS < 0 {
		errs = append(errs, "dispatch.min_interval_ms must not be negative")
	}
	if c.Dispatch.CommandTimeout <= 0 {
		errs = append(errs, "dispatch.command_timeout must be positive")
	}
	if c.Resolver.RescanInterval <= 0 {
		errs = append(errs, "resolver.rescan_interval must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set BULBRELAY_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MinInterval returns the per-device command spacing as a Duration.
func (c DispatchConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMS) * time.Millisecond
}

// Timeout returns the per-command round-trip bound as a Duration.
func (c DispatchConfig) Timeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

// Interval returns the background rescan period as a Duration.
func (c ResolverConfig) Interval() time.Duration {
	return time.Duration(c.RescanInterval) * time.Second
}
