// Bulb Relay Core - smart bulb fleet coordinator
//
// This is the main entry point for the Bulb Relay Core daemon. It owns a
// fleet of ESP32 relay controllers reachable over serial or HTTP, keeps a
// live bulb-name to controller mapping, and exposes the fleet to the
// wider platform over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bulbrelay/bulb-relay-core/internal/bridges/platform"
	"github.com/bulbrelay/bulb-relay-core/internal/dispatch"
	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/config"
	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/influxdb"
	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/logging"
	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/mqtt"
	"github.com/bulbrelay/bulb-relay-core/internal/relay"
	"github.com/bulbrelay/bulb-relay-core/internal/resolver"
	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Bulb Relay Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Build the device fleet: one transport and one pacing dispatcher per
	// configured controller, in configured order.
	devices, err := buildFleet(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, dev := range devices {
			dev.Dispatcher.Stop()
			if closeErr := dev.Transport.Close(); closeErr != nil {
				log.Error("error closing transport", "device", dev.ID, "error", closeErr)
			}
		}
	}()
	log.Info("fleet configured", "devices", len(devices))

	// Name resolution over the fleet
	res := resolver.New(devices, resolver.Options{
		RescanInterval: cfg.Resolver.Interval(),
	})
	res.SetLogger(log)

	coordinator := relay.New(res, devices)
	coordinator.SetLogger(log)

	// Populate the mapping before accepting commands. Controllers that
	// are dark at boot stay configured and join on a later rescan.
	for _, out := range res.RescanAll(ctx) {
		if out.Err != nil {
			log.Warn("device did not answer initial scan",
				"device", out.DeviceID, "address", out.Address, "error", out.Err)
			continue
		}
		log.Info("device online",
			"device", out.DeviceID, "address", out.Address, "bulbs", out.Bulbs)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	mqttClient.SetLogger(log)

	// Connect to InfluxDB (optional). A nil client is a valid disabled
	// writer, so the bridge can hold it unconditionally.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the platform bridge
	bridge, err := platform.New(platform.Options{
		MQTT:      &mqttBridgeAdapter{client: mqttClient},
		Commander: coordinator,
		History:   influxClient,
		QoS:       byte(cfg.MQTT.QoS),
		Version:   version,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating platform bridge: %w", err)
	}

	// Every rescan, periodic or forced, refreshes retained bulb state and
	// connectivity history.
	res.SetOnRescan(bridge.HandleRescan)

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting platform bridge: %w", err)
	}
	defer func() {
		log.Info("stopping platform bridge")
		bridge.Stop()
	}()

	// Background rescan loop
	go res.Run(ctx)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Platform bridge
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Dispatchers and transports

	log.Info("Bulb Relay Core stopped")
	return nil
}

// buildFleet creates the transport and dispatcher for every configured
// device, preserving configuration order.
func buildFleet(cfg *config.Config, log *logging.Logger) ([]*resolver.Device, error) {
	devices := make([]*resolver.Device, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		tr, err := transport.New(dc, cfg.Dispatch.Timeout())
		if err != nil {
			// Close what was already built; the daemon does not start
			// with a partial fleet.
			for _, dev := range devices {
				dev.Dispatcher.Stop()
				_ = dev.Transport.Close()
			}
			return nil, fmt.Errorf("device %s: %w", dc.ID, err)
		}
		if l, ok := tr.(interface{ SetLogger(transport.Logger) }); ok {
			l.SetLogger(log)
		}

		d := dispatch.New(tr, dispatch.Options{
			MinInterval: cfg.Dispatch.MinInterval(),
			Timeout:     cfg.Dispatch.Timeout(),
		})
		d.SetLogger(log)

		devices = append(devices, &resolver.Device{
			ID:         dc.ID,
			Transport:  tr,
			Dispatcher: d,
		})
	}
	return devices, nil
}

// getConfigPath returns the configuration file path.
// Uses BULBRELAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BULBRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the
// platform bridge's MQTTClient interface.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements platform.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements platform.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Bridge handlers don't return errors; wrap to satisfy the client's
	// handler type.
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements platform.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
