package platform

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/mqtt"
	"github.com/bulbrelay/bulb-relay-core/internal/resolver"
)

// defaultHealthInterval is the health publish period when none is
// configured.
const defaultHealthInterval = 30 * time.Second

// HealthReporter publishes periodic daemon health to MQTT.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	source    HealthSource
	topics    mqtt.Topics

	// Shutdown coordination
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and
	// retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// HealthSource supplies the fleet figures a health payload reports.
// Satisfied by *relay.Coordinator.
type HealthSource interface {
	Bindings() map[string]resolver.BoundBulb
	Devices() []resolver.DeviceStatus
	Pending() map[string]int
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the daemon version reported in payloads.
	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Source supplies device, binding, and queue figures.
	Source HealthSource
}

// NewHealthReporter creates a health reporter. Call Start to begin
// reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop halts reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best effort; the connection may already be gone.
		//nolint:errcheck
		h.publish(h.buildMessage(HealthStopping))
	})
}

// PublishNow publishes a health message immediately.
func (h *HealthReporter) PublishNow() error {
	msg := h.buildMessage(healthStatus(h.source.Devices()))
	return h.publish(msg)
}

// reportLoop publishes on the configured interval until stopped.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logWarn("health publish failed", "error", err)
			}
		}
	}
}

// buildMessage assembles one health payload.
func (h *HealthReporter) buildMessage(status HealthStatus) HealthMessage {
	devices := h.source.Devices()
	out := make([]DeviceHealth, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceHealth{
			ID:      d.ID,
			Address: d.Address,
			Online:  d.Online,
			Bulbs:   d.Bulbs,
		})
	}

	return HealthMessage{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Bulbs:         len(h.source.Bindings()),
		Devices:       out,
		Pending:       h.source.Pending(),
		Timestamp:     time.Now().UTC(),
	}
}

// publish marshals and sends one health message, retained at QoS 1.
func (h *HealthReporter) publish(msg HealthMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topics.Health(), payload, 1, true)
}

// logWarn logs a warning if logger is set.
func (h *HealthReporter) logWarn(msg string, keysAndValues ...any) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
