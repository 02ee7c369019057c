package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/influxdb"
	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/mqtt"
	"github.com/bulbrelay/bulb-relay-core/internal/relay"
	"github.com/bulbrelay/bulb-relay-core/internal/resolver"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one command end to end, queue wait included.
	// Deep queues on a paced device can hold a command for a while.
	commandTimeout = 30 * time.Second

	// refreshTimeout bounds an on-demand fleet rescan.
	refreshTimeout = 30 * time.Second
)

// MQTTClient is the broker surface the bridge needs.
// Satisfied by an adapter over the infrastructure mqtt client; kept as an
// interface so tests can run without a broker.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Commander is the command surface the bridge drives.
// Satisfied by *relay.Coordinator.
type Commander interface {
	// Dispatch sends one action to the named bulb.
	Dispatch(ctx context.Context, name string, action relay.Action, p relay.Params) (*relay.Response, error)

	// Bindings returns the current name bindings with serving device IDs.
	Bindings() map[string]resolver.BoundBulb

	// Devices reports per-device status as of the last rescan.
	Devices() []resolver.DeviceStatus

	// RescanAll forces an immediate rescan of every device.
	RescanAll(ctx context.Context) []resolver.Outcome

	// Pending returns the queued-or-in-flight count per device.
	Pending() map[string]int
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Bridge connects the command coordinator to the platform's MQTT topics.
type Bridge struct {
	mqtt      MQTTClient
	commander Commander
	history   *influxdb.Client
	qos       byte
	health    *HealthReporter
	topics    mqtt.Topics

	// published tracks which bulb names currently hold a retained state
	// message, so vanished names can be cleared from the broker.
	published   map[string]bool
	publishedMu sync.Mutex

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the broker client. Required.
	MQTT MQTTClient

	// Commander executes bulb commands. Required.
	Commander Commander

	// History records connectivity time series. May be nil (disabled).
	History *influxdb.Client

	// QoS for command subscriptions and ack/state publishes. Default 1.
	QoS byte

	// HealthInterval is the health publish period. Default 30 s.
	HealthInterval time.Duration

	// Version is the daemon version reported in health payloads.
	Version string

	// Logger is optional structured logging.
	Logger Logger
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("platform: MQTT client is required")
	}
	if opts.Commander == nil {
		return nil, fmt.Errorf("platform: commander is required")
	}

	qos := opts.QoS
	if qos == 0 {
		qos = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:      opts.MQTT,
		commander: opts.Commander,
		history:   opts.History,
		qos:       qos,
		published: make(map[string]bool),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Source:    opts.Commander,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// Start subscribes to command and refresh topics, publishes the current
// bulb states, and begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("platform: subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	refreshTopic := b.topics.Refresh()
	if err := b.mqtt.Subscribe(refreshTopic, b.qos, b.handleRefresh); err != nil {
		return fmt.Errorf("platform: subscribe to refresh: %w", err)
	}
	b.logInfo("subscribed to refresh", "topic", refreshTopic)

	b.publishStates()

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logWarn("initial health publish failed", "error", err)
	}

	return nil
}

// Stop shuts the bridge down. In-flight commands are cancelled, their
// acks report the cancellation.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("platform bridge stopped")
	})
}

// HandleRescan publishes retained state for every bound bulb and records
// connectivity history. Wire it to the resolver's rescan callback so
// periodic and forced rescans both refresh the broker.
func (b *Bridge) HandleRescan(outcomes []resolver.Outcome) {
	for _, out := range outcomes {
		b.history.WriteDeviceReachability(out.DeviceID, out.Address, out.Err == nil, out.Bulbs)
	}
	b.publishStates()
}

// handleCommand parses one command payload and dispatches it on its own
// goroutine.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	bulb := b.topics.CommandBulb(topic)
	if bulb == "" {
		b.logWarn("command on malformed topic", "topic", topic)
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logWarn("unparseable command payload", "bulb", bulb, "error", err)
		b.publishAckError(bulb, "", ErrCodeInvalidPayload, err.Error())
		return
	}

	b.logDebug("received command", "bulb", bulb, "action", cmd.Action)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatchCommand(bulb, cmd)
	}()
}

// dispatchCommand executes one command and acknowledges the outcome.
func (b *Bridge) dispatchCommand(bulb string, cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	resp, err := b.commander.Dispatch(ctx, bulb, relay.Action(cmd.Action), cmd.Params())
	if err != nil {
		b.logWarn("command failed",
			"bulb", bulb, "action", cmd.Action, "error", err)
		b.publishAckError(bulb, cmd.Action, errorCode(err), err.Error())
		return
	}

	b.publishAck(AckMessage{
		Bulb:      bulb,
		Action:    cmd.Action,
		Status:    AckOK,
		DeviceID:  resp.DeviceID,
		Timestamp: time.Now().UTC(),
	})
}

// handleRefresh forces a fleet rescan. State republishing rides on the
// resolver's rescan callback.
func (b *Bridge) handleRefresh(topic string, payload []byte) {
	b.logInfo("refresh requested")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(b.ctx, refreshTimeout)
		defer cancel()
		b.commander.RescanAll(ctx)
	}()
}

// publishAck publishes one acknowledgement.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("marshal ack", "bulb", ack.Bulb, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(ack.Bulb), payload, b.qos, false); err != nil {
		b.logError("publish ack", "bulb", ack.Bulb, "error", err)
	}
}

// publishAckError publishes a failed acknowledgement.
func (b *Bridge) publishAckError(bulb, action, code, message string) {
	b.publishAck(AckMessage{
		Bulb:      bulb,
		Action:    action,
		Status:    AckFailed,
		Timestamp: time.Now().UTC(),
		Error:     &AckError{Code: code, Message: message},
	})
}

// publishStates publishes a retained state message per bound bulb and
// clears retained state for names that vanished since the last publish.
func (b *Bridge) publishStates() {
	bindings := b.commander.Bindings()
	now := time.Now().UTC()

	current := make(map[string]bool, len(bindings))
	for name, bound := range bindings {
		current[name] = true
		b.publishState(name, bound, now)
		b.history.WriteBulbConnectivity(name, bound.DeviceID, bound.Bulb.Connected)
	}

	b.publishedMu.Lock()
	var vanished []string
	for name := range b.published {
		if !current[name] {
			vanished = append(vanished, name)
		}
	}
	b.published = current
	b.publishedMu.Unlock()

	// An empty retained payload deletes the retained message.
	for _, name := range vanished {
		if err := b.mqtt.Publish(b.topics.State(name), nil, b.qos, true); err != nil {
			b.logError("clear state", "bulb", name, "error", err)
		}
	}

	b.logDebug("published states", "bulbs", len(bindings), "cleared", len(vanished))
}

// publishState publishes one retained bulb state.
func (b *Bridge) publishState(name string, bound resolver.BoundBulb, now time.Time) {
	msg := StateMessage{
		Bulb:      name,
		DeviceID:  bound.DeviceID,
		Slot:      bound.Bulb.ID,
		Address:   bound.Bulb.Address,
		Connected: bound.Bulb.Connected,
		Timestamp: now,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshal state", "bulb", name, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(name), payload, b.qos, true); err != nil {
		b.logError("publish state", "bulb", name, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error if logger is set.
func (b *Bridge) logError(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
