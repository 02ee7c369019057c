package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bulbrelay/bulb-relay-core/internal/catalog"
	"github.com/bulbrelay/bulb-relay-core/internal/dispatch"
	"github.com/bulbrelay/bulb-relay-core/internal/resolver"
	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Response is the parsed reply to one dispatched command.
type Response struct {
	// Bulb is the controller's slot index for the addressed bulb.
	Bulb int `json:"bulb"`

	// Action echoes the verb the controller executed.
	Action string `json:"action"`

	// DeviceID identifies which device served the command.
	DeviceID string `json:"-"`
}

// commandReply is the wire shape of a command response.
type commandReply struct {
	Success *bool  `json:"success"`
	Bulb    int    `json:"bulb"`
	Action  string `json:"action"`
}

// Coordinator resolves names, paces commands through per-device
// dispatchers, and owns the single-retry re-resolution policy.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Coordinator struct {
	resolver *resolver.Resolver
	devices  []*resolver.Device

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Coordinator over a resolver and its device list.
func New(res *resolver.Resolver, devices []*resolver.Device) *Coordinator {
	return &Coordinator{
		resolver: res,
		devices:  devices,
	}
}

// SetLogger sets the logger for this coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Dispatch sends one action to the named bulb.
//
// Resolution misses trigger exactly one rescan before giving up with
// ErrBulbNotFound. Transport and parse failures trigger exactly one
// rescan followed by one retry if the name is still bound; timeouts and
// device-reported failures are never retried. The error kind of the last
// attempt propagates unmasked.
func (c *Coordinator) Dispatch(ctx context.Context, name string, action Action, p Params) (*Response, error) {
	dev, err := c.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	path, err := commandPath(name, action, p)
	if err != nil {
		return nil, err
	}

	resp, err := c.execute(ctx, dev, path)
	if err == nil {
		return resp, nil
	}
	if !retryable(err) {
		return nil, err
	}

	c.logInfo("command failed, re-resolving",
		"bulb", name, "device", dev.ID, "error", err)
	c.resolver.RescanAll(ctx)

	dev, lookupErr := c.resolver.Lookup(name)
	if lookupErr != nil {
		// The name vanished with its device; the original failure is
		// the truthful answer.
		return nil, err
	}

	return c.execute(ctx, dev, path)
}

// Snapshot returns the last-known bulb record per bound name. No I/O.
func (c *Coordinator) Snapshot() map[string]catalog.Bulb {
	return c.resolver.Snapshot()
}

// Bindings returns the current bindings keyed by bulb name, each with
// the serving device's ID. No I/O.
func (c *Coordinator) Bindings() map[string]resolver.BoundBulb {
	return c.resolver.Bindings()
}

// Devices reports per-device status as of the last rescan.
func (c *Coordinator) Devices() []resolver.DeviceStatus {
	return c.resolver.Devices()
}

// RescanAll forces an immediate rescan of every device.
func (c *Coordinator) RescanAll(ctx context.Context) []resolver.Outcome {
	return c.resolver.RescanAll(ctx)
}

// Pending returns the queued-or-in-flight command count per device ID.
func (c *Coordinator) Pending() map[string]int {
	out := make(map[string]int, len(c.devices))
	for _, dev := range c.devices {
		out[dev.ID] = dev.Dispatcher.Pending()
	}
	return out
}

// lookup resolves a name, allowing itself one rescan on a miss.
func (c *Coordinator) lookup(ctx context.Context, name string) (*resolver.Device, error) {
	dev, err := c.resolver.Lookup(name)
	if err == nil {
		return dev, nil
	}

	c.logDebug("bulb not bound, rescanning", "bulb", name)
	c.resolver.RescanAll(ctx)

	dev, err = c.resolver.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBulbNotFound, name)
	}
	return dev, nil
}

// execute enqueues one command on the device's dispatcher and parses the
// reply.
func (c *Coordinator) execute(ctx context.Context, dev *resolver.Device, path string) (*Response, error) {
	var res dispatch.Result
	select {
	case res = <-dev.Dispatcher.Enqueue(ctx, path):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrTimeout, dev.ID, ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}

	var reply commandReply
	if err := json.Unmarshal(res.Body, &reply); err != nil {
		return nil, fmt.Errorf("%w: command reply from %s: %w", transport.ErrParse, dev.ID, err)
	}
	if reply.Success == nil {
		return nil, fmt.Errorf("%w: command reply from %s missing success flag", transport.ErrParse, dev.ID)
	}
	if !*reply.Success {
		return nil, fmt.Errorf("%w: %s %s", ErrCommandFailed, dev.ID, path)
	}

	return &Response{
		Bulb:     reply.Bulb,
		Action:   reply.Action,
		DeviceID: dev.ID,
	}, nil
}

// retryable reports whether a failure kind justifies re-resolving and
// retrying. Timeouts, shutdowns, and device-reported failures do not.
func retryable(err error) bool {
	return errors.Is(err, transport.ErrTransport) || errors.Is(err, transport.ErrParse)
}

// logDebug logs a debug message if logger is set.
func (c *Coordinator) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (c *Coordinator) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}
