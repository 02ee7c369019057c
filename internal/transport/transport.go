package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/infrastructure/config"
)

// defaultCommandTimeout bounds a command round-trip when the caller's
// context carries no deadline.
const defaultCommandTimeout = 10 * time.Second

// Transport sends command paths to one relay controller and returns the
// raw response body.
//
// Implementations acquire the underlying channel lazily on the first Send
// and release it on Close. A failed acquisition returns an error wrapping
// ErrTransport; it never panics.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Transport interface {
	// Send transmits a command path and returns the raw JSON response.
	// The context bounds the round-trip; errors wrap ErrTransport,
	// ErrTimeout, or ErrParse.
	Send(ctx context.Context, path string) ([]byte, error)

	// Address returns the physical channel address (serial path or
	// host:port). It identifies the device across name migrations.
	Address() string

	// Close releases the channel. Subsequent Sends fail with ErrTransport.
	Close() error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// New builds the Transport variant selected by the device configuration.
//
// Parameters:
//   - cfg: Device entry from config.yaml
//   - timeout: Per-command round-trip bound
//
// Returns:
//   - Transport: Serial or HTTP transport, channel not yet acquired
//   - error: If the transport kind is unknown
func New(cfg config.DeviceConfig, timeout time.Duration) (Transport, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		return NewSerial(cfg.Serial.Path, cfg.Serial.Baud, timeout), nil
	case config.TransportHTTP:
		return NewHTTP(cfg.HTTP.Host, cfg.HTTP.Port, timeout), nil
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", cfg.Transport)
	}
}

// deadlineFrom resolves the effective deadline for one command: the
// context deadline when set, otherwise now plus the configured timeout.
func deadlineFrom(ctx context.Context, timeout time.Duration) time.Time {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}
