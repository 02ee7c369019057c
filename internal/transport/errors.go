package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrTransport is returned when the channel cannot be acquired or
	// fails mid-exchange (port missing, connection refused, closed).
	ErrTransport = errors.New("transport: channel unavailable")

	// ErrTimeout is returned when no usable response arrives within the
	// per-command time bound.
	ErrTimeout = errors.New("transport: command timed out")

	// ErrParse is returned when the device responds with data that is not
	// well-formed JSON.
	ErrParse = errors.New("transport: malformed response")
)
