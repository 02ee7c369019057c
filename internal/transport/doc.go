// Package transport provides the command channel to a relay controller.
//
// Every controller exposes the same path-based command vocabulary over one
// of two physical channels: a line-oriented serial link or a small embedded
// HTTP server. Both are modelled by the Transport interface, whose single
// primitive sends a command path and returns the raw JSON response body.
//
// The channel is acquired lazily on first use and released by Close. Serial
// access is serialized internally because it is one physical line; rate
// pacing between commands is the dispatcher's job, not the transport's.
//
// # Error Taxonomy
//
// All failures wrap one of three sentinels, checked with errors.Is:
//
//   - ErrTransport: channel unreachable, refused, or closed mid-exchange
//   - ErrTimeout: no usable response within the per-command bound
//   - ErrParse: the device responded, but not with well-formed JSON
//
// Callers use the distinction to decide whether re-resolving the device
// address is worthwhile (ErrTransport/ErrParse) or pointless (ErrTimeout).
package transport
