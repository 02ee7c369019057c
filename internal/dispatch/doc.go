// Package dispatch paces command traffic to one relay controller.
//
// The ESP32-class controllers wedge when commands arrive back to back, so
// each device gets exactly one Dispatcher: a single sequential worker that
// serves commands in FIFO order with a minimum gap between the starts of
// consecutive dispatches (default 500 ms).
//
// Status-catalog queries are exempt. They bypass the queue structurally
// and execute immediately, concurrently with whatever the worker is doing,
// so rescans of a busy fleet are never delayed by queued writes.
//
// Enqueue returns a result channel rather than blocking the caller; many
// goroutines can feed one device and each awaits only its own outcome. A
// failed command does not halt the queue. Stop fails every command that
// has not yet started with ErrShutdown and lets the in-flight one finish
// or time out.
package dispatch
