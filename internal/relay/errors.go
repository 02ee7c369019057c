package relay

import "errors"

// Domain errors for the relay package.
var (
	// ErrBulbNotFound is returned when no device serves the requested
	// bulb name, even after a fresh rescan.
	ErrBulbNotFound = errors.New("relay: bulb not found")

	// ErrCommandFailed is returned when a device answers a command with
	// success=false. The device was reachable; the bulb likely was not.
	ErrCommandFailed = errors.New("relay: device reported command failure")

	// ErrInvalidCommand is returned for an action the wire vocabulary
	// does not have.
	ErrInvalidCommand = errors.New("relay: invalid command")
)
