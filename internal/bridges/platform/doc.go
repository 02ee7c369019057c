// Package platform is the MQTT surface of Bulb Relay Core.
//
// It translates between the platform's MQTT topics and the command
// coordinator:
//
//   - bulbrelay/command/{bulb}   JSON command payloads, dispatched to the
//     named bulb
//   - bulbrelay/ack/{bulb}       per-command result, success or failure
//   - bulbrelay/state/{bulb}     retained bulb snapshots, republished
//     after every rescan
//   - bulbrelay/request/refresh  forces an immediate fleet rescan
//   - bulbrelay/system/health    periodic daemon health, retained
//
// The bridge performs no retry logic of its own; resolution misses and
// transient failures are the coordinator's business. Each command is
// acknowledged exactly once.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Commands run on their own
// goroutines so a deep dispatch queue on one device never blocks the
// MQTT receive path.
package platform
