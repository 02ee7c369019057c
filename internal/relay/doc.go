// Package relay coordinates bulb commands across the device fleet.
//
// The Coordinator is the write path of the daemon: it resolves a bulb
// name to its current device, builds the wire path for the requested
// action, enqueues it on that device's dispatcher, and interprets the
// reply. It is also where the re-resolution policy lives.
//
// Two situations trigger a rescan from inside Dispatch, each bounded to
// exactly one attempt per call:
//
//   - Lookup miss: one rescan, one more lookup, then ErrBulbNotFound.
//   - Transport or parse failure: one rescan, and if the name is still
//     bound afterwards, one retry. A second failure propagates with its
//     error kind unmasked.
//
// Timeouts are deliberately not retried. A silent device is most often a
// congested or wedged one, and re-sending writes at it risks duplicate
// effects without fixing anything a rescan could fix.
package relay
