// Package resolver maintains the bulb-name to device mapping.
//
// Bulb names are the stable handle users act on; which controller serves
// a name can change whenever a controller restarts, re-enumerates, or a
// serial adapter lands on a different port. The resolver hides that churn
// behind an immutable snapshot: lookups read the current snapshot without
// ever touching a device, and rescans rebuild the mapping wholesale and
// swap it in atomically.
//
// A rescan queries every configured device concurrently with the
// throttle-exempt catalog path. Devices that fail to answer keep their
// previous bindings untouched; devices that answer are folded in
// configured order, so a name reported by two controllers deterministically
// binds to the later one. Names no controller reports any more are
// dropped.
//
// Run drives rescans on a fixed period until its context is cancelled.
// Per-device failures inside a rescan are reported in the outcome list
// and logged, never escalated.
package resolver
