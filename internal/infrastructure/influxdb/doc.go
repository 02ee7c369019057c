// Package influxdb records bulb connectivity history for Bulb Relay Core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes, and health monitoring.
//
// # Purpose
//
// After each rescan the daemon writes per-bulb connected gauges and
// per-device reachability, giving a time series of which bulbs and
// controllers were alive when. The feature is optional and disabled by
// default; when disabled, writers are nil-safe no-ops.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteBulbConnectivity("desk-lamp", "relay-hall", true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
package influxdb
